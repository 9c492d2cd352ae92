package userstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"github.com/vadiminshakov/cryptowallet/internal/services/wallet"
)

func TestStore_LoadMissingFile(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "users.json"))
	require.NoError(t, err)

	table, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, table.Users)
}

func TestStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store, err := NewStore(path)
	require.NoError(t, err)

	table, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, table.Users)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}

func TestStore_SaveReplacesWholeTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	w := wallet.State{
		Balance:      decimal.NewFromInt(60),
		Holdings:     map[string]decimal.Decimal{"BTC": decimal.NewFromInt(4)},
		CostBasis:    map[string]decimal.Decimal{"BTC": decimal.NewFromInt(40)},
		Transactions: []domain.Transaction{domain.NewDeposit(decimal.NewFromInt(100))},
	}

	require.NoError(t, store.Save(Table{Users: []Record{
		{Username: "zoe", PasswordHash: "h2", Wallet: w},
		{Username: "amy", PasswordHash: "h1"},
	}}))

	table, err := store.Load()
	require.NoError(t, err)
	require.Len(t, table.Users, 2)
	assert.Equal(t, "amy", table.Users[0].Username)
	assert.Equal(t, "zoe", table.Users[1].Username)
	assert.True(t, table.Users[1].Wallet.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, table.Users[1].Wallet.Holdings["BTC"].Equal(decimal.NewFromInt(4)))
	require.Len(t, table.Users[1].Wallet.Transactions, 1)
	assert.Equal(t, domain.TransactionDeposit, table.Users[1].Wallet.Transactions[0].Kind)

	require.NoError(t, store.Save(Table{Users: []Record{{Username: "amy", PasswordHash: "h1"}}}))

	table, err = store.Load()
	require.NoError(t, err)
	require.Len(t, table.Users, 1)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
