package journal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWALStore_AppendAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	idx, err := store.Append(Entry{Username: "alice", Kind: KindDeposit, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idx)

	idx, err = store.Append(Entry{
		Username:  "alice",
		Kind:      KindBuy,
		Amount:    decimal.NewFromInt(50),
		Quantity:  decimal.NewFromInt(5),
		AssetID:   "BTC",
		UnitPrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idx)
	assert.Equal(t, uint64(2), store.CurrentIndex())

	records, err := store.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, KindDeposit, records[0].Entry.Kind)
	assert.NotEmpty(t, records[0].Entry.ID)
	assert.False(t, records[0].Entry.At.IsZero())
	assert.Equal(t, "BTC", records[1].Entry.AssetID)
	assert.True(t, records[1].Entry.Quantity.Equal(decimal.NewFromInt(5)))

	records, err = store.EntriesAfter(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(2), records[0].Index)

	records, err = store.EntriesAfter(2)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWALStore_RejectsAnonymousEntry(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(Entry{Kind: KindWithdraw, Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}

func TestWALStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	_, err = store.Append(Entry{Username: "bob", Kind: KindWithdraw, Amount: decimal.NewFromInt(7)})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewWALStore(dir)
	require.NoError(t, err)
	defer store.Close()

	records, err := store.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0].Entry.Username)
	assert.Equal(t, KindWithdraw, records[0].Entry.Kind)
}

func TestWALStore_NilStore(t *testing.T) {
	var store *WALStore
	_, err := store.Append(Entry{Username: "x"})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}

func TestWALStore_EntriesAfterAcrossUsers(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	for _, name := range []string{"alice", "bob", "alice", "carol"} {
		_, err := store.Append(Entry{Username: name, Kind: KindDeposit, Amount: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}

	records, err := store.EntriesAfter(1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	users := make([]string, 0, len(records))
	for i, rec := range records {
		assert.Equal(t, uint64(i+2), rec.Index)
		users = append(users, rec.Entry.Username)
	}
	assert.Equal(t, []string{"bob", "alice", "carol"}, users)
}
