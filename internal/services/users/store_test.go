package users

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"github.com/vadiminshakov/cryptowallet/internal/storage/journal"
	"github.com/vadiminshakov/cryptowallet/internal/storage/userstate"
	"golang.org/x/crypto/bcrypt"
)

type memoryTable struct {
	mu      sync.Mutex
	table   userstate.Table
	saves   int
	saveErr error
}

func (m *memoryTable) Load() (userstate.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table, nil
}

func (m *memoryTable) Save(table userstate.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.table = table
	return nil
}

type memoryJournal struct {
	entries []journal.Entry
}

func (m *memoryJournal) Append(entry journal.Entry) (uint64, error) {
	m.entries = append(m.entries, entry)
	return uint64(len(m.entries)), nil
}

func newTestStore(t *testing.T) (*Store, *memoryTable, *memoryJournal) {
	t.Helper()
	table := &memoryTable{}
	j := &memoryJournal{}
	s, err := NewStore(table, WithJournal(j), WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	return s, table, j
}

func asset(id string, price int64) domain.Asset {
	return domain.Asset{ID: id, Name: id, IsCrypto: true, PriceUSD: decimal.NewFromInt(price)}
}

func TestStore_RegisterValidation(t *testing.T) {
	s, table, _ := newTestStore(t)

	tests := []struct {
		name     string
		username string
		password string
		message  string
	}{
		{"empty username", "", "p", "Username cannot be null or empty"},
		{"blank username", "   ", "p", "Username cannot be null or empty"},
		{"empty password", "u", "", "Password cannot be null or empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(tt.username, tt.password)
			var validation *domain.ValidationError
			require.True(t, errors.As(err, &validation))
			assert.Equal(t, tt.message, validation.Error())
		})
	}
	assert.Equal(t, 0, table.saves)
}

func loggedIn(s *Store, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return ok && u.authenticated
}

func TestStore_RegisterLogsInAndFlushes(t *testing.T) {
	s, table, _ := newTestStore(t)

	u, err := s.Register("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username())
	assert.True(t, loggedIn(s, u.Username()))
	assert.Equal(t, 1, table.saves)
	require.Len(t, table.table.Users, 1)
	assert.NotEqual(t, "secret", table.table.Users[0].PasswordHash)

	_, err = s.Register("alice", "other")
	assert.True(t, errors.Is(err, domain.ErrUserAlreadyExists))
	assert.Equal(t, 1, s.Count())
}

func TestStore_Login(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Register("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Logout("alice"))

	_, err = s.Login("bob", "secret")
	assert.True(t, errors.Is(err, domain.ErrNoSuchUser))

	_, err = s.Login("alice", "wrong")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))

	u, err := s.Login("alice", "secret")
	require.NoError(t, err)
	assert.True(t, loggedIn(s, u.Username()))
}

func TestStore_MutationsRequireLogin(t *testing.T) {
	s, table, j := newTestStore(t)
	_, err := s.Register("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Logout("alice"))
	saves := table.saves

	err = s.Deposit("alice", decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, domain.ErrNotLoggedIn))

	_, err = s.Buy("alice", asset("BTC", 10), decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, domain.ErrNotLoggedIn))

	err = s.Deposit("ghost", decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, domain.ErrNoSuchUser))

	assert.Equal(t, saves, table.saves)
	assert.Empty(t, j.entries)
}

func TestStore_LedgerMutationsJournalAndFlush(t *testing.T) {
	s, table, j := newTestStore(t)
	_, err := s.Register("alice", "secret")
	require.NoError(t, err)

	require.NoError(t, s.Deposit("alice", decimal.NewFromInt(100)))
	require.NoError(t, s.Withdraw("alice", decimal.NewFromInt(20)))

	quantity, err := s.Buy("alice", asset("BTC", 10), decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(5)))

	proceeds, err := s.Sell("alice", asset("BTC", 12))
	require.NoError(t, err)
	assert.True(t, proceeds.Equal(decimal.NewFromInt(60)))

	assert.Equal(t, 5, table.saves)
	require.Len(t, j.entries, 4)
	kinds := []journal.Kind{journal.KindDeposit, journal.KindWithdraw, journal.KindBuy, journal.KindSell}
	for i, kind := range kinds {
		assert.Equal(t, kind, j.entries[i].Kind)
		assert.Equal(t, "alice", j.entries[i].Username)
	}
	assert.True(t, j.entries[3].Quantity.Equal(decimal.NewFromInt(5)))

	u, err := s.User("alice")
	require.NoError(t, err)
	assert.True(t, u.Wallet().Balance().Equal(decimal.NewFromInt(90)))
	assert.True(t, table.table.Users[0].Wallet.Balance.Equal(decimal.NewFromInt(90)))
}

func TestStore_FailedMutationDoesNotFlush(t *testing.T) {
	s, table, j := newTestStore(t)
	_, err := s.Register("alice", "secret")
	require.NoError(t, err)

	err = s.Withdraw("alice", decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	assert.Equal(t, 1, table.saves)
	assert.Empty(t, j.entries)
}

func TestStore_FlushFailureKeepsMutation(t *testing.T) {
	s, table, _ := newTestStore(t)
	_, err := s.Register("alice", "secret")
	require.NoError(t, err)

	table.saveErr = errors.New("disk full")
	require.NoError(t, s.Deposit("alice", decimal.NewFromInt(10)))

	u, err := s.User("alice")
	require.NoError(t, err)
	assert.True(t, u.Wallet().Balance().Equal(decimal.NewFromInt(10)))
}

func TestStore_ReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	file, err := userstate.NewStore(path)
	require.NoError(t, err)

	s, err := NewStore(file, WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	_, err = s.Register("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Deposit("alice", decimal.NewFromInt(100)))
	_, err = s.Buy("alice", asset("ETH", 20), decimal.NewFromInt(40))
	require.NoError(t, err)

	reloaded, err := NewStore(file)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Count())

	u, err := reloaded.User("alice")
	require.NoError(t, err)
	assert.False(t, loggedIn(reloaded, "alice"))
	assert.True(t, u.Wallet().Balance().Equal(decimal.NewFromInt(60)))
	qty, ok := u.Wallet().State().Holdings["ETH"]
	require.True(t, ok)
	assert.True(t, qty.Equal(decimal.NewFromInt(2)))

	_, err = reloaded.Login("alice", "secret")
	assert.NoError(t, err)
}
