// Package users owns the user table: registration, authentication and the wallets behind them.
package users

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"github.com/vadiminshakov/cryptowallet/internal/services/wallet"
	"github.com/vadiminshakov/cryptowallet/internal/storage/journal"
	"github.com/vadiminshakov/cryptowallet/internal/storage/userstate"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TableStore persists the whole user table.
type TableStore interface {
	Load() (userstate.Table, error)
	Save(table userstate.Table) error
}

// Journal records ledger mutations.
type Journal interface {
	Append(entry journal.Entry) (uint64, error)
}

// Store is the in-memory user table. It is loaded once and written back in full after every
// mutating call.
type Store struct {
	mu       sync.Mutex
	users    map[string]*User
	table    TableStore
	journal  Journal
	hashCost int
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithJournal records ledger mutations to j.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// WithHashCost sets the bcrypt cost for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Store) {
		s.hashCost = cost
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore loads the table from ts.
func NewStore(ts TableStore, opts ...Option) (*Store, error) {
	if ts == nil {
		return nil, errors.New("user table store is required")
	}

	s := &Store{
		users:    make(map[string]*User),
		table:    ts,
		hashCost: bcrypt.DefaultCost,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	table, err := ts.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	for _, rec := range table.Users {
		w, err := wallet.FromState(rec.Wallet)
		if err != nil {
			return nil, errors.Wrapf(err, "restore wallet of %s", rec.Username)
		}
		s.users[rec.Username] = &User{
			username:     rec.Username,
			passwordHash: []byte(rec.PasswordHash),
			wallet:       w,
		}
	}

	s.logger.Info("user table loaded", zap.Int("users", len(s.users)))
	return s, nil
}

// Register creates an authenticated user with an empty wallet.
func (s *Store) Register(username, password string) (*User, error) {
	if err := checkCredentials(username, password); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, errors.Wrapf(domain.ErrUserAlreadyExists, "register %s", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		username:      username,
		passwordHash:  hash,
		authenticated: true,
		wallet:        wallet.New(),
	}
	s.users[username] = u
	s.flush()

	return u, nil
}

// Login authenticates username with password.
func (s *Store) Login(username, password string) (*User, error) {
	if err := checkCredentials(username, password); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNoSuchUser, "login %s", username)
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidCredentials, "login %s", username)
	}
	u.authenticated = true

	return u, nil
}

// Logout clears the authenticated flag of username.
func (s *Store) Logout(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return errors.Wrapf(domain.ErrNoSuchUser, "logout %s", username)
	}
	u.authenticated = false

	return nil
}

// User returns the current record of username.
func (s *Store) User(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNoSuchUser, "lookup %s", username)
	}
	return u, nil
}

// Count returns the number of registered users.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Deposit credits the wallet of username.
func (s *Store) Deposit(username string, amount decimal.Decimal) error {
	return s.mutate(username, func(w *wallet.Wallet) (journal.Entry, error) {
		if err := w.Deposit(amount); err != nil {
			return journal.Entry{}, err
		}
		return journal.Entry{Kind: journal.KindDeposit, Amount: amount}, nil
	})
}

// Withdraw debits the wallet of username.
func (s *Store) Withdraw(username string, amount decimal.Decimal) error {
	return s.mutate(username, func(w *wallet.Wallet) (journal.Entry, error) {
		if err := w.Withdraw(amount); err != nil {
			return journal.Entry{}, err
		}
		return journal.Entry{Kind: journal.KindWithdraw, Amount: amount}, nil
	})
}

// Buy spends usd on asset from the wallet of username.
func (s *Store) Buy(username string, asset domain.Asset, usd decimal.Decimal) (decimal.Decimal, error) {
	var quantity decimal.Decimal
	err := s.mutate(username, func(w *wallet.Wallet) (journal.Entry, error) {
		q, err := w.Buy(asset, usd)
		if err != nil {
			return journal.Entry{}, err
		}
		quantity = q
		return journal.Entry{
			Kind:      journal.KindBuy,
			Amount:    usd,
			Quantity:  q,
			AssetID:   asset.ID,
			UnitPrice: asset.PriceUSD,
		}, nil
	})
	return quantity, err
}

// Sell liquidates the holding of asset in the wallet of username.
func (s *Store) Sell(username string, asset domain.Asset) (decimal.Decimal, error) {
	var proceeds decimal.Decimal
	err := s.mutate(username, func(w *wallet.Wallet) (journal.Entry, error) {
		p, quantity, err := w.Sell(asset)
		if err != nil {
			return journal.Entry{}, err
		}
		proceeds = p
		return journal.Entry{
			Kind:      journal.KindSell,
			Amount:    p,
			Quantity:  quantity,
			AssetID:   asset.ID,
			UnitPrice: asset.PriceUSD,
		}, nil
	})
	return proceeds, err
}

// mutate runs op against the wallet of an authenticated user, then journals and flushes.
func (s *Store) mutate(username string, op func(w *wallet.Wallet) (journal.Entry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return errors.Wrapf(domain.ErrNoSuchUser, "lookup %s", username)
	}
	if !u.authenticated {
		return domain.ErrNotLoggedIn
	}

	entry, err := op(u.wallet)
	if err != nil {
		return err
	}

	if s.journal != nil {
		entry.Username = username
		if _, err := s.journal.Append(entry); err != nil {
			s.logger.Error("failed to journal ledger mutation",
				zap.String("user", username),
				zap.String("kind", string(entry.Kind)),
				zap.Error(err))
		}
	}
	s.flush()

	return nil
}

// flush writes the whole table. Callers hold mu.
func (s *Store) flush() {
	table := userstate.Table{Users: make([]userstate.Record, 0, len(s.users))}
	for _, u := range s.users {
		table.Users = append(table.Users, userstate.Record{
			Username:     u.username,
			PasswordHash: string(u.passwordHash),
			Wallet:       u.wallet.State(),
		})
	}

	if err := s.table.Save(table); err != nil {
		s.logger.Error("failed to flush user table", zap.Int("users", len(table.Users)), zap.Error(err))
	}
}

func checkCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return domain.NewValidationError("username", "Username cannot be null or empty")
	}
	if password == "" {
		return domain.NewValidationError("password", "Password cannot be null or empty")
	}
	return nil
}
