package command

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"github.com/vadiminshakov/cryptowallet/internal/services/users"
	"github.com/vadiminshakov/cryptowallet/internal/services/wallet"
	"github.com/vadiminshakov/cryptowallet/internal/storage/userstate"
	"golang.org/x/crypto/bcrypt"
)

type stubPrices struct {
	assets map[string]domain.Asset
	err    error
}

func (s *stubPrices) All(ctx context.Context) ([]domain.Asset, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Asset, 0, len(s.assets))
	for _, id := range []string{"BTC", "ETH", "X"} {
		if a, ok := s.assets[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubPrices) ByID(ctx context.Context, id string) (domain.Asset, error) {
	if s.err != nil {
		return domain.Asset{}, s.err
	}
	a, ok := s.assets[id]
	if !ok {
		return domain.Asset{}, domain.ErrNoSuchAsset
	}
	return a, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *users.Store, *stubPrices) {
	t.Helper()
	table, err := userstate.NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	store, err := users.NewStore(table, users.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	prices := &stubPrices{assets: map[string]domain.Asset{
		"BTC": {ID: "BTC", Name: "Bitcoin", IsCrypto: true, PriceUSD: decimal.NewFromInt(10)},
		"X":   {ID: "X", Name: "Coin X", IsCrypto: true, PriceUSD: decimal.NewFromInt(10)},
	}}
	return NewDispatcher(store, prices), store, prices
}

func registered(t *testing.T, d *Dispatcher) *users.User {
	t.Helper()
	reply, u, err := d.ExecutePublic(context.Background(), Parse("register alice secret"))
	require.NoError(t, err)
	require.Equal(t, "Registered successfully! Welcome alice", reply)
	require.NotNil(t, u)
	return u
}

func session(t *testing.T, d *Dispatcher, u *users.User, line string) (string, error) {
	t.Helper()
	return d.ExecuteSession(context.Background(), Parse(line), u)
}

func TestDispatcher_PublicCommands(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	reply, _, err := d.ExecutePublic(ctx, Parse("help"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "Supported commands:"))
	assert.Contains(t, reply, "buy --offering=<offering_code> --money=<amount>")

	reply, _, err = d.ExecutePublic(ctx, Parse("list-offerings"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "Asset {\n    assetId: 'BTC'"))
	assert.Contains(t, reply, "assetId: 'X'")
	assert.False(t, strings.HasSuffix(reply, "\n"))

	reply, _, err = d.ExecutePublic(ctx, Parse("dance"))
	require.NoError(t, err)
	assert.Equal(t, UnknownCommand, reply)
}

func TestDispatcher_LoginAndRegisterArity(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, _, err := d.ExecutePublic(ctx, Parse("login alice"))
	assert.EqualError(t, err, "You need two arguments to log in!")

	_, _, err = d.ExecutePublic(ctx, Parse("register a b c"))
	assert.EqualError(t, err, "You need two arguments to register")

	u := registered(t, d)
	_, err = session(t, d, u, "deposit-money 1")
	require.NoError(t, err)

	reply, u, err := d.ExecutePublic(ctx, Parse("login alice secret"))
	require.NoError(t, err)
	assert.Equal(t, "Logged in successfully as alice", reply)
	assert.Equal(t, "alice", u.Username())

	_, _, err = d.ExecutePublic(ctx, Parse("login alice nope"))
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestDispatcher_DepositWithdraw(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	u := registered(t, d)

	reply, err := session(t, d, u, "deposit-money 1000")
	require.NoError(t, err)
	assert.Equal(t, "1000.0 USD were deposited to your account", reply)

	reply, err = session(t, d, u, "withdraw-money 250.5")
	require.NoError(t, err)
	assert.Equal(t, "250.5 USD were withdrawn from your account", reply)

	_, err = session(t, d, u, "withdraw-money 5000")
	require.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	msg, class := domain.ClientMessage(err)
	assert.Equal(t, domain.ClassDomain, class)
	assert.Equal(t, "There's not enough money in your wallet. Sum available: 749.50", msg)
}

func TestDispatcher_ArgumentValidation(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	u := registered(t, d)

	tests := []struct {
		line    string
		message string
	}{
		{"deposit-money", "Invalid arguments for deposit command"},
		{"deposit-money 1 2", "Invalid arguments for deposit command"},
		{"deposit-money ten", "Money not in the correct format"},
		{"deposit-money -5", "Money amount cannot be zero or negative"},
		{"withdraw-money", "Invalid arguments for withdraw command"},
		{"sell", "Invalid arguments for sell command"},
		{"sell --offering-code=", "Invalid format of offering code"},
		{"sell --code=BTC", "Offering code was not passed"},
		{"buy --offering=BTC", "Invalid arguments to buy"},
		{"buy --offering= --money=1000", "Invalid format of offering code"},
		{"buy --offering=BTC --money=", "Illegal format of money argument"},
		{"buy --offering=BTC --amount=65", "Money argument was not given"},
		{"buy --offering=BTC --money=test", "Money not in the correct format"},
		{"deposit-money 1e1000000000", "Money amount is out of range"},
		{"deposit-money 1e-100000000", "Money amount is out of range"},
		{"deposit-money 1000000000000000000", "Money amount is out of range"},
		{"deposit-money 0.0000000000000000001", "Money amount is out of range"},
		{"withdraw-money 1e100000000", "Money amount is out of range"},
		{"buy --offering=BTC --money=1e-100000000", "Money amount is out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := session(t, d, u, tt.line)
			var validation *domain.ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.Equal(t, tt.message, validation.Error())
		})
	}
	assert.True(t, u.Wallet().Balance().IsZero())
}

func TestParseMoney_Bounds(t *testing.T) {
	for _, in := range []string{"1", "250.5", "999999999999999999", "0.000000000000000001", "1e17", "12.5e-3"} {
		amount, err := parseMoney(in)
		require.NoError(t, err, in)
		expected, err := decimal.NewFromString(in)
		require.NoError(t, err)
		assert.True(t, amount.Equal(expected), in)
	}

	for _, in := range []string{"1e18", "1e1000000000", "1e-19", "-1e100"} {
		_, err := parseMoney(in)
		var validation *domain.ValidationError
		require.True(t, errors.As(err, &validation), in)
		assert.Equal(t, "Money amount is out of range", validation.Error())
	}
}

func TestDispatcher_BuySellAndSummaries(t *testing.T) {
	d, store, prices := newTestDispatcher(t)
	u := registered(t, d)

	_, err := session(t, d, u, "deposit-money 1000")
	require.NoError(t, err)

	reply, err := session(t, d, u, "buy --offering=X --money=1000")
	require.NoError(t, err)
	assert.Equal(t, "X for 1000.0 was successfully bought", reply)

	fresh, err := store.User("alice")
	require.NoError(t, err)
	qty, ok := fresh.Wallet().State().Holdings["X"]
	require.True(t, ok)
	assert.True(t, qty.Equal(decimal.NewFromInt(100)))

	reply, err = session(t, d, fresh, "get-wallet-summary")
	require.NoError(t, err)
	assert.Equal(t, "Wallet balance: 0.00\nDeposited 1000.0 USD.\nBought 100.0 X for 1000.0 USD.", reply)

	prices.assets["X"] = domain.Asset{ID: "X", Name: "Coin X", IsCrypto: true, PriceUSD: decimal.NewFromInt(12)}
	reply, err = session(t, d, fresh, "get-wallet-overall-summary")
	require.NoError(t, err)
	assert.Equal(t, "Coin X {\n    buyValue: '1000.00',\n    sellValue: '1200.00',\n    gained: '200.00',\n    lost: '0.00'\n}", reply)

	_, err = session(t, d, fresh, "sell --offering=BTC")
	assert.True(t, errors.Is(err, domain.ErrAssetNotHeld))

	_, err = session(t, d, fresh, "sell --offering=NOPE")
	assert.True(t, errors.Is(err, domain.ErrNoSuchAsset))

	reply, err = session(t, d, fresh, "sell --offering=X")
	require.NoError(t, err)
	assert.Equal(t, "X was successfully sold", reply)

	reply, err = session(t, d, fresh, "get-wallet-overall-summary")
	require.NoError(t, err)
	assert.Equal(t, wallet.NoInformation, reply)
}

func TestDispatcher_Logout(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	u := registered(t, d)

	reply, err := session(t, d, u, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out successfully", reply)

	_, err = session(t, d, u, "deposit-money 10")
	assert.True(t, errors.Is(err, domain.ErrNotLoggedIn))
}

func TestDispatcher_UpstreamErrorPassesThrough(t *testing.T) {
	d, _, prices := newTestDispatcher(t)
	prices.err = &domain.FeedError{Kind: domain.FeedTooManyRequests, StatusCode: 429, Message: "Too many requests"}

	_, _, err := d.ExecutePublic(context.Background(), Parse("list-offerings"))
	msg, class := domain.ClientMessage(err)
	assert.Equal(t, domain.ClassUpstream, class)
	assert.Equal(t, "Too many requests", msg)
}
