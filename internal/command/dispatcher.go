package command

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"github.com/vadiminshakov/cryptowallet/internal/services/users"
)

const (
	UnknownCommand = "Unknown command"

	offeringFlag = "--offering"
	moneyFlag    = "--money"
	separator    = "="

	// amounts are bounded so that decimal arithmetic on them stays cheap
	maxMoneyScale         = 18
	maxMoneyIntegerDigits = 18
)

const helpText = `Supported commands:
login <username> <password>
register <username> <password>
logout
list-offerings - Shows the cryptos offered by the exchange
deposit-money <amount>
withdraw-money <amount>
buy --offering=<offering_code> --money=<amount>
sell --offering=<offering_code>
get-wallet-summary
get-wallet-overall-summary`

// UserStore is the part of the user store used by commands.
type UserStore interface {
	Register(username, password string) (*users.User, error)
	Login(username, password string) (*users.User, error)
	Logout(username string) error
	Deposit(username string, amount decimal.Decimal) error
	Withdraw(username string, amount decimal.Decimal) error
	Buy(username string, asset domain.Asset, usd decimal.Decimal) (decimal.Decimal, error)
	Sell(username string, asset domain.Asset) (decimal.Decimal, error)
}

// Prices is the part of the price cache used by commands.
type Prices interface {
	All(ctx context.Context) ([]domain.Asset, error)
	ByID(ctx context.Context, id string) (domain.Asset, error)
}

// Dispatcher maps commands to handlers.
type Dispatcher struct {
	users  UserStore
	prices Prices
}

// NewDispatcher creates a dispatcher over the given stores.
func NewDispatcher(u UserStore, p Prices) *Dispatcher {
	return &Dispatcher{users: u, prices: p}
}

// ExecutePublic runs a command that needs no session. Login and register return the
// authenticated user to attach.
func (d *Dispatcher) ExecutePublic(ctx context.Context, cmd Command) (string, *users.User, error) {
	switch cmd.Name {
	case Login:
		return d.login(cmd)
	case Register:
		return d.register(cmd)
	case ListOfferings:
		reply, err := d.listOfferings(ctx)
		return reply, nil, err
	case Help:
		return helpText, nil, nil
	default:
		return UnknownCommand, nil, nil
	}
}

// ExecuteSession runs a command on behalf of user.
func (d *Dispatcher) ExecuteSession(ctx context.Context, cmd Command, user *users.User) (string, error) {
	if user == nil {
		return "", errors.New("session command without user")
	}

	switch cmd.Name {
	case Logout:
		if err := d.users.Logout(user.Username()); err != nil {
			return "", err
		}
		return "Logged out successfully", nil
	case DepositMoney:
		return d.deposit(cmd, user)
	case WithdrawMoney:
		return d.withdraw(cmd, user)
	case Buy:
		return d.buy(ctx, cmd, user)
	case Sell:
		return d.sell(ctx, cmd, user)
	case GetWalletSummary:
		return user.Wallet().Summary(), nil
	case GetWalletOverallSummary:
		return user.Wallet().OverallSummary(ctx, d.prices)
	default:
		return UnknownCommand, nil
	}
}

func (d *Dispatcher) login(cmd Command) (string, *users.User, error) {
	if len(cmd.Args) != 2 {
		return "", nil, domain.NewValidationError("args", "You need two arguments to log in!")
	}
	u, err := d.users.Login(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return "", nil, err
	}
	return "Logged in successfully as " + u.Username(), u, nil
}

func (d *Dispatcher) register(cmd Command) (string, *users.User, error) {
	if len(cmd.Args) != 2 {
		return "", nil, domain.NewValidationError("args", "You need two arguments to register")
	}
	u, err := d.users.Register(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return "", nil, err
	}
	return "Registered successfully! Welcome " + u.Username(), u, nil
}

func (d *Dispatcher) listOfferings(ctx context.Context) (string, error) {
	assets, err := d.prices.All(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, a := range assets {
		b.WriteString(a.String())
	}
	return strings.TrimSpace(b.String()), nil
}

func (d *Dispatcher) deposit(cmd Command, user *users.User) (string, error) {
	if len(cmd.Args) != 1 {
		return "", domain.NewValidationError("args", "Invalid arguments for deposit command")
	}
	amount, err := parseMoney(cmd.Args[0])
	if err != nil {
		return "", err
	}
	if err := d.users.Deposit(user.Username(), amount); err != nil {
		return "", err
	}
	return domain.FormatAmount(amount) + " USD were deposited to your account", nil
}

func (d *Dispatcher) withdraw(cmd Command, user *users.User) (string, error) {
	if len(cmd.Args) != 1 {
		return "", domain.NewValidationError("args", "Invalid arguments for withdraw command")
	}
	amount, err := parseMoney(cmd.Args[0])
	if err != nil {
		return "", err
	}
	if err := d.users.Withdraw(user.Username(), amount); err != nil {
		return "", err
	}
	return domain.FormatAmount(amount) + " USD were withdrawn from your account", nil
}

func (d *Dispatcher) buy(ctx context.Context, cmd Command, user *users.User) (string, error) {
	if len(cmd.Args) != 2 {
		return "", domain.NewValidationError("args", "Invalid arguments to buy")
	}
	id, err := offeringID(cmd.Args[0])
	if err != nil {
		return "", err
	}

	value, err := flagValue(cmd.Args[1], moneyFlag, "money", "Illegal format of money argument", "Money argument was not given")
	if err != nil {
		return "", err
	}
	amount, err := parseMoney(value)
	if err != nil {
		return "", err
	}

	asset, err := d.prices.ByID(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := d.users.Buy(user.Username(), asset, amount); err != nil {
		return "", err
	}
	return id + " for " + domain.FormatAmount(amount) + " was successfully bought", nil
}

func (d *Dispatcher) sell(ctx context.Context, cmd Command, user *users.User) (string, error) {
	if len(cmd.Args) != 1 {
		return "", domain.NewValidationError("args", "Invalid arguments for sell command")
	}
	id, err := offeringID(cmd.Args[0])
	if err != nil {
		return "", err
	}

	asset, err := d.prices.ByID(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := d.users.Sell(user.Username(), asset); err != nil {
		return "", err
	}
	return id + " was successfully sold", nil
}

// offeringID extracts the id from --offering=<id>.
func offeringID(arg string) (string, error) {
	return flagValue(arg, offeringFlag, "offering", "Invalid format of offering code", "Offering code was not passed")
}

// flagValue extracts the value of a --flag=<value> argument.
func flagValue(arg, flag, field, malformed, missing string) (string, error) {
	parts := strings.Split(arg, separator)
	if len(parts) != 2 || parts[1] == "" {
		return "", domain.NewValidationError(field, malformed)
	}
	if parts[0] != flag {
		return "", domain.NewValidationError(field, missing)
	}
	return parts[1], nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.NewValidationError("money", "Money not in the correct format")
	}
	if amount.Exponent() < -maxMoneyScale || amount.NumDigits()+int(amount.Exponent()) > maxMoneyIntegerDigits {
		return decimal.Zero, domain.NewValidationError("money", "Money amount is out of range")
	}
	return amount, nil
}
