// Package command parses client lines and executes them against the user store and price cache.
package command

import "strings"

// Name identifies a command.
type Name string

const (
	Login                   Name = "login"
	Register                Name = "register"
	Logout                  Name = "logout"
	DepositMoney            Name = "deposit-money"
	WithdrawMoney           Name = "withdraw-money"
	Buy                     Name = "buy"
	Sell                    Name = "sell"
	ListOfferings           Name = "list-offerings"
	GetWalletSummary        Name = "get-wallet-summary"
	GetWalletOverallSummary Name = "get-wallet-overall-summary"
	Help                    Name = "help"
	Unknown                 Name = ""
)

var known = map[Name]struct{}{
	Login:                   {},
	Register:                {},
	Logout:                  {},
	DepositMoney:            {},
	WithdrawMoney:           {},
	Buy:                     {},
	Sell:                    {},
	ListOfferings:           {},
	GetWalletSummary:        {},
	GetWalletOverallSummary: {},
	Help:                    {},
}

// Command is a parsed client line.
type Command struct {
	Name Name
	Args []string
}

// Authenticates reports whether a successful run attaches a user to the session.
func (c Command) Authenticates() bool {
	return c.Name == Login || c.Name == Register
}

// Public reports whether the command runs without a session.
func (c Command) Public() bool {
	switch c.Name {
	case Login, Register, ListOfferings, Help:
		return true
	default:
		return false
	}
}

// Parse splits line into a command name and its arguments.
func Parse(line string) Command {
	tokens := Tokenize(line)
	name := Name(tokens[0])
	if _, ok := known[name]; !ok {
		name = Unknown
	}
	return Command{Name: name, Args: tokens[1:]}
}

// Tokenize splits on single spaces outside double quotes and strips the quotes.
// The result always has at least one element.
func Tokenize(line string) []string {
	line = strings.TrimRight(line, "\r\n")

	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ' ' && !quoted:
			tokens = append(tokens, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(tokens, current.String())
}
