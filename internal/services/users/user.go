package users

import "github.com/vadiminshakov/cryptowallet/internal/services/wallet"

// User is a registered account. The authenticated flag lives only in memory.
type User struct {
	username      string
	passwordHash  []byte
	authenticated bool
	wallet        *wallet.Wallet
}

// Username returns the account name.
func (u *User) Username() string { return u.username }

// Wallet returns the ledger owned by the user.
func (u *User) Wallet() *wallet.Wallet { return u.wallet }
