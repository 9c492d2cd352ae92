// Package wallet implements the per-user ledger of cash, holdings and transaction history.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
)

// NoInformation is the overall summary of a wallet without holdings.
const NoInformation = "There is no information"

// Pricer resolves the live price of an asset.
type Pricer interface {
	ByID(ctx context.Context, id string) (domain.Asset, error)
}

// Wallet holds cash, asset quantities, cost basis and an append-only history.
// All mutations are serialized by mu.
type Wallet struct {
	mu           sync.Mutex
	balance      decimal.Decimal
	holdings     map[string]decimal.Decimal
	costBasis    map[string]decimal.Decimal
	transactions []domain.Transaction
}

// State is the persisted form of a wallet.
type State struct {
	Balance      decimal.Decimal            `json:"balance"`
	Holdings     map[string]decimal.Decimal `json:"holdings"`
	CostBasis    map[string]decimal.Decimal `json:"cost_basis"`
	Transactions []domain.Transaction       `json:"transactions"`
}

// New creates an empty wallet.
func New() *Wallet {
	return &Wallet{
		balance:   decimal.Zero,
		holdings:  make(map[string]decimal.Decimal),
		costBasis: make(map[string]decimal.Decimal),
	}
}

// FromState restores a wallet from its persisted form.
func FromState(s State) (*Wallet, error) {
	if s.Balance.IsNegative() {
		return nil, errors.Errorf("negative balance %s", s.Balance.String())
	}
	w := New()
	w.balance = s.Balance
	for id, qty := range s.Holdings {
		w.holdings[id] = qty
	}
	for id, spent := range s.CostBasis {
		if _, ok := w.holdings[id]; !ok {
			return nil, errors.Errorf("cost basis for %s without holding", id)
		}
		w.costBasis[id] = spent
	}
	w.transactions = append(w.transactions, s.Transactions...)
	return w, nil
}

// State returns a copy of the wallet in its persisted form.
func (w *Wallet) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := State{
		Balance:      w.balance,
		Holdings:     make(map[string]decimal.Decimal, len(w.holdings)),
		CostBasis:    make(map[string]decimal.Decimal, len(w.costBasis)),
		Transactions: make([]domain.Transaction, len(w.transactions)),
	}
	for id, qty := range w.holdings {
		s.Holdings[id] = qty
	}
	for id, spent := range w.costBasis {
		s.CostBasis[id] = spent
	}
	copy(s.Transactions, w.transactions)
	return s
}

// Deposit adds amount to the cash balance and records it.
func (w *Wallet) Deposit(amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.balance = w.balance.Add(amount)
	w.transactions = append(w.transactions, domain.NewDeposit(amount))
	return nil
}

// Withdraw takes amount out of the cash balance. Withdrawals are not part of the history.
func (w *Wallet) Withdraw(amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if amount.GreaterThan(w.balance) {
		return insufficient(w.balance)
	}
	w.balance = w.balance.Sub(amount)
	return nil
}

// Buy spends usd on asset at its current price and returns the acquired quantity.
// Repeated buys of one asset add up quantity and cost basis.
func (w *Wallet) Buy(asset domain.Asset, usd decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount(usd); err != nil {
		return decimal.Zero, err
	}
	if !asset.PriceUSD.IsPositive() {
		return decimal.Zero, errors.Errorf("asset %s has no positive price", asset.ID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if usd.GreaterThan(w.balance) {
		return decimal.Zero, insufficient(w.balance)
	}

	quantity := usd.Div(asset.PriceUSD)
	w.balance = w.balance.Sub(usd)
	w.transactions = append(w.transactions, domain.NewBuy(usd, quantity, asset.ID, asset.PriceUSD))

	w.holdings[asset.ID] = w.holdings[asset.ID].Add(quantity)
	w.costBasis[asset.ID] = w.costBasis[asset.ID].Add(usd)

	return quantity, nil
}

// Sell liquidates the whole holding of asset at its current price and returns the proceeds
// together with the quantity sold.
func (w *Wallet) Sell(asset domain.Asset) (proceeds, quantity decimal.Decimal, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	quantity, ok := w.holdings[asset.ID]
	if !ok {
		return decimal.Zero, decimal.Zero, errors.Wrapf(domain.ErrAssetNotHeld, "asset %s", asset.ID)
	}

	proceeds = quantity.Mul(asset.PriceUSD)
	w.transactions = append(w.transactions, domain.NewSell(proceeds, quantity, asset.ID, asset.PriceUSD))
	delete(w.holdings, asset.ID)
	delete(w.costBasis, asset.ID)
	w.balance = w.balance.Add(proceeds)

	return proceeds, quantity, nil
}

// Balance returns the cash balance.
func (w *Wallet) Balance() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

func (w *Wallet) holding(id string) (decimal.Decimal, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	qty, ok := w.holdings[id]
	return qty, ok
}

func (w *Wallet) costBasisOf(id string) (decimal.Decimal, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	spent, ok := w.costBasis[id]
	return spent, ok
}

func (w *Wallet) history() []domain.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Transaction, len(w.transactions))
	copy(out, w.transactions)
	return out
}

// Summary renders the balance followed by the history in insertion order.
func (w *Wallet) Summary() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Wallet balance: %s\n", domain.FormatMoney(w.balance))
	for _, tx := range w.transactions {
		b.WriteString(tx.String())
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

type position struct {
	id       string
	quantity decimal.Decimal
	spent    decimal.Decimal
}

// OverallSummary values every holding at its live price and reports the unrealized
// gain or loss against the cost basis, rounded to two decimals.
func (w *Wallet) OverallSummary(ctx context.Context, pricer Pricer) (string, error) {
	positions := w.positions()
	if len(positions) == 0 {
		return NoInformation, nil
	}

	var b strings.Builder
	for _, p := range positions {
		asset, err := pricer.ByID(ctx, p.id)
		if err != nil {
			return "", errors.Wrapf(err, "price %s", p.id)
		}

		current := p.quantity.Mul(asset.PriceUSD)
		difference := p.spent.Sub(current)
		gained, lost := decimal.Zero, decimal.Zero
		if difference.LessThanOrEqual(decimal.Zero) {
			gained = difference.Abs()
		} else {
			lost = difference
		}

		fmt.Fprintf(&b, "%s {\n    buyValue: '%s',\n    sellValue: '%s',\n    gained: '%s',\n    lost: '%s'\n}\n",
			asset.Name,
			domain.FormatMoney(p.spent),
			domain.FormatMoney(current),
			domain.FormatMoney(gained),
			domain.FormatMoney(lost))
	}

	return strings.TrimSpace(b.String()), nil
}

func (w *Wallet) positions() []position {
	w.mu.Lock()
	defer w.mu.Unlock()

	positions := make([]position, 0, len(w.holdings))
	for id, qty := range w.holdings {
		positions = append(positions, position{id: id, quantity: qty, spent: w.costBasis[id]})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].id < positions[j].id
	})
	return positions
}

func checkAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.NewValidationError("amount", "Money amount cannot be zero or negative")
	}
	return nil
}

func insufficient(balance decimal.Decimal) error {
	return domain.WithDetail(domain.ErrInsufficientFunds, "Sum available: "+domain.FormatMoney(balance))
}
