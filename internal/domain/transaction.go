package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TransactionKind tags the variant held by a Transaction.
type TransactionKind string

const (
	// TransactionDeposit cash deposited into the wallet.
	TransactionDeposit TransactionKind = "deposit"
	// TransactionBuy cash converted into an asset.
	TransactionBuy TransactionKind = "buy"
	// TransactionSell a whole holding converted back into cash.
	TransactionSell TransactionKind = "sell"
)

// Transaction is one entry of a wallet history. Only the fields of its Kind are set:
// deposits carry Amount; buys and sells carry Amount (USD), Quantity, AssetID and UnitPrice.
type Transaction struct {
	Kind      TransactionKind `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Quantity  decimal.Decimal `json:"quantity"`
	AssetID   string          `json:"asset_id,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// NewDeposit builds a deposit transaction.
func NewDeposit(amount decimal.Decimal) Transaction {
	return Transaction{Kind: TransactionDeposit, Amount: amount}
}

// NewBuy builds a buy transaction.
func NewBuy(amount, quantity decimal.Decimal, assetID string, unitPrice decimal.Decimal) Transaction {
	return Transaction{Kind: TransactionBuy, Amount: amount, Quantity: quantity, AssetID: assetID, UnitPrice: unitPrice}
}

// NewSell builds a sell transaction.
func NewSell(amount, quantity decimal.Decimal, assetID string, unitPrice decimal.Decimal) Transaction {
	return Transaction{Kind: TransactionSell, Amount: amount, Quantity: quantity, AssetID: assetID, UnitPrice: unitPrice}
}

// String renders the history line of the transaction.
func (t Transaction) String() string {
	switch t.Kind {
	case TransactionDeposit:
		return fmt.Sprintf("Deposited %s USD.", FormatAmount(t.Amount))
	case TransactionBuy:
		return fmt.Sprintf("Bought %s %s for %s USD.", FormatAmount(t.Quantity), t.AssetID, FormatAmount(t.Amount))
	case TransactionSell:
		return fmt.Sprintf("Sold %s %s for %s USD.", FormatAmount(t.Quantity), t.AssetID, FormatAmount(t.Amount))
	default:
		return fmt.Sprintf("unknown transaction %q", string(t.Kind))
	}
}
