/*
Package ledger provides the core investment ledger engine.

PURPOSE:
  This package contains the domain-agnostic money and transaction types,
  the append-only transaction log, and the balance service that owns all
  cash-balance mutation. Deposits, withdrawals, investment opens, ROI
  claims and admin adjustments all settle through this one engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal amount with a currency code (e.g., $500.00 USD)
  - LedgerTransaction: An immutable ledger entry recording a balance change
  - User/Plan/Investment/... IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Ledger transactions are never modified or deleted
  2. Precision: Uses decimal.Decimal, never floats, for money
  3. Signed deltas: positive = credit to the user, negative = debit
  4. Auditability: Every transaction carries description, reference,
     actor, and idempotency key

USAGE:
  amount := ledger.MustParseMoney("500.00")
  entry := ledger.LedgerTransaction{
      UserID:      "user-123",
      Type:        ledger.TxDeposit,
      Delta:       amount,
      Description: "deposit confirmed",
  }

SEE ALSO:
  - log.go: Append-only transaction log
  - balance.go: The single write path for balances
  - errors.go: Error taxonomy
*/
package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount with currency
// =============================================================================

// CurrencyUSD is the settlement currency. Crypto amounts are converted to
// USD by the pricing collaborator before they reach the ledger.
const CurrencyUSD = "USD"

type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value decimal.Decimal, currency string) Money {
	return Money{Value: value, Currency: currency}
}

func USD(value decimal.Decimal) Money {
	return Money{Value: value, Currency: CurrencyUSD}
}

func USDFromFloat(value float64) Money {
	return USD(decimal.NewFromFloat(value))
}

func ZeroUSD() Money {
	return USD(decimal.Zero)
}

// MustParseMoney parses a decimal string as USD. Invalid input yields zero;
// use only for constants and test fixtures.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroUSD()
	}
	return USD(d)
}

func (m Money) Zero() Money                  { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(o Money) Money            { return Money{Value: m.Value.Add(o.Value), Currency: m.Currency} }
func (m Money) Sub(o Money) Money            { return Money{Value: m.Value.Sub(o.Value), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money  { return Money{Value: m.Value.Mul(s), Currency: m.Currency} }
func (m Money) Div(s decimal.Decimal) Money  { return Money{Value: m.Value.Div(s), Currency: m.Currency} }
func (m Money) Neg() Money                   { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) IsNegative() bool             { return m.Value.IsNegative() }
func (m Money) IsZero() bool                 { return m.Value.IsZero() }
func (m Money) IsPositive() bool             { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool           { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool     { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool        { return m.Value.LessThan(o.Value) }
func (m Money) String() string               { return m.Value.StringFixed(2) + " " + m.Currency }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type PlanID string
type InvestmentID string
type DepositID string
type WithdrawalID string
type TransactionID string

// NewTransactionID returns a fresh random transaction ID.
func NewTransactionID() TransactionID {
	return TransactionID("tx-" + uuid.NewString())
}

// =============================================================================
// LEDGER TRANSACTION - Atomic change to a user's cash balance
// =============================================================================

type TransactionType string

const (
	TxDeposit             TransactionType = "deposit"              // Confirmed deposit credit
	TxWithdrawal          TransactionType = "withdrawal"           // Approved withdrawal debit
	TxInvestmentOpen      TransactionType = "investment_open"      // Principal committed to a plan
	TxInvestmentCompleted TransactionType = "investment_completed" // Principal + remaining ROI at maturity
	TxRoiClaim            TransactionType = "roi_claim"            // Earned ROI credited to balance
	TxCredit              TransactionType = "credit"               // Manual admin credit
	TxDebit               TransactionType = "debit"                // Manual admin debit
)

// LedgerTransaction is one balance-affecting event. Delta is signed:
// positive credits the user, negative debits. The ledger is append-only;
// corrections are recorded as new entries, never edits.
type LedgerTransaction struct {
	ID             TransactionID
	UserID         UserID
	Type           TransactionType
	Delta          Money
	Description    string
	ReferenceID    string // deposit/withdrawal/investment id this entry settles
	IdempotencyKey string

	EffectiveAt TimePoint

	// Audit fields
	CreatedBy     string // Actor who triggered this entry
	CreatedByType string // "user", "admin", "system"
	CreatedAt     TimePoint
}

// IsCredit reports whether the entry credits the user.
func (t LedgerTransaction) IsCredit() bool { return t.Delta.IsPositive() }
