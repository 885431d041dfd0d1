// Package funding implements deposit and withdrawal moderation: the
// pending → confirmed/approved/rejected state machines that gate money
// entering and leaving the platform. All balance effects settle through
// the ledger engine's BalanceService.
package funding

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// DEPOSIT
// =============================================================================

type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
	DepositRejected  DepositStatus = "rejected"
)

// Deposit is a user's claim to have paid crypto in, awaiting admin
// confirmation. ProofRef is an opaque handle to the uploaded
// proof-of-payment image; the engine stores and forwards it, never
// interprets it.
type Deposit struct {
	ID     ledger.DepositID
	UserID ledger.UserID

	AmountUSD    ledger.Money
	CryptoType   string // e.g. "BTC"
	CryptoAmount decimal.Decimal
	ProofRef     string

	// Optional: confirming this deposit immediately opens this plan with
	// the deposited amount as principal.
	PlanID *ledger.PlanID

	Status DepositStatus

	// Set on the transition out of pending
	AdminID    string
	AdminNotes string
	TxHash     string

	CreatedAt ledger.TimePoint
	UpdatedAt ledger.TimePoint
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Withdrawal is a user's request to take funds out. The balance is debited
// at APPROVAL time, not request time: a pending request holds nothing, and
// a rejection needs no compensating credit.
type Withdrawal struct {
	ID     ledger.WithdrawalID
	UserID ledger.UserID

	Amount     ledger.Money
	Address    string
	CryptoType string
	Network    string

	Status WithdrawalStatus

	AdminID    string
	AdminNotes string

	CreatedAt ledger.TimePoint
	UpdatedAt ledger.TimePoint
}

// =============================================================================
// PAYMENT METHOD - Externalized wallet configuration
// =============================================================================

// PaymentMethod is a platform receiving wallet, served from configuration
// (factory catalog), never compiled into application logic.
type PaymentMethod struct {
	ID               string
	CryptoType       string
	Network          string
	WalletAddress    string
	MinConfirmations int
	Active           bool
}

// =============================================================================
// STORES
// =============================================================================

type DepositStore interface {
	SaveDeposit(ctx context.Context, d Deposit) error
	UpdateDeposit(ctx context.Context, d Deposit) error
	GetDeposit(ctx context.Context, id ledger.DepositID) (*Deposit, error)
	ListDepositsByUser(ctx context.Context, userID ledger.UserID) ([]Deposit, error)
	ListDepositsByStatus(ctx context.Context, status DepositStatus) ([]Deposit, error)
}

type WithdrawalStore interface {
	SaveWithdrawal(ctx context.Context, w Withdrawal) error
	UpdateWithdrawal(ctx context.Context, w Withdrawal) error
	GetWithdrawal(ctx context.Context, id ledger.WithdrawalID) (*Withdrawal, error)
	ListWithdrawalsByUser(ctx context.Context, userID ledger.UserID) ([]Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status WithdrawalStatus) ([]Withdrawal, error)
}

// Store is the extended store the approval services need inside a
// transaction. It includes the invest surface because confirming a
// deposit may open an investment in the same transaction.
type Store interface {
	invest.Store
	DepositStore
	WithdrawalStore
}
