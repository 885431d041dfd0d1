/*
withdrawal.go - Withdrawal approval state machine

PURPOSE:
  Governs the withdrawal lifecycle:

    pending --[approve]--> approved
    pending --[reject]-->  rejected

DEBIT TIMING:
  Debit-on-approval, uniformly. A pending request holds no funds, so a
  rejection needs no compensating credit. The trade-off: multiple pending
  requests can together exceed the balance; sufficiency is therefore
  re-checked inside the approval transaction, where a shortfall fails with
  InsufficientFunds and leaves the request pending.

ELIGIBILITY:
  A user may request a withdrawal only with a positive available balance.
  There is no time-lock in this logic; the product copy that mentions a
  30-day lock is not enforced here (known policy/implementation mismatch,
  to be resolved by product, not silently encoded).

SEE ALSO:
  - deposit.go: The inbound counterpart
  - ledger/balance.go: The settlement underneath approval
*/
package funding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// WITHDRAWAL SERVICE
// =============================================================================

type WithdrawalService struct {
	Store    ledger.TxStore
	Balance  *ledger.BalanceService
	Clock    ledger.Clock
	Audit    ledger.AuditLog
	Notifier ledger.Notifier
}

func NewWithdrawalService(store ledger.TxStore, balance *ledger.BalanceService, clock ledger.Clock) *WithdrawalService {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &WithdrawalService{Store: store, Balance: balance, Clock: clock}
}

func NewWithdrawalID() ledger.WithdrawalID {
	return ledger.WithdrawalID("wd-" + uuid.NewString())
}

// RequestInput is a user's withdrawal request.
type RequestInput struct {
	UserID     ledger.UserID
	Amount     ledger.Money
	Address    string
	CryptoType string
	Network    string
}

// Request validates 0 < amount <= available balance and records a pending
// withdrawal. The balance is NOT debited here; that happens at approval.
func (s *WithdrawalService) Request(ctx context.Context, in RequestInput) (*Withdrawal, error) {
	if !in.Amount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if in.Address == "" {
		return nil, &ledger.ValidationError{Field: "address", Message: "required"}
	}
	if in.CryptoType == "" {
		return nil, &ledger.ValidationError{Field: "crypto_type", Message: "required"}
	}

	available, err := s.Balance.Balance(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if in.Amount.GreaterThan(available) {
		return nil, &ledger.InsufficientFundsError{
			UserID:    in.UserID,
			Available: available,
			Requested: in.Amount,
		}
	}

	ws, ok := s.Store.(WithdrawalStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}

	now := s.Clock.Now()
	w := Withdrawal{
		ID:         NewWithdrawalID(),
		UserID:     in.UserID,
		Amount:     in.Amount,
		Address:    in.Address,
		CryptoType: in.CryptoType,
		Network:    in.Network,
		Status:     WithdrawalPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := ws.SaveWithdrawal(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return &w, nil
}

// Eligible reports whether the user can currently request a withdrawal:
// available balance > 0. No time-lock is applied here.
func (s *WithdrawalService) Eligible(ctx context.Context, userID ledger.UserID) (bool, error) {
	available, err := s.Balance.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return available.IsPositive(), nil
}

// Approve debits the user's balance and marks the withdrawal approved.
// Sufficiency is checked here, at approval time, since the balance may
// have dropped since the request. A shortfall fails with
// InsufficientFunds and leaves the withdrawal pending.
func (s *WithdrawalService) Approve(ctx context.Context, withdrawalID ledger.WithdrawalID, adminID, notes string) (*Withdrawal, error) {
	var approved *Withdrawal
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		ws, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		w, err := ws.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w == nil {
			return &ledger.NotFoundError{Entity: "withdrawal", ID: string(withdrawalID)}
		}
		if w.Status != WithdrawalPending {
			return &ledger.StateTransitionError{
				Entity: "withdrawal", ID: string(withdrawalID),
				From: string(w.Status), Attempted: "approve",
			}
		}

		if _, err := s.Balance.ApplyDeltaIn(ctx, st, w.UserID, w.Amount.Neg(), ledger.LedgerTransaction{
			Type:           ledger.TxWithdrawal,
			Description:    fmt.Sprintf("withdrawal %s approved to %s", w.ID, w.Address),
			ReferenceID:    string(w.ID),
			IdempotencyKey: "withdrawal-approve-" + string(w.ID),
			CreatedBy:      adminID,
			CreatedByType:  "admin",
		}); err != nil {
			return err
		}

		w.Status = WithdrawalApproved
		w.AdminID = adminID
		w.AdminNotes = notes
		w.UpdatedAt = s.Clock.Now()
		if err := ws.UpdateWithdrawal(ctx, *w); err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		approved = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	ledger.BestEffortAudit(ctx, s.Audit, ledger.AuditEntry{
		Timestamp:   s.Clock.Now(),
		ActorID:     adminID,
		ActorType:   "admin",
		Action:      ledger.AuditWithdrawalApproved,
		UserID:      approved.UserID,
		ReferenceID: string(approved.ID),
		Details:     map[string]any{"amount": approved.Amount.String(), "address": approved.Address},
	})
	ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
		UserID:   approved.UserID,
		Title:    "Withdrawal approved",
		Message:  fmt.Sprintf("%s is on its way to %s", approved.Amount, approved.Address),
		Category: "withdrawal",
	})
	return approved, nil
}

// Reject marks a pending withdrawal rejected. No balance effect: nothing
// was held at request time.
func (s *WithdrawalService) Reject(ctx context.Context, withdrawalID ledger.WithdrawalID, adminID, reason string) (*Withdrawal, error) {
	var rejected *Withdrawal
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		ws, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		w, err := ws.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w == nil {
			return &ledger.NotFoundError{Entity: "withdrawal", ID: string(withdrawalID)}
		}
		if w.Status != WithdrawalPending {
			return &ledger.StateTransitionError{
				Entity: "withdrawal", ID: string(withdrawalID),
				From: string(w.Status), Attempted: "reject",
			}
		}

		w.Status = WithdrawalRejected
		w.AdminID = adminID
		w.AdminNotes = reason
		w.UpdatedAt = s.Clock.Now()
		if err := ws.UpdateWithdrawal(ctx, *w); err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		rejected = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	ledger.BestEffortAudit(ctx, s.Audit, ledger.AuditEntry{
		Timestamp:   s.Clock.Now(),
		ActorID:     adminID,
		ActorType:   "admin",
		Action:      ledger.AuditWithdrawalRejected,
		UserID:      rejected.UserID,
		ReferenceID: string(rejected.ID),
		Details:     map[string]any{"reason": reason},
	})
	ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
		UserID:   rejected.UserID,
		Title:    "Withdrawal rejected",
		Message:  reason,
		Category: "withdrawal",
	})
	return rejected, nil
}

// ListByUser returns a user's withdrawal history.
func (s *WithdrawalService) ListByUser(ctx context.Context, userID ledger.UserID) ([]Withdrawal, error) {
	ws, ok := s.Store.(WithdrawalStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return ws.ListWithdrawalsByUser(ctx, userID)
}

// ListPending returns withdrawals awaiting moderation.
func (s *WithdrawalService) ListPending(ctx context.Context) ([]Withdrawal, error) {
	ws, ok := s.Store.(WithdrawalStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return ws.ListWithdrawalsByStatus(ctx, WithdrawalPending)
}
