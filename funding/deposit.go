/*
deposit.go - Deposit approval state machine

PURPOSE:
  Governs the deposit lifecycle:

    pending --[confirm]--> confirmed
    pending --[reject]-->  rejected

  Terminal states accept no further transition: a repeated confirm or
  reject on a non-pending deposit fails as a conflict (stale admin view).

CONFIRMATION:
  Credits the user's balance with the deposit's USD amount. If the deposit
  names a target plan, the plan is opened in the SAME transaction with the
  deposited amount as principal: the ledger shows the deposit credit and
  the investment_open debit (net balance effect zero), so the history
  conserves and the audit trail is complete.

REJECTION:
  No balance effect. The reason should be provided; an empty reason is
  tolerated as a data-quality issue, not a hard error.

SEE ALSO:
  - withdrawal.go: The outbound counterpart
  - invest/lifecycle.go: OpenInTx, used for plan auto-activation
*/
package funding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// DEPOSIT SERVICE
// =============================================================================

type DepositService struct {
	Store     ledger.TxStore
	Balance   *ledger.BalanceService
	Lifecycle *invest.LifecycleService
	Pricing   RateProvider
	Clock     ledger.Clock
	Audit     ledger.AuditLog
	Notifier  ledger.Notifier
}

func NewDepositService(store ledger.TxStore, balance *ledger.BalanceService, lifecycle *invest.LifecycleService, pricing RateProvider, clock ledger.Clock) *DepositService {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &DepositService{
		Store:     store,
		Balance:   balance,
		Lifecycle: lifecycle,
		Pricing:   pricing,
		Clock:     clock,
	}
}

func NewDepositID() ledger.DepositID {
	return ledger.DepositID("dep-" + uuid.NewString())
}

// SubmitInput is a user's deposit claim.
type SubmitInput struct {
	UserID       ledger.UserID
	AmountUSD    ledger.Money    // zero = derive from CryptoAmount via pricing
	CryptoType   string
	CryptoAmount decimal.Decimal
	ProofRef     string
	PlanID       *ledger.PlanID
}

// Submit records a pending deposit. When only the crypto amount is given,
// the USD equivalent is fixed at submission time via the pricing
// collaborator; a pricing failure blocks the submission.
func (s *DepositService) Submit(ctx context.Context, in SubmitInput) (*Deposit, error) {
	if in.CryptoType == "" {
		return nil, &ledger.ValidationError{Field: "crypto_type", Message: "required"}
	}
	if in.ProofRef == "" {
		return nil, &ledger.ValidationError{Field: "proof_ref", Message: "proof of payment required"}
	}

	amount := in.AmountUSD
	if amount.IsZero() {
		if !in.CryptoAmount.IsPositive() {
			return nil, &ledger.ValidationError{Field: "crypto_amount", Message: "must be positive"}
		}
		var err error
		amount, err = ConvertToUSD(ctx, s.Pricing, in.CryptoType, in.CryptoAmount)
		if err != nil {
			return nil, err
		}
	}
	if !amount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}

	ds, ok := s.Store.(DepositStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}

	now := s.Clock.Now()
	d := Deposit{
		ID:           NewDepositID(),
		UserID:       in.UserID,
		AmountUSD:    amount,
		CryptoType:   in.CryptoType,
		CryptoAmount: in.CryptoAmount,
		ProofRef:     in.ProofRef,
		PlanID:       in.PlanID,
		Status:       DepositPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := ds.SaveDeposit(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save deposit: %w", err)
	}
	return &d, nil
}

// Confirm moves a pending deposit to confirmed, crediting the user and
// auto-opening the named plan if any. All effects are one transaction.
func (s *DepositService) Confirm(ctx context.Context, depositID ledger.DepositID, adminID, txHash, notes string) (*Deposit, error) {
	var (
		confirmed *Deposit
		opened    *invest.Investment
	)
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		fs, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		d, err := fs.GetDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if d == nil {
			return &ledger.NotFoundError{Entity: "deposit", ID: string(depositID)}
		}
		if d.Status != DepositPending {
			return &ledger.StateTransitionError{
				Entity: "deposit", ID: string(depositID),
				From: string(d.Status), Attempted: "confirm",
			}
		}

		if _, err := s.Balance.ApplyDeltaIn(ctx, st, d.UserID, d.AmountUSD, ledger.LedgerTransaction{
			Type:           ledger.TxDeposit,
			Description:    fmt.Sprintf("deposit %s confirmed (%s %s)", d.ID, d.CryptoAmount, d.CryptoType),
			ReferenceID:    string(d.ID),
			IdempotencyKey: "deposit-confirm-" + string(d.ID),
			CreatedBy:      adminID,
			CreatedByType:  "admin",
		}); err != nil {
			return err
		}

		// Auto-activate the target plan with the deposited amount. The
		// open's debit lands in the same transaction, so the net balance
		// effect of a plan-targeted deposit is zero.
		if d.PlanID != nil {
			opened, err = s.Lifecycle.OpenInTx(ctx, fs, d.UserID, *d.PlanID, d.AmountUSD, adminID, invest.OpenOptions{
				ReferenceID:    string(d.ID),
				IdempotencyKey: "deposit-open-" + string(d.ID),
			})
			if err != nil {
				return err
			}
		}

		now := s.Clock.Now()
		d.Status = DepositConfirmed
		d.AdminID = adminID
		d.AdminNotes = notes
		d.TxHash = txHash
		d.UpdatedAt = now
		if err := fs.UpdateDeposit(ctx, *d); err != nil {
			return fmt.Errorf("failed to update deposit: %w", err)
		}
		confirmed = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{"amount": confirmed.AmountUSD.String(), "tx_hash": txHash}
	if opened != nil {
		details["investment_id"] = opened.ID
	}
	ledger.BestEffortAudit(ctx, s.Audit, ledger.AuditEntry{
		Timestamp:   s.Clock.Now(),
		ActorID:     adminID,
		ActorType:   "admin",
		Action:      ledger.AuditDepositConfirmed,
		UserID:      confirmed.UserID,
		ReferenceID: string(confirmed.ID),
		Details:     details,
	})
	ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
		UserID:   confirmed.UserID,
		Title:    "Deposit confirmed",
		Message:  fmt.Sprintf("%s has been credited", confirmed.AmountUSD),
		Category: "deposit",
	})
	return confirmed, nil
}

// Reject moves a pending deposit to rejected. No balance effect, no
// investment. An empty reason is recorded as given.
func (s *DepositService) Reject(ctx context.Context, depositID ledger.DepositID, adminID, reason string) (*Deposit, error) {
	var rejected *Deposit
	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		fs, ok := st.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		d, err := fs.GetDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if d == nil {
			return &ledger.NotFoundError{Entity: "deposit", ID: string(depositID)}
		}
		if d.Status != DepositPending {
			return &ledger.StateTransitionError{
				Entity: "deposit", ID: string(depositID),
				From: string(d.Status), Attempted: "reject",
			}
		}

		d.Status = DepositRejected
		d.AdminID = adminID
		d.AdminNotes = reason
		d.UpdatedAt = s.Clock.Now()
		if err := fs.UpdateDeposit(ctx, *d); err != nil {
			return fmt.Errorf("failed to update deposit: %w", err)
		}
		rejected = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	ledger.BestEffortAudit(ctx, s.Audit, ledger.AuditEntry{
		Timestamp:   s.Clock.Now(),
		ActorID:     adminID,
		ActorType:   "admin",
		Action:      ledger.AuditDepositRejected,
		UserID:      rejected.UserID,
		ReferenceID: string(rejected.ID),
		Details:     map[string]any{"reason": reason},
	})
	ledger.BestEffortNotify(ctx, s.Notifier, ledger.Notification{
		UserID:   rejected.UserID,
		Title:    "Deposit rejected",
		Message:  reason,
		Category: "deposit",
	})
	return rejected, nil
}

// ListByUser returns a user's deposits, newest first per the store.
func (s *DepositService) ListByUser(ctx context.Context, userID ledger.UserID) ([]Deposit, error) {
	ds, ok := s.Store.(DepositStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return ds.ListDepositsByUser(ctx, userID)
}

// ListPending returns deposits awaiting moderation.
func (s *DepositService) ListPending(ctx context.Context) ([]Deposit, error) {
	ds, ok := s.Store.(DepositStore)
	if !ok {
		return nil, ledger.ErrStoreRequired
	}
	return ds.ListDepositsByStatus(ctx, DepositPending)
}
