/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY IN JSON:
  Amounts cross the wire as decimal strings ("1000.00"), never floats.
  Handlers parse them with shopspring/decimal.

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: PlanJSON, the catalog-side counterpart
*/
package api

import (
	"time"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// PLANS
// =============================================================================

// PlanDTO represents an investment plan in API responses.
type PlanDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Tier          string  `json:"tier"`
	TierLabel     string  `json:"tier_label"`
	TierIcon      string  `json:"tier_icon"`
	TierColor     string  `json:"tier_color"`
	MinInvestment string  `json:"min_investment"`
	MaxInvestment *string `json:"max_investment,omitempty"` // absent = unbounded
	RoiPercent    string  `json:"roi_percent"`
	DurationDays  int     `json:"duration_days"`
	Active        bool    `json:"active"`
}

// CreatePlanRequest is the admin request to create or update a plan.
type CreatePlanRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	MinInvestment string `json:"min_investment"`
	MaxInvestment string `json:"max_investment,omitempty"`
	RoiPercent    string `json:"roi_percent"`
	DurationDays  int    `json:"duration_days"`
	Active        *bool  `json:"active,omitempty"`
}

// =============================================================================
// BALANCE AND LEDGER
// =============================================================================

// BalanceDTO is a user's current balance.
type BalanceDTO struct {
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// TransactionDTO is a ledger entry in API responses.
type TransactionDTO struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Delta       string `json:"delta"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	EffectiveAt string `json:"effective_at"`
	CreatedAt   string `json:"created_at"`
}

// ReconciliationDTO reports ledger replay against the stored balance.
type ReconciliationDTO struct {
	UserID       string `json:"user_id"`
	Stored       string `json:"stored"`
	FromLedger   string `json:"from_ledger"`
	Drift        string `json:"drift"`
	Transactions int    `json:"transactions"`
	Consistent   bool   `json:"consistent"`
}

// AdjustmentRequest is an admin balance credit or debit.
type AdjustmentRequest struct {
	UserID string `json:"user_id"`
	Delta  string `json:"delta"` // signed decimal string
	Reason string `json:"reason"`
}

// =============================================================================
// INVESTMENTS
// =============================================================================

// InvestmentDTO represents an investment in API responses.
type InvestmentDTO struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	PlanID       string `json:"plan_id"`
	Principal    string `json:"principal"`
	DailyRoi     string `json:"daily_roi"`
	ClaimedRoi   string `json:"claimed_roi"`
	ClaimableRoi string `json:"claimable_roi"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Status       string `json:"status"`
}

// OpenInvestmentRequest opens a plan with a principal amount.
type OpenInvestmentRequest struct {
	PlanID string `json:"plan_id"`
	Amount string `json:"amount"`
}

// ClaimResultDTO is the outcome of an ROI claim.
type ClaimResultDTO struct {
	Investment InvestmentDTO `json:"investment"`
	Claimed    string        `json:"claimed"`
}

// MatureResultDTO is the outcome of a maturity payout.
type MatureResultDTO struct {
	Investment InvestmentDTO `json:"investment"`
	Payout     string        `json:"payout"`
}

// ScheduleDTO is the projected payout timeline for an investment.
type ScheduleDTO struct {
	InvestmentID   string             `json:"investment_id"`
	TotalRoi       string             `json:"total_roi"`
	AccruedToDate  string             `json:"accrued_to_date"`
	ClaimedToDate  string             `json:"claimed_to_date"`
	ClaimableNow   string             `json:"claimable_now"`
	PrincipalBack  string             `json:"principal_back"`
	MaturityPayout string             `json:"maturity_payout"`
	Entries        []ScheduleEntryDTO `json:"entries"`
}

type ScheduleEntryDTO struct {
	Day     int    `json:"day"`
	At      string `json:"at"`
	Amount  string `json:"amount"`
	Accrued bool   `json:"accrued"`
}

// =============================================================================
// DEPOSITS
// =============================================================================

// DepositDTO represents a deposit in API responses.
type DepositDTO struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AmountUSD    string `json:"amount_usd"`
	CryptoType   string `json:"crypto_type"`
	CryptoAmount string `json:"crypto_amount"`
	ProofRef     string `json:"proof_ref,omitempty"`
	PlanID       string `json:"plan_id,omitempty"`
	Status       string `json:"status"`
	AdminNotes   string `json:"admin_notes,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// SubmitDepositRequest is a user's claim to have paid crypto in.
type SubmitDepositRequest struct {
	AmountUSD    string `json:"amount_usd,omitempty"` // empty = derive via pricing
	CryptoType   string `json:"crypto_type"`
	CryptoAmount string `json:"crypto_amount"`
	ProofRef     string `json:"proof_ref"`
	PlanID       string `json:"plan_id,omitempty"`
}

// ConfirmDepositRequest is the admin confirmation payload.
type ConfirmDepositRequest struct {
	TxHash string `json:"tx_hash,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// RejectRequest carries the moderation reason for a rejection.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

// WithdrawalDTO represents a withdrawal in API responses.
type WithdrawalDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	Address    string `json:"address"`
	CryptoType string `json:"crypto_type"`
	Network    string `json:"network,omitempty"`
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// RequestWithdrawalRequest is a user's withdrawal request.
type RequestWithdrawalRequest struct {
	Amount     string `json:"amount"`
	Address    string `json:"address"`
	CryptoType string `json:"crypto_type"`
	Network    string `json:"network,omitempty"`
}

// ApproveWithdrawalRequest is the admin approval payload.
type ApproveWithdrawalRequest struct {
	Notes string `json:"notes,omitempty"`
}

// EligibilityDTO reports whether a user may request a withdrawal.
type EligibilityDTO struct {
	Eligible  bool   `json:"eligible"`
	Available string `json:"available"`
}

// =============================================================================
// MISC
// =============================================================================

// PaymentMethodDTO is a platform receiving wallet.
type PaymentMethodDTO struct {
	ID               string `json:"id"`
	CryptoType       string `json:"crypto_type"`
	Network          string `json:"network,omitempty"`
	WalletAddress    string `json:"wallet_address"`
	MinConfirmations int    `json:"min_confirmations"`
}

// MatureSweepDTO is the result of the admin maturity sweep.
type MatureSweepDTO struct {
	Matured []InvestmentDTO `json:"matured"`
	Errors  []string        `json:"errors,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toPlanDTO(p invest.Plan) PlanDTO {
	display := p.Tier.Display()
	dto := PlanDTO{
		ID:            string(p.ID),
		Name:          p.Name,
		Tier:          string(p.Tier),
		TierLabel:     display.Label,
		TierIcon:      display.Icon,
		TierColor:     display.Color,
		MinInvestment: p.MinInvestment.Value.String(),
		RoiPercent:    p.RoiPercent.String(),
		DurationDays:  p.DurationDays,
		Active:        p.Active,
	}
	if p.MaxInvestment != nil {
		s := p.MaxInvestment.Value.String()
		dto.MaxInvestment = &s
	}
	return dto
}

func toTransactionDTO(tx ledger.LedgerTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Type:        string(tx.Type),
		Delta:       tx.Delta.Value.String(),
		Currency:    tx.Delta.Currency,
		Description: tx.Description,
		ReferenceID: tx.ReferenceID,
		EffectiveAt: tx.EffectiveAt.Time.Format(time.RFC3339),
		CreatedAt:   tx.CreatedAt.Time.Format(time.RFC3339),
	}
}

func toInvestmentDTO(inv invest.Investment, now ledger.TimePoint) InvestmentDTO {
	return InvestmentDTO{
		ID:           string(inv.ID),
		UserID:       string(inv.UserID),
		PlanID:       string(inv.PlanID),
		Principal:    inv.Principal.Value.String(),
		DailyRoi:     inv.DailyRoi.Value.String(),
		ClaimedRoi:   inv.ClaimedRoi.Value.String(),
		ClaimableRoi: invest.ClaimableRoi(inv, now).Value.String(),
		StartDate:    inv.StartDate.Time.Format(time.RFC3339),
		EndDate:      inv.EndDate.Time.Format(time.RFC3339),
		Status:       string(inv.Status),
	}
}

func toScheduleDTO(s invest.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		InvestmentID:   string(s.InvestmentID),
		TotalRoi:       s.TotalRoi.Value.String(),
		AccruedToDate:  s.AccruedToDate.Value.String(),
		ClaimedToDate:  s.ClaimedToDate.Value.String(),
		ClaimableNow:   s.ClaimableNow.Value.String(),
		PrincipalBack:  s.PrincipalBack.Value.String(),
		MaturityPayout: s.MaturityPayout.Value.String(),
		Entries:        make([]ScheduleEntryDTO, len(s.Entries)),
	}
	for i, e := range s.Entries {
		dto.Entries[i] = ScheduleEntryDTO{
			Day:     e.Day,
			At:      e.At.Time.Format(time.RFC3339),
			Amount:  e.Amount.Value.String(),
			Accrued: e.Accrued,
		}
	}
	return dto
}

func toDepositDTO(d funding.Deposit) DepositDTO {
	dto := DepositDTO{
		ID:           string(d.ID),
		UserID:       string(d.UserID),
		AmountUSD:    d.AmountUSD.Value.String(),
		CryptoType:   d.CryptoType,
		CryptoAmount: d.CryptoAmount.String(),
		ProofRef:     d.ProofRef,
		Status:       string(d.Status),
		AdminNotes:   d.AdminNotes,
		TxHash:       d.TxHash,
		CreatedAt:    d.CreatedAt.Time.Format(time.RFC3339),
		UpdatedAt:    d.UpdatedAt.Time.Format(time.RFC3339),
	}
	if d.PlanID != nil {
		dto.PlanID = string(*d.PlanID)
	}
	return dto
}

func toWithdrawalDTO(w funding.Withdrawal) WithdrawalDTO {
	return WithdrawalDTO{
		ID:         string(w.ID),
		UserID:     string(w.UserID),
		Amount:     w.Amount.Value.String(),
		Address:    w.Address,
		CryptoType: w.CryptoType,
		Network:    w.Network,
		Status:     string(w.Status),
		AdminNotes: w.AdminNotes,
		CreatedAt:  w.CreatedAt.Time.Format(time.RFC3339),
		UpdatedAt:  w.UpdatedAt.Time.Format(time.RFC3339),
	}
}

func toPaymentMethodDTO(m funding.PaymentMethod) PaymentMethodDTO {
	return PaymentMethodDTO{
		ID:               m.ID,
		CryptoType:       m.CryptoType,
		Network:          m.Network,
		WalletAddress:    m.WalletAddress,
		MinConfirmations: m.MinConfirmations,
	}
}
