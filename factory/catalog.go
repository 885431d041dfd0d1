/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts a JSON catalog into invest.Plan and funding.PaymentMethod
  objects. This enables plan and wallet configuration without code
  changes - operations staff can edit the catalog file, and the factory
  creates the proper Go structs.

WHY JSON?
  - Non-developers can adjust plans and platform wallets
  - Wallet addresses never live in application logic
  - Version control for plan definitions
  - Easy integration with an admin UI later

JSON SCHEMA:
  {
    "plans": [
      {
        "id": "plan-gold",
        "name": "Gold",
        "tier": "gold",
        "min_investment": "1000",
        "max_investment": "9999.99",
        "roi_percent": "12.5",
        "duration_days": 30,
        "active": true
      }
    ],
    "payment_methods": [
      {
        "id": "pm-btc",
        "crypto_type": "BTC",
        "network": "bitcoin",
        "wallet_address": "bc1q...",
        "min_confirmations": 2,
        "active": true
      }
    ]
  }

KEY FEATURES:
  - Validates every plan via invest.Plan.Validate
  - Omitted max_investment means unbounded
  - Amounts are decimal strings, never floats
  - ApplyPlans upserts into a PlanStore at startup

USAGE:
  catalog, err := factory.LoadCatalogFile("catalog.json")
  if err != nil { ... }
  err = factory.ApplyPlans(ctx, store, catalog.Plans, clock)

SEE ALSO:
  - invest/types.go: Plan definition and validation
  - funding/types.go: PaymentMethod definition
  - cmd/server/main.go: Catalog loading at startup
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/invest"
	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of the platform catalog.
type CatalogJSON struct {
	Plans          []PlanJSON          `json:"plans"`
	PaymentMethods []PaymentMethodJSON `json:"payment_methods,omitempty"`
}

// PlanJSON is the JSON representation of an investment plan.
type PlanJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	MinInvestment string `json:"min_investment"`
	MaxInvestment string `json:"max_investment,omitempty"` // empty = unbounded
	RoiPercent    string `json:"roi_percent"`
	DurationDays  int    `json:"duration_days"`
	Active        *bool  `json:"active,omitempty"` // default true
}

// PaymentMethodJSON is the JSON representation of a platform wallet.
type PaymentMethodJSON struct {
	ID               string `json:"id"`
	CryptoType       string `json:"crypto_type"`
	Network          string `json:"network,omitempty"`
	WalletAddress    string `json:"wallet_address"`
	MinConfirmations int    `json:"min_confirmations,omitempty"`
	Active           *bool  `json:"active,omitempty"` // default true
}

// Catalog is the parsed, validated catalog.
type Catalog struct {
	Plans          []invest.Plan
	PaymentMethods []funding.PaymentMethod
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog converts a JSON catalog into validated domain objects.
func ParseCatalog(jsonData []byte) (*Catalog, error) {
	var raw CatalogJSON
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	if len(raw.Plans) == 0 {
		return nil, fmt.Errorf("catalog has no plans")
	}

	catalog := &Catalog{}
	seen := make(map[string]bool)
	for i, pj := range raw.Plans {
		plan, err := parsePlan(pj)
		if err != nil {
			return nil, fmt.Errorf("plan %d (%q): %w", i, pj.ID, err)
		}
		if seen[string(plan.ID)] {
			return nil, fmt.Errorf("duplicate plan id %q", plan.ID)
		}
		seen[string(plan.ID)] = true
		catalog.Plans = append(catalog.Plans, *plan)
	}

	for i, mj := range raw.PaymentMethods {
		method, err := parsePaymentMethod(mj)
		if err != nil {
			return nil, fmt.Errorf("payment method %d (%q): %w", i, mj.ID, err)
		}
		catalog.PaymentMethods = append(catalog.PaymentMethods, *method)
	}

	return catalog, nil
}

// LoadCatalogFile reads and parses a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func parsePlan(pj PlanJSON) (*invest.Plan, error) {
	if pj.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	tier, err := invest.ParseTier(pj.Tier)
	if err != nil {
		return nil, err
	}

	minInv, err := parseAmount(pj.MinInvestment, "min_investment")
	if err != nil {
		return nil, err
	}
	var maxInv *ledger.Money
	if pj.MaxInvestment != "" {
		m, err := parseAmount(pj.MaxInvestment, "max_investment")
		if err != nil {
			return nil, err
		}
		maxInv = &m
	}
	roi, err := decimal.NewFromString(pj.RoiPercent)
	if err != nil {
		return nil, fmt.Errorf("roi_percent %q: %w", pj.RoiPercent, err)
	}

	plan := invest.Plan{
		ID:            ledger.PlanID(pj.ID),
		Name:          pj.Name,
		Tier:          tier,
		MinInvestment: minInv,
		MaxInvestment: maxInv,
		RoiPercent:    roi,
		DurationDays:  pj.DurationDays,
		Active:        pj.Active == nil || *pj.Active,
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func parsePaymentMethod(mj PaymentMethodJSON) (*funding.PaymentMethod, error) {
	if mj.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if mj.CryptoType == "" {
		return nil, fmt.Errorf("missing crypto_type")
	}
	if mj.WalletAddress == "" {
		return nil, fmt.Errorf("missing wallet_address")
	}
	minConf := mj.MinConfirmations
	if minConf < 1 {
		minConf = 1
	}
	return &funding.PaymentMethod{
		ID:               mj.ID,
		CryptoType:       mj.CryptoType,
		Network:          mj.Network,
		WalletAddress:    mj.WalletAddress,
		MinConfirmations: minConf,
		Active:           mj.Active == nil || *mj.Active,
	}, nil
}

func parseAmount(s, field string) (ledger.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ledger.Money{}, fmt.Errorf("%s %q: %w", field, s, err)
	}
	if d.IsNegative() {
		return ledger.Money{}, fmt.Errorf("%s must not be negative", field)
	}
	return ledger.Money{Value: d, Currency: ledger.CurrencyUSD}, nil
}

// =============================================================================
// STORE SEEDING
// =============================================================================

// ApplyPlans upserts catalog plans into the store. Existing plans keep
// their CreatedAt; new plans get the current time. Plans present in the
// store but absent from the catalog are left untouched, so removing a
// plan from the file never strands open investments.
func ApplyPlans(ctx context.Context, store invest.PlanStore, plans []invest.Plan, clock ledger.Clock) error {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	now := clock.Now()
	for _, plan := range plans {
		existing, err := store.GetPlan(ctx, plan.ID)
		if err != nil {
			return fmt.Errorf("get plan %s: %w", plan.ID, err)
		}
		plan.UpdatedAt = now
		if existing != nil {
			plan.CreatedAt = existing.CreatedAt
		} else {
			plan.CreatedAt = now
		}
		if err := store.SavePlan(ctx, plan); err != nil {
			return fmt.Errorf("save plan %s: %w", plan.ID, err)
		}
	}
	return nil
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// DefaultCatalogJSON is the built-in catalog used when no file is given.
// Wallet addresses here are placeholders for local development only.
const DefaultCatalogJSON = `{
  "plans": [
    {
      "id": "plan-starter",
      "name": "Starter",
      "tier": "starter",
      "min_investment": "100",
      "max_investment": "999.99",
      "roi_percent": "8",
      "duration_days": 30
    },
    {
      "id": "plan-silver",
      "name": "Silver",
      "tier": "silver",
      "min_investment": "1000",
      "max_investment": "4999.99",
      "roi_percent": "10",
      "duration_days": 30
    },
    {
      "id": "plan-gold",
      "name": "Gold",
      "tier": "gold",
      "min_investment": "5000",
      "max_investment": "19999.99",
      "roi_percent": "12.5",
      "duration_days": 60
    },
    {
      "id": "plan-platinum",
      "name": "Platinum",
      "tier": "platinum",
      "min_investment": "20000",
      "roi_percent": "15",
      "duration_days": 90
    }
  ],
  "payment_methods": [
    {
      "id": "pm-btc",
      "crypto_type": "BTC",
      "network": "bitcoin",
      "wallet_address": "bc1qdevonlyaddressdonotuse000000000000000",
      "min_confirmations": 2
    },
    {
      "id": "pm-eth",
      "crypto_type": "ETH",
      "network": "ethereum",
      "wallet_address": "0x0000000000000000000000000000000000000dev",
      "min_confirmations": 12
    },
    {
      "id": "pm-usdt",
      "crypto_type": "USDT",
      "network": "tron",
      "wallet_address": "TDevOnlyAddressDoNotUse00000000000",
      "min_confirmations": 1
    }
  ]
}`

// DefaultCatalog parses the built-in catalog. It panics on error because
// the constant is covered by tests and must always parse.
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog([]byte(DefaultCatalogJSON))
	if err != nil {
		panic(fmt.Sprintf("factory: default catalog invalid: %v", err))
	}
	return catalog
}
