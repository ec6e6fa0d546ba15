package shipping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ZoneKind classifies a rule for assignment priority inside multi-zone combinations.
type ZoneKind string

const (
	ZoneKindLocal    ZoneKind = "local"
	ZoneKindRegional ZoneKind = "regional"
	ZoneKindNational ZoneKind = "national"
)

const legacyNationalName = "nacional"

// weightEpsilon absorbs float noise when comparing kilogram sums against ceilings.
const weightEpsilon = 1e-9

// CartItem is the canonical line item handled by the engine. It is produced once at the
// system boundary and treated as immutable for the rest of a computation pass.
type CartItem struct {
	ProductID  string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	UnitWeight float64
	RuleIDs    []string
}

// LineWeight returns the weight of the whole line in kilograms.
func (i CartItem) LineWeight() float64 {
	return i.UnitWeight * float64(i.Quantity)
}

// LineSubtotal returns unit price times quantity.
func (i CartItem) LineSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is the canonical destination used for coverage checks.
type Address struct {
	PostalCode string
	State      string
	City       string
	Country    string
}

// MessagingOption is one carrier/service tier within a rule.
type MessagingOption struct {
	Name                string
	Label               string
	BasePrice           decimal.Decimal
	PerKgExtraPrice     decimal.Decimal
	MaxWeightPerPackage float64
	MaxItemsPerPackage  int
	MinDeliveryDays     int
	MaxDeliveryDays     int
}

// Rule is a shipping rule, also called a zone. Rules are read-only input to the engine.
type Rule struct {
	ID           string
	ZoneName     string
	ZoneType     string
	CoverageType string
	IsNational   bool
	// PostalCodes holds verbatim codes, "start-end" ranges and "estado_<ABBR>" entries.
	PostalCodes   []string
	StatePrefixes []string
	// RuleIDs lists named rules grouped under this zone.
	RuleIDs               []string
	MessagingOptions      []MessagingOption
	BasePrice             decimal.NullDecimal
	FreeShipping          bool
	FreeShippingMinAmount decimal.Decimal
	MaxWeightPerPackage   float64
	MaxItemsPerPackage    int
}

// National reports whether the rule covers every address, honoring the legacy
// "nacional" zone name and coverage type markers.
func (r Rule) National() bool {
	if r.IsNational {
		return true
	}
	for _, marker := range []string{r.ZoneName, r.CoverageType, r.ZoneType} {
		value := strings.ToLower(strings.TrimSpace(marker))
		if value == legacyNationalName || value == string(ZoneKindNational) {
			return true
		}
	}
	return false
}

// Kind returns the zone classification used by greedy product assignment.
func (r Rule) Kind() ZoneKind {
	if r.National() {
		return ZoneKindNational
	}
	switch ZoneKind(strings.ToLower(strings.TrimSpace(r.ZoneType))) {
	case ZoneKindLocal:
		return ZoneKindLocal
	case ZoneKindRegional:
		return ZoneKindRegional
	}
	for _, entry := range r.PostalCodes {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(entry)), statePrefix) {
			return ZoneKindLocal
		}
	}
	return ZoneKindRegional
}

// Serves reports whether this zone can ship a product carrying ruleID, either directly
// or through the zone's grouped rule list.
func (r Rule) Serves(ruleID string) bool {
	if ruleID == "" {
		return false
	}
	if r.ID == ruleID {
		return true
	}
	for _, id := range r.RuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}

// Misconfigured reports a rule with nothing to price from that is not flagged free.
func (r Rule) Misconfigured() bool {
	if r.FreeShipping {
		return false
	}
	for _, opt := range r.MessagingOptions {
		if opt.BasePrice.IsPositive() {
			return false
		}
	}
	return !(r.BasePrice.Valid && r.BasePrice.Decimal.IsPositive())
}

// PricingOptions returns the messaging options pricing iterates over. A rule without
// options is priced through a single synthesized "standard" option built from the
// rule-level base price and limits; a zero base price there is caught by the calculator.
func (r Rule) PricingOptions() []MessagingOption {
	if len(r.MessagingOptions) == 0 {
		base := decimal.Zero
		if r.BasePrice.Valid {
			base = r.BasePrice.Decimal
		}
		label := strings.TrimSpace(r.ZoneName)
		if label == "" {
			label = "Standard"
		}
		return []MessagingOption{{
			Name:                "standard",
			Label:               label,
			BasePrice:           base,
			MaxWeightPerPackage: r.MaxWeightPerPackage,
			MaxItemsPerPackage:  r.MaxItemsPerPackage,
		}}
	}
	options := make([]MessagingOption, len(r.MessagingOptions))
	taken := make(map[string]struct{}, len(r.MessagingOptions))
	for i, opt := range r.MessagingOptions {
		if opt.MaxWeightPerPackage <= 0 {
			opt.MaxWeightPerPackage = r.MaxWeightPerPackage
		}
		if opt.MaxItemsPerPackage <= 0 {
			opt.MaxItemsPerPackage = r.MaxItemsPerPackage
		}
		if strings.TrimSpace(opt.Name) == "" {
			opt.Name = "option"
		}
		if strings.TrimSpace(opt.Label) == "" {
			opt.Label = opt.Name
		}
		opt.Name = uniqueOptionName(opt.Name, taken)
		options[i] = opt
	}
	return options
}

// UnshippableReason explains why a product was excluded from shipping computation.
type UnshippableReason string

const (
	ReasonNoRulesAssigned  UnshippableReason = "no_rules_assigned"
	ReasonRulesUnavailable UnshippableReason = "rules_unavailable"
	ReasonNoZoneForAddress UnshippableReason = "no_zone_for_address"
)

// UnshippableProduct is reported to the caller so the UI can warn the shopper. The
// product stays in the cart; it is only left out of shipping computation.
type UnshippableProduct struct {
	ProductID string
	RuleIDs   []string
	Reason    UnshippableReason
}

// RuleIssue describes a data-quality problem found on a rule during pricing.
type RuleIssue struct {
	RuleID   string
	ZoneName string
	// Option names the messaging option at fault; empty when the whole rule is.
	Option string
	Reason string
}

// uniqueOptionName suffixes repeated option names within one rule ("estafeta",
// "estafeta-2") so every option keeps its own identity in bundle ids.
func uniqueOptionName(name string, taken map[string]struct{}) string {
	candidate := name
	for n := 2; ; n++ {
		key := strings.ToLower(strings.TrimSpace(candidate))
		if _, dup := taken[key]; !dup {
			taken[key] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", name, n)
	}
}
