package shipping

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceQuote is the price of one package under one messaging option of one rule.
type PriceQuote struct {
	Price         decimal.Decimal
	BasePrice     decimal.Decimal
	Surcharge     decimal.Decimal
	Subtotal      decimal.Decimal
	TotalWeight   float64
	ItemCount     int
	IsFree        bool
	ExceedsLimits bool
	// Misconfigured is set when the option had no usable base price and the configured
	// fallback was charged instead.
	Misconfigured bool
	Reason        string
}

// PricedPackage pairs a package with its quote.
type PricedPackage struct {
	Package
	Quote PriceQuote
}

// OptionQuote is the full cost of shipping a group of items under one messaging option.
type OptionQuote struct {
	RuleID        string
	ZoneName      string
	Option        MessagingOption
	Packages      []PricedPackage
	Price         decimal.Decimal
	IsFree        bool
	ExceedsLimits bool
	Misconfigured bool
}

// PriceCalculator prices packages. FallbackBasePrice replaces a missing base price on
// rules that are not free.
type PriceCalculator struct {
	FallbackBasePrice decimal.Decimal
}

// NewPriceCalculator returns a calculator charging fallback for misconfigured rules.
func NewPriceCalculator(fallback decimal.Decimal) PriceCalculator {
	return PriceCalculator{FallbackBasePrice: fallback}
}

// Price computes the shipping price for items as one package.
func (c PriceCalculator) Price(items []CartItem, opt MessagingOption, rule Rule) PriceQuote {
	return c.price(items, opt, rule, subtotalOf(items))
}

// price evaluates free-shipping thresholds against thresholdSubtotal so packages split
// from one group share the group's eligibility.
func (c PriceCalculator) price(items []CartItem, opt MessagingOption, rule Rule, thresholdSubtotal decimal.Decimal) PriceQuote {
	quote := PriceQuote{Subtotal: subtotalOf(items)}
	for _, item := range items {
		quote.TotalWeight += item.LineWeight()
		quote.ItemCount += item.Quantity
	}

	maxWeight, maxItems := effectiveLimits(opt, rule)
	var reasons []string
	if overWeight(quote.TotalWeight, maxWeight) {
		quote.ExceedsLimits = true
		reasons = append(reasons, fmt.Sprintf("weight %.2fkg exceeds %.2fkg per package", quote.TotalWeight, maxWeight))
	}
	if overCount(quote.ItemCount, maxItems) {
		quote.ExceedsLimits = true
		reasons = append(reasons, fmt.Sprintf("%d items exceed %d per package", quote.ItemCount, maxItems))
	}

	if free, why := freeShipping(rule, thresholdSubtotal); free {
		quote.IsFree = true
		quote.Price = decimal.Zero
		quote.BasePrice = decimal.Zero
		quote.Reason = strings.Join(append(reasons, why), "; ")
		return quote
	}

	quote.BasePrice = opt.BasePrice
	if !quote.BasePrice.IsPositive() {
		quote.Misconfigured = true
		quote.BasePrice = c.FallbackBasePrice
		reasons = append(reasons, fmt.Sprintf("rule %s has no usable base price; fallback applied", rule.ID))
	}
	if overWeight(quote.TotalWeight, maxWeight) && opt.PerKgExtraPrice.IsPositive() {
		excess := math.Ceil(quote.TotalWeight - maxWeight - weightEpsilon)
		quote.Surcharge = opt.PerKgExtraPrice.Mul(decimal.NewFromFloat(excess))
	}
	quote.Price = quote.BasePrice.Add(quote.Surcharge)
	quote.Reason = strings.Join(reasons, "; ")
	return quote
}

// PriceOption packs items under opt's ceilings and prices every package.
func (c PriceCalculator) PriceOption(items []CartItem, opt MessagingOption, rule Rule) OptionQuote {
	maxWeight, maxItems := effectiveLimits(opt, rule)
	groupSubtotal := subtotalOf(items)

	result := OptionQuote{
		RuleID:   rule.ID,
		ZoneName: rule.ZoneName,
		Option:   opt,
		Price:    decimal.Zero,
		IsFree:   true,
	}
	for _, pkg := range Pack(items, maxWeight, maxItems) {
		quote := c.price(pkg.Items, opt, rule, groupSubtotal)
		result.Packages = append(result.Packages, PricedPackage{Package: pkg, Quote: quote})
		result.Price = result.Price.Add(quote.Price)
		result.IsFree = result.IsFree && quote.IsFree
		result.ExceedsLimits = result.ExceedsLimits || quote.ExceedsLimits
		result.Misconfigured = result.Misconfigured || quote.Misconfigured
	}
	if len(result.Packages) == 0 {
		result.IsFree = false
	}
	return result
}

// PriceRule prices items under every messaging option of rule, cheapest first.
func (c PriceCalculator) PriceRule(items []CartItem, rule Rule) []OptionQuote {
	options := rule.PricingOptions()
	quotes := make([]OptionQuote, 0, len(options))
	for _, opt := range options {
		quotes = append(quotes, c.PriceOption(items, opt, rule))
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		if cmp := quotes[i].Price.Cmp(quotes[j].Price); cmp != 0 {
			return cmp < 0
		}
		return quotes[i].Option.MaxDeliveryDays < quotes[j].Option.MaxDeliveryDays
	})
	return quotes
}

func freeShipping(rule Rule, subtotal decimal.Decimal) (bool, string) {
	if rule.FreeShipping {
		return true, "free shipping rule"
	}
	if rule.FreeShippingMinAmount.IsPositive() && subtotal.GreaterThanOrEqual(rule.FreeShippingMinAmount) {
		return true, fmt.Sprintf("subtotal reaches free shipping minimum of %s", rule.FreeShippingMinAmount.StringFixed(2))
	}
	return false, ""
}

func effectiveLimits(opt MessagingOption, rule Rule) (float64, int) {
	maxWeight := opt.MaxWeightPerPackage
	if maxWeight <= 0 {
		maxWeight = rule.MaxWeightPerPackage
	}
	maxItems := opt.MaxItemsPerPackage
	if maxItems <= 0 {
		maxItems = rule.MaxItemsPerPackage
	}
	return maxWeight, maxItems
}

func subtotalOf(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineSubtotal())
	}
	return total
}
