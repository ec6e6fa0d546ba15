package shipping

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
	"github.com/cactilia/cactilia-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Service computes shipping options for a cart and destination.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) (*Quote, error)
	Group(ctx context.Context, input GroupInput) (*GroupingResult, error)
}

// Metrics receives per-pass measurements. Implementations must tolerate concurrent use.
type Metrics interface {
	ObserveQuote(outcome string, tier int, duration time.Duration)
	IncUnshippable(reason string)
	AddRuleFetchFailures(count int)
	AddMisconfiguredRules(count int)
}

// RuleIssueReporter forwards data-quality problems to the rule owners.
type RuleIssueReporter interface {
	ReportMisconfiguredRules(ctx context.Context, issues []RuleIssue)
}

// Options tunes a Service.
type Options struct {
	FallbackBasePrice decimal.Decimal
	FetchConcurrency  int
	MaxBundleVariants int
	PostalIndexLookup bool
}

// ServiceParams wires a Service. Logger, Metrics and Reporter are optional.
type ServiceParams struct {
	Repo     RuleRepository
	Logger   *logger.Logger
	Metrics  Metrics
	Reporter RuleIssueReporter
	Options  Options
}

type service struct {
	repo      RuleRepository
	logg      *logger.Logger
	metrics   Metrics
	reporter  RuleIssueReporter
	opts      Options
	builder   *CombinationBuilder
	optimizer *GroupOptimizer
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("rule repository required")
	}
	if params.Options.FallbackBasePrice.IsNegative() {
		return nil, fmt.Errorf("fallback base price must not be negative")
	}
	calc := NewPriceCalculator(params.Options.FallbackBasePrice)
	return &service{
		repo:      params.Repo,
		logg:      params.Logger,
		metrics:   params.Metrics,
		reporter:  params.Reporter,
		opts:      params.Options,
		builder:   NewCombinationBuilder(calc, params.Options.MaxBundleVariants),
		optimizer: NewGroupOptimizer(calc),
	}, nil
}

// QuoteInput is a cart and destination to quote.
type QuoteInput struct {
	Items   []CartItem
	Address Address
	// Exhaustive returns every messaging option choice per combination instead of only
	// the cheapest.
	Exhaustive bool
}

// Quote is the ranked set of bundles for a cart.
type Quote struct {
	Bundles            []ShippingOptionBundle
	Unshippable        []UnshippableProduct
	Outcome            Outcome
	Tier               int
	MisconfiguredRules []RuleIssue
}

// GroupInput is a cart and destination to group.
type GroupInput struct {
	Items   []CartItem
	Address Address
}

// pass is the rule data resolved for one computation.
type pass struct {
	items       []CartItem
	zones       []Rule
	candidates  int
	unshippable []UnshippableProduct
	issues      []RuleIssue
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (*Quote, error) {
	start := time.Now()
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	p, err := s.preparePass(ctx, input.Items, input.Address)
	if err != nil {
		return nil, err
	}
	quote := &Quote{Unshippable: p.unshippable, MisconfiguredRules: p.issues}

	switch {
	case len(input.Items) == 0:
		quote.Outcome = OutcomeEmptyCart
	case len(p.items) == 0 && p.candidates == 0:
		quote.Outcome = OutcomeNoRules
	case len(p.items) == 0:
		quote.Outcome = OutcomeNoCoveringCombination
	default:
		result, err := s.builder.Build(ctx, p.items, p.zones, input.Exhaustive)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shipping computation cancelled")
		}
		quote.Outcome = result.Outcome
		quote.Tier = result.Tier
		cartOrder, _ := indexItems(p.items)
		for _, combo := range result.Combinations {
			quote.Bundles = append(quote.Bundles, newBundle(combo, cartOrder))
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveQuote(string(quote.Outcome), quote.Tier, time.Since(start))
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outcome":     string(quote.Outcome),
			"tier":        quote.Tier,
			"bundles":     len(quote.Bundles),
			"unshippable": len(quote.Unshippable),
		})
		s.logg.Info(logCtx, "shipping quote computed")
	}
	return quote, nil
}

func (s *service) Group(ctx context.Context, input GroupInput) (*GroupingResult, error) {
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}
	p, err := s.preparePass(ctx, input.Items, input.Address)
	if err != nil {
		return nil, err
	}

	mapping := MapProductsToZones(p.items, p.zones)
	zones := make(map[string]Rule, len(p.zones))
	for _, zone := range p.zones {
		zones[zone.ID] = zone
	}
	items := make([]CartItem, 0, len(p.items))
	for _, item := range p.items {
		item.RuleIDs = mapping.ZonesFor(item.ProductID)
		items = append(items, item)
	}

	result := s.optimizer.GroupForShipping(items, zones)
	result.Unshippable = append(p.unshippable, result.Unshippable...)
	return &result, nil
}

// preparePass resolves every rule the cart references, filters zones to the address and
// separates unshippable products from the ones the engine can price.
func (s *service) preparePass(ctx context.Context, items []CartItem, addr Address) (pass, error) {
	resolver := newRuleResolver(s.repo, s.opts.FetchConcurrency)

	var declared []string
	for _, item := range items {
		declared = append(declared, item.RuleIDs...)
	}
	declared = NormalizeRuleIDs(declared)

	res, err := resolver.resolve(ctx, declared)
	if err != nil {
		return pass{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve shipping rules")
	}
	failures := res.Failures

	candidates := make([]Rule, 0, len(res.Rules))
	var unresolved []string
	for _, id := range declared {
		rule, ok := res.Rules[id]
		if !ok {
			unresolved = append(unresolved, id)
			continue
		}
		if rule.ID == "" {
			rule.ID = id
		}
		candidates = append(candidates, rule)
	}

	if len(unresolved) > 0 {
		zones, err := resolver.activeZones(ctx, strings.TrimSpace(addr.PostalCode), s.opts.PostalIndexLookup)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pass{}, pkgerrors.Wrap(pkgerrors.CodeDependency, ctxErr, "resolve shipping zones")
			}
			failures = multierr.Append(failures, fmt.Errorf("load active zones: %w", err))
		}
		for _, zone := range zones {
			for _, id := range unresolved {
				if zone.Serves(id) {
					candidates = append(candidates, zone)
					break
				}
			}
		}
	}
	candidates = uniqueZones(candidates)

	if failures != nil {
		count := len(multierr.Errors(failures))
		if s.metrics != nil {
			s.metrics.AddRuleFetchFailures(count)
		}
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "failed_rules", count)
			s.logg.Warn(logCtx, fmt.Sprintf("shipping rules treated as absent: %v", failures))
		}
	}

	p := pass{candidates: len(candidates)}
	for _, zone := range candidates {
		if IsRuleValidForAddress(zone, addr) {
			p.zones = append(p.zones, zone)
		}
	}
	p.issues = misconfiguredRules(p.zones)
	s.reportIssues(ctx, p.issues)

	anywhere := MapProductsToZones(items, candidates)
	here := MapProductsToZones(items, p.zones)
	excluded := map[string]struct{}{}
	for _, productID := range here.Unmapped {
		excluded[productID] = struct{}{}
		lines := []CartItem{}
		for _, item := range items {
			if item.ProductID == productID {
				lines = append(lines, item)
			}
		}
		ruleIDs := declaredRuleIDs(lines)
		reason := ReasonNoZoneForAddress
		switch {
		case len(ruleIDs) == 0:
			reason = ReasonNoRulesAssigned
		case len(anywhere.ZonesFor(productID)) == 0:
			reason = ReasonRulesUnavailable
		}
		p.unshippable = append(p.unshippable, UnshippableProduct{ProductID: productID, RuleIDs: ruleIDs, Reason: reason})
	}
	for _, item := range items {
		if _, skip := excluded[item.ProductID]; !skip {
			p.items = append(p.items, item)
		}
	}

	for _, product := range p.unshippable {
		if s.metrics != nil {
			s.metrics.IncUnshippable(string(product.Reason))
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"product_id": product.ProductID,
				"rule_ids":   product.RuleIDs,
				"reason":     string(product.Reason),
			})
			s.logg.Warn(logCtx, "product excluded from shipping")
		}
	}
	return p, nil
}

func (s *service) reportIssues(ctx context.Context, issues []RuleIssue) {
	if len(issues) == 0 {
		return
	}
	if s.metrics != nil {
		s.metrics.AddMisconfiguredRules(len(issues))
	}
	if s.reporter != nil {
		s.reporter.ReportMisconfiguredRules(ctx, issues)
	}
}

// misconfiguredRules lists rules with nothing to price from, and messaging options
// without a base price that will be quoted at the fallback price.
func misconfiguredRules(zones []Rule) []RuleIssue {
	var issues []RuleIssue
	for _, zone := range zones {
		if zone.Misconfigured() {
			issues = append(issues, RuleIssue{
				RuleID:   zone.ID,
				ZoneName: zone.ZoneName,
				Reason:   "rule has no messaging options and no base price",
			})
			continue
		}
		if zone.FreeShipping || len(zone.MessagingOptions) == 0 {
			continue
		}
		for _, opt := range zone.PricingOptions() {
			if !opt.BasePrice.IsPositive() {
				issues = append(issues, RuleIssue{
					RuleID:   zone.ID,
					ZoneName: zone.ZoneName,
					Option:   opt.Name,
					Reason:   "messaging option has no base price; fallback applied",
				})
			}
		}
	}
	return issues
}

func validateItems(items []CartItem) error {
	for idx, item := range items {
		field := fmt.Sprintf("items[%d]", idx)
		switch {
		case strings.TrimSpace(item.ProductID) == "":
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required").
				WithDetails(map[string]any{"field": field + ".productId"})
		case item.Quantity <= 0:
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"field": field + ".quantity"})
		case item.UnitWeight < 0:
			return pkgerrors.New(pkgerrors.CodeValidation, "weight must not be negative").
				WithDetails(map[string]any{"field": field + ".weight"})
		case item.UnitPrice.IsNegative():
			return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative").
				WithDetails(map[string]any{"field": field + ".price"})
		}
	}
	return nil
}
