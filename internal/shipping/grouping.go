package shipping

import (
	"github.com/shopspring/decimal"
)

const (
	CombinationRecommended = "recommended"
	CombinationFastest     = "fastest"
)

// ShippingGroup is a set of cart lines shipped together under one rule.
type ShippingGroup struct {
	RuleID       string
	ZoneName     string
	FreeShipping bool
	Items        []CartItem
	// Options holds every priced messaging option for the group, cheapest first.
	Options []OptionQuote
}

// ProductIDs lists the distinct products of the group in cart order.
func (g ShippingGroup) ProductIDs() []string {
	products, _ := indexItems(g.Items)
	return products
}

// GroupSelection is the option a combination summary picks for one group.
type GroupSelection struct {
	RuleID string
	Option OptionQuote
}

// CombinationSummary picks one priced option per group.
type CombinationSummary struct {
	Name            string
	Selections      []GroupSelection
	TotalPrice      decimal.Decimal
	MinDeliveryDays int
	MaxDeliveryDays int
}

// GroupingResult is the output of GroupOptimizer.GroupForShipping.
type GroupingResult struct {
	Groups       []ShippingGroup
	Combinations []CombinationSummary
	Unshippable  []UnshippableProduct
}

// GroupOptimizer partitions a cart into shipping groups, isolating free-shipping products
// before clustering the rest by shared rules.
type GroupOptimizer struct {
	calc PriceCalculator
}

func NewGroupOptimizer(calc PriceCalculator) *GroupOptimizer {
	return &GroupOptimizer{calc: calc}
}

type groupCandidate struct {
	productID string
	lines     []CartItem
	ruleIDs   []string
}

// GroupForShipping places every product in exactly one group or reports it unshippable.
// rules holds the rules usable for this pass keyed by id; ids missing from it are
// treated as absent.
func (o *GroupOptimizer) GroupForShipping(items []CartItem, rules map[string]Rule) GroupingResult {
	var result GroupingResult

	products, lines := indexItems(items)
	var remaining []groupCandidate
	freeGroups := map[string]int{}
	for _, productID := range products {
		declared := declaredRuleIDs(lines[productID])
		resolved := make([]string, 0, len(declared))
		for _, id := range declared {
			if _, ok := rules[id]; ok {
				resolved = append(resolved, id)
			}
		}
		if len(resolved) == 0 {
			reason := ReasonRulesUnavailable
			if len(declared) == 0 {
				reason = ReasonNoRulesAssigned
			}
			result.Unshippable = append(result.Unshippable, UnshippableProduct{
				ProductID: productID,
				RuleIDs:   declared,
				Reason:    reason,
			})
			continue
		}

		if freeID, ok := firstFreeRule(resolved, rules); ok {
			if idx, exists := freeGroups[freeID]; exists {
				result.Groups[idx].Items = append(result.Groups[idx].Items, lines[productID]...)
				continue
			}
			freeGroups[freeID] = len(result.Groups)
			result.Groups = append(result.Groups, newShippingGroup(rules[freeID], lines[productID]))
			continue
		}
		remaining = append(remaining, groupCandidate{productID: productID, lines: lines[productID], ruleIDs: resolved})
	}

	for {
		ruleID, members := largestCluster(remaining)
		if len(members) < 2 {
			break
		}
		group := newShippingGroup(rules[ruleID], nil)
		kept := remaining[:0]
		for i, candidate := range remaining {
			if _, ok := members[i]; ok {
				group.Items = append(group.Items, candidate.lines...)
				continue
			}
			kept = append(kept, candidate)
		}
		remaining = kept
		result.Groups = append(result.Groups, group)
	}

	for _, candidate := range remaining {
		result.Groups = append(result.Groups, newShippingGroup(rules[candidate.ruleIDs[0]], candidate.lines))
	}

	for i := range result.Groups {
		rule := rules[result.Groups[i].RuleID]
		result.Groups[i].Options = o.calc.PriceRule(result.Groups[i].Items, rule)
	}
	result.Combinations = summarizeGroups(result.Groups)
	return result
}

func newShippingGroup(rule Rule, lines []CartItem) ShippingGroup {
	return ShippingGroup{
		RuleID:       rule.ID,
		ZoneName:     rule.ZoneName,
		FreeShipping: rule.FreeShipping,
		Items:        append([]CartItem(nil), lines...),
	}
}

func declaredRuleIDs(lines []CartItem) []string {
	var ids []string
	for _, line := range lines {
		ids = append(ids, line.RuleIDs...)
	}
	return NormalizeRuleIDs(ids)
}

func firstFreeRule(ids []string, rules map[string]Rule) (string, bool) {
	for _, id := range ids {
		if rules[id].FreeShipping {
			return id, true
		}
	}
	return "", false
}

// largestCluster returns the rule shared by the most remaining candidates. Ties go to the
// rule seen first in candidate order.
func largestCluster(candidates []groupCandidate) (string, map[int]struct{}) {
	var order []string
	members := map[string]map[int]struct{}{}
	for i, candidate := range candidates {
		for _, id := range candidate.ruleIDs {
			if _, ok := members[id]; !ok {
				members[id] = map[int]struct{}{}
				order = append(order, id)
			}
			members[id][i] = struct{}{}
		}
	}
	best := ""
	for _, id := range order {
		if best == "" || len(members[id]) > len(members[best]) {
			best = id
		}
	}
	return best, members[best]
}

func summarizeGroups(groups []ShippingGroup) []CombinationSummary {
	if len(groups) == 0 {
		return nil
	}
	recommended := CombinationSummary{Name: CombinationRecommended, TotalPrice: decimal.Zero}
	fastest := CombinationSummary{Name: CombinationFastest, TotalPrice: decimal.Zero}
	differs := false
	for _, group := range groups {
		if len(group.Options) == 0 {
			continue
		}
		cheapest := group.Options[0]
		quickest := cheapest
		for _, opt := range group.Options[1:] {
			if opt.Option.MaxDeliveryDays > 0 && (quickest.Option.MaxDeliveryDays <= 0 || opt.Option.MaxDeliveryDays < quickest.Option.MaxDeliveryDays) {
				quickest = opt
			}
		}
		if quickest.Option.Name != cheapest.Option.Name {
			differs = true
		}
		recommended.add(group.RuleID, cheapest)
		fastest.add(group.RuleID, quickest)
	}
	if differs {
		return []CombinationSummary{recommended, fastest}
	}
	return []CombinationSummary{recommended}
}

func (s *CombinationSummary) add(ruleID string, opt OptionQuote) {
	s.Selections = append(s.Selections, GroupSelection{RuleID: ruleID, Option: opt})
	s.TotalPrice = s.TotalPrice.Add(opt.Price)
	if opt.Option.MinDeliveryDays > s.MinDeliveryDays {
		s.MinDeliveryDays = opt.Option.MinDeliveryDays
	}
	if opt.Option.MaxDeliveryDays > s.MaxDeliveryDays {
		s.MaxDeliveryDays = opt.Option.MaxDeliveryDays
	}
}
