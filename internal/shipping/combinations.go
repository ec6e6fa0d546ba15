package shipping

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCombinationSize caps the zone-subset search. Carts needing more zones than this are
// reported as OutcomeNoCoveringCombination.
const maxCombinationSize = 3

const defaultMaxVariants = 25

// Outcome is the typed result of a combination search.
type Outcome string

const (
	OutcomeCovered               Outcome = "covered"
	OutcomeEmptyCart             Outcome = "empty_cart"
	OutcomeNoRules               Outcome = "no_rules"
	OutcomeNoCoveringCombination Outcome = "no_covering_combination"
)

// ZoneAssignment is the set of products a combination ships through one zone.
type ZoneAssignment struct {
	ZoneID   string
	ZoneName string
	Kind     ZoneKind
	Products []string
	// Quote is the messaging option selected for this assignment.
	Quote OptionQuote
	// Options holds every priced messaging option, cheapest first.
	Options []OptionQuote
}

// ZoneCombination assigns every cart product to exactly one zone of a small zone subset.
type ZoneCombination struct {
	Assignments []ZoneAssignment
	TotalPrice  decimal.Decimal
	IsComplete  bool
	Tier        int

	mappingKey string
	signature  string
}

// Signature identifies the product->zone mapping together with the chosen options.
func (c ZoneCombination) Signature() string {
	return c.signature
}

// ProductZones returns the product -> zone mapping of the combination.
func (c ZoneCombination) ProductZones() map[string]string {
	out := make(map[string]string)
	for _, assignment := range c.Assignments {
		for _, productID := range assignment.Products {
			out[productID] = assignment.ZoneID
		}
	}
	return out
}

// CombinationResult carries the combinations found and the tier that produced them.
type CombinationResult struct {
	Combinations []ZoneCombination
	Tier         int
	Outcome      Outcome
}

// CombinationBuilder searches zone subsets, smallest first, for sets that jointly cover
// a cart and prices each one.
type CombinationBuilder struct {
	calc        PriceCalculator
	maxVariants int
}

// NewCombinationBuilder returns a builder. maxVariants caps how many messaging option
// variants are enumerated per combination in exhaustive mode.
func NewCombinationBuilder(calc PriceCalculator, maxVariants int) *CombinationBuilder {
	if maxVariants <= 0 {
		maxVariants = defaultMaxVariants
	}
	return &CombinationBuilder{calc: calc, maxVariants: maxVariants}
}

// Build returns complete combinations ordered by ascending total price. Once a tier
// yields a covering combination larger tiers are not searched, so fewer shipping groups
// always win over a cheaper split. With exhaustive set every messaging option choice
// is returned as its own combination instead of only the cheapest one.
func (b *CombinationBuilder) Build(ctx context.Context, items []CartItem, zones []Rule, exhaustive bool) (CombinationResult, error) {
	products, itemsByProduct := indexItems(items)
	if len(products) == 0 {
		return CombinationResult{Outcome: OutcomeEmptyCart}, nil
	}
	zones = uniqueZones(zones)
	if len(zones) == 0 {
		return CombinationResult{Outcome: OutcomeNoRules}, nil
	}

	mapping := MapProductsToZones(items, zones)
	coverage := make([]map[string]struct{}, len(zones))
	zoneIndex := make(map[string]int, len(zones))
	for idx, zone := range zones {
		coverage[idx] = map[string]struct{}{}
		zoneIndex[zone.ID] = idx
	}
	for productID, zoneIDs := range mapping.Compatible {
		for _, zoneID := range zoneIDs {
			coverage[zoneIndex[zoneID]][productID] = struct{}{}
		}
	}

	for size := 1; size <= maxCombinationSize && size <= len(zones); size++ {
		if err := ctx.Err(); err != nil {
			return CombinationResult{}, err
		}
		var found []ZoneCombination
		eachSubset(len(zones), size, func(subset []int) {
			if !coversAll(products, subset, coverage) {
				return
			}
			assignments := assignProducts(products, subset, zones, coverage)
			for i := range assignments {
				zone := zones[zoneIndex[assignments[i].ZoneID]]
				assignments[i].Options = b.calc.PriceRule(collectItems(assignments[i].Products, itemsByProduct), zone)
			}
			if exhaustive {
				found = append(found, b.variants(assignments, products, size)...)
				return
			}
			found = append(found, newCombination(assignments, make([]int, len(assignments)), products, size))
		})
		if len(found) == 0 {
			continue
		}
		combos := dedupeCombinations(found, exhaustive)
		sortCombinations(combos)
		return CombinationResult{Combinations: combos, Tier: size, Outcome: OutcomeCovered}, nil
	}
	return CombinationResult{Outcome: OutcomeNoCoveringCombination}, nil
}

func (b *CombinationBuilder) variants(assignments []ZoneAssignment, products []string, tier int) []ZoneCombination {
	choice := make([]int, len(assignments))
	var out []ZoneCombination
	for {
		out = append(out, newCombination(assignments, choice, products, tier))
		if len(out) >= b.maxVariants {
			return out
		}
		i := len(choice) - 1
		for ; i >= 0; i-- {
			choice[i]++
			if choice[i] < len(assignments[i].Options) {
				break
			}
			choice[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

func newCombination(assignments []ZoneAssignment, choice []int, products []string, tier int) ZoneCombination {
	combo := ZoneCombination{
		Assignments: make([]ZoneAssignment, len(assignments)),
		TotalPrice:  decimal.Zero,
		Tier:        tier,
	}
	pairs := make([]string, 0, len(products))
	options := make([]string, 0, len(assignments))
	assigned := map[string]int{}
	for i, assignment := range assignments {
		if len(assignment.Options) > 0 {
			assignment.Quote = assignment.Options[choice[i]]
		}
		combo.Assignments[i] = assignment
		combo.TotalPrice = combo.TotalPrice.Add(assignment.Quote.Price)
		for _, productID := range assignment.Products {
			assigned[productID]++
			pairs = append(pairs, productID+"="+assignment.ZoneID)
		}
		options = append(options, assignment.ZoneID+":"+assignment.Quote.Option.Name)
	}

	combo.IsComplete = len(assigned) == len(products)
	for _, count := range assigned {
		if count != 1 {
			combo.IsComplete = false
		}
	}

	sort.Strings(pairs)
	sort.Strings(options)
	combo.mappingKey = strings.Join(pairs, ",")
	combo.signature = combo.mappingKey + "|" + strings.Join(options, ",")
	return combo
}

// assignProducts gives each product to a compatible zone of the subset, preferring
// local zones, then national ones, then the first compatible zone in subset order.
func assignProducts(products []string, subset []int, zones []Rule, coverage []map[string]struct{}) []ZoneAssignment {
	byZone := make(map[int][]string, len(subset))
	for _, productID := range products {
		chosen := -1
		for _, kind := range []ZoneKind{ZoneKindLocal, ZoneKindNational} {
			for _, idx := range subset {
				if _, ok := coverage[idx][productID]; ok && zones[idx].Kind() == kind {
					chosen = idx
					break
				}
			}
			if chosen >= 0 {
				break
			}
		}
		if chosen < 0 {
			for _, idx := range subset {
				if _, ok := coverage[idx][productID]; ok {
					chosen = idx
					break
				}
			}
		}
		byZone[chosen] = append(byZone[chosen], productID)
	}

	assignments := make([]ZoneAssignment, 0, len(subset))
	for _, idx := range subset {
		assigned := byZone[idx]
		if len(assigned) == 0 {
			continue
		}
		assignments = append(assignments, ZoneAssignment{
			ZoneID:   zones[idx].ID,
			ZoneName: zones[idx].ZoneName,
			Kind:     zones[idx].Kind(),
			Products: assigned,
		})
	}
	return assignments
}

func coversAll(products []string, subset []int, coverage []map[string]struct{}) bool {
	for _, productID := range products {
		covered := false
		for _, idx := range subset {
			if _, ok := coverage[idx][productID]; ok {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// eachSubset calls fn with every k-sized index subset of [0,n) in lexicographic order.
// fn must not retain the slice.
func eachSubset(n, k int, fn func([]int)) {
	subset := make([]int, k)
	var walk func(start, depth int)
	walk = func(start, depth int) {
		if depth == k {
			fn(subset)
			return
		}
		for i := start; i <= n-(k-depth); i++ {
			subset[depth] = i
			walk(i+1, depth+1)
		}
	}
	walk(0, 0)
}

func dedupeCombinations(combos []ZoneCombination, exhaustive bool) []ZoneCombination {
	best := make(map[string]int, len(combos))
	out := make([]ZoneCombination, 0, len(combos))
	for _, combo := range combos {
		if !combo.IsComplete {
			continue
		}
		key := combo.mappingKey
		if exhaustive {
			key = combo.signature
		}
		if idx, ok := best[key]; ok {
			if combo.TotalPrice.LessThan(out[idx].TotalPrice) {
				out[idx] = combo
			}
			continue
		}
		best[key] = len(out)
		out = append(out, combo)
	}
	return out
}

func sortCombinations(combos []ZoneCombination) {
	sort.SliceStable(combos, func(i, j int) bool {
		if cmp := combos[i].TotalPrice.Cmp(combos[j].TotalPrice); cmp != 0 {
			return cmp < 0
		}
		if len(combos[i].Assignments) != len(combos[j].Assignments) {
			return len(combos[i].Assignments) < len(combos[j].Assignments)
		}
		return combos[i].signature < combos[j].signature
	})
}

func indexItems(items []CartItem) ([]string, map[string][]CartItem) {
	products := make([]string, 0, len(items))
	byProduct := make(map[string][]CartItem, len(items))
	for _, item := range items {
		if _, seen := byProduct[item.ProductID]; !seen {
			products = append(products, item.ProductID)
		}
		byProduct[item.ProductID] = append(byProduct[item.ProductID], item)
	}
	return products, byProduct
}

func collectItems(productIDs []string, byProduct map[string][]CartItem) []CartItem {
	out := make([]CartItem, 0, len(productIDs))
	for _, productID := range productIDs {
		out = append(out, byProduct[productID]...)
	}
	return out
}

func uniqueZones(zones []Rule) []Rule {
	out := make([]Rule, 0, len(zones))
	seen := make(map[string]struct{}, len(zones))
	for _, zone := range zones {
		if zone.ID == "" {
			continue
		}
		if _, dup := seen[zone.ID]; dup {
			continue
		}
		seen[zone.ID] = struct{}{}
		out = append(out, zone)
	}
	return out
}
