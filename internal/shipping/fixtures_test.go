package shipping

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func lineItem(productID string, quantity int, weight float64, price string, ruleIDs ...string) CartItem {
	return CartItem{
		ProductID:  productID,
		Quantity:   quantity,
		UnitWeight: weight,
		UnitPrice:  dec(price),
		RuleIDs:    ruleIDs,
	}
}

func nationalRule(id, base string) Rule {
	return Rule{
		ID:         id,
		ZoneName:   "Nacional",
		IsNational: true,
		MessagingOptions: []MessagingOption{{
			Name:            "estafeta",
			Label:           "Estafeta Terrestre",
			BasePrice:       dec(base),
			MinDeliveryDays: 3,
			MaxDeliveryDays: 6,
		}},
	}
}

func localRule(id, base string, postalCodes ...string) Rule {
	return Rule{
		ID:          id,
		ZoneName:    "Local " + id,
		ZoneType:    "local",
		PostalCodes: postalCodes,
		MessagingOptions: []MessagingOption{{
			Name:                "mensajeria",
			Label:               "Mensajeria local",
			BasePrice:           dec(base),
			MaxWeightPerPackage: 10,
			MinDeliveryDays:     1,
			MaxDeliveryDays:     2,
		}},
	}
}

type fakeRuleRepo struct {
	mu          sync.Mutex
	rules       map[string]Rule
	zones       []Rule
	failing     map[string]error
	zonesErr    error
	calls       map[string]int
	zoneCalls   int
	postalCalls int
}

func newFakeRuleRepo(rules ...Rule) *fakeRuleRepo {
	repo := &fakeRuleRepo{
		rules:   map[string]Rule{},
		failing: map[string]error{},
		calls:   map[string]int{},
	}
	for _, rule := range rules {
		repo.rules[rule.ID] = rule
	}
	return repo
}

func (f *fakeRuleRepo) FetchByID(ctx context.Context, id string) (*Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.failing[id]; ok {
		return nil, err
	}
	rule, ok := f.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

func (f *fakeRuleRepo) FetchActiveZones(ctx context.Context) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zoneCalls++
	if f.zonesErr != nil {
		return nil, f.zonesErr
	}
	return f.zones, nil
}

func (f *fakeRuleRepo) FetchZonesMatchingPostalCode(ctx context.Context, postalCode string) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postalCalls++
	var out []Rule
	for _, zone := range f.zones {
		if IsRuleValidForAddress(zone, Address{PostalCode: postalCode}) {
			out = append(out, zone)
		}
	}
	return out, nil
}

func (f *fakeRuleRepo) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}
