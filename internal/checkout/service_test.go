package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cactilia/cactilia-backend/internal/shipping"
	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
	pkgredis "github.com/cactilia/cactilia-backend/pkg/redis"
	"github.com/shopspring/decimal"
)

type stubShipping struct {
	quote *shipping.Quote
	err   error
	input shipping.QuoteInput
}

func (s *stubShipping) Quote(ctx context.Context, input shipping.QuoteInput) (*shipping.Quote, error) {
	s.input = input
	return s.quote, s.err
}

func (s *stubShipping) Group(ctx context.Context, input shipping.GroupInput) (*shipping.GroupingResult, error) {
	return &shipping.GroupingResult{}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SaveShippingSelection(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[sessionID] = payload
	m.ttls[sessionID] = ttl
	return nil
}

func (m *memoryStore) LoadShippingSelection(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	payload, ok := m.data[sessionID]
	if !ok {
		return nil, pkgredis.ErrNotFound
	}
	return payload, nil
}

func coveredQuote() *shipping.Quote {
	return &shipping.Quote{
		Outcome: shipping.OutcomeCovered,
		Tier:    2,
		Bundles: []shipping.ShippingOptionBundle{
			{
				ID:                "bundle-cheap",
				Label:             "Local (Mensajeria) + Nacional (Estafeta)",
				Carrier:           "mensajeria + estafeta",
				TotalCost:         decimal.RequireFromString("190"),
				DeliveryEstimate:  shipping.DeliveryEstimate{MinDays: 3, MaxDays: 6},
				CoveredProductIDs: []string{"maceta", "cactus"},
				ZoneIDs:           []string{"local", "nacional"},
				Tier:              2,
			},
			{
				ID:        "bundle-fast",
				Label:     "Local (Express)",
				TotalCost: decimal.RequireFromString("249.995"),
				DeliveryEstimate: shipping.DeliveryEstimate{
					MinDays: 1,
					MaxDays: 2,
				},
				Tier: 2,
			},
		},
	}
}

func newTestService(t *testing.T, ship shipping.Service, store SelectionStore) *service {
	t.Helper()
	svc, err := NewService(ship, store, nil, Options{SelectionTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	concrete := svc.(*service)
	concrete.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return concrete
}

func TestSelectStoresBundle(t *testing.T) {
	ship := &stubShipping{quote: coveredQuote()}
	store := newMemoryStore()
	svc := newTestService(t, ship, store)

	selection, err := svc.Select(context.Background(), SelectInput{
		SessionID: "sess-1",
		BundleID:  "bundle-cheap",
		Address:   shipping.Address{PostalCode: " 03100 "},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !ship.input.Exhaustive {
		t.Fatalf("selection must recompute every option variant")
	}
	if selection.BundleID != "bundle-cheap" || selection.Currency != "MXN" || selection.PostalCode != "03100" {
		t.Fatalf("unexpected selection %+v", selection)
	}
	if got := store.ttls["sess-1"]; got != 15*time.Minute {
		t.Fatalf("expected configured ttl, got %v", got)
	}

	current, err := svc.Current(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !current.TotalCost.Equal(decimal.NewFromInt(190)) || !current.SelectedAt.Equal(selection.SelectedAt) {
		t.Fatalf("unexpected stored selection %+v", current)
	}
}

func TestOrderShippingRendersCents(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &stubShipping{quote: coveredQuote()}, store)

	if _, err := svc.Select(context.Background(), SelectInput{SessionID: "sess-2", BundleID: "bundle-fast"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	line, err := svc.OrderShipping(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("OrderShipping: %v", err)
	}
	if line.PriceCents != 25000 {
		t.Fatalf("expected 25000 cents, got %d", line.PriceCents)
	}
	if line.Code != "bundle-fast" || line.Title != "Local (Express)" || line.MaxDeliveryDays != 2 {
		t.Fatalf("unexpected shipping line %+v", line)
	}
}

func TestSelectUnknownBundle(t *testing.T) {
	svc := newTestService(t, &stubShipping{quote: coveredQuote()}, newMemoryStore())

	_, err := svc.Select(context.Background(), SelectInput{SessionID: "sess-1", BundleID: "gone"})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestSelectRejectsUnshippableCarts(t *testing.T) {
	cases := map[string]struct {
		quote *shipping.Quote
		code  pkgerrors.Code
	}{
		"empty cart": {
			quote: &shipping.Quote{Outcome: shipping.OutcomeEmptyCart},
			code:  pkgerrors.CodeValidation,
		},
		"no rules": {
			quote: &shipping.Quote{
				Outcome:     shipping.OutcomeNoRules,
				Unshippable: []shipping.UnshippableProduct{{ProductID: "p1", Reason: shipping.ReasonNoRulesAssigned}},
			},
			code: pkgerrors.CodeUnshippableCart,
		},
		"no covering combination": {
			quote: &shipping.Quote{Outcome: shipping.OutcomeNoCoveringCombination},
			code:  pkgerrors.CodeNoCoveringCombination,
		},
		"partially shippable": {
			quote: func() *shipping.Quote {
				q := coveredQuote()
				q.Unshippable = []shipping.UnshippableProduct{{ProductID: "p9", Reason: shipping.ReasonNoZoneForAddress}}
				return q
			}(),
			code: pkgerrors.CodeUnshippableCart,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, &stubShipping{quote: tc.quote}, newMemoryStore())
			_, err := svc.Select(context.Background(), SelectInput{SessionID: "s", BundleID: "bundle-cheap"})
			assertCode(t, err, tc.code)
		})
	}
}

type staticRules map[string]shipping.Rule

func (r staticRules) FetchByID(ctx context.Context, id string) (*shipping.Rule, error) {
	rule, ok := r[id]
	if !ok {
		return nil, shipping.ErrRuleNotFound
	}
	return &rule, nil
}

func (r staticRules) FetchActiveZones(ctx context.Context) ([]shipping.Rule, error) {
	return nil, nil
}

func (r staticRules) FetchZonesMatchingPostalCode(ctx context.Context, postalCode string) ([]shipping.Rule, error) {
	return nil, nil
}

func TestSelectOutsideEveryZoneHasNoCoveringCombination(t *testing.T) {
	ship, err := shipping.NewService(shipping.ServiceParams{
		Repo: staticRules{"local": {
			ID:          "local",
			ZoneName:    "Local",
			ZoneType:    "local",
			PostalCodes: []string{"01000"},
			MessagingOptions: []shipping.MessagingOption{
				{Name: "mensajeria", BasePrice: decimal.RequireFromString("40")},
			},
		}},
		Options: shipping.Options{FallbackBasePrice: decimal.RequireFromString("150")},
	})
	if err != nil {
		t.Fatalf("shipping.NewService: %v", err)
	}
	svc := newTestService(t, ship, newMemoryStore())

	_, err = svc.Select(context.Background(), SelectInput{
		SessionID: "sess-1",
		BundleID:  "any",
		Items:     []shipping.CartItem{{ProductID: "A", Quantity: 1, UnitWeight: 1, UnitPrice: decimal.RequireFromString("10"), RuleIDs: []string{"local"}}},
		Address:   shipping.Address{PostalCode: "99999"},
	})
	assertCode(t, err, pkgerrors.CodeNoCoveringCombination)
}

func TestSelectValidatesInput(t *testing.T) {
	svc := newTestService(t, &stubShipping{quote: coveredQuote()}, newMemoryStore())

	_, err := svc.Select(context.Background(), SelectInput{BundleID: "bundle-cheap"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Select(context.Background(), SelectInput{SessionID: "sess"})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestSelectPropagatesQuoteErrors(t *testing.T) {
	quoteErr := pkgerrors.New(pkgerrors.CodeDependency, "shipping computation cancelled")
	svc := newTestService(t, &stubShipping{err: quoteErr}, newMemoryStore())

	_, err := svc.Select(context.Background(), SelectInput{SessionID: "s", BundleID: "b"})
	if !errors.Is(err, quoteErr) {
		t.Fatalf("expected quote error, got %v", err)
	}
}

func TestStoreFailuresAreDependencyErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	svc := newTestService(t, &stubShipping{quote: coveredQuote()}, store)

	_, err := svc.Select(context.Background(), SelectInput{SessionID: "s", BundleID: "bundle-cheap"})
	assertCode(t, err, pkgerrors.CodeDependency)

	_, err = svc.Current(context.Background(), "s")
	assertCode(t, err, pkgerrors.CodeDependency)
}

func TestCurrentWithoutSelection(t *testing.T) {
	svc := newTestService(t, &stubShipping{quote: coveredQuote()}, newMemoryStore())

	_, err := svc.OrderShipping(context.Background(), "sess-404")
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, newMemoryStore(), nil, Options{}); err == nil {
		t.Fatal("expected error without shipping service")
	}
	if _, err := NewService(&stubShipping{}, nil, nil, Options{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
