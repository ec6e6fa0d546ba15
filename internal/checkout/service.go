package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cactilia/cactilia-backend/internal/shipping"
	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
	"github.com/cactilia/cactilia-backend/pkg/logger"
	pkgredis "github.com/cactilia/cactilia-backend/pkg/redis"
	"github.com/cactilia/cactilia-backend/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	defaultSelectionTTL = 30 * time.Minute
	defaultCurrency     = "MXN"
)

// SelectionStore persists the shipping selection of a checkout session.
type SelectionStore interface {
	SaveShippingSelection(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error
	LoadShippingSelection(ctx context.Context, sessionID string) ([]byte, error)
}

// Service records the shipping bundle a shopper picked for a checkout session.
type Service interface {
	Select(ctx context.Context, input SelectInput) (*Selection, error)
	Current(ctx context.Context, sessionID string) (*Selection, error)
	OrderShipping(ctx context.Context, sessionID string) (types.ShippingLine, error)
}

// Options tunes the checkout service.
type Options struct {
	SelectionTTL time.Duration
	Currency     string
}

// SelectInput is the bundle choice for a session together with the cart it was quoted for.
type SelectInput struct {
	SessionID string
	BundleID  string
	Items     []shipping.CartItem
	Address   shipping.Address
}

// Selection is the stored shipping choice of a checkout session.
type Selection struct {
	SessionID         string          `json:"sessionId"`
	BundleID          string          `json:"bundleId"`
	Label             string          `json:"label"`
	Carrier           string          `json:"carrier"`
	TotalCost         decimal.Decimal `json:"totalCost"`
	Currency          string          `json:"currency"`
	IsFreeShipping    bool            `json:"isFreeShipping"`
	MinDeliveryDays   int             `json:"minDeliveryDays"`
	MaxDeliveryDays   int             `json:"maxDeliveryDays"`
	CoveredProductIDs []string        `json:"coveredProductIds"`
	ZoneIDs           []string        `json:"zoneIds"`
	PostalCode        string          `json:"postalCode"`
	SelectedAt        time.Time       `json:"selectedAt"`
}

// ShippingLine renders the selection as the shipping line an order carries.
func (s Selection) ShippingLine() types.ShippingLine {
	return types.ShippingLine{
		Code:            s.BundleID,
		Title:           s.Label,
		PriceCents:      s.TotalCost.Shift(2).Round(0).IntPart(),
		Currency:        s.Currency,
		MinDeliveryDays: s.MinDeliveryDays,
		MaxDeliveryDays: s.MaxDeliveryDays,
	}
}

type service struct {
	shipping shipping.Service
	store    SelectionStore
	logg     *logger.Logger
	opts     Options
	now      func() time.Time
}

// NewService builds the checkout shipping service.
func NewService(shippingSvc shipping.Service, store SelectionStore, logg *logger.Logger, opts Options) (Service, error) {
	if shippingSvc == nil {
		return nil, fmt.Errorf("shipping service required")
	}
	if store == nil {
		return nil, fmt.Errorf("selection store required")
	}
	if opts.SelectionTTL <= 0 {
		opts.SelectionTTL = defaultSelectionTTL
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = defaultCurrency
	}
	return &service{
		shipping: shippingSvc,
		store:    store,
		logg:     logg,
		opts:     opts,
		now:      time.Now,
	}, nil
}

// Select recomputes the quote for the cart and stores the bundle when the cart and address
// still produce it. Bundle ids are deterministic so no quote is cached between requests.
func (s *service) Select(ctx context.Context, input SelectInput) (*Selection, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required").
			WithDetails(map[string]any{"field": "sessionId"})
	}
	bundleID := strings.TrimSpace(input.BundleID)
	if bundleID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundle id is required").
			WithDetails(map[string]any{"field": "bundleId"})
	}

	quote, err := s.shipping.Quote(ctx, shipping.QuoteInput{
		Items:      input.Items,
		Address:    input.Address,
		Exhaustive: true,
	})
	if err != nil {
		return nil, err
	}
	if err := checkShippable(quote); err != nil {
		return nil, err
	}

	var bundle *shipping.ShippingOptionBundle
	for i := range quote.Bundles {
		if quote.Bundles[i].ID == bundleID {
			bundle = &quote.Bundles[i]
			break
		}
	}
	if bundle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipping option no longer available").
			WithDetails(map[string]any{"bundleId": bundleID})
	}

	selection := &Selection{
		SessionID:         sessionID,
		BundleID:          bundle.ID,
		Label:             bundle.Label,
		Carrier:           bundle.Carrier,
		TotalCost:         bundle.TotalCost,
		Currency:          s.opts.Currency,
		IsFreeShipping:    bundle.IsFreeShipping,
		MinDeliveryDays:   bundle.DeliveryEstimate.MinDays,
		MaxDeliveryDays:   bundle.DeliveryEstimate.MaxDays,
		CoveredProductIDs: bundle.CoveredProductIDs,
		ZoneIDs:           bundle.ZoneIDs,
		PostalCode:        strings.TrimSpace(input.Address.PostalCode),
		SelectedAt:        s.now().UTC(),
	}
	payload, err := json.Marshal(selection)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode shipping selection")
	}
	if err := s.store.SaveShippingSelection(ctx, sessionID, payload, s.opts.SelectionTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store shipping selection")
	}

	if s.logg != nil {
		logCtx := s.logg.WithSessionID(ctx, sessionID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"bundle_id":  bundle.ID,
			"total_cost": bundle.TotalCost.StringFixed(2),
			"zones":      bundle.ZoneIDs,
		})
		s.logg.Info(logCtx, "shipping option selected")
	}
	return selection, nil
}

func (s *service) Current(ctx context.Context, sessionID string) (*Selection, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required").
			WithDetails(map[string]any{"field": "sessionId"})
	}
	payload, err := s.store.LoadShippingSelection(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pkgredis.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no shipping option selected")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping selection")
	}
	var selection Selection
	if err := json.Unmarshal(payload, &selection); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode shipping selection")
	}
	return &selection, nil
}

func (s *service) OrderShipping(ctx context.Context, sessionID string) (types.ShippingLine, error) {
	selection, err := s.Current(ctx, sessionID)
	if err != nil {
		return types.ShippingLine{}, err
	}
	return selection.ShippingLine(), nil
}

// checkShippable rejects carts that cannot be shipped whole to the address.
func checkShippable(quote *shipping.Quote) error {
	switch quote.Outcome {
	case shipping.OutcomeEmptyCart:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
			WithDetails(map[string]any{"field": "items"})
	case shipping.OutcomeNoRules:
		return pkgerrors.New(pkgerrors.CodeUnshippableCart, "no product in the cart can be shipped").
			WithDetails(map[string]any{"unshippable": unshippableDetails(quote.Unshippable)})
	case shipping.OutcomeNoCoveringCombination:
		return pkgerrors.New(pkgerrors.CodeNoCoveringCombination, "no zone combination covers the cart").
			WithDetails(map[string]any{"unshippable": unshippableDetails(quote.Unshippable)})
	}
	if len(quote.Unshippable) > 0 {
		return pkgerrors.New(pkgerrors.CodeUnshippableCart, "some products cannot be shipped to this address").
			WithDetails(map[string]any{"unshippable": unshippableDetails(quote.Unshippable)})
	}
	return nil
}

func unshippableDetails(products []shipping.UnshippableProduct) []map[string]any {
	out := make([]map[string]any, 0, len(products))
	for _, product := range products {
		out = append(out, map[string]any{
			"productId": product.ProductID,
			"reason":    string(product.Reason),
		})
	}
	return out
}
