package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cactilia/cactilia-backend/internal/shipping"
	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
)

// ProductPayload is the product shape storefront clients send, either flat on the line
// or nested under "product". Older clients send a single shippingRuleId.
type ProductPayload struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Weight          float64         `json:"weight"`
	ShippingRuleID  string          `json:"shippingRuleId"`
	ShippingRuleIDs []string        `json:"shippingRuleIds"`
}

// LineItemPayload is one cart line as received over the wire.
type LineItemPayload struct {
	ProductPayload
	Product  *ProductPayload `json:"product,omitempty"`
	Quantity int             `json:"quantity" validate:"gte=1"`
}

// AddressPayload accepts every postal code alias storefront clients have used.
type AddressPayload struct {
	PostalCode string `json:"postalCode"`
	ZipCode    string `json:"zipCode"`
	Zip        string `json:"zip"`
	State      string `json:"state"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// NormalizeItems converts wire lines into canonical cart items. Lines repeating a product
// are merged: quantities add up and rule ids are unioned, keeping the first line's unit
// price and weight.
func NormalizeItems(payloads []LineItemPayload) ([]shipping.CartItem, error) {
	items := make([]shipping.CartItem, 0, len(payloads))
	index := map[string]int{}
	for idx, payload := range payloads {
		item, err := normalizeItem(payload)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil {
				return nil, typed.WithDetails(map[string]any{"line": idx})
			}
			return nil, err
		}
		if pos, ok := index[item.ProductID]; ok {
			items[pos].Quantity += item.Quantity
			items[pos].RuleIDs = shipping.NormalizeRuleIDs(append(items[pos].RuleIDs, item.RuleIDs...))
			continue
		}
		index[item.ProductID] = len(items)
		items = append(items, item)
	}
	return items, nil
}

func normalizeItem(payload LineItemPayload) (shipping.CartItem, error) {
	product := payload.ProductPayload
	if payload.Product != nil {
		product = mergeProduct(*payload.Product, product)
	}

	productID := strings.TrimSpace(product.ProductID)
	if productID == "" {
		productID = strings.TrimSpace(product.ID)
	}
	if productID == "" {
		return shipping.CartItem{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if payload.Quantity <= 0 {
		return shipping.CartItem{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for product %s must be positive", productID))
	}
	if product.Price.IsNegative() {
		return shipping.CartItem{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("price for product %s must not be negative", productID))
	}
	if product.Weight < 0 {
		return shipping.CartItem{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("weight for product %s must not be negative", productID))
	}

	ruleIDs := append([]string{}, product.ShippingRuleIDs...)
	ruleIDs = append(ruleIDs, product.ShippingRuleID)

	return shipping.CartItem{
		ProductID:  productID,
		Name:       strings.TrimSpace(product.Name),
		Quantity:   payload.Quantity,
		UnitPrice:  product.Price,
		UnitWeight: product.Weight,
		RuleIDs:    shipping.NormalizeRuleIDs(ruleIDs),
	}, nil
}

// mergeProduct fills empty fields of nested from flat.
func mergeProduct(nested, flat ProductPayload) ProductPayload {
	if strings.TrimSpace(nested.ID) == "" {
		nested.ID = flat.ID
	}
	if strings.TrimSpace(nested.ProductID) == "" {
		nested.ProductID = flat.ProductID
	}
	if strings.TrimSpace(nested.Name) == "" {
		nested.Name = flat.Name
	}
	if nested.Price.IsZero() {
		nested.Price = flat.Price
	}
	if nested.Weight == 0 {
		nested.Weight = flat.Weight
	}
	if strings.TrimSpace(nested.ShippingRuleID) == "" {
		nested.ShippingRuleID = flat.ShippingRuleID
	}
	if len(nested.ShippingRuleIDs) == 0 {
		nested.ShippingRuleIDs = flat.ShippingRuleIDs
	}
	return nested
}

// NormalizeAddress picks the first non-empty postal code alias.
func NormalizeAddress(payload AddressPayload) shipping.Address {
	postal := ""
	for _, candidate := range []string{payload.PostalCode, payload.ZipCode, payload.Zip} {
		if value := strings.TrimSpace(candidate); value != "" {
			postal = value
			break
		}
	}
	return shipping.Address{
		PostalCode: postal,
		State:      strings.TrimSpace(payload.State),
		City:       strings.TrimSpace(payload.City),
		Country:    strings.TrimSpace(payload.Country),
	}
}
