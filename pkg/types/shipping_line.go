package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ShippingLine is the shipping cost an order carries for the bundle chosen at checkout.
type ShippingLine struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	PriceCents      int64  `json:"price_cents"`
	Currency        string `json:"currency"`
	MinDeliveryDays int    `json:"min_delivery_days"`
	MaxDeliveryDays int    `json:"max_delivery_days"`
}

// Value serializes the shipping line to JSON.
func (s *ShippingLine) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan decodes JSONB into the shipping line struct.
func (s *ShippingLine) Scan(value interface{}) error {
	if value == nil {
		*s = ShippingLine{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, s)
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
