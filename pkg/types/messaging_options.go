package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MessagingOption is the stored form of one carrier tier of a shipping rule.
type MessagingOption struct {
	Name                string          `json:"name"`
	Label               string          `json:"label"`
	BasePrice           decimal.Decimal `json:"base_price"`
	PerKgExtraPrice     decimal.Decimal `json:"per_kg_extra_price"`
	MaxWeightPerPackage float64         `json:"max_weight_per_package"`
	MaxItemsPerPackage  int             `json:"max_items_per_package"`
	MinDeliveryDays     int             `json:"min_delivery_days"`
	MaxDeliveryDays     int             `json:"max_delivery_days"`
}

// MessagingOptions stores a rule's carrier tiers inside a JSONB column.
type MessagingOptions []MessagingOption

// Value serializes the options to JSON. A nil list is stored as an empty array.
func (m MessagingOptions) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]MessagingOption(m))
}

// Scan decodes JSONB into the options list.
func (m *MessagingOptions) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []MessagingOption
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*m = decoded
	return nil
}
