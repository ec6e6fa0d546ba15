package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cactilia/cactilia-backend/pkg/types"
)

// ShippingRule persists a shipping zone with its coverage and carrier tiers.
type ShippingRule struct {
	ID                    string                 `gorm:"column:id;type:text;primaryKey"`
	ZoneName              string                 `gorm:"column:zone_name;not null"`
	ZoneType              string                 `gorm:"column:zone_type"`
	CoverageType          string                 `gorm:"column:coverage_type"`
	IsNational            bool                   `gorm:"column:is_national;not null"`
	PostalCodes           pq.StringArray         `gorm:"column:postal_codes;type:text[]"`
	StatePrefixes         pq.StringArray         `gorm:"column:state_prefixes;type:text[]"`
	RuleIDs               pq.StringArray         `gorm:"column:rule_ids;type:text[]"`
	MessagingOptions      types.MessagingOptions `gorm:"column:messaging_options;type:jsonb"`
	BasePrice             decimal.NullDecimal    `gorm:"column:base_price;type:numeric(12,2)"`
	FreeShipping          bool                   `gorm:"column:free_shipping;not null"`
	FreeShippingMinAmount decimal.NullDecimal    `gorm:"column:free_shipping_min_amount;type:numeric(12,2)"`
	MaxWeightPerPackage   float64                `gorm:"column:max_weight_per_package;not null"`
	MaxItemsPerPackage    int                    `gorm:"column:max_items_per_package;not null"`
	IsActive              bool                   `gorm:"column:is_active;not null"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (ShippingRule) TableName() string { return "shipping_rules" }
