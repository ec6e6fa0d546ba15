package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cactilia/cactilia-backend/internal/repo"
	"github.com/cactilia/cactilia-backend/internal/shipping"
	"github.com/cactilia/cactilia-backend/pkg/db"
	"github.com/cactilia/cactilia-backend/pkg/db/models"
	"github.com/cactilia/cactilia-backend/pkg/types"
)

// ErrRuleExists is returned by Insert when the rule id is already taken.
var ErrRuleExists = errors.New("shipping rule already exists")

// Repository reads and writes shipping rules.
type Repository struct {
	repo.Base
}

var _ shipping.RuleRepository = (*Repository)(nil)

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{Base: r.Bind(tx)}
}

// FetchByID returns the active rule with id or shipping.ErrRuleNotFound.
func (r *Repository) FetchByID(ctx context.Context, id string) (*shipping.Rule, error) {
	var record models.ShippingRule
	err := r.DB(ctx).
		Where("id = ? AND is_active = ?", strings.TrimSpace(id), true).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shipping.ErrRuleNotFound
		}
		return nil, fmt.Errorf("fetch shipping rule %s: %w", id, err)
	}
	rule := toRule(record)
	return &rule, nil
}

// FetchActiveZones returns every active rule ordered by id.
func (r *Repository) FetchActiveZones(ctx context.Context) ([]shipping.Rule, error) {
	var records []models.ShippingRule
	if err := r.DB(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch active shipping zones: %w", err)
	}
	return toRules(records), nil
}

// nationalPredicate matches every marker shipping.Rule.National accepts.
const nationalPredicate = `is_national
	OR lower(trim(zone_name)) IN ('nacional', 'national')
	OR lower(trim(coverage_type)) IN ('nacional', 'national')
	OR lower(trim(zone_type)) IN ('nacional', 'national')`

// FetchZonesMatchingPostalCode returns active rules covering postalCode: national rules,
// rules listing the code verbatim and rules whose ranges include it. On Postgres the
// array index narrows the scan before ranges are checked in memory.
func (r *Repository) FetchZonesMatchingPostalCode(ctx context.Context, postalCode string) ([]shipping.Rule, error) {
	postalCode = strings.TrimSpace(postalCode)
	if postalCode == "" {
		return nil, nil
	}

	query := r.DB(ctx).Where("is_active = ?", true)
	if r.Dialect() == "postgres" {
		query = query.Where(
			nationalPredicate+` OR ? = ANY(postal_codes)
			OR EXISTS (SELECT 1 FROM unnest(postal_codes) AS entry WHERE entry LIKE '%-%')`,
			postalCode,
		)
	}

	var records []models.ShippingRule
	if err := query.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch shipping zones for postal code %s: %w", postalCode, err)
	}

	addr := shipping.Address{PostalCode: postalCode}
	var out []shipping.Rule
	for _, rule := range toRules(records) {
		if shipping.IsRuleValidForAddress(rule, addr) {
			out = append(out, rule)
		}
	}
	return out, nil
}

// Save inserts or updates the rule. active controls whether lookups can see it.
func (r *Repository) Save(ctx context.Context, rule shipping.Rule, active bool) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("shipping rule id required")
	}
	record := fromRule(rule)
	record.IsActive = active
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
}

// Insert creates the rule and fails with ErrRuleExists when the id is taken.
func (r *Repository) Insert(ctx context.Context, rule shipping.Rule, active bool) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("shipping rule id required")
	}
	record := fromRule(rule)
	record.IsActive = active
	if err := r.DB(ctx).Create(&record).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: %s", ErrRuleExists, record.ID)
		}
		return fmt.Errorf("insert shipping rule %s: %w", record.ID, err)
	}
	return nil
}

func toRules(records []models.ShippingRule) []shipping.Rule {
	out := make([]shipping.Rule, 0, len(records))
	for _, record := range records {
		out = append(out, toRule(record))
	}
	return out
}

func toRule(record models.ShippingRule) shipping.Rule {
	rule := shipping.Rule{
		ID:                  record.ID,
		ZoneName:            record.ZoneName,
		ZoneType:            record.ZoneType,
		CoverageType:        record.CoverageType,
		IsNational:          record.IsNational,
		PostalCodes:         []string(record.PostalCodes),
		StatePrefixes:       []string(record.StatePrefixes),
		RuleIDs:             []string(record.RuleIDs),
		BasePrice:           record.BasePrice,
		FreeShipping:        record.FreeShipping,
		MaxWeightPerPackage: record.MaxWeightPerPackage,
		MaxItemsPerPackage:  record.MaxItemsPerPackage,
	}
	if record.FreeShippingMinAmount.Valid {
		rule.FreeShippingMinAmount = record.FreeShippingMinAmount.Decimal
	}
	for _, opt := range record.MessagingOptions {
		rule.MessagingOptions = append(rule.MessagingOptions, shipping.MessagingOption{
			Name:                opt.Name,
			Label:               opt.Label,
			BasePrice:           opt.BasePrice,
			PerKgExtraPrice:     opt.PerKgExtraPrice,
			MaxWeightPerPackage: opt.MaxWeightPerPackage,
			MaxItemsPerPackage:  opt.MaxItemsPerPackage,
			MinDeliveryDays:     opt.MinDeliveryDays,
			MaxDeliveryDays:     opt.MaxDeliveryDays,
		})
	}
	return rule
}

func fromRule(rule shipping.Rule) models.ShippingRule {
	record := models.ShippingRule{
		ID:                  strings.TrimSpace(rule.ID),
		ZoneName:            rule.ZoneName,
		ZoneType:            rule.ZoneType,
		CoverageType:        rule.CoverageType,
		IsNational:          rule.IsNational,
		PostalCodes:         pq.StringArray(nonNil(rule.PostalCodes)),
		StatePrefixes:       pq.StringArray(nonNil(rule.StatePrefixes)),
		RuleIDs:             pq.StringArray(nonNil(rule.RuleIDs)),
		MessagingOptions:    types.MessagingOptions{},
		BasePrice:           rule.BasePrice,
		FreeShipping:        rule.FreeShipping,
		MaxWeightPerPackage: rule.MaxWeightPerPackage,
		MaxItemsPerPackage:  rule.MaxItemsPerPackage,
	}
	if rule.FreeShippingMinAmount.IsPositive() {
		record.FreeShippingMinAmount = decimal.NewNullDecimal(rule.FreeShippingMinAmount)
	}
	for _, opt := range rule.MessagingOptions {
		record.MessagingOptions = append(record.MessagingOptions, types.MessagingOption{
			Name:                opt.Name,
			Label:               opt.Label,
			BasePrice:           opt.BasePrice,
			PerKgExtraPrice:     opt.PerKgExtraPrice,
			MaxWeightPerPackage: opt.MaxWeightPerPackage,
			MaxItemsPerPackage:  opt.MaxItemsPerPackage,
			MinDeliveryDays:     opt.MinDeliveryDays,
			MaxDeliveryDays:     opt.MaxDeliveryDays,
		})
	}
	return record
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
