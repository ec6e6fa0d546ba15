package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cactilia/cactilia-backend/internal/shipping"
	"github.com/cactilia/cactilia-backend/pkg/db/models"
)

// SeedOption is one carrier tier in a seed file.
type SeedOption struct {
	Name                string          `json:"name" validate:"required"`
	Label               string          `json:"label"`
	BasePrice           decimal.Decimal `json:"basePrice"`
	PerKgExtraPrice     decimal.Decimal `json:"perKgExtraPrice"`
	MaxWeightPerPackage float64         `json:"maxWeightPerPackage" validate:"gte=0"`
	MaxItemsPerPackage  int             `json:"maxItemsPerPackage" validate:"gte=0"`
	MinDeliveryDays     int             `json:"minDeliveryDays" validate:"gte=0"`
	MaxDeliveryDays     int             `json:"maxDeliveryDays" validate:"gte=0"`
}

// SeedRule is the document shape rule owners export, one per zone.
type SeedRule struct {
	ID                    string              `json:"id" validate:"required"`
	ZoneName              string              `json:"zoneName" validate:"required"`
	ZoneType              string              `json:"zoneType"`
	CoverageType          string              `json:"coverageType"`
	IsNational            bool                `json:"isNational"`
	PostalCodes           []string            `json:"postalCodes"`
	StatePrefixes         []string            `json:"statePrefixes"`
	RuleIDs               []string            `json:"ruleIds"`
	MessagingOptions      []SeedOption        `json:"messagingOptions" validate:"unique=Name,dive"`
	BasePrice             *decimal.Decimal    `json:"basePrice"`
	FreeShipping          bool                `json:"freeShipping"`
	FreeShippingMinAmount decimal.NullDecimal `json:"freeShippingMinAmount"`
	MaxWeightPerPackage   float64             `json:"maxWeightPerPackage" validate:"gte=0"`
	MaxItemsPerPackage    int                 `json:"maxItemsPerPackage" validate:"gte=0"`
	Active                *bool               `json:"active"`
}

// SeedResult lists what a seed run did per rule id.
type SeedResult struct {
	Inserted []string
	Updated  []string
	Skipped  []string
}

var seedValidate = validator.New()

// DecodeSeed reads a JSON array of rules and validates every entry.
func DecodeSeed(r io.Reader) ([]SeedRule, error) {
	var docs []SeedRule
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	seen := make(map[string]struct{}, len(docs))
	for idx, doc := range docs {
		if err := seedValidate.Struct(doc); err != nil {
			return nil, fmt.Errorf("seed rule %d: %w", idx, err)
		}
		id := strings.TrimSpace(doc.ID)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("seed rule %d: duplicate id %q", idx, id)
		}
		seen[id] = struct{}{}
	}
	return docs, nil
}

// Rule converts the document into the engine's rule.
func (d SeedRule) Rule() shipping.Rule {
	rule := shipping.Rule{
		ID:                  strings.TrimSpace(d.ID),
		ZoneName:            strings.TrimSpace(d.ZoneName),
		ZoneType:            d.ZoneType,
		CoverageType:        d.CoverageType,
		IsNational:          d.IsNational,
		PostalCodes:         d.PostalCodes,
		StatePrefixes:       d.StatePrefixes,
		RuleIDs:             shipping.NormalizeRuleIDs(d.RuleIDs),
		FreeShipping:        d.FreeShipping,
		MaxWeightPerPackage: d.MaxWeightPerPackage,
		MaxItemsPerPackage:  d.MaxItemsPerPackage,
	}
	if d.BasePrice != nil {
		rule.BasePrice = decimal.NewNullDecimal(*d.BasePrice)
	}
	if d.FreeShippingMinAmount.Valid {
		rule.FreeShippingMinAmount = d.FreeShippingMinAmount.Decimal
	}
	for _, opt := range d.MessagingOptions {
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

func (d SeedRule) active() bool {
	return d.Active == nil || *d.Active
}

// Seed writes the documents. Existing ids are skipped unless overwrite is set, in which
// case they are replaced.
func (r *Repository) Seed(ctx context.Context, docs []SeedRule, overwrite bool) (SeedResult, error) {
	var result SeedResult
	for _, doc := range docs {
		rule := doc.Rule()
		if overwrite {
			existed, err := r.exists(ctx, rule.ID)
			if err != nil {
				return result, err
			}
			if err := r.Save(ctx, rule, doc.active()); err != nil {
				return result, fmt.Errorf("save shipping rule %s: %w", rule.ID, err)
			}
			if existed {
				result.Updated = append(result.Updated, rule.ID)
			} else {
				result.Inserted = append(result.Inserted, rule.ID)
			}
			continue
		}

		err := r.Insert(ctx, rule, doc.active())
		switch {
		case errors.Is(err, ErrRuleExists):
			result.Skipped = append(result.Skipped, rule.ID)
		case err != nil:
			return result, err
		default:
			result.Inserted = append(result.Inserted, rule.ID)
		}
	}
	return result, nil
}

func (r *Repository) exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.ShippingRule{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check shipping rule %s: %w", id, err)
	}
	return count > 0, nil
}
