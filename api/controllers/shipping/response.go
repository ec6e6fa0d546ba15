package shipping

import (
	shippingsvc "github.com/cactilia/cactilia-backend/internal/shipping"
	"github.com/shopspring/decimal"
)

type deliveryEstimate struct {
	MinDays int `json:"minDays"`
	MaxDays int `json:"maxDays"`
}

type packageResponse struct {
	ZoneID      string   `json:"zoneId"`
	ZoneName    string   `json:"zoneName"`
	Option      string   `json:"option"`
	ProductIDs  []string `json:"productIds"`
	TotalWeight float64  `json:"totalWeight"`
	ItemCount   int      `json:"itemCount"`
	Price       string   `json:"price"`
	IsFree      bool     `json:"isFree"`
	Oversized   bool     `json:"oversized,omitempty"`
}

type bundleResponse struct {
	ID                string            `json:"id"`
	Label             string            `json:"label"`
	Carrier           string            `json:"carrier"`
	TotalCost         string            `json:"totalCost"`
	TotalCostCents    int64             `json:"totalCostCents"`
	IsFreeShipping    bool              `json:"isFreeShipping"`
	DeliveryEstimate  deliveryEstimate  `json:"deliveryEstimate"`
	CoveredProductIDs []string          `json:"coveredProductIds"`
	ZoneIDs           []string          `json:"zoneIds"`
	Packages          []packageResponse `json:"packages"`
}

type unshippableResponse struct {
	ProductID string   `json:"productId"`
	RuleIDs   []string `json:"ruleIds"`
	Reason    string   `json:"reason"`
}

// QuoteResponse is the payload of the quote endpoint.
type QuoteResponse struct {
	Outcome            string                `json:"outcome"`
	Tier               int                   `json:"tier"`
	Currency           string                `json:"currency"`
	Bundles            []bundleResponse      `json:"bundles"`
	Unshippable        []unshippableResponse `json:"unshippable"`
	MisconfiguredRules []string              `json:"misconfiguredRules,omitempty"`
}

type optionResponse struct {
	Name            string `json:"name"`
	Label           string `json:"label"`
	Price           string `json:"price"`
	IsFree          bool   `json:"isFree"`
	PackageCount    int    `json:"packageCount"`
	MinDeliveryDays int    `json:"minDeliveryDays"`
	MaxDeliveryDays int    `json:"maxDeliveryDays"`
}

type groupResponse struct {
	RuleID       string           `json:"ruleId"`
	ZoneName     string           `json:"zoneName"`
	FreeShipping bool             `json:"freeShipping"`
	ProductIDs   []string         `json:"productIds"`
	Options      []optionResponse `json:"options"`
}

type selectionResponse struct {
	RuleID string `json:"ruleId"`
	Option string `json:"option"`
	Price  string `json:"price"`
}

type combinationResponse struct {
	Name            string              `json:"name"`
	TotalPrice      string              `json:"totalPrice"`
	MinDeliveryDays int                 `json:"minDeliveryDays"`
	MaxDeliveryDays int                 `json:"maxDeliveryDays"`
	Selections      []selectionResponse `json:"selections"`
}

// GroupsResponse is the payload of the grouping endpoint.
type GroupsResponse struct {
	Currency     string                `json:"currency"`
	Groups       []groupResponse       `json:"groups"`
	Combinations []combinationResponse `json:"combinations"`
	Unshippable  []unshippableResponse `json:"unshippable"`
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func newQuoteResponse(quote *shippingsvc.Quote, currency string) QuoteResponse {
	resp := QuoteResponse{
		Outcome:     string(quote.Outcome),
		Tier:        quote.Tier,
		Currency:    currency,
		Bundles:     make([]bundleResponse, 0, len(quote.Bundles)),
		Unshippable: newUnshippable(quote.Unshippable),
	}
	for _, bundle := range quote.Bundles {
		out := bundleResponse{
			ID:             bundle.ID,
			Label:          bundle.Label,
			Carrier:        bundle.Carrier,
			TotalCost:      money(bundle.TotalCost),
			TotalCostCents: bundle.TotalCost.Shift(2).Round(0).IntPart(),
			IsFreeShipping: bundle.IsFreeShipping,
			DeliveryEstimate: deliveryEstimate{
				MinDays: bundle.DeliveryEstimate.MinDays,
				MaxDays: bundle.DeliveryEstimate.MaxDays,
			},
			CoveredProductIDs: bundle.CoveredProductIDs,
			ZoneIDs:           bundle.ZoneIDs,
			Packages:          make([]packageResponse, 0, len(bundle.Packages)),
		}
		for _, pkg := range bundle.Packages {
			out.Packages = append(out.Packages, packageResponse{
				ZoneID:      pkg.ZoneID,
				ZoneName:    pkg.ZoneName,
				Option:      pkg.Option,
				ProductIDs:  pkg.ProductIDs,
				TotalWeight: pkg.TotalWeight,
				ItemCount:   pkg.ItemCount,
				Price:       money(pkg.Price),
				IsFree:      pkg.IsFree,
				Oversized:   pkg.Oversized,
			})
		}
		resp.Bundles = append(resp.Bundles, out)
	}
	listed := map[string]struct{}{}
	for _, issue := range quote.MisconfiguredRules {
		if _, dup := listed[issue.RuleID]; dup {
			continue
		}
		listed[issue.RuleID] = struct{}{}
		resp.MisconfiguredRules = append(resp.MisconfiguredRules, issue.RuleID)
	}
	return resp
}

func newGroupsResponse(result *shippingsvc.GroupingResult, currency string) GroupsResponse {
	resp := GroupsResponse{
		Currency:     currency,
		Groups:       make([]groupResponse, 0, len(result.Groups)),
		Combinations: make([]combinationResponse, 0, len(result.Combinations)),
		Unshippable:  newUnshippable(result.Unshippable),
	}
	for _, group := range result.Groups {
		out := groupResponse{
			RuleID:       group.RuleID,
			ZoneName:     group.ZoneName,
			FreeShipping: group.FreeShipping,
			ProductIDs:   group.ProductIDs(),
			Options:      make([]optionResponse, 0, len(group.Options)),
		}
		for _, opt := range group.Options {
			out.Options = append(out.Options, optionResponse{
				Name:            opt.Option.Name,
				Label:           opt.Option.Label,
				Price:           money(opt.Price),
				IsFree:          opt.IsFree,
				PackageCount:    len(opt.Packages),
				MinDeliveryDays: opt.Option.MinDeliveryDays,
				MaxDeliveryDays: opt.Option.MaxDeliveryDays,
			})
		}
		resp.Groups = append(resp.Groups, out)
	}
	for _, combo := range result.Combinations {
		out := combinationResponse{
			Name:            combo.Name,
			TotalPrice:      money(combo.TotalPrice),
			MinDeliveryDays: combo.MinDeliveryDays,
			MaxDeliveryDays: combo.MaxDeliveryDays,
		}
		for _, sel := range combo.Selections {
			out.Selections = append(out.Selections, selectionResponse{
				RuleID: sel.RuleID,
				Option: sel.Option.Option.Name,
				Price:  money(sel.Option.Price),
			})
		}
		resp.Combinations = append(resp.Combinations, out)
	}
	return resp
}

func newUnshippable(products []shippingsvc.UnshippableProduct) []unshippableResponse {
	out := make([]unshippableResponse, 0, len(products))
	for _, product := range products {
		out = append(out, unshippableResponse{
			ProductID: product.ProductID,
			RuleIDs:   product.RuleIDs,
			Reason:    string(product.Reason),
		})
	}
	return out
}
