package shipping

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// bundleNamespace seeds name-based bundle ids so the same cart, address and rules always
// produce the same id.
var bundleNamespace = uuid.MustParse("3f0c8a52-9d4e-4b7a-8f61-2c5e7d9a1b34")

// DeliveryEstimate is the delivery window in days. For split shipments it spans until the
// slowest package arrives.
type DeliveryEstimate struct {
	MinDays int
	MaxDays int
}

// BundlePackage is one priced parcel inside a bundle.
type BundlePackage struct {
	ZoneID      string
	ZoneName    string
	Option      string
	ProductIDs  []string
	TotalWeight float64
	ItemCount   int
	Price       decimal.Decimal
	IsFree      bool
	Oversized   bool
}

// ShippingOptionBundle is one shippable choice presented to the shopper.
type ShippingOptionBundle struct {
	ID                string
	Label             string
	Carrier           string
	TotalCost         decimal.Decimal
	IsFreeShipping    bool
	DeliveryEstimate  DeliveryEstimate
	CoveredProductIDs []string
	Packages          []BundlePackage
	ZoneIDs           []string
	Tier              int
}

// BundleID returns the deterministic id of a combination.
func BundleID(combo ZoneCombination) string {
	return uuid.NewSHA1(bundleNamespace, []byte(combo.Signature())).String()
}

func newBundle(combo ZoneCombination, cartOrder []string) ShippingOptionBundle {
	bundle := ShippingOptionBundle{
		ID:             BundleID(combo),
		TotalCost:      combo.TotalPrice,
		IsFreeShipping: len(combo.Assignments) > 0,
		Tier:           combo.Tier,
	}

	var labels, carriers []string
	seenCarrier := map[string]struct{}{}
	for _, assignment := range combo.Assignments {
		quote := assignment.Quote
		bundle.ZoneIDs = append(bundle.ZoneIDs, assignment.ZoneID)
		bundle.IsFreeShipping = bundle.IsFreeShipping && quote.IsFree

		labels = append(labels, assignmentLabel(assignment))
		if _, dup := seenCarrier[quote.Option.Name]; !dup {
			seenCarrier[quote.Option.Name] = struct{}{}
			carriers = append(carriers, quote.Option.Name)
		}

		if quote.Option.MinDeliveryDays > bundle.DeliveryEstimate.MinDays {
			bundle.DeliveryEstimate.MinDays = quote.Option.MinDeliveryDays
		}
		if quote.Option.MaxDeliveryDays > bundle.DeliveryEstimate.MaxDays {
			bundle.DeliveryEstimate.MaxDays = quote.Option.MaxDeliveryDays
		}

		for _, pkg := range quote.Packages {
			bundle.Packages = append(bundle.Packages, BundlePackage{
				ZoneID:      assignment.ZoneID,
				ZoneName:    assignment.ZoneName,
				Option:      quote.Option.Name,
				ProductIDs:  pkg.ProductIDs(),
				TotalWeight: pkg.TotalWeight,
				ItemCount:   pkg.TotalItemCount,
				Price:       pkg.Quote.Price,
				IsFree:      pkg.Quote.IsFree,
				Oversized:   pkg.Oversized,
			})
		}
	}
	bundle.Label = strings.Join(labels, " + ")
	bundle.Carrier = strings.Join(carriers, " + ")

	covered := combo.ProductZones()
	for _, productID := range cartOrder {
		if _, ok := covered[productID]; ok {
			bundle.CoveredProductIDs = append(bundle.CoveredProductIDs, productID)
		}
	}
	return bundle
}

func assignmentLabel(assignment ZoneAssignment) string {
	label := strings.TrimSpace(assignment.Quote.Option.Label)
	zone := strings.TrimSpace(assignment.ZoneName)
	switch {
	case zone == "" || strings.EqualFold(zone, label):
		return label
	case label == "":
		return zone
	default:
		return zone + " (" + label + ")"
	}
}
