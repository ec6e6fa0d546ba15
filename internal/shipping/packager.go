package shipping

import "sort"

// Package is one parcel's worth of cart lines under a messaging option's ceilings.
type Package struct {
	Items          []CartItem
	TotalWeight    float64
	TotalItemCount int
	// Oversized marks a single line that alone exceeds the ceilings. It is shipped
	// anyway and surcharged by the price calculator.
	Oversized bool
}

// ProductIDs lists the products packed in p, in packing order.
func (p Package) ProductIDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Pack splits items into packages with a greedy first-fit pass over lines sorted by
// descending unit weight. A non-positive ceiling means unlimited. Lines are never split,
// dropped or duplicated.
func Pack(items []CartItem, maxWeight float64, maxCount int) []Package {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]CartItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UnitWeight > sorted[j].UnitWeight
	})

	var (
		packages []Package
		current  Package
	)
	for _, item := range sorted {
		weight := item.LineWeight()
		if len(current.Items) > 0 && !fits(current, weight, item.Quantity, maxWeight, maxCount) {
			packages = append(packages, current)
			current = Package{}
		}
		current.Items = append(current.Items, item)
		current.TotalWeight += weight
		current.TotalItemCount += item.Quantity
		if overWeight(current.TotalWeight, maxWeight) || overCount(current.TotalItemCount, maxCount) {
			current.Oversized = true
		}
	}
	return append(packages, current)
}

func fits(current Package, weight float64, quantity int, maxWeight float64, maxCount int) bool {
	if current.Oversized {
		return false
	}
	if overWeight(current.TotalWeight+weight, maxWeight) {
		return false
	}
	return !overCount(current.TotalItemCount+quantity, maxCount)
}

func overWeight(weight, maxWeight float64) bool {
	return maxWeight > 0 && weight-maxWeight > weightEpsilon
}

func overCount(count, maxCount int) bool {
	return maxCount > 0 && count > maxCount
}
