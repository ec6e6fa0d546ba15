package shipping

import "strings"

// ZoneMapping is the per-product zone compatibility computed by MapProductsToZones.
type ZoneMapping struct {
	// Compatible maps product id to compatible zone ids, in zone input order.
	Compatible map[string][]string
	// Unmapped lists products with no compatible zone, in cart order.
	Unmapped []string
}

// ZonesFor returns the compatible zone ids for productID.
func (m ZoneMapping) ZonesFor(productID string) []string {
	return m.Compatible[productID]
}

// MapProductsToZones computes, for every product, which zones can ship it. A zone is
// compatible when its id equals one of the product's rule ids or when it groups that id.
func MapProductsToZones(items []CartItem, zones []Rule) ZoneMapping {
	mapping := ZoneMapping{Compatible: make(map[string][]string, len(items))}
	for _, item := range items {
		if _, seen := mapping.Compatible[item.ProductID]; seen {
			continue
		}
		ruleIDs := NormalizeRuleIDs(item.RuleIDs)
		compatible := []string{}
		added := map[string]struct{}{}
		for _, zone := range zones {
			if _, dup := added[zone.ID]; dup {
				continue
			}
			for _, ruleID := range ruleIDs {
				if zone.Serves(ruleID) {
					compatible = append(compatible, zone.ID)
					added[zone.ID] = struct{}{}
					break
				}
			}
		}
		mapping.Compatible[item.ProductID] = compatible
		if len(compatible) == 0 {
			mapping.Unmapped = append(mapping.Unmapped, item.ProductID)
		}
	}
	return mapping
}

// NormalizeRuleIDs trims, drops empties and de-duplicates rule ids keeping order.
func NormalizeRuleIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
