package shipping

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const statePrefix = "estado_"

// stateAbbreviations maps accent-folded, lowercase Mexican state names to their standard
// abbreviation.
var stateAbbreviations = map[string]string{
	"aguascalientes":                  "AGS",
	"baja california":                 "BC",
	"baja california sur":             "BCS",
	"campeche":                        "CAMP",
	"chiapas":                         "CHIS",
	"chihuahua":                       "CHIH",
	"ciudad de mexico":                "CDMX",
	"distrito federal":                "CDMX",
	"coahuila":                        "COAH",
	"coahuila de zaragoza":            "COAH",
	"colima":                          "COL",
	"durango":                         "DGO",
	"guanajuato":                      "GTO",
	"guerrero":                        "GRO",
	"hidalgo":                         "HGO",
	"jalisco":                         "JAL",
	"estado de mexico":                "MEX",
	"mexico":                          "MEX",
	"michoacan":                       "MICH",
	"michoacan de ocampo":             "MICH",
	"morelos":                         "MOR",
	"nayarit":                         "NAY",
	"nuevo leon":                      "NL",
	"oaxaca":                          "OAX",
	"puebla":                          "PUE",
	"queretaro":                       "QRO",
	"queretaro de arteaga":            "QRO",
	"quintana roo":                    "QROO",
	"san luis potosi":                 "SLP",
	"sinaloa":                         "SIN",
	"sonora":                          "SON",
	"tabasco":                         "TAB",
	"tamaulipas":                      "TAMPS",
	"tlaxcala":                        "TLAX",
	"veracruz":                        "VER",
	"veracruz de ignacio de la llave": "VER",
	"yucatan":                         "YUC",
	"zacatecas":                       "ZAC",
}

// NormalizeState returns the standard abbreviation for a state name or abbreviation.
// Unknown values are returned accent-folded and upper-cased so they still compare
// case-insensitively.
func NormalizeState(state string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(foldAccents(state))), " ")
	if folded == "" {
		return ""
	}
	if abbr, ok := stateAbbreviations[folded]; ok {
		return abbr
	}
	return strings.ToUpper(folded)
}

func foldAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// IsRuleValidForAddress decides whether rule covers addr. A rule without any coverage
// data covers nothing.
func IsRuleValidForAddress(rule Rule, addr Address) bool {
	if rule.National() {
		return true
	}

	postal := strings.TrimSpace(addr.PostalCode)
	state := NormalizeState(addr.State)

	for _, raw := range rule.PostalCodes {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(entry), statePrefix) {
			if state != "" && NormalizeState(entry[len(statePrefix):]) == state {
				return true
			}
			continue
		}
		if postal == "" {
			continue
		}
		if entry == postal {
			return true
		}
		if postalInRange(entry, postal) {
			return true
		}
	}

	if state == "" {
		return false
	}
	for _, raw := range rule.StatePrefixes {
		entry := strings.TrimSpace(raw)
		if strings.HasPrefix(strings.ToLower(entry), statePrefix) {
			entry = entry[len(statePrefix):]
		}
		if entry != "" && NormalizeState(entry) == state {
			return true
		}
	}
	return false
}

func postalInRange(entry, postal string) bool {
	start, end, ok := strings.Cut(entry, "-")
	if !ok {
		return false
	}
	low, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil {
		return false
	}
	high, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil {
		return false
	}
	code, err := strconv.Atoi(postal)
	if err != nil {
		return false
	}
	return code >= low && code <= high
}
