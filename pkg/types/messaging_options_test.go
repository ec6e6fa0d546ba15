package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMessagingOptionsScanAcceptsNumericAndStringPrices(t *testing.T) {
	var options MessagingOptions
	raw := `[{"name":"estafeta","label":"Estafeta","base_price":150,"per_kg_extra_price":"12.50","max_weight_per_package":20,"max_delivery_days":5}]`
	if err := options.Scan([]byte(raw)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(options) != 1 {
		t.Fatalf("expected one option got %d", len(options))
	}
	if !options[0].BasePrice.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected base price %s", options[0].BasePrice)
	}
	if !options[0].PerKgExtraPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected per kg price %s", options[0].PerKgExtraPrice)
	}
}

func TestMessagingOptionsNilValue(t *testing.T) {
	var options MessagingOptions
	value, err := options.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if string(value.([]byte)) != "[]" {
		t.Fatalf("expected empty array got %s", value)
	}
	if err := options.Scan(nil); err != nil || options != nil {
		t.Fatalf("expected nil options after scanning NULL")
	}
}

func TestShippingLineScanRejectsUnknownType(t *testing.T) {
	var line ShippingLine
	if err := line.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if err := line.Scan(`{"code":"b1","title":"Estafeta","price_cents":15000}`); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if line.PriceCents != 15000 || line.Code != "b1" {
		t.Fatalf("unexpected line %+v", line)
	}
}
