package pricing

import (
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptr(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func TestMinIncrement(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		expected string
	}{
		{"zero", "0", "5"},
		{"top of first band", "499.99", "5"},
		{"500 boundary", "500", "10"},
		{"999", "999", "10"},
		{"1000 boundary", "1000", "25"},
		{"4999", "4999", "25"},
		{"5000 boundary", "5000", "50"},
		{"10000 boundary", "10000", "100"},
		{"50000 boundary", "50000", "250"},
		{"99999", "99999", "250"},
		{"100000 boundary", "100000", "500"},
		{"500000 boundary", "500000", "10000"},
		{"very large", "90000000", "10000"},
		{"negative falls into lowest band", "-10", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinIncrement(d(tt.price))
			check.True(t, got.Equal(d(tt.expected)))
		})
	}
}

func TestMinimumNextBid(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		override *decimal.Decimal
		expected string
	}{
		{"table increment", "1000", nil, "1025"},
		{"override used", "1000", ptr("200"), "1200"},
		{"zero override ignored", "1000", ptr("0"), "1025"},
		{"negative override ignored", "1000", ptr("-5"), "1025"},
		{"fractional price", "10.50", nil, "15.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinimumNextBid(d(tt.price), tt.override)
			check.True(t, got.Equal(d(tt.expected)))
		})
	}
}

func TestMinimumNextBidStrictlyIncreasing(t *testing.T) {
	prices := []string{"0", "0.01", "1", "499", "500", "999.99", "1000", "4999.5",
		"5000", "9999", "10000", "49999", "50000", "100000", "499999", "500000", "1e9"}
	for _, p := range prices {
		price := d(p)
		check.True(t, MinimumNextBid(price, nil).GreaterThan(price))
		check.True(t, MinimumNextBid(price, ptr("0")).GreaterThan(price))
	}
}
