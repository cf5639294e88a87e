package pricing

import (
	"strings"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultCategory is the fallback key of a FeeSchedule.
const DefaultCategory = "default"

var hundred = decimal.NewFromInt(100)

// FeeRate is a percentage of the sale price capped at a fixed amount.
type FeeRate struct {
	Percent decimal.Decimal
	Cap     decimal.Decimal
}

// Apply returns min(price * Percent / 100, Cap) rounded to a whole unit.
// A zero or negative cap disables the cap.
func (r FeeRate) Apply(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !r.Percent.IsPositive() {
		return decimal.Zero
	}
	fee := price.Mul(r.Percent).Div(hundred).Round(0)
	if r.Cap.IsPositive() && fee.GreaterThan(r.Cap) {
		return r.Cap
	}
	return fee
}

// CategoryFees holds the seller and buyer rates of one category.
type CategoryFees struct {
	Seller FeeRate
	Buyer  FeeRate
}

// FeeSchedule maps normalized category keys to their rates. The
// DefaultCategory entry is used for unknown categories.
type FeeSchedule map[string]CategoryFees

func rate(percent string, limit int64) FeeRate {
	return FeeRate{Percent: decimal.RequireFromString(percent), Cap: decimal.NewFromInt(limit)}
}

// DefaultFeeSchedule returns the built-in category table.
func DefaultFeeSchedule() FeeSchedule {
	vehicles := CategoryFees{Seller: rate("2", 50_000), Buyer: rate("1", 30_000)}
	precious := CategoryFees{Seller: rate("3", 30_000), Buyer: rate("1.5", 15_000)}
	art := CategoryFees{Seller: rate("5", 50_000), Buyer: rate("3", 30_000)}
	regulated := CategoryFees{Seller: rate("4", 20_000), Buyer: rate("2", 10_000)}

	return FeeSchedule{
		"vehicles":        vehicles,
		"vehicle":         vehicles,
		"real_estate":     vehicles,
		"precious_metals": precious,
		"jewelry":         precious,
		"watches":         precious,
		"art":             art,
		"antiques":        art,
		"regulated":       regulated,
		"custom_goods":    regulated,
		DefaultCategory:   {Seller: rate("5", 10_000), Buyer: rate("2", 5_000)},
	}
}

// NormalizeCategory lower-cases the category and folds spaces and dashes to
// underscores so "Real-Estate" and "REAL_ESTATE" share a key.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	c = strings.NewReplacer("-", "_", " ", "_").Replace(c)
	return c
}

// Lookup returns the rates for category, falling back to DefaultCategory.
func (s FeeSchedule) Lookup(category string) CategoryFees {
	if fees, ok := s[NormalizeCategory(category)]; ok {
		return fees
	}
	return s[DefaultCategory]
}

// Compute returns the seller and buyer commission for a sale.
func (s FeeSchedule) Compute(category string, finalPrice decimal.Decimal) domain.FeeBreakdown {
	fees := s.Lookup(category)
	sellerFee := fees.Seller.Apply(finalPrice)
	buyerFee := fees.Buyer.Apply(finalPrice)

	return domain.FeeBreakdown{
		Category:        NormalizeCategory(category),
		FinalPrice:      finalPrice,
		SellerFeeRate:   fees.Seller.Percent,
		SellerFeeAmount: sellerFee,
		BuyerFeeRate:    fees.Buyer.Percent,
		BuyerFeeAmount:  buyerFee,
		SellerPayout:    finalPrice.Sub(sellerFee),
		BuyerTotal:      finalPrice.Add(buyerFee),
	}
}
