package valuation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// DecimalString renders minor units as major units with exactly two decimals.
func DecimalString(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FormatCurrency renders minor units as a grouped currency label such as
// "$2,570.00". The symbol comes from the CLDR data in x/text; codes without
// a symbol, and codes that are not ISO 4217, are followed by a space.
func FormatCurrency(cents int64, code string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, currencySymbol(code), amountPrinter.Sprintf("%d", cents/100), cents%100)
}

func currencySymbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " "
	}
	symbol := amountPrinter.Sprint(currency.Symbol(unit.Amount(nil)))
	if symbol == "" || symbol == unit.String() {
		return unit.String() + " "
	}
	return symbol
}

// BreakdownDisplay is an OrderValuation formatted for presentation.
type BreakdownDisplay struct {
	Currency                   string `json:"currency"`
	OriginalSubtotal           string `json:"original_subtotal"`
	BundlePromoDiscount        string `json:"bundle_promo_discount"`
	VariantDiscount            string `json:"variant_discount"`
	BulkDiscount               string `json:"bulk_discount"`
	SubtotalAfterItemDiscounts string `json:"subtotal_after_item_discounts"`
	CouponDiscount             string `json:"coupon_discount"`
	PointsDiscount             string `json:"points_discount"`
	MembershipPromoDiscount    string `json:"membership_promo_discount"`
	TierDiscount               string `json:"tier_discount"`
	Shipping                   string `json:"shipping"`
	Tax                        string `json:"tax"`
	Total                      string `json:"total"`
	TotalLabel                 string `json:"total_label"`
}

func NewBreakdownDisplay(v OrderValuation, currencyCode string) BreakdownDisplay {
	return BreakdownDisplay{
		Currency:                   strings.ToUpper(strings.TrimSpace(currencyCode)),
		OriginalSubtotal:           DecimalString(v.OriginalSubtotal),
		BundlePromoDiscount:        DecimalString(v.BundlePromoDiscount),
		VariantDiscount:            DecimalString(v.VariantDiscount),
		BulkDiscount:               DecimalString(v.BulkDiscount),
		SubtotalAfterItemDiscounts: DecimalString(v.SubtotalAfterItemDiscounts),
		CouponDiscount:             DecimalString(v.CouponDiscount),
		PointsDiscount:             DecimalString(v.PointsDiscount),
		MembershipPromoDiscount:    DecimalString(v.MembershipPromoDiscount),
		TierDiscount:               DecimalString(v.TierDiscount),
		Shipping:                   DecimalString(v.EffectiveShipping),
		Tax:                        DecimalString(v.Tax),
		Total:                      DecimalString(v.Total),
		TotalLabel:                 FormatCurrency(v.Total, currencyCode),
	}
}
