package valuation

// OriginalUnitPrice resolves a line's pre-discount unit price: the explicit
// original when recorded, else the stored price plus the variant markdown
// (legacy rows written before originals were stored), else the stored price.
func OriginalUnitPrice(item LineItem) int64 {
	if item.OriginalUnitPrice != nil {
		return *item.OriginalUnitPrice
	}
	if markdown, ok := variantMarkdown(item); ok {
		return item.UnitPrice + markdown
	}
	return item.UnitPrice
}

// EffectiveUnitPrice is what the customer paid per unit of a line. Bundle
// promos are subtracted from the stored price; markdown and bulk-tier prices
// are already net. The result never goes below zero.
func EffectiveUnitPrice(item LineItem) int64 {
	price := item.UnitPrice
	for _, d := range item.Discounts {
		switch d := d.(type) {
		case BundlePromo:
			price -= d.PerUnit
		case GlobalVariantMarkdown, BulkTierPrice, NoDiscount:
		}
	}
	if price < 0 {
		return 0
	}
	return price
}

// EffectiveShipping is the shipping actually charged. The free-shipping
// waiver wins over everything, then the preferred quote, then the nominal
// method amount.
func EffectiveShipping(s Shipping) int64 {
	if s.FreeShippingApplied {
		return 0
	}
	if s.Preferred != nil {
		return *s.Preferred
	}
	return s.MethodAmount
}

// CouponDiscount resolves the coupon share of an order's discounts. Coupon
// entries in the adjustment ledger are summed when present. Otherwise the
// bundle-promo and points discounts already folded into the raw ledger total
// are taken out of it so they are not counted twice.
func CouponDiscount(o Order, bundlePromoDiscount int64) int64 {
	if o.CouponCode == "" {
		return 0
	}
	if sum, ok := couponAdjustments(o.Adjustments); ok {
		return sum
	}
	// NOTE: which discounts RawDiscountTotal folds in is not verified
	// upstream; membership and tier discounts are left alone.
	remainder := o.RawDiscountTotal - bundlePromoDiscount - o.PointsDiscount
	if remainder < 0 {
		return 0
	}
	return remainder
}

func couponAdjustments(adjustments []Adjustment) (int64, bool) {
	var sum int64
	found := false
	for _, adj := range adjustments {
		if adj.Kind != AdjustmentCoupon {
			continue
		}
		sum += adj.Amount
		found = true
	}
	return sum, found
}

func variantMarkdown(item LineItem) (int64, bool) {
	var total int64
	found := false
	for _, d := range item.Discounts {
		if m, ok := d.(GlobalVariantMarkdown); ok {
			total += m.PerUnit
			found = true
		}
	}
	return total, found
}
