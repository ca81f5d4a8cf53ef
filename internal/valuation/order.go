package valuation

// ComputeOrderValuation derives the canonical breakdown of an order. The steps
// run in a fixed order and only the final total is clamped at zero.
func ComputeOrderValuation(o Order) OrderValuation {
	var v OrderValuation

	for _, item := range o.Items {
		qty := int64(item.Quantity)
		original := OriginalUnitPrice(item)
		v.OriginalSubtotal += original * qty

		for _, d := range item.Discounts {
			switch d := d.(type) {
			case BundlePromo:
				v.BundlePromoDiscount += d.PerUnit * qty
			case GlobalVariantMarkdown:
				v.VariantDiscount += d.PerUnit * qty
			case BulkTierPrice:
				v.BulkDiscount += (original - item.UnitPrice) * qty
			case NoDiscount:
			}
		}
	}

	v.SubtotalAfterItemDiscounts = v.OriginalSubtotal - v.BundlePromoDiscount - v.VariantDiscount - v.BulkDiscount

	v.CouponDiscount = CouponDiscount(o, v.BundlePromoDiscount)
	v.PointsDiscount = o.PointsDiscount
	v.MembershipPromoDiscount = o.MembershipPromoDiscount
	v.TierDiscount = o.TierDiscount
	v.EffectiveShipping = EffectiveShipping(o.Shipping)
	v.Tax = o.Tax

	total := v.SubtotalAfterItemDiscounts -
		v.CouponDiscount -
		v.PointsDiscount -
		v.MembershipPromoDiscount -
		v.TierDiscount +
		v.EffectiveShipping +
		v.Tax
	if total < 0 {
		total = 0
	}
	v.Total = total

	return v
}
