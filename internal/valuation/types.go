// Package valuation reconstructs what a customer actually paid for an order
// and how much of it is refundable when some of its lines come back.
//
// Every function in this package is pure: inputs are read-only snapshots,
// nothing is cached, and all amounts are int64 minor currency units.
package valuation

// Discount is one item-level discount recorded on a line. The set of variants
// is closed: NoDiscount, BundlePromo, GlobalVariantMarkdown and BulkTierPrice.
type Discount interface {
	isDiscount()
}

// NoDiscount marks a line explicitly recorded without item-level discounts.
type NoDiscount struct{}

// BundlePromo is a per-unit discount on an add-on bought with a trigger item.
// The stored unit price does not include it.
type BundlePromo struct {
	PerUnit int64
}

// GlobalVariantMarkdown is a storewide markdown on a variant. The stored unit
// price is already net of it.
type GlobalVariantMarkdown struct {
	PerUnit int64
}

// BulkTierPrice flags a unit price that already reflects a quantity tier.
// The discount is the gap between the original and the stored unit price.
type BulkTierPrice struct{}

func (NoDiscount) isDiscount()            {}
func (BundlePromo) isDiscount()           {}
func (GlobalVariantMarkdown) isDiscount() {}
func (BulkTierPrice) isDiscount()         {}

type LineItem struct {
	ID        string
	UnitPrice int64
	Quantity  int
	// OriginalUnitPrice is the explicit pre-discount price, when recorded.
	OriginalUnitPrice *int64
	// Discounts may hold several variants on legacy rows; all of them count.
	Discounts []Discount
}

type Shipping struct {
	MethodAmount        int64
	Preferred           *int64
	FreeShippingApplied bool
}

type AdjustmentKind string

const (
	AdjustmentCoupon      AdjustmentKind = "coupon"
	AdjustmentBundlePromo AdjustmentKind = "bundle_promo"
	AdjustmentPoints      AdjustmentKind = "points"
	AdjustmentOther       AdjustmentKind = "other"
)

// Adjustment is an entry of the item-level discount ledger.
type Adjustment struct {
	LineItemID string
	Kind       AdjustmentKind
	Amount     int64
}

type Order struct {
	Items    []LineItem
	Shipping Shipping
	Tax      int64

	CouponCode string
	// RawDiscountTotal is the upstream ledger total. It may already include
	// the bundle-promo and points discounts.
	RawDiscountTotal int64

	PointsDiscount          int64
	MembershipPromoDiscount int64
	TierDiscount            int64

	Adjustments []Adjustment
}

type OrderValuation struct {
	OriginalSubtotal           int64 `json:"original_subtotal_cents"`
	BundlePromoDiscount        int64 `json:"bundle_promo_discount_cents"`
	VariantDiscount            int64 `json:"variant_discount_cents"`
	BulkDiscount               int64 `json:"bulk_discount_cents"`
	SubtotalAfterItemDiscounts int64 `json:"subtotal_after_item_discounts_cents"`
	CouponDiscount             int64 `json:"coupon_discount_cents"`
	PointsDiscount             int64 `json:"points_discount_cents"`
	MembershipPromoDiscount    int64 `json:"membership_promo_discount_cents"`
	TierDiscount               int64 `json:"tier_discount_cents"`
	EffectiveShipping          int64 `json:"effective_shipping_cents"`
	Tax                        int64 `json:"tax_cents"`
	Total                      int64 `json:"total_cents"`
}

// ItemDiscountTotal sums the bundle-promo, markdown and bulk-tier discounts.
func (v OrderValuation) ItemDiscountTotal() int64 {
	return v.BundlePromoDiscount + v.VariantDiscount + v.BulkDiscount
}

// OrderDiscountTotal sums the order-level discounts.
func (v OrderValuation) OrderDiscountTotal() int64 {
	return v.CouponDiscount + v.PointsDiscount + v.MembershipPromoDiscount + v.TierDiscount
}

// ReturnLine asks for Quantity units of one order line back. The optional
// amounts come from the order's own valuation and take precedence over the
// derived per-unit price.
type ReturnLine struct {
	LineItemID            string
	Quantity              int
	FullReturnRefundTotal *int64
	PerUnitRefund         *int64
}

type ReturnRequest struct {
	Lines []ReturnLine
	// ShippingRefund is decided by the caller's shipping refund policy.
	ShippingRefund int64
}

// OrderContext gives the apportioner read access to the owning order.
type OrderContext struct {
	Items []LineItem
	// ReturnedQuantity holds units already returned, keyed by line item ID.
	ReturnedQuantity map[string]int
}

type ItemRefund struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
	UnitRefund int64  `json:"unit_refund_cents"`
	Amount     int64  `json:"amount_cents"`
	FullReturn bool   `json:"full_return"`
}

type RefundBreakdown struct {
	Items          []ItemRefund `json:"items"`
	ItemsTotal     int64        `json:"items_total_cents"`
	ShippingRefund int64        `json:"shipping_refund_cents"`
	Total          int64        `json:"total_cents"`
}
