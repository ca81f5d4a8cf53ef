package domain

import (
	"time"

	"orderdesk/backend/internal/valuation"
)

// Order is the persisted order record as the storefront wrote it. Item level
// discounts are kept as the legacy flag bag on each OrderItem.
type Order struct {
	ID                           string            `json:"id"`
	StoreID                      string            `json:"store_id"`
	OrderNumber                  string            `json:"order_number"`
	CustomerName                 string            `json:"customer_name"`
	Status                       string            `json:"status"`
	Currency                     string            `json:"currency"`
	ShippingMethod               string            `json:"shipping_method"`
	ShippingMethodCents          int64             `json:"shipping_method_cents"`
	PreferredShippingCents       *int64            `json:"preferred_shipping_cents,omitempty"`
	FreeShippingApplied          bool              `json:"free_shipping_applied"`
	TaxCents                     int64             `json:"tax_cents"`
	CouponCode                   string            `json:"coupon_code,omitempty"`
	DiscountTotalCents           int64             `json:"discount_total_cents"`
	PointsDiscountCents          int64             `json:"points_discount_cents"`
	MembershipPromoDiscountCents int64             `json:"membership_promo_discount_cents"`
	TierDiscountCents            int64             `json:"tier_discount_cents"`
	CreatedAt                    time.Time         `json:"created_at"`
	Items                        []OrderItem       `json:"items"`
	Adjustments                  []OrderAdjustment `json:"adjustments,omitempty"`
}

type OrderItem struct {
	ID                              string `json:"id"`
	SKU                             string `json:"sku"`
	Name                            string `json:"name"`
	UnitPriceCents                  int64  `json:"unit_price_cents"`
	Qty                             int    `json:"qty"`
	OriginalUnitPriceCents          *int64 `json:"original_unit_price_cents,omitempty"`
	IsBundlePromoItem               bool   `json:"is_bundle_promo_item"`
	BundlePromoDiscountPerUnitCents int64  `json:"bundle_promo_discount_per_unit_cents"`
	IsGlobalVariantDiscount         bool   `json:"is_global_variant_discount"`
	VariantDiscountPerUnitCents     int64  `json:"variant_discount_per_unit_cents"`
	IsBulkTierPrice                 bool   `json:"is_bulk_tier_price"`
	FullReturnRefundTotalCents      *int64 `json:"full_return_refund_total_cents,omitempty"`
	PerUnitRefundCents              *int64 `json:"per_unit_refund_cents,omitempty"`
}

type OrderAdjustment struct {
	ID          string `json:"id"`
	LineItemID  string `json:"line_item_id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
}

type OrderSummary struct {
	ID           string    `json:"id"`
	OrderNumber  string    `json:"order_number"`
	CustomerName string    `json:"customer_name"`
	Status       string    `json:"status"`
	Currency     string    `json:"currency"`
	ItemCount    int       `json:"item_count"`
	TotalCents   int64     `json:"total_cents"`
	TotalLabel   string    `json:"total_label"`
	CreatedAt    time.Time `json:"created_at"`
}

type OrderListResponse struct {
	Orders []OrderSummary `json:"orders"`
}

type OrderValuationResponse struct {
	Order     Order                      `json:"order"`
	Valuation valuation.OrderValuation   `json:"valuation"`
	Display   valuation.BreakdownDisplay `json:"display"`
}

type ReturnLineRequest struct {
	LineItemID string `json:"line_item_id"`
	Qty        int    `json:"qty"`
}

type ReturnQuoteRequest struct {
	Items               []ReturnLineRequest `json:"items"`
	ShippingRefundCents int64               `json:"shipping_refund_cents"`
}

type RefundDisplay struct {
	ItemsTotal     string `json:"items_total"`
	ShippingRefund string `json:"shipping_refund"`
	Total          string `json:"total"`
	TotalLabel     string `json:"total_label"`
}

type ReturnQuoteResponse struct {
	OrderID string                    `json:"order_id"`
	Refund  valuation.RefundBreakdown `json:"refund"`
	Display RefundDisplay             `json:"display"`
}

type ReturnCreateRequest struct {
	IdempotencyKey      string              `json:"idempotency_key"`
	Reason              string              `json:"reason"`
	ManagerPIN          string              `json:"manager_pin"`
	Items               []ReturnLineRequest `json:"items"`
	ShippingRefundCents int64               `json:"shipping_refund_cents"`
}

// ReturnRecord is a created return with the refund amounts that were issued.
// Those amounts are read back as stored and never recomputed.
type ReturnRecord struct {
	ID                  string             `json:"id"`
	StoreID             string             `json:"store_id"`
	OrderID             string             `json:"order_id"`
	IdempotencyKey      string             `json:"idempotency_key,omitempty"`
	Reason              string             `json:"reason"`
	RefundAmountCents   int64              `json:"refund_amount_cents"`
	ShippingRefundCents int64              `json:"shipping_refund_cents"`
	TotalRefundCents    int64              `json:"total_refund_cents"`
	ProcessedBy         string             `json:"processed_by"`
	CreatedAt           time.Time          `json:"created_at"`
	Items               []ReturnRecordItem `json:"items"`
}

type ReturnRecordItem struct {
	LineItemID      string `json:"line_item_id"`
	Qty             int    `json:"qty"`
	UnitRefundCents int64  `json:"unit_refund_cents"`
	AmountCents     int64  `json:"amount_cents"`
	FullReturn      bool   `json:"full_return"`
}

type ReturnResponse struct {
	Return    ReturnRecord  `json:"return"`
	Display   RefundDisplay `json:"display"`
	Duplicate bool          `json:"duplicate"`
}

type ReturnListResponse struct {
	Returns []ReturnRecord `json:"returns"`
}

type ReceiptResponse struct {
	OrderID      string `json:"order_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)
