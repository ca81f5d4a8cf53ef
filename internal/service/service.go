package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"orderdesk/backend/internal/cache"
	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/logging"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/valuation"
	"orderdesk/backend/internal/xid"
)

// ErrForbidden reports an actor whose role may not perform the operation.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID string
	// Currency labels amounts on orders that carry no currency of their own.
	Currency       string
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

type Service struct {
	repo           store.Repository
	idempotency    cache.IdempotencyCache
	idempotencyTTL time.Duration
	logger         *zap.Logger
	defaultStoreID string
	currency       string
}

func New(repo store.Repository, idempotency cache.IdempotencyCache, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if idempotency == nil {
		idempotency = cache.NoopIdempotencyCache{}
	}

	return &Service{
		repo:           repo,
		idempotency:    idempotency,
		idempotencyTTL: opts.IdempotencyTTL,
		logger:         logging.OrNop(opts.Logger).Named("service"),
		defaultStoreID: opts.DefaultStoreID,
		currency:       strings.ToUpper(opts.Currency),
	}
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) (domain.OrderListResponse, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !isKnownOrderStatus(status) {
		return domain.OrderListResponse{}, store.ErrInvalidRequest
	}
	if limit < 1 {
		limit = 50
	}

	orders, err := s.repo.ListOrders(ctx, s.defaultStoreID, status, limit)
	if err != nil {
		return domain.OrderListResponse{}, err
	}

	summaries := make([]domain.OrderSummary, 0, len(orders))
	for _, order := range orders {
		v := valuation.ComputeOrderValuation(toValuationOrder(order))
		itemCount := 0
		for _, item := range order.Items {
			itemCount += item.Qty
		}
		currency := s.orderCurrency(order)
		summaries = append(summaries, domain.OrderSummary{
			ID:           order.ID,
			OrderNumber:  order.OrderNumber,
			CustomerName: order.CustomerName,
			Status:       order.Status,
			Currency:     currency,
			ItemCount:    itemCount,
			TotalCents:   v.Total,
			TotalLabel:   valuation.FormatCurrency(v.Total, currency),
			CreatedAt:    order.CreatedAt,
		})
	}
	return domain.OrderListResponse{Orders: summaries}, nil
}

// GetOrderValuation recomputes the breakdown of a stored order on every call.
func (s *Service) GetOrderValuation(ctx context.Context, orderID string) (domain.OrderValuationResponse, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return domain.OrderValuationResponse{}, err
	}

	v := valuation.ComputeOrderValuation(toValuationOrder(*order))
	return domain.OrderValuationResponse{
		Order:     *order,
		Valuation: v,
		Display:   valuation.NewBreakdownDisplay(v, s.orderCurrency(*order)),
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidRequest
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, store.ErrInvalidRequest
	}
	return s.repo.GetOrder(ctx, orderID)
}

func (s *Service) orderCurrency(order domain.Order) string {
	if code := strings.TrimSpace(order.Currency); code != "" {
		return strings.ToUpper(code)
	}
	return s.currency
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// toValuationOrder is the only place the stored flag bag is read as discount
// variants. Every flag that is set contributes its variant.
func toValuationOrder(order domain.Order) valuation.Order {
	items := make([]valuation.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, toLineItem(item))
	}

	adjustments := make([]valuation.Adjustment, 0, len(order.Adjustments))
	for _, adj := range order.Adjustments {
		adjustments = append(adjustments, valuation.Adjustment{
			LineItemID: adj.LineItemID,
			Kind:       adjustmentKind(adj.Kind),
			Amount:     adj.AmountCents,
		})
	}

	return valuation.Order{
		Items: items,
		Shipping: valuation.Shipping{
			MethodAmount:        order.ShippingMethodCents,
			Preferred:           order.PreferredShippingCents,
			FreeShippingApplied: order.FreeShippingApplied,
		},
		Tax:                     order.TaxCents,
		CouponCode:              strings.TrimSpace(order.CouponCode),
		RawDiscountTotal:        order.DiscountTotalCents,
		PointsDiscount:          order.PointsDiscountCents,
		MembershipPromoDiscount: order.MembershipPromoDiscountCents,
		TierDiscount:            order.TierDiscountCents,
		Adjustments:             adjustments,
	}
}

func toLineItem(item domain.OrderItem) valuation.LineItem {
	discounts := make([]valuation.Discount, 0, 1)
	if item.IsBundlePromoItem {
		discounts = append(discounts, valuation.BundlePromo{PerUnit: item.BundlePromoDiscountPerUnitCents})
	}
	if item.IsGlobalVariantDiscount {
		discounts = append(discounts, valuation.GlobalVariantMarkdown{PerUnit: item.VariantDiscountPerUnitCents})
	}
	if item.IsBulkTierPrice {
		discounts = append(discounts, valuation.BulkTierPrice{})
	}
	if len(discounts) == 0 {
		discounts = append(discounts, valuation.NoDiscount{})
	}

	return valuation.LineItem{
		ID:                item.ID,
		UnitPrice:         item.UnitPriceCents,
		Quantity:          item.Qty,
		OriginalUnitPrice: item.OriginalUnitPriceCents,
		Discounts:         discounts,
	}
}

func adjustmentKind(kind string) valuation.AdjustmentKind {
	switch valuation.AdjustmentKind(strings.ToLower(strings.TrimSpace(kind))) {
	case valuation.AdjustmentCoupon:
		return valuation.AdjustmentCoupon
	case valuation.AdjustmentBundlePromo:
		return valuation.AdjustmentBundlePromo
	case valuation.AdjustmentPoints:
		return valuation.AdjustmentPoints
	default:
		return valuation.AdjustmentOther
	}
}

func isKnownOrderStatus(status string) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	default:
		return false
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
