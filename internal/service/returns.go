package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"orderdesk/backend/internal/cache"
	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/valuation"
	"orderdesk/backend/internal/xid"
)

// QuoteReturn previews the refund for a prospective return. Nothing is stored.
func (s *Service) QuoteReturn(ctx context.Context, orderID string, req domain.ReturnQuoteRequest) (domain.ReturnQuoteResponse, error) {
	order, breakdown, err := s.computeRefund(ctx, orderID, req.Items, req.ShippingRefundCents)
	if err != nil {
		return domain.ReturnQuoteResponse{}, err
	}

	return domain.ReturnQuoteResponse{
		OrderID: order.ID,
		Refund:  breakdown,
		Display: refundDisplay(breakdown.ItemsTotal, breakdown.ShippingRefund, breakdown.Total, s.orderCurrency(*order)),
	}, nil
}

// CreateReturn recomputes the refund server side and stores the issued
// amounts. Replaying an idempotency key returns the stored return unchanged.
func (s *Service) CreateReturn(ctx context.Context, orderID string, req domain.ReturnCreateRequest) (domain.ReturnResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleOperator) {
		return domain.ReturnResponse{}, fmt.Errorf("%w: operator or admin role required", ErrForbidden)
	}

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return domain.ReturnResponse{}, fmt.Errorf("%w: idempotency_key is required", store.ErrInvalidRequest)
	}
	orderID = strings.TrimSpace(orderID)

	if existing, err := s.findReturnByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return s.replayReturn(ctx, existing, orderID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.ReturnResponse{}, err
	}

	order, breakdown, err := s.computeRefund(ctx, orderID, req.Items, req.ShippingRefundCents)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	record := domain.ReturnRecord{
		ID:                  xid.New("ret"),
		StoreID:             defaultString(order.StoreID, s.defaultStoreID),
		OrderID:             order.ID,
		IdempotencyKey:      req.IdempotencyKey,
		Reason:              strings.TrimSpace(req.Reason),
		RefundAmountCents:   breakdown.ItemsTotal,
		ShippingRefundCents: breakdown.ShippingRefund,
		TotalRefundCents:    breakdown.Total,
		ProcessedBy:         actor.Username,
		Items:               make([]domain.ReturnRecordItem, 0, len(breakdown.Items)),
	}
	for _, item := range breakdown.Items {
		record.Items = append(record.Items, domain.ReturnRecordItem{
			LineItemID:      item.LineItemID,
			Qty:             item.Quantity,
			UnitRefundCents: item.UnitRefund,
			AmountCents:     item.Amount,
			FullReturn:      item.FullReturn,
		})
	}

	created, err := s.repo.CreateReturn(ctx, record)
	if errors.Is(err, store.ErrDuplicate) {
		// Another request with the same key won the race.
		existing, findErr := s.repo.FindReturnByIdempotency(ctx, req.IdempotencyKey)
		if findErr != nil {
			return domain.ReturnResponse{}, findErr
		}
		return s.replayReturn(ctx, existing, orderID)
	}
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	if err := s.idempotency.Set(ctx, req.IdempotencyKey, &cache.IdempotencyEntry{ReturnID: created.ID, OrderID: created.OrderID}, s.idempotencyTTL); err != nil {
		s.logger.Warn("idempotency cache write failed", zap.String("return_id", created.ID), zap.Error(err))
	}
	s.logAudit(ctx, created.StoreID, "return_create", "return", created.ID, fmt.Sprintf("order=%s,items=%d,refund=%d,shipping=%d",
		created.OrderID, len(created.Items), created.RefundAmountCents, created.ShippingRefundCents))
	s.logger.Info("return created",
		zap.String("return_id", created.ID),
		zap.String("order_id", created.OrderID),
		zap.Int64("total_refund_cents", created.TotalRefundCents))

	return s.toReturnResponse(*created, s.orderCurrency(*order), false), nil
}

// GetReturn reads a return exactly as stored; the refund is not recomputed.
func (s *Service) GetReturn(ctx context.Context, returnID string) (domain.ReturnResponse, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return domain.ReturnResponse{}, store.ErrInvalidRequest
	}
	record, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	return s.toReturnResponse(*record, s.currencyForOrder(ctx, record.OrderID), false), nil
}

func (s *Service) ListOrderReturns(ctx context.Context, orderID string) (domain.ReturnListResponse, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return domain.ReturnListResponse{}, err
	}
	records, err := s.repo.ListReturnsByOrder(ctx, order.ID)
	if err != nil {
		return domain.ReturnListResponse{}, err
	}
	return domain.ReturnListResponse{Returns: records}, nil
}

// computeRefund loads the order and its return history and runs the refund
// apportioner. The shipping refund may not exceed the shipping still
// refundable on the order.
func (s *Service) computeRefund(ctx context.Context, orderID string, lines []domain.ReturnLineRequest, shippingRefund int64) (*domain.Order, valuation.RefundBreakdown, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, valuation.RefundBreakdown{}, err
	}
	returned, err := s.repo.GetReturnedQtyByOrder(ctx, order.ID)
	if err != nil {
		return nil, valuation.RefundBreakdown{}, err
	}

	valued := toValuationOrder(*order)
	if shippingRefund > 0 {
		refunded, err := s.repo.GetShippingRefundedByOrder(ctx, order.ID)
		if err != nil {
			return nil, valuation.RefundBreakdown{}, err
		}
		charged := valuation.EffectiveShipping(valued.Shipping)
		if shippingRefund > charged-refunded {
			return nil, valuation.RefundBreakdown{}, fmt.Errorf("%w: shipping refund %d exceeds refundable shipping %d",
				store.ErrInvalidRequest, shippingRefund, max(charged-refunded, 0))
		}
	}

	breakdown, err := valuation.ComputeReturnRefund(
		valuation.ReturnRequest{Lines: toReturnLines(*order, lines), ShippingRefund: shippingRefund},
		valuation.OrderContext{Items: valued.Items, ReturnedQuantity: returned},
	)
	if err != nil {
		return nil, valuation.RefundBreakdown{}, err
	}
	return order, breakdown, nil
}

// toReturnLines attaches the order's own precision amounts to each requested
// line so the apportioner can prefer them over derived prices.
func toReturnLines(order domain.Order, lines []domain.ReturnLineRequest) []valuation.ReturnLine {
	itemsByID := make(map[string]domain.OrderItem, len(order.Items))
	for _, item := range order.Items {
		itemsByID[item.ID] = item
	}

	result := make([]valuation.ReturnLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.LineItemID)
		returnLine := valuation.ReturnLine{LineItemID: id, Quantity: line.Qty}
		if item, ok := itemsByID[id]; ok {
			returnLine.FullReturnRefundTotal = item.FullReturnRefundTotalCents
			returnLine.PerUnitRefund = item.PerUnitRefundCents
		}
		result = append(result, returnLine)
	}
	return result
}

func (s *Service) findReturnByIdempotency(ctx context.Context, key string) (*domain.ReturnRecord, error) {
	entry, ok, err := s.idempotency.Get(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency cache read failed", zap.Error(err))
	}
	if ok && entry != nil {
		record, err := s.repo.GetReturn(ctx, entry.ReturnID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.FindReturnByIdempotency(ctx, key)
}

func (s *Service) replayReturn(ctx context.Context, existing *domain.ReturnRecord, orderID string) (domain.ReturnResponse, error) {
	if existing.OrderID != orderID {
		return domain.ReturnResponse{}, fmt.Errorf("%w: idempotency key already used for another order", store.ErrInvalidRequest)
	}
	return s.toReturnResponse(*existing, s.currencyForOrder(ctx, existing.OrderID), true), nil
}

func (s *Service) currencyForOrder(ctx context.Context, orderID string) string {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return s.currency
	}
	return s.orderCurrency(*order)
}

func (s *Service) toReturnResponse(record domain.ReturnRecord, currency string, duplicate bool) domain.ReturnResponse {
	return domain.ReturnResponse{
		Return:    record,
		Display:   refundDisplay(record.RefundAmountCents, record.ShippingRefundCents, record.TotalRefundCents, currency),
		Duplicate: duplicate,
	}
}

func refundDisplay(items int64, shipping int64, total int64, currency string) domain.RefundDisplay {
	return domain.RefundDisplay{
		ItemsTotal:     valuation.DecimalString(items),
		ShippingRefund: valuation.DecimalString(shipping),
		Total:          valuation.DecimalString(total),
		TotalLabel:     valuation.FormatCurrency(total, currency),
	}
}
