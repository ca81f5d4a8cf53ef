package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
)

func TestCreateReturnTracksReturnedQuantity(t *testing.T) {
	databaseURL := os.Getenv("ORDERDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set ORDERDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	orderID := fmt.Sprintf("ord-it-%d", stamp)
	lineID := orderID + "-1"
	idempotencyKey := fmt.Sprintf("idem-ret-it-%d", stamp)
	fullTotal := int64(2000)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_returns WHERE order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	})

	err = s.PutOrder(ctx, domain.Order{
		ID:                  orderID,
		StoreID:             "main-store",
		OrderNumber:         "SO-IT",
		Status:              domain.OrderStatusDelivered,
		Currency:            "USD",
		ShippingMethodCents: 500,
		TaxCents:            70,
		Items: []domain.OrderItem{{
			ID:                          lineID,
			SKU:                         "TEE-IT",
			UnitPriceCents:              1000,
			Qty:                         2,
			IsGlobalVariantDiscount:     true,
			VariantDiscountPerUnitCents: 200,
			FullReturnRefundTotalCents:  &fullTotal,
		}},
	})
	if err != nil {
		t.Fatalf("put order: %v", err)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].FullReturnRefundTotalCents == nil || *order.Items[0].FullReturnRefundTotalCents != 2000 {
		t.Fatalf("expected item with full return total 2000, got %+v", order.Items)
	}
	if order.PreferredShippingCents != nil {
		t.Fatalf("expected no preferred shipping, got %d", *order.PreferredShippingCents)
	}

	created, err := s.CreateReturn(ctx, domain.ReturnRecord{
		StoreID:             "main-store",
		OrderID:             orderID,
		IdempotencyKey:      idempotencyKey,
		Reason:              "integration test",
		RefundAmountCents:   1000,
		ShippingRefundCents: 0,
		TotalRefundCents:    1000,
		ProcessedBy:         "admin",
		Items:               []domain.ReturnRecordItem{{LineItemID: lineID, Qty: 1, UnitRefundCents: 1000, AmountCents: 1000}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	returned, err := s.GetReturnedQtyByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("returned qty: %v", err)
	}
	if returned[lineID] != 1 {
		t.Fatalf("expected 1 returned unit, got %d", returned[lineID])
	}

	_, err = s.CreateReturn(ctx, domain.ReturnRecord{
		StoreID:           "main-store",
		OrderID:           orderID,
		RefundAmountCents: 2000,
		TotalRefundCents:  2000,
		ProcessedBy:       "admin",
		Items:             []domain.ReturnRecordItem{{LineItemID: lineID, Qty: 2, UnitRefundCents: 1000, AmountCents: 2000}},
	})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected over-return to be rejected, got %v", err)
	}

	_, err = s.CreateReturn(ctx, domain.ReturnRecord{
		StoreID:           "main-store",
		OrderID:           orderID,
		IdempotencyKey:    idempotencyKey,
		RefundAmountCents: 1000,
		TotalRefundCents:  1000,
		ProcessedBy:       "admin",
		Items:             []domain.ReturnRecordItem{{LineItemID: lineID, Qty: 1, UnitRefundCents: 1000, AmountCents: 1000}},
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected reused idempotency key to be rejected, got %v", err)
	}

	found, err := s.FindReturnByIdempotency(ctx, idempotencyKey)
	if err != nil {
		t.Fatalf("find by idempotency: %v", err)
	}
	if found.ID != created.ID || found.RefundAmountCents != 1000 || len(found.Items) != 1 {
		t.Fatalf("unexpected stored return: %+v", found)
	}

	shippingReturn := func(shippingCents int64) error {
		_, err := s.CreateReturn(ctx, domain.ReturnRecord{
			StoreID:             "main-store",
			OrderID:             orderID,
			RefundAmountCents:   1000,
			ShippingRefundCents: shippingCents,
			TotalRefundCents:    1000 + shippingCents,
			ProcessedBy:         "admin",
			Items:               []domain.ReturnRecordItem{{LineItemID: lineID, Qty: 1, UnitRefundCents: 1000, AmountCents: 1000}},
		})
		return err
	}
	if err := shippingReturn(501); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected shipping refund above charged shipping to be rejected, got %v", err)
	}
	if err := shippingReturn(500); err != nil {
		t.Fatalf("create return with full shipping refund: %v", err)
	}
	refunded, err := s.GetShippingRefundedByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("shipping refunded: %v", err)
	}
	if refunded != 500 {
		t.Fatalf("expected 500 shipping refunded, got %d", refunded)
	}
}
