package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/logging"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/valuation"
	"orderdesk/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	ordersByID      map[string]domain.Order
	returnsByID     map[string]domain.ReturnRecord
	returnsByIdem   map[string]string
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store with no orders and no users.
func New() *Store {
	return &Store{
		ordersByID:      make(map[string]domain.Order),
		returnsByID:     make(map[string]domain.ReturnRecord),
		returnsByIdem:   make(map[string]string),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with demo orders and dev accounts.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD; the
// dev defaults are used with a warning when they are unset. Production runs
// on PostgreSQL when DATABASE_URL is set and never sees these accounts.
func NewSeeded(logger *zap.Logger) *Store {
	s := New()
	for _, order := range seedOrders() {
		s.ordersByID[order.ID] = order
	}
	s.usersByUsername = seedUsers(logging.OrNop(logger))
	return s
}

func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials",
			zap.String("hint", "set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override"))
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"operator", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func seedOrders() []domain.Order {
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	cents := func(v int64) *int64 { return &v }

	return []domain.Order{
		{
			ID:                  "ord-1001",
			StoreID:             "main-store",
			OrderNumber:         "SO-1001",
			CustomerName:        "Rina Hartono",
			Status:              domain.OrderStatusDelivered,
			Currency:            "USD",
			ShippingMethod:      "standard",
			ShippingMethodCents: 500,
			TaxCents:            70,
			CreatedAt:           base,
			Items: []domain.OrderItem{
				{
					ID:                          "ord-1001-1",
					SKU:                         "TEE-BLK-M",
					Name:                        "Crew Tee Black M",
					UnitPriceCents:              1000,
					Qty:                         2,
					IsGlobalVariantDiscount:     true,
					VariantDiscountPerUnitCents: 200,
					FullReturnRefundTotalCents:  cents(2000),
					PerUnitRefundCents:          cents(1000),
				},
			},
		},
		{
			ID:                  "ord-1002",
			StoreID:             "main-store",
			OrderNumber:         "SO-1002",
			CustomerName:        "Dimas Prasetyo",
			Status:              domain.OrderStatusShipped,
			Currency:            "USD",
			ShippingMethod:      "standard",
			ShippingMethodCents: 500,
			FreeShippingApplied: true,
			TaxCents:            70,
			CreatedAt:           base.Add(2 * time.Hour),
			Items: []domain.OrderItem{
				{
					ID:                          "ord-1002-1",
					SKU:                         "TEE-WHT-L",
					Name:                        "Crew Tee White L",
					UnitPriceCents:              1000,
					Qty:                         2,
					IsGlobalVariantDiscount:     true,
					VariantDiscountPerUnitCents: 200,
				},
			},
		},
		{
			ID:                           "ord-1003",
			StoreID:                      "main-store",
			OrderNumber:                  "SO-1003",
			CustomerName:                 "Sari Wulandari",
			Status:                       domain.OrderStatusDelivered,
			Currency:                     "USD",
			ShippingMethod:               "express",
			ShippingMethodCents:          600,
			PreferredShippingCents:       cents(450),
			TaxCents:                     210,
			CouponCode:                   "WELCOME10",
			DiscountTotalCents:           900,
			PointsDiscountCents:          100,
			MembershipPromoDiscountCents: 150,
			CreatedAt:                    base.Add(24 * time.Hour),
			Items: []domain.OrderItem{
				{
					ID:             "ord-1003-1",
					SKU:            "JKT-DNM-M",
					Name:           "Denim Jacket M",
					UnitPriceCents: 3000,
					Qty:            1,
				},
				{
					ID:                              "ord-1003-2",
					SKU:                             "CAP-NVY",
					Name:                            "Canvas Cap Navy",
					UnitPriceCents:                  1000,
					Qty:                             1,
					IsBundlePromoItem:               true,
					BundlePromoDiscountPerUnitCents: 400,
				},
				{
					ID:                     "ord-1003-3",
					SKU:                    "SCK-GRY",
					Name:                   "Ankle Socks Grey",
					UnitPriceCents:         450,
					Qty:                    4,
					OriginalUnitPriceCents: cents(500),
					IsBulkTierPrice:        true,
				},
			},
			Adjustments: []domain.OrderAdjustment{
				{ID: "adj-1003-1", LineItemID: "ord-1003-2", Kind: "bundle_promo", AmountCents: 400},
			},
		},
		{
			ID:                  "ord-1004",
			StoreID:             "main-store",
			OrderNumber:         "SO-1004",
			CustomerName:        "Budi Santoso",
			Status:              domain.OrderStatusPaid,
			Currency:            "USD",
			ShippingMethod:      "standard",
			ShippingMethodCents: 800,
			TaxCents:            150,
			CouponCode:          "SPRING",
			DiscountTotalCents:  400,
			TierDiscountCents:   200,
			CreatedAt:           base.Add(48 * time.Hour),
			Items: []domain.OrderItem{
				{
					ID:             "ord-1004-1",
					SKU:            "HOOD-OLV-L",
					Name:           "Hoodie Olive L",
					UnitPriceCents: 2500,
					Qty:            2,
				},
				{
					ID:                     "ord-1004-2",
					SKU:                    "BAG-TOTE",
					Name:                   "Tote Bag",
					UnitPriceCents:         1200,
					Qty:                    1,
					OriginalUnitPriceCents: cents(1500),
					IsBulkTierPrice:        true,
				},
			},
			Adjustments: []domain.OrderAdjustment{
				{ID: "adj-1004-1", LineItemID: "ord-1004-1", Kind: "coupon", AmountCents: 300},
				{ID: "adj-1004-2", LineItemID: "ord-1004-2", Kind: "coupon", AmountCents: 100},
			},
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PutOrder inserts or replaces an order. Orders are written upstream by the
// storefront; this exists for fixtures and local tooling.
func (s *Store) PutOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ordersByID[order.ID] = cloneOrder(order)
}

func (s *Store) ListOrders(_ context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if storeID != "" && order.StoreID != storeID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(order)
	return &dup, nil
}

func (s *Store) GetReturnedQtyByOrder(_ context.Context, orderID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQtyLocked(orderID), nil
}

func (s *Store) GetShippingRefundedByOrder(_ context.Context, orderID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, record := range s.returnsByID {
		if record.OrderID == orderID {
			total += record.ShippingRefundCents
		}
	}
	return total, nil
}

func (s *Store) CreateReturn(_ context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	if record.ID == "" {
		record.ID = xid.New("ret")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(record.OrderID) == "" || len(record.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.IdempotencyKey != "" {
		if _, exists := s.returnsByIdem[record.IdempotencyKey]; exists {
			return nil, store.ErrDuplicate
		}
	}
	order, ok := s.ordersByID[record.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Re-check under the write lock so concurrent returns cannot oversell.
	returned := s.returnedQtyLocked(record.OrderID)
	purchased := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		purchased[item.ID] = item.Qty
	}
	for _, line := range record.Items {
		qty, known := purchased[line.LineItemID]
		if !known || line.Qty < 1 {
			return nil, store.ErrInvalidRequest
		}
		returned[line.LineItemID] += line.Qty
		if returned[line.LineItemID] > qty {
			return nil, store.ErrInvalidRequest
		}
	}

	if record.ShippingRefundCents < 0 {
		return nil, store.ErrInvalidRequest
	}
	if record.ShippingRefundCents > 0 {
		charged := valuation.EffectiveShipping(valuation.Shipping{
			MethodAmount:        order.ShippingMethodCents,
			Preferred:           order.PreferredShippingCents,
			FreeShippingApplied: order.FreeShippingApplied,
		})
		var refunded int64
		for _, existing := range s.returnsByID {
			if existing.OrderID == record.OrderID {
				refunded += existing.ShippingRefundCents
			}
		}
		if refunded+record.ShippingRefundCents > charged {
			return nil, store.ErrInvalidRequest
		}
	}

	s.returnsByID[record.ID] = cloneReturn(record)
	if record.IdempotencyKey != "" {
		s.returnsByIdem[record.IdempotencyKey] = record.ID
	}
	created := cloneReturn(record)
	return &created, nil
}

func (s *Store) GetReturn(_ context.Context, returnID string) (*domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.returnsByID[returnID]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneReturn(record)
	return &dup, nil
}

func (s *Store) FindReturnByIdempotency(_ context.Context, key string) (*domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.returnsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneReturn(s.returnsByID[id])
	return &dup, nil
}

func (s *Store) ListReturnsByOrder(_ context.Context, orderID string) ([]domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ReturnRecord, 0, 4)
	for _, record := range s.returnsByID {
		if record.OrderID == orderID {
			result = append(result, cloneReturn(record))
		}
	}
	slices.SortFunc(result, func(a, b domain.ReturnRecord) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) returnedQtyLocked(orderID string) map[string]int {
	result := make(map[string]int)
	for _, record := range s.returnsByID {
		if record.OrderID != orderID {
			continue
		}
		for _, line := range record.Items {
			result[line.LineItemID] += line.Qty
		}
	}
	return result
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	items := make([]domain.OrderItem, len(src.Items))
	for i, item := range src.Items {
		items[i] = item
		items[i].OriginalUnitPriceCents = cloneCents(item.OriginalUnitPriceCents)
		items[i].FullReturnRefundTotalCents = cloneCents(item.FullReturnRefundTotalCents)
		items[i].PerUnitRefundCents = cloneCents(item.PerUnitRefundCents)
	}
	dup.Items = items
	if src.Adjustments != nil {
		dup.Adjustments = slices.Clone(src.Adjustments)
	}
	dup.PreferredShippingCents = cloneCents(src.PreferredShippingCents)
	return dup
}

func cloneReturn(src domain.ReturnRecord) domain.ReturnRecord {
	dup := src
	items := make([]domain.ReturnRecordItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneCents(v *int64) *int64 {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}
