package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/valuation"
	"orderdesk/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables this service reads and writes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

const orderColumns = `
	id, store_id, order_number, customer_name, status, currency,
	shipping_method, shipping_method_cents, preferred_shipping_cents, free_shipping_applied,
	tax_cents, COALESCE(coupon_code, ''), discount_total_cents, points_discount_cents,
	membership_promo_discount_cents, tier_discount_cents, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var preferred sql.NullInt64
	err := row.Scan(
		&order.ID,
		&order.StoreID,
		&order.OrderNumber,
		&order.CustomerName,
		&order.Status,
		&order.Currency,
		&order.ShippingMethod,
		&order.ShippingMethodCents,
		&preferred,
		&order.FreeShippingApplied,
		&order.TaxCents,
		&order.CouponCode,
		&order.DiscountTotalCents,
		&order.PointsDiscountCents,
		&order.MembershipPromoDiscountCents,
		&order.TierDiscountCents,
		&order.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.PreferredShippingCents = int64Ptr(preferred)
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadOrderLines(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadOrderLines(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) loadOrderLines(ctx context.Context, order *domain.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, unit_price_cents, qty, original_unit_price_cents,
			is_bundle_promo_item, bundle_promo_discount_per_unit_cents,
			is_global_variant_discount, variant_discount_per_unit_cents,
			is_bulk_tier_price, full_return_refund_total_cents, per_unit_refund_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC, id ASC
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		var original, fullReturn, perUnit sql.NullInt64
		if err := rows.Scan(
			&item.ID,
			&item.SKU,
			&item.Name,
			&item.UnitPriceCents,
			&item.Qty,
			&original,
			&item.IsBundlePromoItem,
			&item.BundlePromoDiscountPerUnitCents,
			&item.IsGlobalVariantDiscount,
			&item.VariantDiscountPerUnitCents,
			&item.IsBulkTierPrice,
			&fullReturn,
			&perUnit,
		); err != nil {
			return err
		}
		item.OriginalUnitPriceCents = int64Ptr(original)
		item.FullReturnRefundTotalCents = int64Ptr(fullReturn)
		item.PerUnitRefundCents = int64Ptr(perUnit)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	order.Items = items

	adjRows, err := s.db.QueryContext(ctx, `
		SELECT id, line_item_id, kind, amount_cents
		FROM order_adjustments
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID)
	if err != nil {
		return err
	}
	defer adjRows.Close()

	for adjRows.Next() {
		var adj domain.OrderAdjustment
		if err := adjRows.Scan(&adj.ID, &adj.LineItemID, &adj.Kind, &adj.AmountCents); err != nil {
			return err
		}
		order.Adjustments = append(order.Adjustments, adj)
	}
	return adjRows.Err()
}

// PutOrder writes an order with its lines and adjustments, replacing any
// previous copy. Orders are owned by the storefront; this feeds fixtures.
func (s *Store) PutOrder(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" || len(order.Items) == 0 {
		return store.ErrInvalidRequest
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, store_id, order_number, customer_name, status, currency,
			shipping_method, shipping_method_cents, preferred_shipping_cents, free_shipping_applied,
			tax_cents, coupon_code, discount_total_cents, points_discount_cents,
			membership_promo_discount_cents, tier_discount_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, order.ID, order.StoreID, order.OrderNumber, order.CustomerName, order.Status, order.Currency,
		order.ShippingMethod, order.ShippingMethodCents, nullInt64(order.PreferredShippingCents), order.FreeShippingApplied,
		order.TaxCents, nullIfEmpty(order.CouponCode), order.DiscountTotalCents, order.PointsDiscountCents,
		order.MembershipPromoDiscountCents, order.TierDiscountCents, order.CreatedAt)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, sku, name, unit_price_cents, qty, original_unit_price_cents,
				is_bundle_promo_item, bundle_promo_discount_per_unit_cents,
				is_global_variant_discount, variant_discount_per_unit_cents,
				is_bulk_tier_price, full_return_refund_total_cents, per_unit_refund_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, item.ID, order.ID, i, item.SKU, item.Name, item.UnitPriceCents, item.Qty, nullInt64(item.OriginalUnitPriceCents),
			item.IsBundlePromoItem, item.BundlePromoDiscountPerUnitCents,
			item.IsGlobalVariantDiscount, item.VariantDiscountPerUnitCents,
			item.IsBulkTierPrice, nullInt64(item.FullReturnRefundTotalCents), nullInt64(item.PerUnitRefundCents))
		if err != nil {
			return err
		}
	}
	for _, adj := range order.Adjustments {
		if adj.ID == "" {
			adj.ID = xid.New("adj")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_adjustments (id, order_id, line_item_id, kind, amount_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, adj.ID, order.ID, adj.LineItemID, adj.Kind, adj.AmountCents)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetReturnedQtyByOrder(ctx context.Context, orderID string) (map[string]int, error) {
	return returnedQty(ctx, s.db, orderID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func returnedQty(ctx context.Context, q queryer, orderID string) (map[string]int, error) {
	result := make(map[string]int)
	rows, err := q.QueryContext(ctx, `
		SELECT ri.line_item_id, COALESCE(SUM(ri.qty), 0)::int
		FROM order_returns r
		JOIN order_return_items ri ON ri.return_id = r.id
		WHERE r.order_id = $1
		GROUP BY ri.line_item_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var lineItemID string
		var qty int
		if err := rows.Scan(&lineItemID, &qty); err != nil {
			return nil, err
		}
		result[lineItemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetShippingRefundedByOrder(ctx context.Context, orderID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(shipping_refund_cents), 0)::bigint
		FROM order_returns
		WHERE order_id = $1
	`, orderID).Scan(&total)
	return total, err
}

func (s *Store) CreateReturn(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error) {
	if record.ID == "" {
		record.ID = xid.New("ret")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(record.OrderID) == "" || len(record.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the order so concurrent returns against it serialize here.
	var shipping valuation.Shipping
	var preferred sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT shipping_method_cents, preferred_shipping_cents, free_shipping_applied
		FROM orders WHERE id = $1 FOR UPDATE
	`, record.OrderID).Scan(&shipping.MethodAmount, &preferred, &shipping.FreeShippingApplied); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if preferred.Valid {
		shipping.Preferred = &preferred.Int64
	}

	purchased := make(map[string]int, 8)
	rows, err := tx.QueryContext(ctx, `SELECT id, qty FROM order_items WHERE order_id = $1`, record.OrderID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			rows.Close()
			return nil, err
		}
		purchased[id] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	returned, err := returnedQty(ctx, tx, record.OrderID)
	if err != nil {
		return nil, err
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
		var refunded int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(shipping_refund_cents), 0)::bigint
			FROM order_returns
			WHERE order_id = $1
		`, record.OrderID).Scan(&refunded); err != nil {
			return nil, err
		}
		if refunded+record.ShippingRefundCents > valuation.EffectiveShipping(shipping) {
			return nil, store.ErrInvalidRequest
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_returns (
			id, store_id, order_id, idempotency_key, reason, refund_amount_cents,
			shipping_refund_cents, total_refund_cents, processed_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, record.ID, record.StoreID, record.OrderID, nullIfEmpty(record.IdempotencyKey), record.Reason, record.RefundAmountCents,
		record.ShippingRefundCents, record.TotalRefundCents, record.ProcessedBy, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	for _, line := range record.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_return_items (return_id, line_item_id, qty, unit_refund_cents, amount_cents, full_return)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, record.ID, line.LineItemID, line.Qty, line.UnitRefundCents, line.AmountCents, line.FullReturn)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := record
	return &created, nil
}

func (s *Store) GetReturn(ctx context.Context, returnID string) (*domain.ReturnRecord, error) {
	return s.findReturn(ctx, "id", returnID)
}

func (s *Store) FindReturnByIdempotency(ctx context.Context, key string) (*domain.ReturnRecord, error) {
	return s.findReturn(ctx, "idempotency_key", key)
}

const returnColumns = `
	id, store_id, order_id, COALESCE(idempotency_key, ''), reason, refund_amount_cents,
	shipping_refund_cents, total_refund_cents, processed_by, created_at
`

func scanReturn(row rowScanner) (domain.ReturnRecord, error) {
	var record domain.ReturnRecord
	err := row.Scan(
		&record.ID,
		&record.StoreID,
		&record.OrderID,
		&record.IdempotencyKey,
		&record.Reason,
		&record.RefundAmountCents,
		&record.ShippingRefundCents,
		&record.TotalRefundCents,
		&record.ProcessedBy,
		&record.CreatedAt,
	)
	record.CreatedAt = record.CreatedAt.UTC()
	return record, err
}

func (s *Store) findReturn(ctx context.Context, column string, value string) (*domain.ReturnRecord, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	record, err := scanReturn(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM order_returns
		WHERE %s = $1
	`, returnColumns, column), value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadReturnItems(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) loadReturnItems(ctx context.Context, record *domain.ReturnRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_item_id, qty, unit_refund_cents, amount_cents, full_return
		FROM order_return_items
		WHERE return_id = $1
		ORDER BY id ASC
	`, record.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	items := make([]domain.ReturnRecordItem, 0, 4)
	for rows.Next() {
		var item domain.ReturnRecordItem
		if err := rows.Scan(&item.LineItemID, &item.Qty, &item.UnitRefundCents, &item.AmountCents, &item.FullReturn); err != nil {
			return err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	record.Items = items
	return nil
}

func (s *Store) ListReturnsByOrder(ctx context.Context, orderID string) ([]domain.ReturnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+returnColumns+`
		FROM order_returns
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ReturnRecord, 0, 4)
	for rows.Next() {
		record, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range records {
		if err := s.loadReturnItems(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func int64Ptr(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	v := val.Int64
	return &v
}
