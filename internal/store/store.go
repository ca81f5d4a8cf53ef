package store

import (
	"context"
	"errors"
	"time"

	"orderdesk/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDuplicate reports a unique key collision, such as a reused
	// idempotency key racing another writer.
	ErrDuplicate = errors.New("duplicate")
)

type Repository interface {
	ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetReturnedQtyByOrder(ctx context.Context, orderID string) (map[string]int, error)
	GetShippingRefundedByOrder(ctx context.Context, orderID string) (int64, error)
	CreateReturn(ctx context.Context, record domain.ReturnRecord) (*domain.ReturnRecord, error)
	GetReturn(ctx context.Context, returnID string) (*domain.ReturnRecord, error)
	FindReturnByIdempotency(ctx context.Context, key string) (*domain.ReturnRecord, error)
	ListReturnsByOrder(ctx context.Context, orderID string) ([]domain.ReturnRecord, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
