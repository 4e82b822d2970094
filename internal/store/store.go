package store

import (
	"context"
	"errors"
	"time"

	"onedesk/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid record")
)

// Repository is the remote record store. Every row belongs to one owner and
// no call reads or writes another owner's rows.
type Repository interface {
	ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error)
	InsertProducts(ctx context.Context, ownerID string, products []domain.Product) error
	UpsertProducts(ctx context.Context, ownerID string, products []domain.Product) error
	DeleteProducts(ctx context.Context, ownerID string, ids []string) error

	CreateBill(ctx context.Context, bill domain.Bill) error
	ListBills(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]domain.Bill, error)

	CreateReturn(ctx context.Context, ownerID string, record domain.ReturnRecord) error
	ListReturns(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]domain.ReturnRecord, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, ownerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
}
