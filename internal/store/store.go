package store

import (
	"context"
	"errors"
	"time"

	"ventas/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrBatchOpen     = errors.New("batch already open")
)

type CatalogReader interface {
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error)
	ListTreasuryAccounts(ctx context.Context) ([]domain.TreasuryAccount, error)
	ListArticles(ctx context.Context) ([]domain.Article, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// BatchFinder returns ErrNotFound when the user has no open batch.
type BatchFinder interface {
	FindOpenBatch(ctx context.Context, userID int64) (*domain.Batch, error)
}

// SaleWriter creates the records of a committed sale. Ids are assigned by the store.
type SaleWriter interface {
	CreateSaleOrder(ctx context.Context, order domain.SaleOrder) (*domain.SaleOrder, error)
	CreateSaleLineDetail(ctx context.Context, detail domain.SaleLineDetail) (*domain.SaleLineDetail, error)
	CreateStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error)
	CreateSalePayment(ctx context.Context, payment domain.SalePayment) (*domain.SalePayment, error)
	CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	CreateRunningAccountRecord(ctx context.Context, record domain.RunningAccountRecord) (*domain.RunningAccountRecord, error)
}

// Transactor is implemented by stores that can run a sale's writes atomically.
// fn's writes are committed only if fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(w SaleWriter) error) error
}

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type Repository interface {
	CatalogReader
	UserReader
	BatchFinder
	SaleWriter
	AuditWriter
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	OpenBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	CloseOpenBatch(ctx context.Context, userID int64, notes string, at time.Time) (*domain.Batch, error)
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	ListLedgerEntries(ctx context.Context, batchID int64) ([]domain.LedgerEntry, error)
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
