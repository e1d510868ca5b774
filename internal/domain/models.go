package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID                int64           `json:"id"`
	BusinessName      string          `json:"business_name"`
	MaxRunningBalance decimal.Decimal `json:"max_running_balance"`
	IsDefault         bool            `json:"is_default"`
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	TrialMode    bool      `json:"trial_mode"`
	Active       bool      `json:"active"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

type DocumentType struct {
	ID            int64  `json:"id"`
	Description   string `json:"description"`
	Active        bool   `json:"active"`
	ReentersStock bool   `json:"reenters_stock"`
	IsDefault     bool   `json:"is_default"`
}

// AccountKind tags a treasury account with the role it plays in a sale.
// An empty kind means "not stored"; the catalog loader classifies it.
type AccountKind string

type TreasuryAccount struct {
	ID          int64       `json:"id"`
	Description string      `json:"description"`
	Kind        AccountKind `json:"kind,omitempty"`
}

type Article struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Active      bool            `json:"active"`
}

// Batch is a cashier's cash-drawer session ("lote").
type Batch struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	CashRegisterID int64           `json:"cash_register_id"`
	Open           bool            `json:"open"`
	Type           string          `json:"type"`
	OpenedAt       time.Time       `json:"opened_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type SaleOrder struct {
	ID             int64           `json:"id"`
	CustomerID     int64           `json:"customer_id"`
	UserID         int64           `json:"user_id"`
	BatchID        int64           `json:"batch_id"`
	DocumentTypeID int64           `json:"document_type_id"`
	Date           string          `json:"date"`
	Total          decimal.Decimal `json:"total"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

type SaleLineDetail struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ArticleID int64           `json:"article_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type StockMovement struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	ArticleID int64  `json:"article_id"`
	Origin    string `json:"origin"`
	Direction string `json:"direction"`
	Quantity  int    `json:"quantity"`
}

type SalePayment struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type LedgerEntry struct {
	ID        int64           `json:"id"`
	BatchID   int64           `json:"batch_id"`
	AccountID int64           `json:"account_id"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
}

type RunningAccountRecord struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	Balance    decimal.Decimal `json:"balance"`
	Status     string          `json:"status"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorEmail string    `json:"actor_email"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// CatalogSnapshot is the raw reference data fetched for one form session.
type CatalogSnapshot struct {
	Customers     []Customer        `json:"customers"`
	Users         []User            `json:"users"`
	DocumentTypes []DocumentType    `json:"document_types"`
	Accounts      []TreasuryAccount `json:"accounts"`
	Articles      []Article         `json:"articles"`
}

type Actor struct {
	Email string
	Role  string
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type BatchOpenRequest struct {
	CashRegisterID int64           `json:"cash_register_id" validate:"required,gt=0"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type BatchCloseRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

// HeaderRequest changes the selections of the form header. Nil fields are left alone.
type HeaderRequest struct {
	CustomerID     *int64 `json:"customer_id" validate:"omitempty,gte=0"`
	UserID         *int64 `json:"user_id" validate:"omitempty,gte=0"`
	DocumentTypeID *int64 `json:"document_type_id" validate:"omitempty,gte=0"`
}

// LineRequest edits one line. Quantity and UnitPrice are the typed text.
type LineRequest struct {
	SearchText *string `json:"search_text" validate:"omitempty,max=200"`
	ArticleID  *int64  `json:"article_id" validate:"omitempty,gte=0"`
	Quantity   *string `json:"quantity" validate:"omitempty,max=32"`
	UnitPrice  *string `json:"unit_price" validate:"omitempty,max=32"`
}

// PaymentRequest edits one payment entry. Amount is the typed text.
type PaymentRequest struct {
	AccountID *int64  `json:"account_id" validate:"omitempty,gte=0"`
	Amount    *string `json:"amount" validate:"omitempty,max=32"`
}

type BatchSummary struct {
	Batch   Batch           `json:"batch"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
	Entries int             `json:"entries"`
}

const (
	RoleSupervisor = "supervisor"
	RoleCollector  = "cobrador"
)

const (
	AccountKindCash    AccountKind = "cash"
	AccountKindRunning AccountKind = "running_account"
	AccountKindOther   AccountKind = "other"
)

const (
	BatchTypeOpening = "apertura"
	BatchTypeClosing = "cierre"
)

const (
	StockOriginInvoice = "FACTURA"
	StockDirectionOut  = "salida"
)

const (
	LedgerDirectionIncome  = "ingreso"
	LedgerDirectionExpense = "egreso"
)

const RunningAccountStatusPending = "pending"
