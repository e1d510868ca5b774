package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ventas/backend/internal/domain"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	nextID          int64
	customers       map[int64]domain.Customer
	users           map[int64]domain.User
	documentTypes   map[int64]domain.DocumentType
	accounts        map[int64]domain.TreasuryAccount
	articles        map[int64]domain.Article
	batches         map[int64]domain.Batch
	openBatchByUser map[int64]int64
	saleOrders      []domain.SaleOrder
	lineDetails     []domain.SaleLineDetail
	stockMovements  []domain.StockMovement
	payments        []domain.SalePayment
	ledgerEntries   []domain.LedgerEntry
	runningAccounts []domain.RunningAccountRecord
	auditLogs       []domain.AuditLog
}

// Records is a point-in-time copy of every sale record written to the store.
type Records struct {
	SaleOrders      []domain.SaleOrder
	LineDetails     []domain.SaleLineDetail
	StockMovements  []domain.StockMovement
	Payments        []domain.SalePayment
	LedgerEntries   []domain.LedgerEntry
	RunningAccounts []domain.RunningAccountRecord
}

func New() *Store {
	return &Store{
		nextID:          1000,
		customers:       make(map[int64]domain.Customer),
		users:           make(map[int64]domain.User),
		documentTypes:   make(map[int64]domain.DocumentType),
		accounts:        make(map[int64]domain.TreasuryAccount),
		articles:        make(map[int64]domain.Article),
		batches:         make(map[int64]domain.Batch),
		openBatchByUser: make(map[int64]int64),
		auditLogs:       make([]domain.AuditLog, 0, 64),
	}
}

// NewSeeded is NewSeededWithLogger without log output. It panics if a seed
// password cannot be hashed.
func NewSeeded() *Store {
	s, err := NewSeededWithLogger(logging.Discard())
	if err != nil {
		panic(err)
	}
	return s
}

// NewSeededWithLogger builds a store with demo reference data for dev mode.
// Seed passwords come from SEED_SUPERVISOR_PASSWORD and SEED_COLLECTOR_PASSWORD.
func NewSeededWithLogger(logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	s := New()

	s.PutCustomer(domain.Customer{ID: 1, BusinessName: "Consumidor Final", IsDefault: true})
	s.PutCustomer(domain.Customer{ID: 2, BusinessName: "Ferreteria Norte SRL", MaxRunningBalance: decimal.NewFromInt(1000)})
	s.PutCustomer(domain.Customer{ID: 3, BusinessName: "Almacen Don Tito"})

	supervisorPwd := envOr("SEED_SUPERVISOR_PASSWORD", "supervisor123")
	collectorPwd := envOr("SEED_COLLECTOR_PASSWORD", "cobrador123")
	if os.Getenv("SEED_SUPERVISOR_PASSWORD") == "" || os.Getenv("SEED_COLLECTOR_PASSWORD") == "" {
		logger.WithField("module", "memory-store").Warn("using default dev credentials, set SEED_SUPERVISOR_PASSWORD and SEED_COLLECTOR_PASSWORD to override")
	}
	now := time.Now().UTC()
	for _, u := range []struct {
		user     domain.User
		password string
	}{
		{domain.User{ID: 1, Name: "Jony", Email: "jony@ventas.local", Role: domain.RoleSupervisor, IsDefault: true}, supervisorPwd},
		{domain.User{ID: 2, Name: "Caja 1", Email: "caja1@ventas.local", Role: domain.RoleCollector}, collectorPwd},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.user.Email, err)
		}
		u.user.PasswordHash = string(hash)
		u.user.Active = true
		u.user.CreatedAt = now
		s.PutUser(u.user)
	}

	s.PutDocumentType(domain.DocumentType{ID: 1, Description: "Factura B", Active: true, IsDefault: true})
	s.PutDocumentType(domain.DocumentType{ID: 2, Description: "Factura A", Active: true})
	s.PutDocumentType(domain.DocumentType{ID: 3, Description: "Nota de Credito", Active: true, ReentersStock: true})

	s.PutAccount(domain.TreasuryAccount{ID: 1, Description: "Efectivo"})
	s.PutAccount(domain.TreasuryAccount{ID: 2, Description: "Mercado Pago"})
	s.PutAccount(domain.TreasuryAccount{ID: 3, Description: "CUENTA CORRIENTE"})
	s.PutAccount(domain.TreasuryAccount{ID: 4, Description: "Tarjeta de Debito"})

	for _, a := range []domain.Article{
		{ID: 10, Description: "Yerba Mate 1kg", UnitPrice: decimal.RequireFromString("50.00"), Active: true},
		{ID: 11, Description: "Azucar 1kg", UnitPrice: decimal.RequireFromString("18.50"), Active: true},
		{ID: 12, Description: "Mate de Calabaza", UnitPrice: decimal.RequireFromString("120.00"), Active: true},
		{ID: 13, Description: "Bombilla Alpaca", UnitPrice: decimal.RequireFromString("75.25"), Active: true},
		{ID: 14, Description: "Termo 1L", UnitPrice: decimal.RequireFromString("310.00"), Active: false},
	} {
		s.PutArticle(a)
	}

	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutDocumentType(d domain.DocumentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentTypes[d.ID] = d
}

func (s *Store) PutAccount(a domain.TreasuryAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *Store) PutArticle(a domain.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.ID] = a
}

func (s *Store) Records() Records {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Records{
		SaleOrders:      slices.Clone(s.saleOrders),
		LineDetails:     slices.Clone(s.lineDetails),
		StockMovements:  slices.Clone(s.stockMovements),
		Payments:        slices.Clone(s.payments),
		LedgerEntries:   slices.Clone(s.ledgerEntries),
		RunningAccounts: slices.Clone(s.runningAccounts),
	}
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.customers, func(c domain.Customer) int64 { return c.ID }), nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.users, func(u domain.User) int64 { return u.ID }), nil
}

func (s *Store) ListDocumentTypes(_ context.Context) ([]domain.DocumentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.documentTypes, func(d domain.DocumentType) int64 { return d.ID }), nil
}

func (s *Store) ListTreasuryAccounts(_ context.Context) ([]domain.TreasuryAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.accounts, func(a domain.TreasuryAccount) int64 { return a.ID }), nil
}

func (s *Store) ListArticles(_ context.Context) ([]domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.articles, func(a domain.Article) int64 { return a.ID }), nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.ToLower(user.Email) == email {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.users[id] = user
	return nil
}

func (s *Store) FindOpenBatch(_ context.Context, userID int64) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batchID, ok := s.openBatchByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	batch, ok := s.batches[batchID]
	if !ok || !batch.Open {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (s *Store) OpenBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.UserID < 1 || batch.InitialBalance.IsNegative() {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.openBatchByUser[batch.UserID]; exists {
		return nil, store.ErrBatchOpen
	}
	batch.ID = s.newID()
	if batch.OpenedAt.IsZero() {
		batch.OpenedAt = time.Now().UTC()
	}
	batch.Open = true
	batch.Type = domain.BatchTypeOpening
	batch.ClosedAt = nil

	s.batches[batch.ID] = batch
	s.openBatchByUser[batch.UserID] = batch.ID
	saved := batch
	return &saved, nil
}

func (s *Store) CloseOpenBatch(_ context.Context, userID int64, notes string, at time.Time) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchID, ok := s.openBatchByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	batch, ok := s.batches[batchID]
	if !ok || !batch.Open {
		return nil, store.ErrNotFound
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	batch.Open = false
	batch.Type = domain.BatchTypeClosing
	batch.ClosedAt = &at
	batch.Notes = strings.TrimSpace(notes)

	delete(s.openBatchByUser, userID)
	s.batches[batchID] = batch
	saved := batch
	return &saved, nil
}

func (s *Store) GetBatch(_ context.Context, id int64) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, batchID int64) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0, 16)
	for _, entry := range s.ledgerEntries {
		if entry.BatchID == batchID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *Store) CreateSaleOrder(_ context.Context, order domain.SaleOrder) (*domain.SaleOrder, error) {
	if order.CustomerID < 1 || order.UserID < 1 || order.BatchID < 1 || order.DocumentTypeID < 1 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = s.newID()
	s.saleOrders = append(s.saleOrders, order)
	return &order, nil
}

func (s *Store) CreateSaleLineDetail(_ context.Context, detail domain.SaleLineDetail) (*domain.SaleLineDetail, error) {
	if detail.OrderID < 1 || detail.ArticleID < 1 || detail.Quantity < 1 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	detail.ID = s.newID()
	s.lineDetails = append(s.lineDetails, detail)
	return &detail, nil
}

func (s *Store) CreateStockMovement(_ context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	if movement.OrderID < 1 || movement.ArticleID < 1 || movement.Quantity == 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	movement.ID = s.newID()
	s.stockMovements = append(s.stockMovements, movement)
	return &movement, nil
}

func (s *Store) CreateSalePayment(_ context.Context, payment domain.SalePayment) (*domain.SalePayment, error) {
	if payment.OrderID < 1 || payment.AccountID < 1 || !payment.Amount.IsPositive() {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payment.ID = s.newID()
	s.payments = append(s.payments, payment)
	return &payment, nil
}

func (s *Store) CreateLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.BatchID < 1 || entry.AccountID < 1 || !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.newID()
	s.ledgerEntries = append(s.ledgerEntries, entry)
	return &entry, nil
}

func (s *Store) CreateRunningAccountRecord(_ context.Context, record domain.RunningAccountRecord) (*domain.RunningAccountRecord, error) {
	if record.OrderID < 1 || record.CustomerID < 1 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.newID()
	s.runningAccounts = append(s.runningAccounts, record)
	return &record, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// newID must be called with s.mu held for writing.
func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

func sortedValues[T any](m map[int64]T, id func(T) int64) []T {
	values := make([]T, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	slices.SortFunc(values, func(a, b T) int {
		return cmp.Compare(id(a), id(b))
	})
	return values
}
