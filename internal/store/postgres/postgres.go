package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ventas/backend/internal/domain"
	"ventas/backend/internal/store"
)

type Store struct {
	db *sql.DB
	saleWriter
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
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

	return &Store{db: db, saleWriter: saleWriter{q: db}}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables the store reads and writes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_name, max_running_balance, is_default
		FROM customers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.BusinessName, &c.MaxRunningBalance, &c.IsDefault); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

const userColumns = `id, name, email, role, password_hash, trial_mode, active, is_default, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.TrialMode, &u.Active, &u.IsDefault, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, active, reenters_stock, is_default
		FROM document_types
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docTypes := make([]domain.DocumentType, 0, 8)
	for rows.Next() {
		var d domain.DocumentType
		if err := rows.Scan(&d.ID, &d.Description, &d.Active, &d.ReentersStock, &d.IsDefault); err != nil {
			return nil, err
		}
		docTypes = append(docTypes, d)
	}
	return docTypes, rows.Err()
}

func (s *Store) ListTreasuryAccounts(ctx context.Context) ([]domain.TreasuryAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, COALESCE(kind, '')
		FROM treasury_accounts
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.TreasuryAccount, 0, 8)
	for rows.Next() {
		var a domain.TreasuryAccount
		var kind string
		if err := rows.Scan(&a.ID, &a.Description, &kind); err != nil {
			return nil, err
		}
		a.Kind = domain.AccountKind(kind)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) ListArticles(ctx context.Context) ([]domain.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, unit_price, active
		FROM articles
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]domain.Article, 0, 256)
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.Description, &a.UnitPrice, &a.Active); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const batchColumns = `id, user_id, cash_register_id, open, type, opened_at, closed_at, COALESCE(notes, ''), initial_balance`

func scanBatch(row interface{ Scan(...any) error }) (*domain.Batch, error) {
	var b domain.Batch
	var closedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.UserID, &b.CashRegisterID, &b.Open, &b.Type, &b.OpenedAt, &closedAt, &b.Notes, &b.InitialBalance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		b.ClosedAt = &at
	}
	b.OpenedAt = b.OpenedAt.UTC()
	return &b, nil
}

func (s *Store) FindOpenBatch(ctx context.Context, userID int64) (*domain.Batch, error) {
	return scanBatch(s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE user_id = $1 AND open = true
		ORDER BY opened_at DESC
		LIMIT 1
	`, userID))
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	return scanBatch(s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
}

// OpenBatch relies on the partial unique index over open batches per user.
func (s *Store) OpenBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.UserID < 1 || batch.CashRegisterID < 1 || batch.InitialBalance.IsNegative() {
		return nil, store.ErrInvalidRecord
	}
	saved, err := scanBatch(s.db.QueryRowContext(ctx, `
		INSERT INTO batches (user_id, cash_register_id, open, type, opened_at, initial_balance)
		VALUES ($1, $2, true, $3, $4, $5)
		RETURNING `+batchColumns,
		batch.UserID, batch.CashRegisterID, domain.BatchTypeOpening, batch.OpenedAt, batch.InitialBalance))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrBatchOpen
		}
		return nil, err
	}
	return saved, nil
}

func (s *Store) CloseOpenBatch(ctx context.Context, userID int64, notes string, at time.Time) (*domain.Batch, error) {
	return scanBatch(s.db.QueryRowContext(ctx, `
		UPDATE batches
		SET open = false, type = $2, closed_at = $3, notes = $4
		WHERE id = (
			SELECT id FROM batches WHERE user_id = $1 AND open = true
			ORDER BY opened_at DESC LIMIT 1
		)
		RETURNING `+batchColumns,
		userID, domain.BatchTypeClosing, at, strings.TrimSpace(notes)))
}

func (s *Store) ListLedgerEntries(ctx context.Context, batchID int64) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, account_id, direction, amount
		FROM ledger_entries
		WHERE batch_id = $1
		ORDER BY id
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 32)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.AccountID, &e.Direction, &e.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InTx runs fn against a transaction-bound writer and commits only when fn
// succeeds.
func (s *Store) InTx(ctx context.Context, fn func(w store.SaleWriter) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(saleWriter{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_email, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorEmail, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_email, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorEmail, &l.ActorRole, &l.Action, &l.EntityType, &l.EntityID, &l.Detail, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// saleWriter inserts the records of one sale through db or a transaction.
type saleWriter struct {
	q queryer
}

func (w saleWriter) CreateSaleOrder(ctx context.Context, order domain.SaleOrder) (*domain.SaleOrder, error) {
	err := w.q.QueryRowContext(ctx, `
		INSERT INTO sale_orders (customer_id, user_id, batch_id, document_type_id, sale_date, total, subtotal)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, order.CustomerID, order.UserID, order.BatchID, order.DocumentTypeID, order.Date, order.Total, order.Subtotal).Scan(&order.ID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (w saleWriter) CreateSaleLineDetail(ctx context.Context, detail domain.SaleLineDetail) (*domain.SaleLineDetail, error) {
	if detail.Quantity < 1 {
		return nil, store.ErrInvalidRecord
	}
	err := w.q.QueryRowContext(ctx, `
		INSERT INTO sale_line_details (order_id, article_id, quantity, unit_price)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, detail.OrderID, detail.ArticleID, detail.Quantity, detail.UnitPrice).Scan(&detail.ID)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (w saleWriter) CreateStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	err := w.q.QueryRowContext(ctx, `
		INSERT INTO stock_movements (order_id, article_id, origin, direction, quantity)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, movement.OrderID, movement.ArticleID, movement.Origin, movement.Direction, movement.Quantity).Scan(&movement.ID)
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func (w saleWriter) CreateSalePayment(ctx context.Context, payment domain.SalePayment) (*domain.SalePayment, error) {
	err := w.q.QueryRowContext(ctx, `
		INSERT INTO sale_payments (order_id, account_id, amount)
		VALUES ($1,$2,$3)
		RETURNING id
	`, payment.OrderID, payment.AccountID, payment.Amount).Scan(&payment.ID)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (w saleWriter) CreateLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	err := w.q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (batch_id, account_id, direction, amount)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, entry.BatchID, entry.AccountID, entry.Direction, entry.Amount).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (w saleWriter) CreateRunningAccountRecord(ctx context.Context, record domain.RunningAccountRecord) (*domain.RunningAccountRecord, error) {
	err := w.q.QueryRowContext(ctx, `
		INSERT INTO running_account_records (order_id, customer_id, total, balance, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, record.OrderID, record.CustomerID, record.Total, record.Balance, record.Status).Scan(&record.ID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
