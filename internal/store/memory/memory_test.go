package memory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"ventas/backend/internal/domain"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/store"
)

func TestBatchLifecycle(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.FindOpenBatch(ctx, 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no open batch, got %v", err)
	}
	opened, err := s.OpenBatch(ctx, domain.Batch{UserID: 2, CashRegisterID: 1, InitialBalance: decimal.NewFromInt(50)})
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}
	if _, err := s.OpenBatch(ctx, domain.Batch{UserID: 2, CashRegisterID: 1}); !errors.Is(err, store.ErrBatchOpen) {
		t.Fatalf("expected ErrBatchOpen, got %v", err)
	}
	found, err := s.FindOpenBatch(ctx, 2)
	if err != nil || found.ID != opened.ID {
		t.Fatalf("expected open batch %d, got %+v %v", opened.ID, found, err)
	}

	closed, err := s.CloseOpenBatch(ctx, 2, "  cierre ", time.Time{})
	if err != nil {
		t.Fatalf("close batch: %v", err)
	}
	if closed.Open || closed.Notes != "cierre" || closed.ClosedAt == nil {
		t.Fatalf("unexpected closed batch %+v", closed)
	}
	if _, err := s.OpenBatch(ctx, domain.Batch{UserID: 2, CashRegisterID: 1}); err != nil {
		t.Fatalf("reopening after close should succeed, got %v", err)
	}
}

func TestSaleWritesAreRecordedInOrder(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateSaleOrder(ctx, domain.SaleOrder{CustomerID: 1, UserID: 1, DocumentTypeID: 1}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord without a batch, got %v", err)
	}

	order, err := s.CreateSaleOrder(ctx, domain.SaleOrder{CustomerID: 1, UserID: 1, BatchID: 7, DocumentTypeID: 1, Total: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.CreateSaleLineDetail(ctx, domain.SaleLineDetail{OrderID: order.ID, ArticleID: 10, Quantity: 0}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for zero quantity, got %v", err)
	}
	detail, err := s.CreateSaleLineDetail(ctx, domain.SaleLineDetail{OrderID: order.ID, ArticleID: 10, Quantity: 2, UnitPrice: decimal.NewFromInt(50)})
	if err != nil {
		t.Fatalf("create detail: %v", err)
	}
	if detail.ID <= order.ID {
		t.Fatalf("expected ids to increase, order %d detail %d", order.ID, detail.ID)
	}
	if _, err := s.CreateLedgerEntry(ctx, domain.LedgerEntry{BatchID: 7, AccountID: 1, Direction: domain.LedgerDirectionIncome, Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("create ledger entry: %v", err)
	}

	records := s.Records()
	if len(records.SaleOrders) != 1 || len(records.LineDetails) != 1 || len(records.LedgerEntries) != 1 {
		t.Fatalf("unexpected records %+v", records)
	}
	entries, _ := s.ListLedgerEntries(ctx, 7)
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry for batch 7, got %d", len(entries))
	}
}

func TestGetUserByEmailIgnoresCase(t *testing.T) {
	s := NewSeeded()

	user, err := s.GetUserByEmail(context.Background(), "  CAJA1@ventas.local")
	if err != nil || user.ID != 2 {
		t.Fatalf("expected collector 2, got %+v %v", user, err)
	}
	if _, err := s.GetUserByEmail(context.Background(), ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty email, got %v", err)
	}
}

func TestListAuditLogsNewestFirstWithinWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, action := range []string{"batch_open", "sale_commit", "batch_close"} {
		_ = s.CreateAuditLog(ctx, domain.AuditLog{ID: action, Action: action, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	logs, err := s.ListAuditLogs(ctx, base, base.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != "sale_commit" || logs[1].Action != "batch_open" {
		t.Fatalf("unexpected audit logs %+v", logs)
	}
}

func TestNewSeededWarnsAboutDefaultCredentials(t *testing.T) {
	t.Setenv("SEED_SUPERVISOR_PASSWORD", "")
	t.Setenv("SEED_COLLECTOR_PASSWORD", "otra-clave")
	var buf bytes.Buffer

	s, err := NewSeededWithLogger(logging.NewWithOutput("info", &buf))
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "default dev credentials") || !strings.Contains(out, `"level":"warning"`) {
		t.Fatalf("expected a structured warning, got %q", out)
	}

	collector, _ := s.GetUserByEmail(context.Background(), "caja1@ventas.local")
	if bcrypt.CompareHashAndPassword([]byte(collector.PasswordHash), []byte("otra-clave")) != nil {
		t.Fatalf("expected collector password from the environment")
	}
}

func TestNewSeededReturnsHashError(t *testing.T) {
	t.Setenv("SEED_SUPERVISOR_PASSWORD", strings.Repeat("x", 80))
	t.Setenv("SEED_COLLECTOR_PASSWORD", "otra-clave")
	var buf bytes.Buffer

	if _, err := NewSeededWithLogger(logging.NewWithOutput("info", &buf)); err == nil {
		t.Fatalf("expected an error for a password bcrypt cannot hash")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no warning when both passwords are set, got %q", buf.String())
	}
}
