package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ventas/backend/internal/domain"
	"ventas/backend/internal/saleform"
	"ventas/backend/internal/store"
	"ventas/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, Options{TrialDays: 15, SuggestionLimit: 8}), repo
}

func supervisorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Email: "jony@ventas.local", Role: domain.RoleSupervisor})
}

func collectorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Email: "caja1@ventas.local", Role: domain.RoleCollector})
}

func TestOpenSessionRequiresActor(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.OpenSession(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSaleThroughSessionWritesLedgerIntoOpenBatch(t *testing.T) {
	svc, repo := newTestService()
	ctx := collectorCtx()

	batch, err := svc.OpenBatch(ctx, domain.BatchOpenRequest{CashRegisterID: 1, InitialBalance: decimal.NewFromInt(500)})
	if err != nil {
		t.Fatalf("open batch failed: %v", err)
	}

	opened, err := svc.OpenSession(ctx)
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if opened.Draft == nil || opened.Draft.OpenBatchID != batch.ID || opened.Draft.UserID != 2 {
		t.Fatalf("expected collector draft on batch %d, got %+v", batch.ID, opened.Draft)
	}

	session, err := svc.Session(ctx, opened.ID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	_ = session.SelectArticle(0, 13)
	_ = session.SetQuantity(0, "2")
	_ = session.SelectAccount(0, 1)

	saved, err := svc.SaveSession(ctx, opened.ID)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Notice != saleform.SuccessNotice || saved.LastOrderID == 0 {
		t.Fatalf("unexpected save response %+v", saved.View)
	}

	summary, err := svc.BatchSummary(ctx, batch.ID)
	if err != nil {
		t.Fatalf("batch summary failed: %v", err)
	}
	if !summary.Income.Equal(decimal.RequireFromString("150.50")) || !summary.Balance.Equal(decimal.RequireFromString("650.50")) {
		t.Fatalf("unexpected batch summary %+v", summary)
	}

	logs, _ := repo.ListAuditLogs(context.Background(), time.Time{}, time.Now().Add(time.Hour), 10)
	actions := map[string]bool{}
	for _, l := range logs {
		actions[l.Action] = true
	}
	if !actions["batch_open"] || !actions["sale_commit"] {
		t.Fatalf("expected batch_open and sale_commit audit records, got %+v", logs)
	}
}

func TestSaleCommitAuditNamesTheSaver(t *testing.T) {
	svc, repo := newTestService()

	if _, err := svc.OpenBatch(collectorCtx(), domain.BatchOpenRequest{CashRegisterID: 1}); err != nil {
		t.Fatalf("open batch failed: %v", err)
	}
	opened, err := svc.OpenSession(collectorCtx())
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	session, _ := svc.Session(collectorCtx(), opened.ID)
	_ = session.SelectArticle(0, 13)
	_ = session.SelectAccount(0, 1)

	if _, err := svc.SaveSession(supervisorCtx(), opened.ID); err != nil {
		t.Fatalf("supervisor save failed: %v", err)
	}

	logs, _ := repo.ListAuditLogs(context.Background(), time.Time{}, time.Now().Add(time.Hour), 10)
	var commit *domain.AuditLog
	for i := range logs {
		if logs[i].Action == "sale_commit" {
			commit = &logs[i]
		}
	}
	if commit == nil {
		t.Fatalf("expected a sale_commit audit record, got %+v", logs)
	}
	if commit.ActorEmail != "jony@ventas.local" || commit.ActorRole != domain.RoleSupervisor {
		t.Fatalf("expected the supervisor as actor, got %s/%s", commit.ActorEmail, commit.ActorRole)
	}
}

func TestSessionIsPrivateToItsOwner(t *testing.T) {
	svc, _ := newTestService()

	opened, err := svc.OpenSession(collectorCtx())
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}

	other := WithActor(context.Background(), domain.Actor{Email: "caja2@ventas.local", Role: domain.RoleCollector})
	if _, err := svc.Session(other, opened.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for another collector, got %v", err)
	}
	if _, err := svc.Session(supervisorCtx(), opened.ID); err != nil {
		t.Fatalf("supervisor must reach the session, got %v", err)
	}
	if _, err := svc.Session(collectorCtx(), "sess-not-a-uuid"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for malformed id, got %v", err)
	}
}

func TestCloseSessionForgetsIt(t *testing.T) {
	svc, _ := newTestService()
	ctx := supervisorCtx()

	opened, _ := svc.OpenSession(ctx)
	if err := svc.CloseSession(ctx, opened.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := svc.Summary(ctx, opened.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected closed session to be gone, got %v", err)
	}
}

func TestReopenSessionRestoresDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := supervisorCtx()

	opened, _ := svc.OpenSession(ctx)
	session, _ := svc.Session(ctx, opened.ID)
	_ = session.SelectCustomer(3)
	_, _ = session.AddLine()

	reopened, err := svc.ReopenSession(ctx, opened.ID)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Draft.CustomerID != 1 || len(reopened.Draft.Lines) != 1 {
		t.Fatalf("expected defaults after reopen, got %+v", reopened.Draft)
	}
}

func TestSweepIdleDropsStaleSessions(t *testing.T) {
	repo := memory.NewSeeded()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := New(repo, Options{SessionIdle: 10 * time.Minute, Now: func() time.Time { return now }})
	ctx := supervisorCtx()

	stale, _ := svc.OpenSession(ctx)
	now = now.Add(11 * time.Minute)
	fresh, _ := svc.OpenSession(ctx)

	if removed := svc.SweepIdle(); removed != 1 {
		t.Fatalf("expected 1 session swept, got %d", removed)
	}
	if _, err := svc.Summary(ctx, stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected stale session gone, got %v", err)
	}
	if _, err := svc.Summary(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh session must survive, got %v", err)
	}
}

func TestBatchLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := collectorCtx()

	if _, err := svc.GetOpenBatch(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no open batch, got %v", err)
	}
	if _, err := svc.OpenBatch(ctx, domain.BatchOpenRequest{CashRegisterID: 0}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	opened, err := svc.OpenBatch(ctx, domain.BatchOpenRequest{CashRegisterID: 2, InitialBalance: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("open batch failed: %v", err)
	}
	if opened.Type != domain.BatchTypeOpening || !opened.Open {
		t.Fatalf("unexpected opened batch %+v", opened)
	}
	if _, err := svc.OpenBatch(ctx, domain.BatchOpenRequest{CashRegisterID: 2}); !errors.Is(err, store.ErrBatchOpen) {
		t.Fatalf("expected ErrBatchOpen, got %v", err)
	}

	closed, err := svc.CloseBatch(ctx, domain.BatchCloseRequest{Notes: "  fin de turno "})
	if err != nil {
		t.Fatalf("close batch failed: %v", err)
	}
	if closed.Open || closed.Type != domain.BatchTypeClosing || closed.Notes != "fin de turno" || closed.ClosedAt == nil {
		t.Fatalf("unexpected closed batch %+v", closed)
	}
	if _, err := svc.CloseBatch(ctx, domain.BatchCloseRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound closing twice, got %v", err)
	}
}

func TestBatchSummaryHiddenFromOtherOperators(t *testing.T) {
	svc, _ := newTestService()

	batch, err := svc.OpenBatch(supervisorCtx(), domain.BatchOpenRequest{CashRegisterID: 1})
	if err != nil {
		t.Fatalf("open batch failed: %v", err)
	}
	if _, err := svc.BatchSummary(collectorCtx(), batch.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another operator's batch, got %v", err)
	}
}

func TestListAuditLogsRequiresSupervisor(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.ListAuditLogs(collectorCtx(), "", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ListAuditLogs(supervisorCtx(), "06/01/2026", 10); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	_, _ = svc.OpenBatch(supervisorCtx(), domain.BatchOpenRequest{CashRegisterID: 1})
	logs, err := svc.ListAuditLogs(supervisorCtx(), "", 10)
	if err != nil || len(logs) != 1 || logs[0].ActorEmail != "jony@ventas.local" {
		t.Fatalf("unexpected audit logs %+v %v", logs, err)
	}
}
