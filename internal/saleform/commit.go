package saleform

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ventas/backend/internal/domain"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/store"
	"ventas/backend/internal/xid"
)

const saleDateLayout = "2006-01-02 15:04:05"

type PlannedLine struct {
	ArticleID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

type PlannedPayment struct {
	AccountID int64
	Kind      domain.AccountKind
	Amount    decimal.Decimal
}

// Plan is the committable part of a draft, captured before any write.
type Plan struct {
	CustomerID     int64
	UserID         int64
	BatchID        int64
	DocumentTypeID int64
	Total          decimal.Decimal
	Lines          []PlannedLine
	Payments       []PlannedPayment
}

func PlanFromDraft(draft Draft) Plan {
	plan := Plan{
		CustomerID:     draft.CustomerID,
		UserID:         draft.UserID,
		BatchID:        draft.OpenBatchID,
		DocumentTypeID: draft.DocumentTypeID,
		Total:          draft.Total(),
	}
	for _, l := range draft.Lines {
		if !l.committable() {
			continue
		}
		plan.Lines = append(plan.Lines, PlannedLine{
			ArticleID: l.Article.ID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	for _, p := range draft.Payments {
		if !p.committable() {
			continue
		}
		plan.Payments = append(plan.Payments, PlannedPayment{
			AccountID: p.Account.ID,
			Kind:      p.Account.Kind,
			Amount:    p.Amount,
		})
	}
	return plan
}

func (p Plan) usesRunningAccount() bool {
	for _, pay := range p.Payments {
		if pay.Kind == domain.AccountKindRunning {
			return true
		}
	}
	return false
}

type CommitResult struct {
	OrderID int64        `json:"order_id"`
	Report  CommitReport `json:"report"`
}

// Committer writes a sale's records in dependency order. On a store that
// implements store.Transactor the writes are atomic; otherwise a failure
// leaves the already written prefix in place.
type Committer struct {
	repo   store.SaleWriter
	audit  store.AuditWriter
	logger *logrus.Logger
	now    func() time.Time
}

func NewCommitter(repo store.SaleWriter, audit store.AuditWriter, logger *logrus.Logger, now func() time.Time) *Committer {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Committer{repo: repo, audit: audit, logger: logger, now: now}
}

func (c *Committer) Commit(ctx context.Context, plan Plan) (CommitResult, error) {
	date := c.now().Local().Format(saleDateLayout)

	var report CommitReport
	var err error
	if tx, ok := c.repo.(store.Transactor); ok {
		report.Atomic = true
		err = tx.InTx(ctx, func(w store.SaleWriter) error {
			return writeSale(ctx, w, plan, date, &report)
		})
		if err != nil {
			// Rolled back; nothing of the prefix survived.
			report.OrderID = 0
		}
	} else {
		err = writeSale(ctx, c.repo, plan, date, &report)
	}

	if err != nil {
		cerr := &CommitError{Message: commitMessage(err), Report: report, Err: err}
		c.recordFailure(ctx, plan, cerr)
		return CommitResult{Report: report}, cerr
	}

	c.logger.WithFields(logrus.Fields{
		"module":   "saleform",
		"order_id": report.OrderID,
		"batch_id": plan.BatchID,
		"total":    plan.Total.String(),
		"lines":    len(plan.Lines),
		"payments": len(plan.Payments),
	}).Info("sale committed")
	return CommitResult{OrderID: report.OrderID, Report: report}, nil
}

func writeSale(ctx context.Context, w store.SaleWriter, plan Plan, date string, report *CommitReport) error {
	fail := func(step Step, err error) error {
		report.FailedStep = string(step)
		return err
	}

	order, err := w.CreateSaleOrder(ctx, domain.SaleOrder{
		CustomerID:     plan.CustomerID,
		UserID:         plan.UserID,
		BatchID:        plan.BatchID,
		DocumentTypeID: plan.DocumentTypeID,
		Date:           date,
		Total:          plan.Total,
		Subtotal:       plan.Total,
	})
	if err != nil {
		return fail(StepSaleOrder, err)
	}
	report.OrderID = order.ID
	report.done(StepSaleOrder, 0, order.ID)

	for i, line := range plan.Lines {
		detail, err := w.CreateSaleLineDetail(ctx, domain.SaleLineDetail{
			OrderID:   order.ID,
			ArticleID: line.ArticleID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
		if err != nil {
			return fail(StepLineDetail, err)
		}
		report.done(StepLineDetail, i, detail.ID)

		movement, err := w.CreateStockMovement(ctx, domain.StockMovement{
			OrderID:   order.ID,
			ArticleID: line.ArticleID,
			Origin:    domain.StockOriginInvoice,
			Direction: domain.StockDirectionOut,
			Quantity:  -line.Quantity,
		})
		if err != nil {
			return fail(StepStockMovement, err)
		}
		report.done(StepStockMovement, i, movement.ID)
	}

	for i, pay := range plan.Payments {
		payment, err := w.CreateSalePayment(ctx, domain.SalePayment{
			OrderID:   order.ID,
			AccountID: pay.AccountID,
			Amount:    pay.Amount,
		})
		if err != nil {
			return fail(StepPayment, err)
		}
		report.done(StepPayment, i, payment.ID)

		if pay.Kind == domain.AccountKindRunning {
			continue
		}
		entry, err := w.CreateLedgerEntry(ctx, domain.LedgerEntry{
			BatchID:   plan.BatchID,
			AccountID: pay.AccountID,
			Direction: domain.LedgerDirectionIncome,
			Amount:    pay.Amount,
		})
		if err != nil {
			return fail(StepLedgerEntry, err)
		}
		report.done(StepLedgerEntry, i, entry.ID)
	}

	if plan.usesRunningAccount() {
		record, err := w.CreateRunningAccountRecord(ctx, domain.RunningAccountRecord{
			OrderID:    order.ID,
			CustomerID: plan.CustomerID,
			Total:      plan.Total,
			Balance:    plan.Total,
			Status:     domain.RunningAccountStatusPending,
		})
		if err != nil {
			return fail(StepRunningAccount, err)
		}
		report.done(StepRunningAccount, 0, record.ID)
	}
	return nil
}

func (c *Committer) recordFailure(ctx context.Context, plan Plan, cerr *CommitError) {
	c.logger.WithFields(logrus.Fields{
		"module":      "saleform",
		"funcName":    "Commit",
		"order_id":    cerr.Report.OrderID,
		"failed_step": cerr.Report.FailedStep,
		"completed":   cerr.Report.Completed,
		"atomic":      cerr.Report.Atomic,
		"batch_id":    plan.BatchID,
	}).WithError(cerr.Err).Warn("sale commit failed")

	if c.audit == nil {
		return
	}
	entry := domain.AuditLog{
		ID:         xid.New("audit"),
		Action:     "sale_commit_failed",
		EntityType: "sale_order",
		EntityID:   formatID(cerr.Report.OrderID),
		Detail:     cerr.Report.String(),
		CreatedAt:  c.now().UTC(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		entry.ActorEmail = actor.Email
		entry.ActorRole = actor.Role
	}
	// The caller's ctx may be the one that failed the commit.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.audit.CreateAuditLog(auditCtx, entry); err != nil {
		logging.LogError(c.logger, "saleform", "recordFailure", "write audit log", cerr.Report, err)
	}
}
