package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ventas/backend/internal/catalog"
	"ventas/backend/internal/domain"
	"ventas/backend/internal/guard"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/saleform"
	"ventas/backend/internal/store"
	"ventas/backend/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("supervisor role required")
	ErrSessionNotFound = errors.New("sale session not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

const sessionPrefix = "sess"

// WithActor and ActorFromContext carry the authenticated identity.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return saleform.WithActor(ctx, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	return saleform.ActorFromContext(ctx)
}

type Options struct {
	Loader          *catalog.Loader
	Guard           guard.Guard
	Logger          *logrus.Logger
	TrialDays       int
	SuggestionLimit int
	SessionIdle     time.Duration
	Now             func() time.Time
}

type Service struct {
	repo      store.Repository
	loader    *catalog.Loader
	validator *saleform.Validator
	committer *saleform.Committer
	guard     guard.Guard
	logger    *logrus.Logger
	limit     int
	idle      time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session  *saleform.Session
	owner    string
	lastUsed time.Time
}

// SessionResponse is a form session as returned to the client.
type SessionResponse struct {
	ID string `json:"id"`
	saleform.View
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Loader == nil {
		opts.Loader = catalog.NewLoader(repo, catalog.Options{Logger: opts.Logger})
	}
	if opts.Guard == nil {
		opts.Guard = guard.NewLocal()
	}
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:      repo,
		loader:    opts.Loader,
		validator: saleform.NewValidator(repo, opts.TrialDays, opts.Now),
		committer: saleform.NewCommitter(repo, repo, opts.Logger, opts.Now),
		guard:     opts.Guard,
		logger:    opts.Logger,
		limit:     opts.SuggestionLimit,
		idle:      opts.SessionIdle,
		now:       opts.Now,
		sessions:  make(map[string]*sessionEntry),
	}
}

// OpenSession starts a sale form for the authenticated actor.
func (s *Service) OpenSession(ctx context.Context) (SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Email == "" {
		return SessionResponse{}, ErrUnauthenticated
	}

	id := xid.New(sessionPrefix)
	session := saleform.NewSession(s.loader, s.validator, s.committer, saleform.SessionOptions{
		SuggestionLimit: s.limit,
		Guard:           s.guard,
		Logger:          s.logger,
		OnSaved: func(saveCtx context.Context, result saleform.CommitResult) {
			s.logAudit(saveCtx, "sale_commit", "sale_order", fmt.Sprintf("%d", result.OrderID), "session="+id)
		},
	})
	if err := session.Open(ctx, actor.Email); err != nil {
		return SessionResponse{}, err
	}

	s.mu.Lock()
	s.sessions[id] = &sessionEntry{session: session, owner: strings.ToLower(actor.Email), lastUsed: s.now()}
	s.mu.Unlock()

	return SessionResponse{ID: id, View: session.Summary(ctx)}, nil
}

// Session returns a form session owned by the actor. Supervisors may reach
// any session.
func (s *Service) Session(ctx context.Context, id string) (*saleform.Session, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !xid.Valid(sessionPrefix, id) {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if entry.owner != strings.ToLower(actor.Email) && actor.Role != domain.RoleSupervisor {
		return nil, ErrSessionNotFound
	}
	entry.lastUsed = s.now()
	return entry.session, nil
}

func (s *Service) Summary(ctx context.Context, id string) (SessionResponse, error) {
	session, err := s.Session(ctx, id)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{ID: id, View: session.Summary(ctx)}, nil
}

// ReopenSession reloads the catalogs and starts a fresh draft in an existing session.
func (s *Service) ReopenSession(ctx context.Context, id string) (SessionResponse, error) {
	session, err := s.Session(ctx, id)
	if err != nil {
		return SessionResponse{}, err
	}
	actor, _ := ActorFromContext(ctx)
	if err := session.Open(ctx, actor.Email); err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{ID: id, View: session.Summary(ctx)}, nil
}

// CloseSession cancels the draft and forgets the session.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	session, err := s.Session(ctx, id)
	if err != nil {
		return err
	}
	if err := session.Close(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// SaveSession validates and commits the session's draft.
func (s *Service) SaveSession(ctx context.Context, id string) (SessionResponse, error) {
	session, err := s.Session(ctx, id)
	if err != nil {
		return SessionResponse{}, err
	}
	if _, err := session.Save(ctx); err != nil {
		return SessionResponse{ID: id, View: session.Summary(ctx)}, err
	}
	return SessionResponse{ID: id, View: session.Summary(ctx)}, nil
}

// SweepIdle drops sessions unused for longer than the idle window. Sessions
// with a save in flight are kept.
func (s *Service) SweepIdle() int {
	cutoff := s.now().Add(-s.idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		if entry.lastUsed.After(cutoff) {
			continue
		}
		if err := entry.session.Close(); err != nil {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("idle sale sessions swept")
	}
	return removed
}

// RunSweeper sweeps idle sessions until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle()
		}
	}
}

func (s *Service) actorUser(ctx context.Context) (*domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Email == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.GetUserByEmail(ctx, actor.Email)
}

func (s *Service) OpenBatch(ctx context.Context, req domain.BatchOpenRequest) (domain.Batch, error) {
	user, err := s.actorUser(ctx)
	if err != nil {
		return domain.Batch{}, err
	}
	if req.CashRegisterID < 1 || req.InitialBalance.IsNegative() {
		return domain.Batch{}, ErrInvalidRequest
	}

	saved, err := s.repo.OpenBatch(ctx, domain.Batch{
		UserID:         user.ID,
		CashRegisterID: req.CashRegisterID,
		OpenedAt:       s.now().UTC(),
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		return domain.Batch{}, err
	}

	s.logAudit(ctx, "batch_open", "batch", fmt.Sprintf("%d", saved.ID), "initial_balance="+req.InitialBalance.String())
	return *saved, nil
}

func (s *Service) CloseBatch(ctx context.Context, req domain.BatchCloseRequest) (domain.Batch, error) {
	user, err := s.actorUser(ctx)
	if err != nil {
		return domain.Batch{}, err
	}

	closed, err := s.repo.CloseOpenBatch(ctx, user.ID, req.Notes, s.now().UTC())
	if err != nil {
		return domain.Batch{}, err
	}
	s.logAudit(ctx, "batch_close", "batch", fmt.Sprintf("%d", closed.ID), closed.Notes)
	return *closed, nil
}

func (s *Service) GetOpenBatch(ctx context.Context) (domain.Batch, error) {
	user, err := s.actorUser(ctx)
	if err != nil {
		return domain.Batch{}, err
	}
	batch, err := s.repo.FindOpenBatch(ctx, user.ID)
	if err != nil {
		return domain.Batch{}, err
	}
	return *batch, nil
}

// BatchSummary totals a batch's ledger: initial balance plus income minus expense.
// Operators only see their own batches.
func (s *Service) BatchSummary(ctx context.Context, batchID int64) (domain.BatchSummary, error) {
	user, err := s.actorUser(ctx)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	if batch.UserID != user.ID && user.Role != domain.RoleSupervisor {
		return domain.BatchSummary{}, store.ErrNotFound
	}

	entries, err := s.repo.ListLedgerEntries(ctx, batchID)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	income, expense := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Direction {
		case domain.LedgerDirectionIncome:
			income = income.Add(e.Amount)
		case domain.LedgerDirectionExpense:
			expense = expense.Add(e.Amount)
		}
	}

	return domain.BatchSummary{
		Batch:   *batch,
		Income:  income,
		Expense: expense,
		Balance: batch.InitialBalance.Add(income).Sub(expense),
		Entries: len(entries),
	}, nil
}

// ListAuditLogs returns one day of audit records, newest first. Supervisor only.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleSupervisor {
		return nil, ErrForbidden
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, ErrInvalidRequest
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Email: "system", Role: "system"}
	}

	// The request ctx may already be done when a save callback fires.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.repo.CreateAuditLog(auditCtx, domain.AuditLog{
		ID:         xid.New("audit"),
		ActorEmail: actor.Email,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		logging.LogError(s.logger, "service", "logAudit", action, entityType+"/"+entityID, err)
	}
}
