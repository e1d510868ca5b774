package saleform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ventas/backend/internal/catalog"
	"ventas/backend/internal/domain"
	"ventas/backend/internal/guard"
	"ventas/backend/internal/logging"
)

const SuccessNotice = "Venta registrada con éxito"

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateClosed  State = "closed"
)

// CatalogLoader is satisfied by *catalog.Loader.
type CatalogLoader interface {
	Load(ctx context.Context, identityEmail string) (*catalog.Catalog, error)
	OpenBatchID(ctx context.Context, userID int64) (int64, error)
}

type SessionOptions struct {
	SuggestionLimit int
	Guard           guard.Guard
	Logger          *logrus.Logger
	// OnSaved runs after a successful commit, outside the session lock, with
	// the context of the Save call.
	OnSaved func(context.Context, CommitResult)
}

// Session is one open sale form. All methods are safe for concurrent use;
// edits are refused while a save is in flight.
type Session struct {
	mu sync.Mutex

	loader    CatalogLoader
	validator *Validator
	committer *Committer
	guard     guard.Guard
	logger    *logrus.Logger
	onSaved   func(context.Context, CommitResult)
	limit     int

	identity    string
	state       State
	form        *Form
	loadErr     string
	headerErr   string
	notice      string
	committing  bool
	lastOrderID int64
}

func NewSession(loader CatalogLoader, validator *Validator, committer *Committer, opts SessionOptions) *Session {
	if opts.Guard == nil {
		opts.Guard = guard.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Session{
		loader:    loader,
		validator: validator,
		committer: committer,
		guard:     opts.Guard,
		logger:    opts.Logger,
		onSaved:   opts.OnSaved,
		limit:     opts.SuggestionLimit,
		state:     StateClosed,
	}
}

// Open loads the catalogs and starts a fresh draft. A load failure keeps the
// session in the loading state.
func (s *Session) Open(ctx context.Context, identityEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committing {
		return ErrCommitInProgress
	}
	s.identity = identityEmail
	s.state = StateLoading
	s.form = nil
	s.loadErr = ""
	s.headerErr = ""
	s.notice = ""

	cat, err := s.loader.Load(ctx, identityEmail)
	if err != nil {
		s.loadErr = err.Error()
		return err
	}
	s.form = NewForm(cat, s.limit)
	s.resolveBatch(ctx)
	s.state = StateReady
	return nil
}

func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// resolveBatch looks up the open batch of the draft's user. A lookup failure
// is logged and treated as no open batch.
func (s *Session) resolveBatch(ctx context.Context) {
	id, err := s.loader.OpenBatchID(ctx, s.form.draft.UserID)
	if err != nil {
		logging.LogError(s.logger, "saleform", "resolveBatch", "find open batch", s.form.draft.UserID, err)
		id = 0
	}
	s.form.draft.OpenBatchID = id
}

func (s *Session) editable() error {
	if s.committing {
		return ErrCommitInProgress
	}
	if s.state != StateReady || s.form == nil {
		return ErrNotReady
	}
	return nil
}

func (s *Session) edit(fn func(f *Form) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	return fn(s.form)
}

// HeaderChange names the header fields to change. Nil fields are left alone.
type HeaderChange struct {
	CustomerID     *int64
	UserID         *int64
	DocumentTypeID *int64
}

// SelectHeader checks every requested field before applying any of them, so a
// rejected field leaves the header untouched. Only a supervisor may pick a
// user other than themselves. A user change re-resolves the open batch.
func (s *Session) SelectHeader(ctx context.Context, change HeaderChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	f := s.form

	if id := change.CustomerID; id != nil && *id != 0 {
		if _, ok := f.catalog.Customer(*id); !ok {
			return ErrUnknownCustomer
		}
	}
	if id := change.UserID; id != nil {
		if f.catalog.UserLocked() && *id != f.draft.UserID {
			return ErrUserLocked
		}
		if *id != 0 {
			if _, ok := f.catalog.User(*id); !ok {
				return ErrUnknownUser
			}
		}
	}
	if id := change.DocumentTypeID; id != nil && *id != 0 {
		if _, ok := f.catalog.DocumentType(*id); !ok {
			return ErrUnknownDocType
		}
	}

	if change.CustomerID != nil {
		f.draft.CustomerID = *change.CustomerID
	}
	if change.DocumentTypeID != nil {
		f.draft.DocumentTypeID = *change.DocumentTypeID
	}
	if change.UserID != nil {
		f.draft.UserID = *change.UserID
		s.resolveBatch(ctx)
	}
	return nil
}

func (s *Session) SelectCustomer(id int64) error {
	return s.SelectHeader(context.Background(), HeaderChange{CustomerID: &id})
}

func (s *Session) SelectUser(ctx context.Context, id int64) error {
	return s.SelectHeader(ctx, HeaderChange{UserID: &id})
}

func (s *Session) SelectDocumentType(id int64) error {
	return s.SelectHeader(context.Background(), HeaderChange{DocumentTypeID: &id})
}

func (s *Session) SetSearchText(idx int, text string) error {
	return s.edit(func(f *Form) error { return f.SetSearchText(idx, text) })
}

func (s *Session) Suggestions(text string) ([]domain.Article, error) {
	var out []domain.Article
	err := s.edit(func(f *Form) error {
		out = f.Suggestions(text)
		return nil
	})
	return out, err
}

func (s *Session) SelectArticle(idx int, articleID int64) error {
	return s.edit(func(f *Form) error { return f.SelectArticle(idx, articleID) })
}

func (s *Session) SetQuantity(idx int, raw string) error {
	return s.edit(func(f *Form) error { return f.SetQuantity(idx, raw) })
}

func (s *Session) SetUnitPrice(idx int, raw string) error {
	return s.edit(func(f *Form) error { return f.SetUnitPrice(idx, raw) })
}

func (s *Session) AddLine() (int, error) {
	var idx int
	err := s.edit(func(f *Form) error {
		idx = f.AddLine()
		return nil
	})
	return idx, err
}

func (s *Session) RemoveLine(idx int) error {
	return s.edit(func(f *Form) error { return f.RemoveLine(idx) })
}

func (s *Session) SelectAccount(idx int, accountID int64) error {
	return s.edit(func(f *Form) error { return f.SelectAccount(idx, accountID) })
}

func (s *Session) SetAmount(idx int, raw string) error {
	return s.edit(func(f *Form) error { return f.SetAmount(idx, raw) })
}

func (s *Session) AddEntry() (int, error) {
	var idx int
	err := s.edit(func(f *Form) error {
		idx = f.AddEntry()
		return nil
	})
	return idx, err
}

func (s *Session) RemoveEntry(idx int) error {
	return s.edit(func(f *Form) error { return f.RemoveEntry(idx) })
}

// Save validates the draft and commits it. Only one save per session and per
// cash-drawer batch runs at a time. On success the session closes; on a
// commit failure the message is kept on the header and the draft stays open.
func (s *Session) Save(ctx context.Context) (CommitResult, error) {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return CommitResult{}, err
	}
	draft := s.form.Draft()
	cat := s.form.catalog
	if blockers := SaveBlockers(draft); len(blockers) > 0 {
		s.mu.Unlock()
		return CommitResult{}, blocked(blockers[0], "")
	}
	s.committing = true
	s.headerErr = ""
	s.mu.Unlock()

	result, err := s.validateAndCommit(ctx, draft, cat)

	s.mu.Lock()
	s.committing = false
	if err != nil {
		var cerr *CommitError
		if errors.As(err, &cerr) {
			s.headerErr = cerr.Message
		}
		s.mu.Unlock()
		return result, err
	}
	s.lastOrderID = result.OrderID
	s.state = StateClosed
	s.form = nil
	s.notice = SuccessNotice
	onSaved := s.onSaved
	s.mu.Unlock()

	if onSaved != nil {
		onSaved(ctx, result)
	}
	return result, nil
}

func (s *Session) validateAndCommit(ctx context.Context, draft Draft, cat *catalog.Catalog) (CommitResult, error) {
	if err := s.validator.Validate(ctx, draft, cat); err != nil {
		return CommitResult{}, err
	}

	release, err := s.guard.Acquire(ctx, fmt.Sprintf("sale-commit:batch:%d", draft.OpenBatchID))
	if errors.Is(err, guard.ErrBusy) {
		return CommitResult{}, ErrCommitInProgress
	}
	if err != nil {
		return CommitResult{}, err
	}
	defer release()

	return s.committer.Commit(ctx, PlanFromDraft(draft))
}

// Close discards the draft. It is refused while a save is in flight.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committing {
		return ErrCommitInProgress
	}
	s.state = StateClosed
	s.form = nil
	s.headerErr = ""
	return nil
}

// Reset restores the documented defaults without reloading the catalogs.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	s.form.Reset()
	s.headerErr = ""
	s.resolveBatch(ctx)
	return nil
}

type LineView struct {
	Index int `json:"index"`
	LineItem
}

type PaymentView struct {
	Index int `json:"index"`
	PaymentEntry
}

// View is the whole form as the UI renders it, verification tab included.
type View struct {
	State              State                    `json:"state"`
	LoadError          string                   `json:"load_error,omitempty"`
	HeaderError        string                   `json:"header_error,omitempty"`
	Notice             string                   `json:"notice,omitempty"`
	LastOrderID        int64                    `json:"last_order_id,omitempty"`
	Committing         bool                     `json:"committing"`
	Draft              *Draft                   `json:"draft,omitempty"`
	Total              decimal.Decimal          `json:"total"`
	PaidTotal          decimal.Decimal          `json:"paid_total"`
	PaymentGap         decimal.Decimal          `json:"payment_gap"`
	CanSave            bool                     `json:"can_save"`
	Blockers           []string                 `json:"blockers"`
	DuplicateAccounts  bool                     `json:"duplicate_accounts"`
	UserLocked         bool                     `json:"user_locked"`
	Users              []domain.User            `json:"users,omitempty"`
	Customers          []domain.Customer        `json:"customers,omitempty"`
	DocumentTypes      []domain.DocumentType    `json:"document_types,omitempty"`
	Accounts           []domain.TreasuryAccount `json:"accounts,omitempty"`
	VerifiedLines      []LineView               `json:"verified_lines"`
	VerifiedPayments   []PaymentView            `json:"verified_payments"`
	SuggestionsLine    *int                     `json:"suggestions_line,omitempty"`
	TrialDaysRemaining *int                     `json:"trial_days_remaining,omitempty"`
}

func (s *Session) Summary(ctx context.Context) View {
	s.mu.Lock()
	view := View{
		State:       s.state,
		LoadError:   s.loadErr,
		HeaderError: s.headerErr,
		Notice:      s.notice,
		LastOrderID: s.lastOrderID,
		Committing:  s.committing,
		Blockers:    []string{},
	}
	if s.form == nil {
		s.mu.Unlock()
		return view
	}

	f := s.form
	draft := f.Draft()
	cat := f.catalog
	view.Draft = &draft
	view.Total = draft.Total()
	view.PaidTotal = draft.PaidTotal()
	view.PaymentGap = draft.PaymentGap()
	view.DuplicateAccounts = draft.HasDuplicateAccounts()
	view.UserLocked = cat.UserLocked()
	view.Users = cat.SelectableUsers()
	view.Customers = cat.Customers()
	view.DocumentTypes = cat.DocumentTypes()
	view.Accounts = cat.Accounts()
	if idx, open := f.OpenSuggestions(); open {
		view.SuggestionsLine = &idx
	}
	s.mu.Unlock()

	for _, blocker := range SaveBlockers(draft) {
		view.Blockers = append(view.Blockers, Code(blocker))
	}
	view.CanSave = len(view.Blockers) == 0 && !view.Committing

	view.VerifiedLines = []LineView{}
	for i, l := range draft.Lines {
		if l.committable() {
			view.VerifiedLines = append(view.VerifiedLines, LineView{Index: i, LineItem: l})
		}
	}
	view.VerifiedPayments = []PaymentView{}
	for i, p := range draft.Payments {
		if p.committable() {
			view.VerifiedPayments = append(view.VerifiedPayments, PaymentView{Index: i, PaymentEntry: p})
		}
	}

	if remaining, limited, err := s.validator.TrialDaysRemaining(ctx, draft.UserID); err != nil {
		logging.LogError(s.logger, "saleform", "Summary", "trial days", draft.UserID, err)
	} else if limited {
		view.TrialDaysRemaining = &remaining
	}
	return view
}
