package saleform

import (
	"github.com/shopspring/decimal"

	"ventas/backend/internal/catalog"
	"ventas/backend/internal/domain"
)

// LineItem is one article row of the draft. Quantity 0 marks an empty or
// unparseable quantity, which blocks the save.
type LineItem struct {
	Article    *domain.Article `json:"article,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	SearchText string          `json:"search_text"`
}

func (l *LineItem) recompute() {
	l.Subtotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l LineItem) committable() bool {
	return l.Article != nil && l.Quantity > 0
}

// PaymentEntry allocates part of the total to a treasury account.
// AutoTracksTotal entries are overwritten with the running total.
type PaymentEntry struct {
	Account         *domain.TreasuryAccount `json:"account,omitempty"`
	Amount          decimal.Decimal         `json:"amount"`
	AmountText      string                  `json:"amount_text"`
	AutoTracksTotal bool                    `json:"auto_tracks_total"`
}

func (p PaymentEntry) committable() bool {
	return p.Account != nil && p.Amount.IsPositive()
}

// Draft is the sale under construction. It lives only as long as its session.
type Draft struct {
	CustomerID     int64          `json:"customer_id"`
	UserID         int64          `json:"user_id"`
	DocumentTypeID int64          `json:"document_type_id"`
	OpenBatchID    int64          `json:"open_batch_id"`
	Lines          []LineItem     `json:"lines"`
	Payments       []PaymentEntry `json:"payments"`
}

func blankLine() LineItem {
	return LineItem{Quantity: 1}
}

func blankPayment() PaymentEntry {
	return PaymentEntry{}
}

// NewDraft returns a draft with the given defaults, one blank line and one
// blank auto-tracking payment entry.
func NewDraft(defaults catalog.Defaults) Draft {
	first := blankPayment()
	first.AutoTracksTotal = true
	return Draft{
		CustomerID:     defaults.CustomerID,
		UserID:         defaults.UserID,
		DocumentTypeID: defaults.DocumentTypeID,
		Lines:          []LineItem{blankLine()},
		Payments:       []PaymentEntry{first},
	}
}

func (d Draft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		if l.Quantity > 0 {
			total = total.Add(l.Subtotal)
		}
	}
	return total
}

func (d Draft) PaidTotal() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range d.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// PaymentGap is paid minus total; a save needs it to be exactly zero.
func (d Draft) PaymentGap() decimal.Decimal {
	return d.PaidTotal().Sub(d.Total())
}

func (d Draft) HasDuplicateAccounts() bool {
	ids := make([]int64, 0, len(d.Payments))
	unique := make(map[int64]struct{}, len(d.Payments))
	for _, p := range d.Payments {
		if p.Account == nil {
			continue
		}
		ids = append(ids, p.Account.ID)
		unique[p.Account.ID] = struct{}{}
	}
	return len(ids) != len(unique)
}

// UsesRunningAccount reports whether a committable entry is bound to a
// running account. Zero-amount entries are never written, so they do not count.
func (d Draft) UsesRunningAccount() bool {
	for _, p := range d.Payments {
		if p.committable() && p.Account.Kind == domain.AccountKindRunning {
			return true
		}
	}
	return false
}

func (d Draft) clone() Draft {
	out := d
	out.Lines = append([]LineItem(nil), d.Lines...)
	out.Payments = append([]PaymentEntry(nil), d.Payments...)
	return out
}

// Form binds a draft to the catalog it selects from. It performs no I/O.
type Form struct {
	catalog         *catalog.Catalog
	draft           Draft
	suggestionLimit int
	suggestionsFor  int
}

func NewForm(cat *catalog.Catalog, suggestionLimit int) *Form {
	if suggestionLimit < 1 {
		suggestionLimit = 8
	}
	f := &Form{
		catalog:         cat,
		suggestionLimit: suggestionLimit,
	}
	f.Reset()
	return f
}

// Reset restores the documented defaults.
func (f *Form) Reset() {
	f.draft = NewDraft(f.catalog.Defaults())
	if id, ok := f.catalog.ForcedUserID(); ok {
		f.draft.UserID = id
	}
	f.suggestionsFor = -1
	f.syncAutoFill()
}

func (f *Form) Catalog() *catalog.Catalog {
	return f.catalog
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() Draft {
	return f.draft.clone()
}

func (f *Form) Total() decimal.Decimal {
	return f.draft.Total()
}
