package saleform

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ventas/backend/internal/domain"
)

// SetSearchText updates the line's autocomplete buffer. Non-empty text opens
// the suggestion list for that line.
func (f *Form) SetSearchText(idx int, text string) error {
	line, err := f.line(idx)
	if err != nil {
		return err
	}
	line.SearchText = text
	if text != "" {
		f.suggestionsFor = idx
	} else if f.suggestionsFor == idx {
		f.suggestionsFor = -1
	}
	return nil
}

// OpenSuggestions reports which line, if any, has its suggestion list open.
func (f *Form) OpenSuggestions() (int, bool) {
	return f.suggestionsFor, f.suggestionsFor >= 0
}

func (f *Form) Suggestions(text string) []domain.Article {
	return f.catalog.Suggestions(text, f.suggestionLimit)
}

// SelectArticle binds the line to a catalog article and prefills its price.
// A quantity the user already set validly is kept. Id 0 unbinds the line.
func (f *Form) SelectArticle(idx int, articleID int64) error {
	line, err := f.line(idx)
	if err != nil {
		return err
	}
	if articleID == 0 {
		line.Article = nil
		f.afterLineChange(line)
		return nil
	}

	article, ok := f.catalog.Article(articleID)
	if !ok {
		return ErrUnknownArticle
	}
	line.Article = &article
	line.UnitPrice = article.UnitPrice
	line.SearchText = article.Description
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	if f.suggestionsFor == idx {
		f.suggestionsFor = -1
	}
	f.afterLineChange(line)
	return nil
}

// SetQuantity takes the typed text. Numbers are truncated and floored at 1;
// empty or non-numeric text leaves the line with an invalid quantity.
func (f *Form) SetQuantity(idx int, raw string) error {
	line, err := f.line(idx)
	if err != nil {
		return err
	}
	line.Quantity = parseQuantity(raw)
	f.afterLineChange(line)
	return nil
}

func (f *Form) SetUnitPrice(idx int, raw string) error {
	line, err := f.line(idx)
	if err != nil {
		return err
	}
	price, perr := decimal.NewFromString(strings.TrimSpace(raw))
	if perr != nil || price.IsNegative() {
		price = decimal.Zero
	}
	line.UnitPrice = price
	f.afterLineChange(line)
	return nil
}

func (f *Form) AddLine() int {
	f.draft.Lines = append(f.draft.Lines, blankLine())
	f.syncAutoFill()
	return len(f.draft.Lines) - 1
}

// RemoveLine drops the line unless it is the last one left.
func (f *Form) RemoveLine(idx int) error {
	if _, err := f.line(idx); err != nil {
		return err
	}
	if len(f.draft.Lines) == 1 {
		return ErrLastLine
	}
	f.draft.Lines = append(f.draft.Lines[:idx], f.draft.Lines[idx+1:]...)
	switch {
	case f.suggestionsFor == idx:
		f.suggestionsFor = -1
	case f.suggestionsFor > idx:
		f.suggestionsFor--
	}
	f.syncAutoFill()
	return nil
}

func (f *Form) line(idx int) (*LineItem, error) {
	if idx < 0 || idx >= len(f.draft.Lines) {
		return nil, ErrIndexOutOfRange
	}
	return &f.draft.Lines[idx], nil
}

func (f *Form) afterLineChange(line *LineItem) {
	line.recompute()
	f.syncAutoFill()
}

func parseQuantity(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n != n {
		return 0
	}
	if n < 1 {
		return 1
	}
	if n > 1e9 {
		return 1e9
	}
	return int(n)
}
