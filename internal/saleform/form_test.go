package saleform

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ventas/backend/internal/catalog"
	"ventas/backend/internal/domain"
)

func testCatalog() *catalog.Catalog {
	return catalog.Build(domain.CatalogSnapshot{
		Customers: []domain.Customer{
			{ID: 1, BusinessName: "Consumidor Final", IsDefault: true},
			{ID: 2, BusinessName: "Ferreteria Norte", MaxRunningBalance: decimal.NewFromInt(1000)},
			{ID: 3, BusinessName: "Almacen Don Tito"},
		},
		Users: []domain.User{
			{ID: 1, Email: "boss@shop.test", Role: domain.RoleSupervisor, IsDefault: true},
		},
		DocumentTypes: []domain.DocumentType{{ID: 1, Description: "Factura B", Active: true, IsDefault: true}},
		Accounts: []domain.TreasuryAccount{
			{ID: 1, Description: "Efectivo"},
			{ID: 3, Description: "CUENTA CORRIENTE"},
			{ID: 5, Description: "Banco"},
		},
		Articles: []domain.Article{
			{ID: 10, Description: "Yerba Mate 1kg", UnitPrice: decimal.RequireFromString("50.00"), Active: true},
			{ID: 11, Description: "Azucar 1kg", UnitPrice: decimal.RequireFromString("18.50"), Active: true},
		},
	}, "boss@shop.test", catalog.Defaults{})
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestNewFormStartsWithDefaults(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	d := f.Draft()

	if d.CustomerID != 1 || d.UserID != 1 || d.DocumentTypeID != 1 {
		t.Fatalf("unexpected header defaults %+v", d)
	}
	if len(d.Lines) != 1 || d.Lines[0].Article != nil || d.Lines[0].Quantity != 1 || !d.Lines[0].UnitPrice.IsZero() {
		t.Fatalf("expected one blank line, got %+v", d.Lines)
	}
	if len(d.Payments) != 1 || d.Payments[0].Account != nil || !d.Payments[0].AutoTracksTotal {
		t.Fatalf("expected one blank tracking payment entry, got %+v", d.Payments)
	}
}

func TestSelectArticleResetsOnlyInvalidQuantity(t *testing.T) {
	f := NewForm(testCatalog(), 8)

	if err := f.SetQuantity(0, ""); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if got := f.Draft().Lines[0].Quantity; got != 0 {
		t.Fatalf("empty quantity must be invalid, got %d", got)
	}
	if err := f.SelectArticle(0, 10); err != nil {
		t.Fatalf("select article: %v", err)
	}
	line := f.Draft().Lines[0]
	if line.Quantity != 1 {
		t.Fatalf("expected quantity reset to 1, got %d", line.Quantity)
	}
	if !line.UnitPrice.Equal(mustDecimal(t, "50")) || line.SearchText != "Yerba Mate 1kg" {
		t.Fatalf("expected catalog price and description, got %+v", line)
	}

	idx := f.AddLine()
	_ = f.SetQuantity(idx, "3")
	_ = f.SelectArticle(idx, 11)
	if got := f.Draft().Lines[idx].Quantity; got != 3 {
		t.Fatalf("expected quantity 3 to be kept, got %d", got)
	}
}

func TestSetQuantityAndPriceCoercion(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SelectArticle(0, 10)

	cases := []struct {
		raw  string
		want int
	}{
		{"-4", 1}, {"0", 1}, {"2.9", 2}, {" 7 ", 7}, {"abc", 0}, {"", 0},
	}
	for _, tc := range cases {
		_ = f.SetQuantity(0, tc.raw)
		if got := f.Draft().Lines[0].Quantity; got != tc.want {
			t.Fatalf("SetQuantity(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}

	_ = f.SetQuantity(0, "2")
	_ = f.SetUnitPrice(0, "-10")
	if line := f.Draft().Lines[0]; !line.UnitPrice.IsZero() || !line.Subtotal.IsZero() {
		t.Fatalf("negative price must floor at zero, got %+v", line)
	}
	_ = f.SetUnitPrice(0, "12.25")
	if line := f.Draft().Lines[0]; !line.Subtotal.Equal(mustDecimal(t, "24.5")) {
		t.Fatalf("expected subtotal 24.5, got %s", line.Subtotal)
	}
}

func TestInvalidQuantityBlocksSave(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SelectArticle(0, 10)
	_ = f.SelectAccount(0, 1)
	if !CanSave(f.Draft()) {
		t.Fatalf("expected valid draft, blockers %v", SaveBlockers(f.Draft()))
	}

	_ = f.SetQuantity(0, "x")
	blockers := SaveBlockers(f.Draft())
	if len(blockers) == 0 || !errors.Is(blockers[0], ErrNoQuantity) {
		t.Fatalf("expected no-quantity blocker first, got %v", blockers)
	}
	if !containsErr(blockers, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity blocker, got %v", blockers)
	}
}

func TestRemoveLineKeepsAtLeastOne(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	if err := f.RemoveLine(0); !errors.Is(err, ErrLastLine) {
		t.Fatalf("expected ErrLastLine, got %v", err)
	}
	f.AddLine()
	_ = f.SelectArticle(1, 11)
	if err := f.RemoveLine(0); err != nil {
		t.Fatalf("remove line: %v", err)
	}
	d := f.Draft()
	if len(d.Lines) != 1 || d.Lines[0].Article == nil || d.Lines[0].Article.ID != 11 {
		t.Fatalf("expected the article line to remain, got %+v", d.Lines)
	}
	if err := f.SetQuantity(4, "1"); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestUnknownSelectionsAreRejected(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	if err := f.SelectArticle(0, 99); !errors.Is(err, ErrUnknownArticle) {
		t.Fatalf("expected ErrUnknownArticle, got %v", err)
	}
	if err := f.SelectAccount(0, 99); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestSuggestionListOpensAndClosesPerLine(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SetSearchText(0, "yer")
	if idx, open := f.OpenSuggestions(); !open || idx != 0 {
		t.Fatalf("expected suggestions open on line 0")
	}
	if got := f.Suggestions("YER"); len(got) != 1 || got[0].ID != 10 {
		t.Fatalf("unexpected suggestions %+v", got)
	}
	_ = f.SelectArticle(0, 10)
	if _, open := f.OpenSuggestions(); open {
		t.Fatalf("selecting an article must close suggestions")
	}
}

func TestAutoFillTracksTotalUntilEdited(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SelectArticle(0, 10)
	_ = f.SetUnitPrice(0, "1500.00")

	entry := f.Draft().Payments[0]
	if !entry.Amount.Equal(mustDecimal(t, "1500.00")) || entry.AmountText != "1,500" {
		t.Fatalf("expected auto-filled 1500, got %s %q", entry.Amount, entry.AmountText)
	}

	_ = f.SetAmount(0, "1,500.00")
	_ = f.SetQuantity(0, "2")
	entry = f.Draft().Payments[0]
	if !entry.Amount.Equal(mustDecimal(t, "1500")) || entry.AutoTracksTotal {
		t.Fatalf("edited entry must stop tracking, got %s", entry.Amount)
	}
	if entry.AmountText != "1,500.00" {
		t.Fatalf("expected typed display text, got %q", entry.AmountText)
	}
}

func TestRemovingFirstEntryRestoresAutoFill(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SelectArticle(0, 10)
	_ = f.SetAmount(0, "20")
	second := f.AddEntry()
	_ = f.SetAmount(second, "30")

	if err := f.RemoveEntry(0); err != nil {
		t.Fatalf("remove entry: %v", err)
	}
	entry := f.Draft().Payments[0]
	if !entry.AutoTracksTotal || !entry.Amount.Equal(mustDecimal(t, "50")) {
		t.Fatalf("new first entry must track the total, got %+v", entry)
	}
	if err := f.RemoveEntry(0); !errors.Is(err, ErrLastEntry) {
		t.Fatalf("expected ErrLastEntry, got %v", err)
	}
}

func TestPaymentMismatchReDisablesSave(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SelectArticle(0, 10)
	_ = f.SelectAccount(0, 1)
	_ = f.SetAmount(0, "50")
	if !CanSave(f.Draft()) {
		t.Fatalf("expected save enabled, blockers %v", SaveBlockers(f.Draft()))
	}

	_ = f.SetQuantity(0, "2")
	if CanSave(f.Draft()) || !containsErr(SaveBlockers(f.Draft()), ErrPaymentMismatch) {
		t.Fatalf("quantity change must re-disable save")
	}
	if gap := f.Draft().PaymentGap(); !gap.Equal(mustDecimal(t, "-50")) {
		t.Fatalf("expected gap -50, got %s", gap)
	}

	_ = f.SetAmount(0, "100")
	if !CanSave(f.Draft()) {
		t.Fatalf("restored totals must re-enable save")
	}

	_ = f.SetUnitPrice(0, "49.99")
	if CanSave(f.Draft()) {
		t.Fatalf("price change must re-disable save")
	}
}

func TestDuplicateAccountsDisableSave(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	_ = f.SelectArticle(0, 10)
	_ = f.SelectAccount(0, 5)
	_ = f.SetAmount(0, "25")
	idx := f.AddEntry()
	_ = f.SelectAccount(idx, 5)
	_ = f.SetAmount(idx, "25")

	if !f.HasDuplicateAccounts() {
		t.Fatalf("expected duplicate detection")
	}
	blockers := SaveBlockers(f.Draft())
	if len(blockers) != 1 || !errors.Is(blockers[0], ErrDuplicateAccounts) {
		t.Fatalf("expected only the duplicate blocker, got %v", blockers)
	}

	_ = f.SelectAccount(idx, 1)
	if !CanSave(f.Draft()) {
		t.Fatalf("distinct accounts must re-enable save")
	}
}

func TestParseAmountText(t *testing.T) {
	cases := []struct {
		raw     string
		value   string
		display string
	}{
		{"1500", "1500", "1,500"},
		{"$1,234,567.891", "1234567.891", "1,234,567.891"},
		{"12.", "12", "12"},
		{".5", "0.5", ".5"},
		{"12.3.4", "12.3", "12.3"},
		{"abc", "0", ""},
		{"", "0", ""},
	}
	for _, tc := range cases {
		value, display := ParseAmountText(tc.raw)
		if !value.Equal(mustDecimal(t, tc.value)) || display != tc.display {
			t.Fatalf("ParseAmountText(%q) = %s %q, want %s %q", tc.raw, value, display, tc.value, tc.display)
		}
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	f := NewForm(testCatalog(), 8)
	f.draft.CustomerID = 3
	_ = f.SelectArticle(0, 10)
	f.AddLine()
	_ = f.SetAmount(0, "5")
	f.AddEntry()

	f.Reset()
	d := f.Draft()
	if d.CustomerID != 1 || len(d.Lines) != 1 || d.Lines[0].Article != nil || len(d.Payments) != 1 || !d.Payments[0].AutoTracksTotal {
		t.Fatalf("reset did not restore defaults: %+v", d)
	}
}

func containsErr(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
