package saleform

// SelectAccount binds the entry to a selectable treasury account. Id 0 unbinds it.
func (f *Form) SelectAccount(idx int, accountID int64) error {
	entry, err := f.payment(idx)
	if err != nil {
		return err
	}
	if accountID == 0 {
		entry.Account = nil
		return nil
	}
	account, ok := f.catalog.Account(accountID)
	if !ok {
		return ErrUnknownAccount
	}
	entry.Account = &account
	return nil
}

// SetAmount stores a typed amount and stops the entry from tracking the total.
func (f *Form) SetAmount(idx int, raw string) error {
	entry, err := f.payment(idx)
	if err != nil {
		return err
	}
	entry.Amount, entry.AmountText = ParseAmountText(raw)
	entry.AutoTracksTotal = false
	return nil
}

func (f *Form) AddEntry() int {
	f.draft.Payments = append(f.draft.Payments, blankPayment())
	f.syncAutoFill()
	return len(f.draft.Payments) - 1
}

// RemoveEntry drops the entry unless it is the last one left. Removing the
// first entry hands total tracking to the new first entry.
func (f *Form) RemoveEntry(idx int) error {
	if _, err := f.payment(idx); err != nil {
		return err
	}
	if len(f.draft.Payments) == 1 {
		return ErrLastEntry
	}
	f.draft.Payments = append(f.draft.Payments[:idx], f.draft.Payments[idx+1:]...)
	if idx == 0 {
		f.draft.Payments[0].AutoTracksTotal = true
	}
	f.syncAutoFill()
	return nil
}

func (f *Form) HasDuplicateAccounts() bool {
	return f.draft.HasDuplicateAccounts()
}

func (f *Form) payment(idx int) (*PaymentEntry, error) {
	if idx < 0 || idx >= len(f.draft.Payments) {
		return nil, ErrIndexOutOfRange
	}
	return &f.draft.Payments[idx], nil
}

// syncAutoFill writes the current total into every tracking entry.
func (f *Form) syncAutoFill() {
	total := f.draft.Total()
	text := FormatAmount(total)
	for i := range f.draft.Payments {
		if f.draft.Payments[i].AutoTracksTotal {
			f.draft.Payments[i].Amount = total
			f.draft.Payments[i].AmountText = text
		}
	}
}
