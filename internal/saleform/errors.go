package saleform

import (
	"errors"
	"fmt"
	"strings"
)

// Editor errors.
var (
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrLastLine         = errors.New("a sale needs at least one line")
	ErrLastEntry        = errors.New("a sale needs at least one payment entry")
	ErrUnknownArticle   = errors.New("article is not selectable")
	ErrUnknownAccount   = errors.New("treasury account is not selectable")
	ErrUnknownCustomer  = errors.New("customer is not selectable")
	ErrUnknownUser      = errors.New("user is not selectable")
	ErrUnknownDocType   = errors.New("document type is not selectable")
	ErrUserLocked       = errors.New("only a supervisor can change the operator")
	ErrCommitInProgress = errors.New("sale is being saved")
	ErrNotReady         = errors.New("sale form is not ready")
)

// Ordered save checks.
var (
	ErrTrialEnded             = errors.New("trial period ended")
	ErrNoOpenBatch            = errors.New("no open cash-drawer batch")
	ErrMissingPayment         = errors.New("missing payment method")
	ErrRunningAccountCustomer = errors.New("running account requires a registered customer")
	ErrCreditLimitExceeded    = errors.New("running account credit limit exceeded")
)

// Conditions that keep the save action disabled.
var (
	ErrNoQuantity        = errors.New("no line has a positive quantity")
	ErrInvalidQuantity   = errors.New("a line has an invalid quantity")
	ErrPaymentMismatch   = errors.New("payments do not match the sale total")
	ErrDuplicateAccounts = errors.New("a treasury account is used twice")
)

var codes = map[error]string{
	ErrTrialEnded:             "trial_ended",
	ErrNoOpenBatch:            "no_open_batch",
	ErrMissingPayment:         "missing_payment",
	ErrRunningAccountCustomer: "running_account_customer",
	ErrCreditLimitExceeded:    "credit_limit_exceeded",
	ErrNoQuantity:             "no_quantity",
	ErrInvalidQuantity:        "invalid_quantity",
	ErrPaymentMismatch:        "payment_mismatch",
	ErrDuplicateAccounts:      "duplicate_accounts",
}

// ValidationError is a blocked save. It unwraps to one of the check sentinels.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Code is the signal the UI maps to a message.
func (e *ValidationError) Code() string {
	return Code(e.Err)
}

// Code maps a check sentinel to its UI signal.
func Code(err error) string {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "invalid_sale"
}

func blocked(err error, detail string) *ValidationError {
	return &ValidationError{Err: err, Detail: detail}
}

// Step names a write of the commit sequence.
type Step string

const (
	StepSaleOrder      Step = "sale_order"
	StepLineDetail     Step = "line_detail"
	StepStockMovement  Step = "stock_movement"
	StepPayment        Step = "payment"
	StepLedgerEntry    Step = "ledger_entry"
	StepRunningAccount Step = "running_account"
)

// CommitReport records how far a commit got, for manual reconciliation.
type CommitReport struct {
	OrderID    int64    `json:"order_id,omitempty"`
	Completed  []string `json:"completed"`
	FailedStep string   `json:"failed_step,omitempty"`
	Atomic     bool     `json:"atomic"`
}

func (r *CommitReport) done(step Step, index int, id int64) {
	r.Completed = append(r.Completed, fmt.Sprintf("%s[%d]#%d", step, index, id))
}

func (r CommitReport) String() string {
	return fmt.Sprintf("order=%d completed=%s failed=%s atomic=%t",
		r.OrderID, strings.Join(r.Completed, ","), r.FailedStep, r.Atomic)
}

const fallbackCommitMessage = "Error al guardar la venta"

// CommitError is a failed write. Message is safe to show on the form header.
type CommitError struct {
	Message string
	Report  CommitReport
	Err     error
}

func (e *CommitError) Error() string {
	return e.Message
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

func commitMessage(err error) string {
	if err == nil {
		return fallbackCommitMessage
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return fallbackCommitMessage
	}
	return msg
}
