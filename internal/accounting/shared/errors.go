package shared

import "errors"

var (
	// ErrUnbalanced indicates debit and credit totals differ beyond tolerance.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates an entry with fewer than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrNegativeAmount indicates a debit or credit below zero.
	ErrNegativeAmount = errors.New("accounting: amount cannot be negative")
	// ErrBothSides indicates a line carrying both a debit and a credit.
	ErrBothSides = errors.New("accounting: line cannot be both debit and credit")
	// ErrEmptyLine indicates a line carrying neither a debit nor a credit.
	ErrEmptyLine = errors.New("accounting: line requires a debit or credit amount")
	// ErrAlreadyPosted indicates a posting attempt on a posted record.
	ErrAlreadyPosted = errors.New("accounting: already posted")
	// ErrPostedImmutable indicates a mutation attempt on a posted record.
	ErrPostedImmutable = errors.New("accounting: posted records cannot be modified")
	// ErrNotPosted indicates an operation requiring a posted record.
	ErrNotPosted = errors.New("accounting: record is not posted")
	// ErrAlreadyApproved indicates a repeated approval.
	ErrAlreadyApproved = errors.New("accounting: already approved")
	// ErrAlreadyRejected indicates a repeated rejection.
	ErrAlreadyRejected = errors.New("accounting: already rejected")
	// ErrInvalidStatus indicates the operation is not valid in the current state.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrInvalidPeriod indicates a missing or unusable period.
	ErrInvalidPeriod = errors.New("accounting: period is not open")
	// ErrPeriodClosed indicates a posting attempt against a closed period.
	ErrPeriodClosed = errors.New("accounting: period closed")
	// ErrPeriodNotClosed indicates a reopen attempt on an open period.
	ErrPeriodNotClosed = errors.New("accounting: period is not closed")
	// ErrDateOutOfRange indicates a transaction date outside its period.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrAccountCodeRequired indicates a ledger row without an account code.
	ErrAccountCodeRequired = errors.New("accounting: account code is required")
	// ErrUnknownAccount indicates a line referencing an account that is not in
	// the chart of accounts.
	ErrUnknownAccount = errors.New("accounting: account not in chart of accounts")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("accounting: record not found")
	// ErrDuplicateNumber indicates a uniqueness conflict on a document number.
	ErrDuplicateNumber = errors.New("accounting: document number already exists")
	// ErrActorRequired indicates a missing user identity on an audited operation.
	ErrActorRequired = errors.New("accounting: actor is required")
	// ErrReasonRequired indicates a missing reason on a reversible operation.
	ErrReasonRequired = errors.New("accounting: reason is required")
)
