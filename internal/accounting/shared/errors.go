package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrMixedLine indicates a line carrying both debit and credit.
	ErrMixedLine = errors.New("accounting: line must be debit or credit, not both")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("accounting: amounts must not be negative")
	// ErrAccountNotFound indicates an unknown chart-of-accounts code.
	ErrAccountNotFound = errors.New("accounting: account code not found")
	// ErrAccountInactive indicates posting against a disabled account.
	ErrAccountInactive = errors.New("accounting: account is inactive")
	// ErrInvalidPeriod indicates no period covers the posting date.
	ErrInvalidPeriod = errors.New("accounting: no open period for date")
	// ErrPeriodClosed indicates the target period does not accept entries.
	ErrPeriodClosed = errors.New("accounting: period does not accept entries")
	// ErrPeriodLocked indicates a definitively closed period.
	ErrPeriodLocked = errors.New("accounting: period is definitively closed")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrDateOutOfRange indicates journal date mismatch.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrSourceConflict indicates the source link already exists.
	ErrSourceConflict = errors.New("accounting: source link conflict")
)
