package services

import "errors"

var (
	// ErrInsufficientFunds is returned when a debit or hold exceeds the
	// account's available balance (balance minus held amount).
	ErrInsufficientFunds = errors.New("insufficient available balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidCurrency is returned for a currency outside GOLD/SWEEPS,
	// or for a hold on anything but SWEEPS.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrDuplicateReference is returned when a reference id is reused with
	// different parameters than the original call.
	ErrDuplicateReference = errors.New("reference id already used with different parameters")

	// ErrInvalidHoldState is returned when settling a hold that was already
	// released or settled.
	ErrInvalidHoldState = errors.New("hold is not active")

	// ErrInvalidTransition is returned on a workflow state machine violation.
	ErrInvalidTransition = errors.New("invalid withdrawal state transition")

	// ErrForbidden is returned when an actor's role does not match the gate.
	ErrForbidden = errors.New("actor role not permitted for this transition")

	// ErrAccountNotFound is returned on reads of accounts that were never credited.
	ErrAccountNotFound = errors.New("account not found")

	// ErrWithdrawalNotFound is returned for unknown withdrawal request ids.
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")

	// ErrWeekClosed is returned when a game result targets a week that has
	// already been ranked and paid.
	ErrWeekClosed = errors.New("week is closed")

	// ErrPendingWithdrawal is returned when a user submits a second request
	// while one is still moving through review.
	ErrPendingWithdrawal = errors.New("another withdrawal is already pending")
)
