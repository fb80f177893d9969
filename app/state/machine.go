package state

import (
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

const (
	StatusPending           = "pending"
	StatusAuthorized        = "authorized"
	StatusCaptured          = "captured"
	StatusPartiallyCaptured = "partially_captured"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
	StatusVoided            = "voided"
	StatusFailed            = "failed"
	StatusDisputed          = "disputed"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Change records a single applied transition for auditing and webhook
// event naming.
type Change struct {
	OldStatus string
	NewStatus string

	CapturedBefore int64
	CapturedAfter  int64
	RefundedBefore int64
	RefundedAfter  int64
}

func (c Change) EventType() string {
	return "transaction." + c.NewStatus
}

// Authorize moves a freshly created pending transaction into its
// post-gateway state. All money counters start at zero.
func Authorize(txn *entity.Transaction, succeeded bool) Change {
	change := begin(txn)
	if succeeded {
		txn.Status = StatusAuthorized
	} else {
		txn.Status = StatusFailed
	}
	return finish(txn, change)
}

// Capture settles amount out of the remaining authorized funds. The
// remaining uncaptured amount stays addressable by further captures.
func Capture(txn *entity.Transaction, amount int64) (Change, error) {
	if txn.Status != StatusAuthorized && txn.Status != StatusPartiallyCaptured {
		return Change{}, fmt.Errorf("%w: cannot capture transaction in status %q", ErrInvalidTransition, txn.Status)
	}
	if amount <= 0 {
		return Change{}, fmt.Errorf("%w: capture amount must be > 0", ErrInvalidAmount)
	}
	remaining := txn.Amount - txn.AmountCaptured
	if amount > remaining {
		return Change{}, fmt.Errorf("%w: capture amount %d exceeds remaining authorized amount %d", ErrInvalidTransition, amount, remaining)
	}

	change := begin(txn)
	txn.AmountCaptured += amount
	if txn.AmountCaptured == txn.Amount {
		txn.Status = StatusCaptured
	} else {
		txn.Status = StatusPartiallyCaptured
	}
	return finish(txn, change), nil
}

// Refund reverses amount out of the captured-but-not-yet-refunded funds.
// Refunding everything that was captured yields the refunded status even
// when the original capture was partial.
func Refund(txn *entity.Transaction, amount int64) (Change, error) {
	switch txn.Status {
	case StatusCaptured, StatusPartiallyCaptured, StatusPartiallyRefunded:
	default:
		return Change{}, fmt.Errorf("%w: cannot refund transaction in status %q", ErrInvalidTransition, txn.Status)
	}
	if amount <= 0 {
		return Change{}, fmt.Errorf("%w: refund amount must be > 0", ErrInvalidAmount)
	}
	refundable := txn.AmountCaptured - txn.AmountRefunded
	if amount > refundable {
		return Change{}, fmt.Errorf("%w: refund amount %d exceeds refundable amount %d", ErrInvalidTransition, amount, refundable)
	}

	change := begin(txn)
	txn.AmountRefunded += amount
	if txn.AmountRefunded == txn.AmountCaptured {
		txn.Status = StatusRefunded
	} else {
		txn.Status = StatusPartiallyRefunded
	}
	return finish(txn, change), nil
}

// Void releases the remaining uncaptured authorization. Funds already
// captured stay settled; the counters are not touched.
func Void(txn *entity.Transaction) (Change, error) {
	if txn.Status != StatusAuthorized && txn.Status != StatusPartiallyCaptured {
		return Change{}, fmt.Errorf("%w: cannot void transaction in status %q", ErrInvalidTransition, txn.Status)
	}

	change := begin(txn)
	txn.Status = StatusVoided
	return finish(txn, change), nil
}

// Dispute marks an externally signalled chargeback. There is no amount
// guard; a dispute can arrive for any post-authorization state that
// still has settled or settleable funds.
func Dispute(txn *entity.Transaction) (Change, error) {
	switch txn.Status {
	case StatusAuthorized, StatusCaptured, StatusPartiallyCaptured, StatusRefunded, StatusPartiallyRefunded:
	default:
		return Change{}, fmt.Errorf("%w: cannot dispute transaction in status %q", ErrInvalidTransition, txn.Status)
	}

	change := begin(txn)
	txn.Status = StatusDisputed
	return finish(txn, change), nil
}

// Fail marks a non-terminal transaction as failed after a processing
// error, without touching the money counters.
func Fail(txn *entity.Transaction) Change {
	change := begin(txn)
	txn.Status = StatusFailed
	return finish(txn, change)
}

func begin(txn *entity.Transaction) Change {
	return Change{
		OldStatus:      txn.Status,
		CapturedBefore: txn.AmountCaptured,
		RefundedBefore: txn.AmountRefunded,
	}
}

func finish(txn *entity.Transaction, change Change) Change {
	change.NewStatus = txn.Status
	change.CapturedAfter = txn.AmountCaptured
	change.RefundedAfter = txn.AmountRefunded
	return change
}
