package mail

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServer is returned when no SMTP server is configured. Items treat it as a skip.
	ErrNoServer = errors.New("no SMTP server configured")
	// ErrQueueFull is returned when the queue has no free capacity.
	ErrQueueFull = errors.New("mail queue is full")
	// ErrQueueClosed is returned when items are added during shutdown.
	ErrQueueClosed = errors.New("mail queue is shutting down")
	// ErrNoRecipients is returned for an email without any receiver.
	ErrNoRecipients = errors.New("email has no recipients")
)

// Error describes a failed delivery step of a queue item.
type Error struct {
	Op     string
	ItemID string
	Err    error
}

func (e *Error) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("mail %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mail %s [%s]: %v", e.Op, e.ItemID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err unless it is nil.
func NewError(op, itemID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, ItemID: itemID, Err: err}
}
