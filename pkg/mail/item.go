package mail

import "context"

// Item is a unit of work on the mail queue. Subject never fails; it is used
// for previews as well as for the outgoing message.
type Item interface {
	ID() string
	Subject(ctx context.Context) string
	Send(ctx context.Context) error
}

// ItemQueue accepts items for asynchronous delivery. The queue owns an item
// once AddItem returns without error.
type ItemQueue interface {
	AddItem(item Item) error
}

// ServerResolver yields the currently configured sender, or ErrNoServer.
type ServerResolver interface {
	Sender() (Sender, error)
}

type ItemState int

const (
	StatePending ItemState = iota
	StateSending
	StateSent
	StateFailed
)

func (s ItemState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s ItemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
