package client

import (
	"context"
	"errors"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
)

// ErrRejected wraps authority failures that retrying cannot fix.
var ErrRejected = errors.New("rejected by session authority")

// JoinInfo is the authority's answer to a join.
type JoinInfo struct {
	ClientID      string
	ClientName    string
	Bank          *quiz.Bank
	SessionActive bool
	CurrentIndex  *int
	TotalClients  int
}

// Status is the periodic fallback view of the session.
type Status struct {
	SessionActive bool
	CurrentIndex  *int
	Ended         bool
}

// EventKind enumerates authority push notifications.
type EventKind int

const (
	EventSessionStarted EventKind = iota + 1
	EventQuestionIndexChanged
	EventSessionReset
	EventSessionEnded
)

func (k EventKind) String() string {
	switch k {
	case EventSessionStarted:
		return "session_started"
	case EventQuestionIndexChanged:
		return "question_changed"
	case EventSessionReset:
		return "session_reset"
	case EventSessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}

// Event is a push notification from the authority. Bank is set for
// EventSessionStarted, Index for EventQuestionIndexChanged.
type Event struct {
	Kind  EventKind
	Bank  *quiz.Bank
	Index int
}

// Authority is the single source of truth for session lifecycle and the
// current question index.
type Authority interface {
	Connect(ctx context.Context) (JoinInfo, error)
	PollStatus(ctx context.Context) (Status, error)
	Events() <-chan Event
	SubmitResult(ctx context.Context, clientID string, res scoring.Result) error
}
