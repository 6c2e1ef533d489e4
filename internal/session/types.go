package session

import (
	"errors"
	"time"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// ClientStatus tracks a participant through a session.
type ClientStatus string

const (
	ClientWaiting    ClientStatus = "waiting"
	ClientReady      ClientStatus = "ready"
	ClientQuizActive ClientStatus = "quiz-active"
	ClientCompleted  ClientStatus = "completed"
)

var (
	ErrClientNotFound    = errors.New("client not found")
	ErrAlreadyInProgress = errors.New("quiz already in progress")
	ErrNotInProgress     = errors.New("quiz not in progress")
	ErrSessionEnded      = errors.New("quiz already ended")
	ErrBusy              = errors.New("session is being modified, try again")
	ErrBankUnavailable   = errors.New("question bank unavailable")
	ErrInvalidClientID   = errors.New("client id must be a UUID")
)

// Client is a joined participant.
type Client struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Status   ClientStatus `json:"status"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// Submission is a participant's scored result as recorded by the authority.
type Submission struct {
	ClientID    string       `json:"clientId"`
	ClientName  string       `json:"clientName"`
	Score       int          `json:"score"`
	MaxScore    int          `json:"maxScore"`
	Percentage  int          `json:"percentage"`
	TimeTaken   int          `json:"timeTaken"`
	Answers     quiz.Answers `json:"answers"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

// Snapshot is the authoritative session state.
type Snapshot struct {
	Active       bool      `json:"active"`
	Ended        bool      `json:"ended"`
	CurrentIndex int       `json:"currentIndex"`
	BankID       string    `json:"bankId,omitempty"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
}

// JoinResult is returned to a participant that connects.
type JoinResult struct {
	Client       Client
	Bank         *quiz.Bank
	TotalClients int
	Active       bool
	CurrentIndex *int
}

// StatusView summarises the session for polls and the admin panel.
type StatusView struct {
	Active           bool
	Ended            bool
	CurrentIndex     *int
	TotalQuestions   int
	TotalClients     int
	CompletedClients int
}
