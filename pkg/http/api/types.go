// Package api holds the JSON bodies exchanged between participants, the
// admin panel and the session authority.
package api

import (
	"time"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// ConnectRequest may carry an id chosen by the participant so that a
// retried connect is recognised.
type ConnectRequest struct {
	ClientID string `json:"clientId,omitempty"`
}

type ConnectResponse struct {
	ClientID        string     `json:"clientId"`
	ClientName      string     `json:"clientName"`
	QuizData        *quiz.Bank `json:"quizData"`
	TotalClients    int        `json:"totalClients"`
	QuizInProgress  bool       `json:"quizInProgress"`
	CurrentQuestion *int       `json:"currentQuestion,omitempty"`
}

type StatusResponse struct {
	Status           string `json:"status"`
	QuizInProgress   bool   `json:"quizInProgress"`
	QuizEnded        bool   `json:"quizEnded"`
	CurrentQuestion  *int   `json:"currentQuestion,omitempty"`
	TotalClients     int    `json:"totalClients"`
	CompletedClients int    `json:"completedClients"`
}

type SubmitRequest struct {
	ClientID  string       `json:"clientId"`
	Answers   quiz.Answers `json:"answers"`
	TimeTaken int          `json:"timeTaken"`
}

type SubmitResponse struct {
	Message    string `json:"message"`
	Score      int    `json:"score"`
	MaxScore   int    `json:"maxScore"`
	Percentage int    `json:"percentage"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

type AdvanceRequest struct {
	Index int `json:"index"`
}

type QuizActionResponse struct {
	Message         string `json:"message"`
	QuizInProgress  bool   `json:"quizInProgress"`
	CurrentQuestion int    `json:"currentQuestion"`
	Changed         bool   `json:"changed"`
}

type ClientEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
}

type ClientsResponse struct {
	Clients      []ClientEntry `json:"clients"`
	TotalClients int           `json:"totalClients"`
}

type ResultEntry struct {
	Rank        int          `json:"rank"`
	ClientID    string       `json:"clientId"`
	ClientName  string       `json:"clientName"`
	Score       int          `json:"score"`
	MaxScore    int          `json:"maxScore"`
	Percentage  int          `json:"percentage"`
	TimeTaken   int          `json:"timeTaken"`
	Answers     quiz.Answers `json:"answers"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

type ResultsResponse struct {
	Results          []ResultEntry `json:"results"`
	TotalSubmissions int           `json:"totalSubmissions"`
}
