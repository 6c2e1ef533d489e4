package client

import (
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
)

// ConnectionStatus is surfaced to the presenter when joins or polls fail or recover.
type ConnectionStatus int

const (
	StatusConnecting ConnectionStatus = iota
	StatusConnected
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Presenter receives one-way notifications from the Runner. Every method is
// called on the runner's event loop and must not block for long.
type Presenter interface {
	OnQuestionChanged(index int, q quiz.Question, priorSelection int)
	OnTimerTick(remainingSeconds int)
	OnLocked()
	OnUnlocked()
	OnResults(res scoring.Result)
	// OnConfirmationRequired gates a submit that leaves questions unanswered.
	OnConfirmationRequired(unanswered int) bool
	OnConnectionStatus(status ConnectionStatus)
	OnSessionReset()
	OnInitError(err error)
	// OnDelivery reports the end of result delivery; nil means acknowledged.
	OnDelivery(err error)
}

// NopPresenter ignores every notification and declines confirmation.
type NopPresenter struct{}

func (NopPresenter) OnQuestionChanged(int, quiz.Question, int) {}
func (NopPresenter) OnTimerTick(int)                          {}
func (NopPresenter) OnLocked()                                {}
func (NopPresenter) OnUnlocked()                              {}
func (NopPresenter) OnResults(scoring.Result)                 {}
func (NopPresenter) OnConfirmationRequired(int) bool          { return false }
func (NopPresenter) OnConnectionStatus(ConnectionStatus)      {}
func (NopPresenter) OnSessionReset()                          {}
func (NopPresenter) OnInitError(error)                        {}
func (NopPresenter) OnDelivery(error)                         {}
