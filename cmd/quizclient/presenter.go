package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/live-quiz/internal/client"
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
)

type strategy int

const (
	answerFirst strategy = iota
	answerRandom
	answerCorrect
	answerNone
)

func parseStrategy(s string) (strategy, error) {
	switch s {
	case "first", "":
		return answerFirst, nil
	case "random":
		return answerRandom, nil
	case "correct":
		return answerCorrect, nil
	case "none":
		return answerNone, nil
	}
	return 0, fmt.Errorf("unknown answer strategy %q", s)
}

// pick returns the option to select for q, or false to leave it unanswered.
func (s strategy) pick(q quiz.Question) (int, bool) {
	switch s {
	case answerFirst:
		return 0, true
	case answerRandom:
		return rand.IntN(len(q.Options)), true
	case answerCorrect:
		return q.CorrectOption, true
	}
	return 0, false
}

// consolePresenter logs what a participant would see and answers on its
// own. Selections are handed back through choices because presenter calls
// run on the runner's loop.
type consolePresenter struct {
	logger    zerolog.Logger
	strategy  strategy
	confirm   bool
	choices   chan int
	delivered chan error
}

var _ client.Presenter = (*consolePresenter)(nil)

func newConsolePresenter(logger zerolog.Logger, s strategy, confirm bool) *consolePresenter {
	return &consolePresenter{
		logger:    logger.With().Str("component", "presenter").Logger(),
		strategy:  s,
		confirm:   confirm,
		choices:   make(chan int, 4),
		delivered: make(chan error, 1),
	}
}

func (p *consolePresenter) OnQuestionChanged(index int, q quiz.Question, prior int) {
	p.logger.Info().Int("index", index).Str("question", q.Text).Strs("options", q.Options).Msg("question")
	if prior != quiz.Unanswered {
		return
	}
	if choice, ok := p.strategy.pick(q); ok {
		select {
		case p.choices <- choice:
		default:
		}
	}
}

func (p *consolePresenter) OnTimerTick(remaining int) {
	if remaining <= 5 {
		p.logger.Debug().Int("remaining", remaining).Msg("tick")
	}
}

func (p *consolePresenter) OnLocked()   { p.logger.Info().Msg("time is up, waiting for the next question") }
func (p *consolePresenter) OnUnlocked() {}

func (p *consolePresenter) OnResults(res scoring.Result) {
	p.logger.Info().
		Int("score", res.Score).
		Int("max_score", res.MaxScore).
		Int("percentage", res.Percentage).
		Int("time_taken", res.TimeTakenSeconds).
		Msg("results")
}

func (p *consolePresenter) OnConfirmationRequired(unanswered int) bool {
	p.logger.Info().Int("unanswered", unanswered).Bool("confirmed", p.confirm).Msg("submit with unanswered questions")
	return p.confirm
}

func (p *consolePresenter) OnConnectionStatus(status client.ConnectionStatus) {
	p.logger.Info().Str("status", status.String()).Msg("connection")
}

func (p *consolePresenter) OnSessionReset() {
	p.logger.Info().Msg("session reset, waiting for the admin to start")
}

func (p *consolePresenter) OnInitError(err error) {
	p.logger.Error().Err(err).Msg("cannot start quiz")
}

func (p *consolePresenter) OnDelivery(err error) {
	select {
	case p.delivered <- err:
	default:
	}
}
