package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
)

// Phase is the top-level lifecycle of a participant's session.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInProgress
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseInProgress:
		return "in_progress"
	case PhaseSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
	ErrNotInProgress  = errors.New("session not in progress")
	ErrLocked         = errors.New("question is locked")
	ErrInvalidOption  = errors.New("option out of range")
)

// State is one participant's progression through a bank. It is not safe
// for concurrent use; the Runner owns it on its event loop.
type State struct {
	bank      *quiz.Bank
	phase     Phase
	index     int
	answers   quiz.Answers
	locked    bool
	startedAt time.Time
	result    *scoring.Result
}

// NewState returns a state in PhaseNotStarted.
func NewState() *State {
	return &State{}
}

// Begin enters the first question. Starting twice never resets progress.
func (s *State) Begin(bank *quiz.Bank, now time.Time) error {
	if s.phase != PhaseNotStarted {
		return ErrAlreadyStarted
	}
	if err := bank.Validate(); err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	s.bank = bank
	s.phase = PhaseInProgress
	s.index = 0
	s.answers = quiz.NewAnswers(bank.Len())
	s.locked = false
	s.startedAt = now
	s.result = nil
	return nil
}

// SelectOption records option for the current question, replacing any earlier choice.
func (s *State) SelectOption(option int) error {
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	if s.locked {
		return ErrLocked
	}
	if option < 0 || option >= len(s.bank.Questions[s.index].Options) {
		return ErrInvalidOption
	}
	s.answers[s.index] = option
	return nil
}

// TimerExpired locks the current question. It reports whether anything changed.
func (s *State) TimerExpired() bool {
	if s.phase != PhaseInProgress || s.locked {
		return false
	}
	s.locked = true
	return true
}

// AdvanceTo moves to the authority's index, clamped into range. It reports
// the resulting index and whether it differs from before; only a change
// unlocks.
func (s *State) AdvanceTo(serverIndex int) (int, bool) {
	if s.phase != PhaseInProgress {
		return s.index, false
	}
	target := serverIndex
	if last := s.bank.Len() - 1; target > last {
		target = last
	}
	if target < 0 {
		target = 0
	}
	if target == s.index {
		return s.index, false
	}
	s.index = target
	s.locked = false
	return s.index, true
}

// Submit scores the session exactly once. Later calls return the cached
// result with fresh set to false.
func (s *State) Submit(now time.Time) (res scoring.Result, fresh bool, err error) {
	switch s.phase {
	case PhaseNotStarted:
		return scoring.Result{}, false, ErrNotStarted
	case PhaseSubmitted:
		return *s.result, false, nil
	}
	computed := scoring.Score(s.bank, s.answers, s.startedAt, now)
	s.result = &computed
	s.phase = PhaseSubmitted
	s.locked = true
	return computed, true, nil
}

// Reset discards everything and returns to PhaseNotStarted.
func (s *State) Reset() {
	*s = State{}
}

func (s *State) Phase() Phase          { return s.phase }
func (s *State) Index() int            { return s.index }
func (s *State) Locked() bool          { return s.locked }
func (s *State) StartedAt() time.Time  { return s.startedAt }
func (s *State) Bank() *quiz.Bank      { return s.bank }
func (s *State) Answers() quiz.Answers { return s.answers.Clone() }
func (s *State) UnansweredCount() int  { return s.answers.UnansweredCount() }
func (s *State) AllAnswered() bool     { return s.phase != PhaseNotStarted && s.UnansweredCount() == 0 }

// CurrentQuestion returns the active question and the option chosen for it so far.
func (s *State) CurrentQuestion() (q quiz.Question, selected int, ok bool) {
	if s.phase == PhaseNotStarted || s.bank == nil {
		return quiz.Question{}, quiz.Unanswered, false
	}
	return s.bank.Questions[s.index], s.answers[s.index], true
}

func (s *State) IsLastQuestion() bool {
	return s.phase != PhaseNotStarted && s.index == s.bank.Len()-1
}

// Result returns the cached result once submitted.
func (s *State) Result() (scoring.Result, bool) {
	if s.result == nil {
		return scoring.Result{}, false
	}
	return *s.result, true
}
