package quiz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Unanswered marks a position in Answers with no selected option.
const Unanswered = -1

var (
	ErrEmptyBank         = errors.New("question bank has no questions")
	ErrMalformedQuestion = errors.New("malformed question")
)

// Question is a single multiple-choice item. CorrectOption indexes Options.
type Question struct {
	ID            int      `json:"id,omitempty" yaml:"id"`
	Text          string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectOption int      `json:"correctAnswer" yaml:"correctAnswer"`
	Points        int      `json:"points" yaml:"points"`
}

// Bank is the ordered, immutable question set for one session.
type Bank struct {
	ID                 string     `json:"id,omitempty" yaml:"id"`
	Title              string     `json:"title" yaml:"title"`
	Description        string     `json:"description" yaml:"description"`
	TimeLimit          int        `json:"timeLimit,omitempty" yaml:"timeLimit"`
	PerQuestionSeconds int        `json:"perQuestionSeconds,omitempty" yaml:"perQuestionSeconds"`
	Questions          []Question `json:"questions" yaml:"questions"`
}

// Len returns the number of questions.
func (b *Bank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Questions)
}

// MaxScore sums the points of every question.
func (b *Bank) MaxScore() int {
	if b == nil {
		return 0
	}
	total := 0
	for _, q := range b.Questions {
		total += q.Points
	}
	return total
}

// Validate reports whether the bank can be played.
func (b *Bank) Validate() error {
	if b == nil || len(b.Questions) == 0 {
		return ErrEmptyBank
	}
	for i, q := range b.Questions {
		switch {
		case len(q.Options) == 0:
			return fmt.Errorf("%w: question %d has no options", ErrMalformedQuestion, i)
		case len(q.Options) < 2:
			return fmt.Errorf("%w: question %d needs at least two options", ErrMalformedQuestion, i)
		case q.CorrectOption < 0 || q.CorrectOption >= len(q.Options):
			return fmt.Errorf("%w: question %d correct option %d out of range", ErrMalformedQuestion, i, q.CorrectOption)
		case q.Points <= 0:
			return fmt.Errorf("%w: question %d points must be positive", ErrMalformedQuestion, i)
		}
	}
	return nil
}

// QuestionSeconds returns the per-question limit, or fallback when unset.
func (b *Bank) QuestionSeconds(fallback int) int {
	if b != nil && b.PerQuestionSeconds > 0 {
		return b.PerQuestionSeconds
	}
	return fallback
}

// Answers is positionally aligned with a Bank. Unanswered slots encode as null.
type Answers []int

// NewAnswers returns n unanswered slots.
func NewAnswers(n int) Answers {
	a := make(Answers, n)
	for i := range a {
		a[i] = Unanswered
	}
	return a
}

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	copy(out, a)
	return out
}

// UnansweredCount counts slots still unanswered.
func (a Answers) UnansweredCount() int {
	n := 0
	for _, v := range a {
		if v == Unanswered {
			n++
		}
	}
	return n
}

// Answered reports whether position i holds a selection.
func (a Answers) Answered(i int) bool {
	return i >= 0 && i < len(a) && a[i] != Unanswered
}

func (a Answers) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	raw := make([]*int, len(a))
	for i := range a {
		if a[i] != Unanswered {
			v := a[i]
			raw[i] = &v
		}
	}
	return json.Marshal(raw)
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}
	var raw []*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Answers, len(raw))
	for i, v := range raw {
		if v == nil || *v < 0 {
			out[i] = Unanswered
			continue
		}
		out[i] = *v
	}
	*a = out
	return nil
}
