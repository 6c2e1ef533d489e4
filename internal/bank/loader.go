// Package bank loads the question bank a session is played with.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// DefaultID names the built-in sample bank.
const DefaultID = "general-knowledge"

// ErrNotFound is returned when no bank has the requested id.
var ErrNotFound = errors.New("question bank not found")

// Loader fetches a bank by id.
type Loader interface {
	LoadBank(ctx context.Context, id string) (*quiz.Bank, error)
}

// Sample returns the general knowledge bank shipped with the server.
func Sample() *quiz.Bank {
	return &quiz.Bank{
		ID:          DefaultID,
		Title:       "General Knowledge Quiz",
		Description: "Test your knowledge with these general questions",
		TimeLimit:   300,
		Questions: []quiz.Question{
			{
				ID:            1,
				Text:          "What is the capital of France?",
				Options:       []string{"London", "Berlin", "Paris", "Madrid"},
				CorrectOption: 2,
				Points:        10,
			},
			{
				ID:            2,
				Text:          "Which planet is known as the Red Planet?",
				Options:       []string{"Venus", "Mars", "Jupiter", "Saturn"},
				CorrectOption: 1,
				Points:        10,
			},
		},
	}
}

// StaticLoader serves banks held in memory.
type StaticLoader struct {
	banks map[string]*quiz.Bank
}

var _ Loader = (*StaticLoader)(nil)

// NewStaticLoader indexes banks by ID. With no banks it serves Sample.
func NewStaticLoader(banks ...*quiz.Bank) *StaticLoader {
	if len(banks) == 0 {
		banks = []*quiz.Bank{Sample()}
	}
	idx := make(map[string]*quiz.Bank, len(banks))
	for _, b := range banks {
		idx[b.ID] = b
	}
	return &StaticLoader{banks: idx}
}

func (l *StaticLoader) LoadBank(_ context.Context, id string) (*quiz.Bank, error) {
	b, ok := l.banks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return checked(clone(b))
}

func checked(b *quiz.Bank) (*quiz.Bank, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("bank %q: %w", b.ID, err)
	}
	return b, nil
}

func clone(b *quiz.Bank) *quiz.Bank {
	out := *b
	out.Questions = make([]quiz.Question, len(b.Questions))
	for i, q := range b.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	return &out
}
