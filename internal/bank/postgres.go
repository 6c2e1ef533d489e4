package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// Querier is the slice of pgxpool.Pool the loader needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLoader reads banks from the quiz_banks table.
type PostgresLoader struct {
	db Querier
}

var _ Loader = (*PostgresLoader)(nil)

func NewPostgresLoader(db Querier) *PostgresLoader {
	return &PostgresLoader{db: db}
}

const selectBank = `
SELECT id, title, description, time_limit_seconds, per_question_seconds, questions
FROM quiz_banks
WHERE id = $1`

func (l *PostgresLoader) LoadBank(ctx context.Context, id string) (*quiz.Bank, error) {
	var (
		b         quiz.Bank
		questions []byte
	)
	err := l.db.QueryRow(ctx, selectBank, id).Scan(
		&b.ID, &b.Title, &b.Description, &b.TimeLimit, &b.PerQuestionSeconds, &questions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query bank %q: %w", id, err)
	}
	if err := json.Unmarshal(questions, &b.Questions); err != nil {
		return nil, fmt.Errorf("decode questions for bank %q: %w", id, err)
	}
	return checked(&b)
}
