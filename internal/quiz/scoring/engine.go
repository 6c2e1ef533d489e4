package scoring

import (
	"sort"
	"time"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// Result is the scored outcome of one participant's answers.
type Result struct {
	Score            int          `json:"score"`
	MaxScore         int          `json:"maxScore"`
	Percentage       int          `json:"percentage"`
	TimeTakenSeconds int          `json:"timeTaken"`
	Answers          quiz.Answers `json:"answers"`
}

// Score grades answers against bank. It never mutates its inputs and the
// returned Answers is a copy.
func Score(bank *quiz.Bank, answers quiz.Answers, startedAt, now time.Time) Result {
	res := Evaluate(bank, answers)
	res.TimeTakenSeconds = TimeTaken(startedAt, now)
	return res
}

// Evaluate grades answers without any timing information. Positions past the
// end of the bank are ignored; missing positions count as unanswered.
func Evaluate(bank *quiz.Bank, answers quiz.Answers) Result {
	res := Result{Answers: answers.Clone()}
	if bank == nil {
		return res
	}
	for i, q := range bank.Questions {
		res.MaxScore += q.Points
		if i < len(answers) && answers[i] != quiz.Unanswered && answers[i] == q.CorrectOption {
			res.Score += q.Points
		}
	}
	res.Percentage = Percentage(res.Score, res.MaxScore)
	return res
}

// Percentage rounds 100*score/max half up. A zero max yields 0.
func Percentage(score, max int) int {
	if max <= 0 || score <= 0 {
		return 0
	}
	if score > max {
		score = max
	}
	return (200*score + max) / (2 * max)
}

// TimeTaken returns whole elapsed seconds, clamped at zero for clock skew.
func TimeTaken(startedAt, now time.Time) int {
	d := now.Sub(startedAt)
	if d <= 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}

// Rank orders items by score descending then time taken ascending. Ties keep
// their input order.
func Rank[T any](items []T, key func(T) (score, timeTaken int)) {
	sort.SliceStable(items, func(i, j int) bool {
		si, ti := key(items[i])
		sj, tj := key(items[j])
		if si != sj {
			return si > sj
		}
		return ti < tj
	})
}
