package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/live-quiz/internal/bank"
	"github.com/gokatarajesh/live-quiz/internal/client"
	"github.com/gokatarajesh/live-quiz/internal/client/remote"
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
	"github.com/gokatarajesh/live-quiz/internal/session"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

type e2ePresenter struct {
	client.NopPresenter
	questions chan int
	delivered chan error
	results   chan scoring.Result
}

func (p *e2ePresenter) OnQuestionChanged(index int, _ quiz.Question, _ int) {
	select {
	case p.questions <- index:
	default:
	}
}

func (p *e2ePresenter) OnResults(res scoring.Result) {
	select {
	case p.results <- res:
	default:
	}
}

func (p *e2ePresenter) OnDelivery(err error) {
	select {
	case p.delivered <- err:
	default:
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestParticipantPlaysAgainstServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := &quiz.Bank{
		ID:                 "e2e",
		Title:              "E2E",
		PerQuestionSeconds: 60,
		Questions: []quiz.Question{
			{Text: "q1", Options: []string{"a", "b"}, CorrectOption: 0, Points: 10},
			{Text: "q2", Options: []string{"a", "b", "c"}, CorrectOption: 2, Points: 20},
			{Text: "q3", Options: []string{"a", "b"}, CorrectOption: 1, Points: 30},
		},
	}
	hub := ws.NewHub(zerolog.Nop())
	svc := session.NewService(session.NewMemoryStore(), bank.NewStaticLoader(b), session.NewHubPublisher(hub),
		session.NewMetrics(prometheus.NewRegistry()), zerolog.Nop(), session.Options{BankID: "e2e"})
	mux := http.NewServeMux()
	session.NewHTTPHandlers(svc, zerolog.Nop()).Register(mux)
	session.NewWSHandler(svc, hub, zerolog.Nop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	authority := remote.New(srv.URL, nil, zerolog.Nop()).WithRedial(50 * time.Millisecond)
	pres := &e2ePresenter{
		questions: make(chan int, 8),
		delivered: make(chan error, 1),
		results:   make(chan scoring.Result, 1),
	}
	runner := client.NewRunner(authority, pres, client.Options{PollInterval: 100 * time.Millisecond}, zerolog.Nop())

	go func() { _ = authority.Listen(ctx) }()
	go func() { _ = runner.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.Count(ws.GroupClients) == 1 }, 3*time.Second, 10*time.Millisecond)

	_, err := svc.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, waitFor(t, pres.questions))
	require.NoError(t, runner.SelectOption(ctx, 0))

	_, _, err = svc.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, waitFor(t, pres.questions))
	require.NoError(t, runner.SelectOption(ctx, 2))

	_, err = svc.End(ctx)
	require.NoError(t, err)

	local := waitFor(t, pres.results)
	assert.Equal(t, 30, local.Score)
	assert.Equal(t, 60, local.MaxScore)
	require.NoError(t, waitFor(t, pres.delivered))

	results, err := svc.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 30, results[0].Score)
	assert.Equal(t, 50, results[0].Percentage)
	assert.Equal(t, quiz.Answers{0, 2, quiz.Unanswered}, results[0].Answers)

	view, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CompletedClients)
}
