package session

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/live-quiz/internal/bank"
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

func TestService_ConnectNamesClientsInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)
	second, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, "Client 1", first.Client.Name)
	assert.Equal(t, "Client 2", second.Client.Name)
	assert.NotEqual(t, first.Client.ID, second.Client.ID)
	assert.Equal(t, ClientWaiting, second.Client.Status)
	assert.Equal(t, 2, second.TotalClients)
	assert.False(t, second.Active)
	assert.Nil(t, second.CurrentIndex)

	require.NotNil(t, second.Bank)
	assert.Equal(t, bank.DefaultID, second.Bank.ID)
	assert.Equal(t, 30, second.Bank.PerQuestionSeconds, "bank without a limit takes the default")

	assert.Equal(t, []string{ws.TypeClientConnected, ws.TypeClientConnected}, f.pub.types(ws.GroupAdmins))
	assert.Empty(t, f.pub.types(ws.GroupClients))
	assert.Equal(t, 2.0, metricValue(t, f.reg, "quiz_clients_connected_total"))
}

func TestService_ConnectWithKnownIDRejoins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := uuid.New().String()

	first, err := f.svc.Connect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, first.Client.ID)

	again, err := f.svc.Connect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.Client, again.Client)
	assert.Equal(t, 1, again.TotalClients)

	clients, err := f.svc.Clients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Equal(t, []string{ws.TypeClientConnected}, f.pub.types(ws.GroupAdmins))
	assert.Equal(t, 1.0, metricValue(t, f.reg, "quiz_clients_connected_total"))

	other, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Client 2", other.Client.Name)

	_, err = f.svc.Connect(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidClientID)
}

func TestService_StartBroadcastsBank(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	joined, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)

	snap, err := f.svc.Start(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, "three", snap.BankID)
	assert.False(t, snap.StartedAt.IsZero())

	c, err := f.store.GetClient(ctx, joined.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, ClientQuizActive, c.Status)

	msg, ok := f.pub.last(ws.GroupClients, ws.TypeSessionStarted)
	require.True(t, ok)
	var payload ws.SessionStartedPayload
	require.NoError(t, msg.Decode(&payload))
	require.NotNil(t, payload.Quiz)
	assert.Equal(t, 3, payload.Quiz.Len())
	assert.Equal(t, 15, payload.Quiz.PerQuestionSeconds)
	assert.Equal(t, 0, payload.CurrentQuestion)

	_, err = f.svc.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.Equal(t, 1.0, metricValue(t, f.reg, "quiz_sessions_started_total"))
	assert.Equal(t, 0.0, metricValue(t, f.reg, "quiz_current_question_index"))
}

func TestService_LateJoinerGetsCurrentIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	_, err := f.svc.Start(ctx)
	require.NoError(t, err)
	_, _, err = f.svc.Advance(ctx, 2)
	require.NoError(t, err)

	late, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)
	assert.True(t, late.Active)
	require.NotNil(t, late.CurrentIndex)
	assert.Equal(t, 2, *late.CurrentIndex)
	assert.Equal(t, ClientQuizActive, late.Client.Status)

	_, err = f.svc.End(ctx)
	require.NoError(t, err)

	afterEnd, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)
	assert.False(t, afterEnd.Active)
	assert.Nil(t, afterEnd.CurrentIndex)
}

func TestService_AdvanceClampsAndOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	_, _, err := f.svc.Next(ctx)
	assert.ErrorIs(t, err, ErrNotInProgress)

	_, err = f.svc.Start(ctx)
	require.NoError(t, err)

	snap, changed, err := f.svc.Next(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, snap.CurrentIndex)

	snap, changed, err = f.svc.Advance(ctx, 0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, snap.CurrentIndex)

	snap, changed, err = f.svc.Advance(ctx, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	snap, changed, err = f.svc.Advance(ctx, 99)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, snap.CurrentIndex)

	snap, changed, err = f.svc.Next(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 2, snap.CurrentIndex)

	assert.Equal(t,
		[]string{ws.TypeSessionStarted, ws.TypeQuestionChanged, ws.TypeQuestionChanged},
		f.pub.types(ws.GroupClients))

	msg, ok := f.pub.last(ws.GroupClients, ws.TypeQuestionChanged)
	require.True(t, ok)
	var payload ws.QuestionChangedPayload
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, ws.QuestionChangedPayload{CurrentQuestion: 2, TotalQuestions: 3}, payload)

	assert.Equal(t, 2.0, metricValue(t, f.reg, "quiz_question_advances_total"))
	assert.Equal(t, 2.0, metricValue(t, f.reg, "quiz_current_question_index"))

	persisted, err := f.store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted.CurrentIndex)
}

func TestService_EndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	_, err := f.svc.End(ctx)
	assert.ErrorIs(t, err, ErrNotInProgress)

	_, err = f.svc.Start(ctx)
	require.NoError(t, err)

	snap, err := f.svc.End(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.True(t, snap.Ended)

	_, err = f.svc.End(ctx)
	require.NoError(t, err)

	ended := 0
	for _, typ := range f.pub.types(ws.GroupClients) {
		if typ == ws.TypeSessionEnded {
			ended++
		}
	}
	assert.Equal(t, 1, ended)

	_, _, err = f.svc.Next(ctx)
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = f.svc.Start(ctx)
	assert.ErrorIs(t, err, ErrSessionEnded)

	view, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.True(t, view.Ended)
}

func TestService_SubmitScoresOnServer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	joined, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, joined.Client.ID, quiz.Answers{0, 2, 1}, 10)
	assert.ErrorIs(t, err, ErrNotInProgress)

	_, err = f.svc.Start(ctx)
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, "ghost", quiz.Answers{0}, 10)
	assert.ErrorIs(t, err, ErrClientNotFound)

	sub, duplicate, err := f.svc.Submit(ctx, joined.Client.ID, quiz.Answers{0, quiz.Unanswered, 0}, -4)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, 10, sub.Score)
	assert.Equal(t, 60, sub.MaxScore)
	assert.Equal(t, 17, sub.Percentage)
	assert.Equal(t, 0, sub.TimeTaken, "negative time clamps to zero")
	assert.Equal(t, joined.Client.Name, sub.ClientName)
	assert.Equal(t, quiz.Answers{0, quiz.Unanswered, 0}, sub.Answers)

	c, err := f.store.GetClient(ctx, joined.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, ClientCompleted, c.Status)

	msg, ok := f.pub.last(ws.GroupAdmins, ws.TypeResultReceived)
	require.True(t, ok)
	var payload ws.ResultReceivedPayload
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, joined.Client.ID, payload.ClientID)
	assert.Equal(t, 10, payload.Score)

	view, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CompletedClients)
	assert.Equal(t, 3, view.TotalQuestions)
}

func TestService_DuplicateSubmissionIsNotRecordedAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	joined, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx)
	require.NoError(t, err)

	first, duplicate, err := f.svc.Submit(ctx, joined.Client.ID, quiz.Answers{0, 2, 1}, 40)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, 60, first.Score)

	again, duplicate, err := f.svc.Submit(ctx, joined.Client.ID, quiz.Answers{1, 1, 0}, 5)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, first, again)

	results, err := f.svc.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 60, results[0].Score)

	received := 0
	for _, typ := range f.pub.types(ws.GroupAdmins) {
		if typ == ws.TypeResultReceived {
			received++
		}
	}
	assert.Equal(t, 1, received)
	assert.Equal(t, 1.0, metricValue(t, f.reg, "quiz_submissions_accepted_total"))
	assert.Equal(t, 1.0, metricValue(t, f.reg, "quiz_submissions_duplicate_total"))
}

func TestService_ResultsRanked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	var ids []string
	for range 3 {
		joined, err := f.svc.Connect(ctx, "")
		require.NoError(t, err)
		ids = append(ids, joined.Client.ID)
	}
	_, err := f.svc.Start(ctx)
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, ids[0], quiz.Answers{0, 0, 0}, 20)
	require.NoError(t, err)
	_, _, err = f.svc.Submit(ctx, ids[1], quiz.Answers{0, 2, 1}, 90)
	require.NoError(t, err)
	_, _, err = f.svc.Submit(ctx, ids[2], quiz.Answers{0, 2, 1}, 45)
	require.NoError(t, err)

	results, err := f.svc.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, ids[2], results[0].ClientID)
	assert.Equal(t, ids[1], results[1].ClientID)
	assert.Equal(t, ids[0], results[2].ClientID)

	clients, err := f.svc.Clients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 3)
	assert.Equal(t, "Client 1", clients[0].Name)
}

func TestService_ResetReturnsToWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	joined, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx)
	require.NoError(t, err)
	_, _, err = f.svc.Next(ctx)
	require.NoError(t, err)
	_, _, err = f.svc.Submit(ctx, joined.Client.ID, quiz.Answers{0, 2, 1}, 12)
	require.NoError(t, err)
	_, err = f.svc.End(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reset(ctx))

	view, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, view.Active)
	assert.False(t, view.Ended)
	assert.Nil(t, view.CurrentIndex)
	assert.Equal(t, 0, view.CompletedClients)

	results, err := f.svc.Results(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	c, err := f.store.GetClient(ctx, joined.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, ClientWaiting, c.Status)

	_, ok := f.pub.last(ws.GroupClients, ws.TypeSessionReset)
	assert.True(t, ok)
	assert.Equal(t, -1.0, metricValue(t, f.reg, "quiz_current_question_index"))

	snap, err := f.svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentIndex)

	_, duplicate, err := f.svc.Submit(ctx, joined.Client.ID, quiz.Answers{0, 0, 0}, 3)
	require.NoError(t, err)
	assert.False(t, duplicate, "a new run records a fresh submission")
}

func TestService_MarkReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, threeQuestionBank())

	joined, err := f.svc.Connect(ctx, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkReady(ctx, joined.Client.ID))
	c, err := f.store.GetClient(ctx, joined.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, ClientReady, c.Status)

	_, err = f.svc.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkReady(ctx, joined.Client.ID))
	c, err = f.store.GetClient(ctx, joined.Client.ID)
	require.NoError(t, err)
	assert.Equal(t, ClientQuizActive, c.Status, "only waiting clients become ready")

	assert.ErrorIs(t, f.svc.MarkReady(ctx, "ghost"), ErrClientNotFound)
}

func TestService_BankUnavailable(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), bank.NewStaticLoader(), nil, nil, zerolog.Nop(), Options{BankID: "missing"})

	_, err := svc.Start(ctx)
	assert.ErrorIs(t, err, ErrBankUnavailable)

	_, err = svc.Connect(ctx, "")
	assert.ErrorIs(t, err, ErrBankUnavailable)

	view, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, view.Active)
}

func TestService_InstancesShareRedisState(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	a := newFixture(t, newRedisStore(t, client), threeQuestionBank())
	b := newFixture(t, newRedisStore(t, client), threeQuestionBank())

	joined, err := a.svc.Connect(ctx, "")
	require.NoError(t, err)
	other, err := b.svc.Connect(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Client 2", other.Client.Name)

	_, err = a.svc.Start(ctx)
	require.NoError(t, err)
	_, err = b.svc.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	snap, changed, err := b.svc.Next(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, snap.CurrentIndex)

	_, duplicate, err := a.svc.Submit(ctx, joined.Client.ID, quiz.Answers{0, 2, 1}, 30)
	require.NoError(t, err)
	assert.False(t, duplicate)
	_, duplicate, err = b.svc.Submit(ctx, joined.Client.ID, quiz.Answers{1, 1, 1}, 5)
	require.NoError(t, err)
	assert.True(t, duplicate)

	results, err := b.svc.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 60, results[0].Score)

	view, err := b.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalClients)
	assert.Equal(t, 1, view.CompletedClients)
}
