package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/live-quiz/internal/bank"
	"github.com/gokatarajesh/live-quiz/internal/quiz"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) LoadBank(ctx context.Context, id string) (*quiz.Bank, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*quiz.Bank)
	return b, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, group string, msg ws.Message) error {
	return m.Called(ctx, group, msg.Type).Error(0)
}

func TestService_PublishFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	loader := &mockLoader{}
	loader.On("LoadBank", mock.Anything, "three").Return(threeQuestionBank(), nil)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, ws.GroupClients, ws.TypeSessionStarted).Return(errors.New("redis down")).Once()
	pub.On("Publish", mock.Anything, ws.GroupAdmins, ws.TypeSessionStarted).Return(nil).Once()

	svc := NewService(NewMemoryStore(), loader, pub, nil, zerolog.Nop(), Options{BankID: "three"})

	snap, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Active)

	pub.AssertExpectations(t)
	loader.AssertExpectations(t)
}

func TestService_LoaderErrorSurfacesAsBankUnavailable(t *testing.T) {
	ctx := context.Background()
	loader := &mockLoader{}
	loader.On("LoadBank", mock.Anything, "three").Return(nil, bank.ErrNotFound)

	svc := NewService(NewMemoryStore(), loader, nil, nil, zerolog.Nop(), Options{BankID: "three"})

	_, err := svc.Bank(ctx)
	assert.ErrorIs(t, err, ErrBankUnavailable)
	loader.AssertNumberOfCalls(t, "LoadBank", 1)
}

func TestService_RunningSessionKeepsItsBank(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.SaveSnapshot(ctx, Snapshot{Active: true, CurrentIndex: 0, BankID: "three"}))

	loader := &mockLoader{}
	loader.On("LoadBank", mock.Anything, "three").Return(threeQuestionBank(), nil)

	// configured for a different bank; the running session still plays "three"
	svc := NewService(store, loader, nil, nil, zerolog.Nop(), Options{BankID: "other"})

	b, err := svc.Bank(ctx)
	require.NoError(t, err)
	assert.Equal(t, "three", b.ID)

	_, changed, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	loader.AssertNotCalled(t, "LoadBank", mock.Anything, "other")
}
