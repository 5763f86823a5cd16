package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	args := m.Called(userID, event, data)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func TestHubPublisher_DeduplicatesRecipients(t *testing.T) {
	hub := new(mockBroadcaster)
	client, creator := uuid.New(), uuid.New()
	e := Event{Type: TypeDisputeOpened, At: time.Now(), Recipients: []uuid.UUID{client, creator, client, uuid.Nil}}

	hub.On("BroadcastToUser", client, TypeDisputeOpened, e).Return(nil).Once()
	hub.On("BroadcastToUser", creator, TypeDisputeOpened, e).Return(nil).Once()

	err := NewHubPublisher(hub).Publish(context.Background(), e)
	assert.NoError(t, err)
	hub.AssertExpectations(t)
}

func TestFanout_PublishesToAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	e := Event{Type: TypeObligationCreated}
	failing := new(mockPublisher)
	ok := new(mockPublisher)
	boom := errors.New("broker down")
	failing.On("Publish", ctx, e).Return(boom)
	ok.On("Publish", ctx, e).Return(nil)

	err := Fanout{failing, nil, ok}.Publish(ctx, e)
	assert.ErrorIs(t, err, boom)
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
