package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotificationDispatcher_ComposesSingleMail(t *testing.T) {
	var sent Mail
	transport := &MockMailTransport{
		SendFunc: func(_ context.Context, mail Mail) error {
			sent = mail
			return nil
		},
	}
	nd := NewNotificationDispatcher(zap.NewNop(), newTestConfig(), NewMockUIDHandler("fixed"), transport)

	err := nd.Notify(context.Background(), "You have an overdue loan.", []string{"fulano@mail.com", "sicrano@mail.com"})
	require.NoError(t, err)
	assert.Equal(t, "m:fixed", sent.ID)
	assert.Equal(t, "library@localhost", sent.From)
	assert.Equal(t, "Delayed loan", sent.Subject)
	assert.Equal(t, "You have an overdue loan.", sent.Body)
	assert.Equal(t, []string{"fulano@mail.com", "sicrano@mail.com"}, sent.To)
}

func TestNotificationDispatcher_DispatchesEmptyBatch(t *testing.T) {
	called := false
	transport := &MockMailTransport{
		SendFunc: func(_ context.Context, mail Mail) error {
			called = true
			assert.Empty(t, mail.To)
			return nil
		},
	}
	nd := NewNotificationDispatcher(zap.NewNop(), newTestConfig(), NewIDsHandler(), transport)

	err := nd.Notify(context.Background(), "You have an overdue loan.", []string{})
	require.NoError(t, err)
	assert.True(t, called, "an empty recipients batch is still handed to the transport")
}

func TestNotificationDispatcher_TransportFailure(t *testing.T) {
	transportErr := errors.New("relay unreachable")
	transport := &MockMailTransport{
		SendFunc: func(_ context.Context, _ Mail) error {
			return transportErr
		},
	}
	nd := NewNotificationDispatcher(zap.NewNop(), newTestConfig(), NewIDsHandler(), transport)

	err := nd.Notify(context.Background(), "You have an overdue loan.", []string{"fulano@mail.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, transportErr))
}

func TestNotificationDispatcher_BoundedSendTimeout(t *testing.T) {
	transport := &MockMailTransport{
		SendFunc: func(ctx context.Context, _ Mail) error {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "the transport call must carry a deadline")
			assert.False(t, deadline.IsZero())
			return nil
		},
	}
	nd := NewNotificationDispatcher(zap.NewNop(), newTestConfig(), NewIDsHandler(), transport)

	err := nd.Notify(context.Background(), "You have an overdue loan.", []string{"fulano@mail.com"})
	require.NoError(t, err)
}
