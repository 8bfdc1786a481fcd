package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(loans LoanServiceProvider, notifier NotifierProvider) *OverdueScheduler {
	return NewOverdueScheduler(
		zap.NewNop(),
		newTestConfig(),
		NewTickClock(NewMockClocker()),
		NewIDsHandler(),
		loans,
		notifier,
	)
}

func TestScheduler_TickDispatchesOverdueEmails(t *testing.T) {
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			return []Loan{
				{ID: 1, ISBN: "123", Customer: "Fulano", CustomerEmail: "fulano@mail.com"},
				{ID: 2, ISBN: "456", Customer: "Sicrano", CustomerEmail: "sicrano@mail.com"},
			}, nil
		},
	}
	var gotMessage string
	var gotRecipients []string
	notifier := &MockNotifier{
		NotifyFunc: func(_ context.Context, message string, recipients []string) error {
			gotMessage = message
			gotRecipients = recipients
			return nil
		},
	}
	s := newTestScheduler(loans, notifier)

	err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You have an overdue loan.", gotMessage)
	assert.Equal(t, []string{"fulano@mail.com", "sicrano@mail.com"}, gotRecipients)
}

func TestScheduler_TickDispatchesEmptyBatch(t *testing.T) {
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			return []Loan{}, nil
		},
	}
	called := false
	notifier := &MockNotifier{
		NotifyFunc: func(_ context.Context, _ string, recipients []string) error {
			called = true
			assert.Empty(t, recipients)
			return nil
		},
	}
	s := newTestScheduler(loans, notifier)

	err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, called, "the dispatcher is invoked even with no overdue loan")
}

func TestScheduler_TickReportsScanFailure(t *testing.T) {
	scanErr := errors.New("backend unavailable")
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			return nil, scanErr
		},
	}
	notified := false
	notifier := &MockNotifier{
		NotifyFunc: func(_ context.Context, _ string, _ []string) error {
			notified = true
			return nil
		},
	}
	s := newTestScheduler(loans, notifier)

	err := s.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, scanErr))
	assert.False(t, notified, "nothing must be dispatched when the scan fails")
}

func TestScheduler_TickReportsDispatchFailure(t *testing.T) {
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			return []Loan{{ID: 1, CustomerEmail: "fulano@mail.com"}}, nil
		},
	}
	dispatchErr := errors.New("transport down")
	notifier := &MockNotifier{
		NotifyFunc: func(_ context.Context, _ string, _ []string) error {
			return dispatchErr
		},
	}
	s := newTestScheduler(loans, notifier)

	err := s.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dispatchErr))
	assert.True(t, strings.Contains(err.Error(), "dispatch failed"))
}

func TestScheduler_SkipsTickWhileRunInFlight(t *testing.T) {
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			return []Loan{{ID: 1, CustomerEmail: "fulano@mail.com"}}, nil
		},
	}
	var started int32
	block := make(chan struct{})
	notifier := &MockNotifier{
		NotifyFunc: func(_ context.Context, _ string, _ []string) error {
			atomic.AddInt32(&started, 1)
			<-block
			return nil
		},
	}
	s := newTestScheduler(loans, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Several intervals elapse while the first run hangs in the dispatch.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&started), "overlapping ticks must be skipped, not queued")

	cancel()
	close(block)
	require.NoError(t, <-done)
}

func TestScheduler_ShutdownCompletesInflightDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			// shutdown arrives in the middle of the run.
			cancel()
			return []Loan{{ID: 1, CustomerEmail: "fulano@mail.com"}}, nil
		},
	}
	var delivered int32
	transport := &MockMailTransport{
		SendFunc: func(ctx context.Context, _ Mail) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			atomic.AddInt32(&delivered, 1)
			return nil
		},
	}
	notifier := NewNotificationDispatcher(zap.NewNop(), newTestConfig(), NewIDsHandler(), transport)
	s := NewOverdueScheduler(zap.NewNop(), newTestConfig(), NewTickClock(NewMockClocker()), NewIDsHandler(), loans, notifier)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the in-flight run completed")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered), "the in-flight dispatch must reach the transport despite the shutdown")
}

func TestScheduler_ShutdownWaitsForInflightRun(t *testing.T) {
	loans := &MockLoanService{
		OverdueFunc: func(_ context.Context) ([]Loan, error) {
			return []Loan{{ID: 1, CustomerEmail: "fulano@mail.com"}}, nil
		},
	}
	var started int32
	block := make(chan struct{})
	notifier := &MockNotifier{
		NotifyFunc: func(_ context.Context, _ string, _ []string) error {
			atomic.AddInt32(&started, 1)
			<-block
			return nil
		},
	}
	s := newTestScheduler(loans, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a dispatch was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the in-flight dispatch completed")
	}
}
