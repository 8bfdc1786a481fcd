package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// OverdueScheduler runs the periodic overdue notification job: scan the
// ledger for late loans, project the customer emails and dispatch one
// notification batch. A compare-and-swap guard skips a tick while the
// previous one is still in flight, a run never queues behind another.
type OverdueScheduler struct {
	logger   *zap.Logger
	config   *Config
	clock    TickerClocker
	ids      UIDHandler
	loans    LoanServiceProvider
	notifier NotifierProvider
	busy     atomic.Bool
	wg       sync.WaitGroup
}

func NewOverdueScheduler(logger *zap.Logger, config *Config, clock TickerClocker, ids UIDHandler, loans LoanServiceProvider, notifier NotifierProvider) *OverdueScheduler {
	return &OverdueScheduler{
		logger:   logger,
		config:   config,
		clock:    clock,
		ids:      ids,
		loans:    loans,
		notifier: notifier,
	}
}

// Run drives the ticker until the context is done. An in-flight tick is
// allowed to finish before Run returns so a dispatch is never cut short.
func (s *OverdueScheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: starting",
		zap.Duration("scheduler.interval", s.config.Scheduler.Interval),
		zap.Int("scheduler.grace.days", s.config.Scheduler.GraceDays),
	)
	ticker := s.clock.NewTicker(s.config.Scheduler.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler: stopped", zap.String("reason", ctx.Err().Error()))
			return nil
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				s.logger.Warn("scheduler: previous run still in flight. tick skipped")
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.busy.Store(false)
				// Shutdown waits for this run through the wait group, so the
				// run is detached from the loop context and its dispatch
				// completes under the bounded send timeout.
				if err := s.Tick(context.WithoutCancel(ctx)); err != nil {
					s.logger.Error("scheduler: run failed", zap.Error(err))
				}
			}()
		}
	}
}

// Tick performs one scan-and-dispatch sequence. Every late customer email
// goes into the recipients batch, one entry per overdue loan. An empty
// batch is still dispatched.
func (s *OverdueScheduler) Tick(ctx context.Context) error {
	runID := s.ids.Generate(TickIDPrefix)

	late, err := s.loans.Overdue(ctx)
	if err != nil {
		return fmt.Errorf("run %s: overdue scan failed: %w", runID, err)
	}

	recipients := make([]string, 0, len(late))
	for _, loan := range late {
		recipients = append(recipients, loan.CustomerEmail)
	}

	if err = s.notifier.Notify(ctx, s.config.Mail.Message, recipients); err != nil {
		return fmt.Errorf("run %s: dispatch failed: %w", runID, err)
	}

	s.logger.Info("scheduler: run completed",
		zap.String("run.id", runID),
		zap.Int("run.overdue", len(late)),
		zap.Int("run.recipients", len(recipients)),
	)
	return nil
}
