// Package scheduler finds due notification rules, claims them and dispatches
// them on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"cryptopulse/config"
	"cryptopulse/internal/service"
)

// Refresher is a periodic background job such as the price cache refresh.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// ScanReport summarizes one scan tick.
type ScanReport struct {
	Due       int
	Claimed   int
	Submitted int
	Conflicts int // rules changed between the query and the claim
	Released  int // claimed but the dispatch queue was full
}

// Scanner owns the cron runner: a due-set scan every ScanInterval and,
// optionally, a price refresh every RefreshInterval.
type Scanner struct {
	rules      RuleStore
	dispatcher *Dispatcher
	cfg        config.SchedulerConfig
	log        zerolog.Logger
	now        func() time.Time

	prices        Refresher
	priceInterval time.Duration

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

func NewScanner(rules RuleStore, dispatcher *Dispatcher, cfg config.SchedulerConfig, log zerolog.Logger) *Scanner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &Scanner{
		rules:      rules,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.With().Str("component", "scanner").Logger(),
		now:        service.Now,
	}
}

func (s *Scanner) SetClock(now func() time.Time) { s.now = now }

// WithPriceRefresh registers r to run every interval alongside the scan.
func (s *Scanner) WithPriceRefresh(r Refresher, interval time.Duration) *Scanner {
	s.prices = r
	s.priceInterval = interval
	return s
}

// Start registers the cron entries, runs one price refresh and one scan
// immediately, and starts the dispatcher.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return errors.New("scanner already started")
	}
	runCtx, cancel := context.WithCancel(ctx)

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.ScanInterval), func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("register scan: %w", err)
	}
	if s.prices != nil && s.priceInterval > 0 {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.priceInterval), func() { s.refresh(runCtx) }); err != nil {
			cancel()
			return fmt.Errorf("register price refresh: %w", err)
		}
	}

	s.c, s.cancel = c, cancel
	s.dispatcher.Start(runCtx)
	c.Start()
	go func() {
		if s.prices != nil {
			s.refresh(runCtx)
		}
		s.tick(runCtx)
	}()
	s.log.Info().Dur("interval", s.cfg.ScanInterval).Dur("lease", s.cfg.ClaimLease).Int("batch", s.cfg.BatchSize).Msg("scanner started")
	return nil
}

// Stop halts the cron runner, waits for a running tick, then drains the dispatcher.
func (s *Scanner) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.dispatcher.Stop(ctx)
	cancel()
	s.log.Info().Msg("scanner stopped")
}

func (s *Scanner) tick(ctx context.Context) {
	rep, err := s.ScanOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scan failed")
		return
	}
	if rep.Due > 0 {
		s.log.Info().Int("due", rep.Due).Int("claimed", rep.Claimed).Int("submitted", rep.Submitted).
			Int("conflicts", rep.Conflicts).Int("released", rep.Released).Msg("scan")
	}
}

func (s *Scanner) refresh(ctx context.Context) {
	if _, err := s.prices.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("price refresh failed")
	}
}

// ScanOnce claims every due rule (up to the batch size) and hands it to the
// dispatcher. A rule that cannot be queued has its claim released so the next
// tick picks it up again.
func (s *Scanner) ScanOnce(ctx context.Context) (ScanReport, error) {
	var rep ScanReport
	now := s.now()
	due, err := s.rules.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return rep, err
	}
	rep.Due = len(due)
	for i := range due {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rule := due[i]
		ticket, err := s.rules.Claim(ctx, &rule, now, s.cfg.ClaimLease)
		if errors.Is(err, service.ErrConflict) {
			rep.Conflicts++
			continue
		}
		if err != nil {
			return rep, err
		}
		rep.Claimed++
		job := Job{Rule: rule, Token: ticket.Token, Key: ticket.DispatchKey, Lease: s.cfg.ClaimLease}
		if s.dispatcher.Submit(job) {
			rep.Submitted++
			continue
		}
		if err := s.rules.Release(ctx, rule.ID, ticket.Token); err != nil {
			s.log.Error().Err(err).Str("rule_id", rule.ID).Msg("release unqueued claim")
		}
		rep.Released++
	}
	return rep, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
