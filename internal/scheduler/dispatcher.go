package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cryptopulse/config"
	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
	"cryptopulse/internal/service"
)

// RuleStore is the slice of the rule service the engine needs.
type RuleStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationRule, error)
	Claim(ctx context.Context, rule *models.NotificationRule, now time.Time, lease time.Duration) (service.ClaimTicket, error)
	Renew(ctx context.Context, ruleID, token string, now time.Time, lease time.Duration) (bool, error)
	HoldForPush(ctx context.Context, ruleID, token, dispatchKey string, now time.Time, lease time.Duration) (bool, error)
	Release(ctx context.Context, ruleID, token string) error
	FinishDispatch(ctx context.Context, entry *models.DeliveryLog, token string, next time.Time) (repository.FinishResult, error)
	RecordFailure(ctx context.Context, ruleID, token string, failures int, next time.Time) (bool, error)
	Deactivate(ctx context.Context, ruleID, token string) (bool, error)
}

type Prices interface {
	Lookup(ctx context.Context, coinID uint) (*service.Quote, error)
}

type Pusher interface {
	TokenFor(ctx context.Context, userID uint) (string, error)
	Send(ctx context.Context, msg service.PushMessage) error
}

// Publisher receives every newly logged delivery, e.g. the websocket hub.
type Publisher interface {
	PublishDelivery(entry *models.DeliveryLog)
}

// Job is one claimed fire of a rule.
type Job struct {
	Rule  models.NotificationRule
	Token string        // claim token, checked on every claim-scoped write
	Key   string        // dispatch key, the delivery log's idempotency key
	Lease time.Duration // lease length used on renewal
}

const defaultLease = 5 * time.Minute

// Outcome is how a dispatch ended.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeNoRecipient    Outcome = "no_recipient"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeSkipped        Outcome = "skipped"     // claim expired or taken over
	OutcomeRetry          Outcome = "retry"       // transient failure, rule pushed back
	OutcomeDeactivated    Outcome = "deactivated" // rule can never fire again
	OutcomeError          Outcome = "error"
)

type Dispatcher struct {
	rules  RuleStore
	prices Prices
	push   Pusher
	pub    Publisher
	cfg    config.DispatcherConfig
	log    zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	queue chan Job

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	inFlight  int32
	processed atomic.Int64
}

func NewDispatcher(rules RuleStore, prices Prices, push Pusher, pub Publisher, cfg config.DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	return &Dispatcher{
		rules:  rules,
		prices: prices,
		push:   push,
		pub:    pub,
		cfg:    cfg,
		log:    log.With().Str("component", "dispatcher").Logger(),
		now:    service.Now,
		sleep:  sleepCtx,
		queue:  make(chan Job, cfg.QueueSize),
	}
}

func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Start launches the workers. They run until Stop or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	stopCh := d.stopCh

	d.wg.Add(d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		idx := i
		go func() {
			defer d.wg.Done()
			d.worker(ctx, stopCh, idx)
		}()
	}
	d.log.Info().Int("workers", d.cfg.Workers).Int("queue", d.cfg.QueueSize).Msg("dispatcher started")
}

// Stop signals the workers, waits for in-flight dispatches (bounded by ctx)
// and releases the claims of jobs still queued.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()
	// Submit checks running under mu, so the queue only shrinks from here.

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn().Msg("dispatcher stop timed out with dispatches in flight")
	}

	for {
		select {
		case job := <-d.queue:
			d.release(context.Background(), job)
		default:
			d.log.Info().Int64("processed", d.processed.Load()).Msg("dispatcher stopped")
			return
		}
	}
}

// Submit queues a claimed job without blocking. It returns false when the
// queue is full or the dispatcher is stopped; the caller keeps the claim.
// The lock is held across the send so nothing is queued after Stop drains.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return false
	}
	select {
	case d.queue <- job:
		return true
	default:
		return false
	}
}

// InFlight is the number of jobs a worker is running right now.
func (d *Dispatcher) InFlight() int { return int(atomic.LoadInt32(&d.inFlight)) }

// Queued is the number of claimed jobs waiting for a worker.
func (d *Dispatcher) Queued() int { return len(d.queue) }

// Processed counts finished jobs since start.
func (d *Dispatcher) Processed() int64 { return d.processed.Load() }

func (d *Dispatcher) worker(ctx context.Context, stopCh <-chan struct{}, idx int) {
	// Per-worker RNG for retry jitter.
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ (int64(idx) << 32)))
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case job := <-d.queue:
			atomic.AddInt32(&d.inFlight, 1)
			d.runJob(ctx, job, rng)
			atomic.AddInt32(&d.inFlight, -1)
			d.processed.Add(1)
		}
	}
}

func (d *Dispatcher) runJob(ctx context.Context, job Job, rng *rand.Rand) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("rule_id", job.Rule.ID).Str("dispatch_key", job.Key).Str("claim", job.Token).
				Interface("panic", r).Str("stack", string(debug.Stack())).Msg("dispatch panic")
			d.release(context.Background(), job)
		}
	}()
	d.dispatch(ctx, job, rng)
}

// Dispatch runs one claimed job to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) Outcome {
	return d.dispatch(ctx, job, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func (d *Dispatcher) dispatch(ctx context.Context, job Job, rng *rand.Rand) Outcome {
	rule := job.Rule
	log := d.log.With().Str("rule_id", rule.ID).Uint("user_id", rule.UserID).
		Uint("coin_id", rule.CoinID).Str("dispatch_key", job.Key).Logger()

	// Renew on dequeue: a job that waited out its lease in the queue may have
	// been reclaimed by a later scan.
	if ok, err := d.renew(ctx, job); err != nil {
		log.Error().Err(err).Msg("renew claim")
		d.release(ctx, job)
		return OutcomeError
	} else if !ok {
		log.Debug().Msg("claim expired or taken over, skipping")
		return OutcomeSkipped
	}

	quote, err := d.lookup(ctx, rule.CoinID, rng, log)
	switch {
	case errors.Is(err, service.ErrCoinNotFound):
		if _, derr := d.rules.Deactivate(ctx, rule.ID, job.Token); derr != nil {
			log.Error().Err(derr).Msg("deactivate rule for removed coin")
			return OutcomeError
		}
		log.Warn().Msg("coin removed from catalog, rule deactivated")
		return OutcomeDeactivated
	case err != nil:
		return d.fail(ctx, job, err, log)
	}

	token, err := d.push.TokenFor(ctx, rule.UserID)
	if err != nil {
		return d.fail(ctx, job, err, log)
	}

	rec, err := rule.Recurrence()
	if err != nil {
		// Only reachable if the stored row was edited by hand.
		log.Error().Err(err).Msg("stored recurrence is invalid, deactivating")
		if _, derr := d.rules.Deactivate(ctx, rule.ID, job.Token); derr != nil {
			log.Error().Err(derr).Msg("deactivate rule with invalid recurrence")
			return OutcomeError
		}
		return OutcomeDeactivated
	}

	// Renew again before pushing so the lease outlives the push. If the price
	// lookup outlasted the lease, another claim may already own this fire.
	if ok, err := d.rules.HoldForPush(ctx, rule.ID, job.Token, job.Key, d.now(), d.lease(job)); err != nil {
		log.Error().Err(err).Msg("renew claim before push")
		d.release(ctx, job)
		return OutcomeError
	} else if !ok {
		log.Warn().Msg("claim lost during price lookup, not pushing")
		return OutcomeSkipped
	}

	sentAt := d.now()
	title, body, data := buildMessage(quote, rule.ID, sentAt)
	entry := &models.DeliveryLog{
		DispatchKey:   job.Key,
		RuleID:        rule.ID,
		UserID:        rule.UserID,
		CoinID:        rule.CoinID,
		CoinName:      quote.Coin.Name,
		CoinSymbol:    quote.Coin.Symbol,
		CoinColor:     quote.Coin.Color,
		Price:         quote.CurrentPrice,
		ChangePercent: quote.Change24h,
		NotifiedAt:    sentAt,
	}

	if token == "" {
		entry.Status = models.DeliveryStatusNoRecipient
		entry.Message = "No push token registered for " + quote.Coin.Symbol
	} else {
		pushCtx, cancel := d.withTimeout(ctx, d.cfg.PushTimeout)
		err = d.push.Send(pushCtx, service.PushMessage{UserID: rule.UserID, Token: token, Title: title, Body: body, Data: data})
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("push delivery failed")
			entry.Status = models.DeliveryStatusFailed
			entry.Message = "Push notification failed for " + quote.Coin.Symbol
			entry.Error = err.Error()
		} else {
			entry.Status = models.DeliveryStatusSent
			entry.Message = "Push notification sent for " + quote.Coin.Symbol
		}
	}

	next := rec.Next(d.now())
	res, err := d.rules.FinishDispatch(ctx, entry, job.Token, next)
	if err != nil {
		log.Error().Err(err).Msg("finish dispatch")
		d.release(ctx, job)
		return OutcomeError
	}
	if res.Duplicate {
		log.Info().Msg("dispatch already logged")
		return OutcomeDuplicate
	}
	if d.pub != nil {
		d.pub.PublishDelivery(entry)
	}

	ev := log.Info()
	if res.Rescheduled {
		ev = ev.Time("next", next)
	}
	ev.Str("status", entry.Status).Bool("rule_exists", res.RuleExists).Bool("rescheduled", res.Rescheduled).Msg("dispatched")

	switch entry.Status {
	case models.DeliveryStatusSent:
		return OutcomeSent
	case models.DeliveryStatusNoRecipient:
		return OutcomeNoRecipient
	default:
		return OutcomeDeliveryFailed
	}
}

// lookup fetches the quote, retrying ErrPriceUnavailable up to RetryMax times.
func (d *Dispatcher) lookup(ctx context.Context, coinID uint, rng *rand.Rand, log zerolog.Logger) (*service.Quote, error) {
	var lastErr error
	for attempt := 1; attempt <= 1+d.cfg.RetryMax; attempt++ {
		lookupCtx, cancel := d.withTimeout(ctx, d.cfg.PriceTimeout)
		q, err := d.prices.Lookup(lookupCtx, coinID)
		cancel()
		if err == nil {
			return q, nil
		}
		if errors.Is(err, service.ErrCoinNotFound) {
			return nil, err
		}
		lastErr = err
		if attempt > d.cfg.RetryMax {
			break
		}
		delay := retryDelay(d.cfg.RetryBase, d.cfg.RetryMaxDelay, 0.2, attempt, rng)
		log.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("price lookup retry scheduled")
		if err := d.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrPriceUnavailable, err)
		}
	}
	if !errors.Is(lastErr, service.ErrPriceUnavailable) {
		lastErr = fmt.Errorf("%w: %v", service.ErrPriceUnavailable, lastErr)
	}
	return nil, lastErr
}

// fail pushes the rule back after a transient failure. Below MaxFailures the
// delay doubles per failure; at the ceiling the rule returns to its regular
// schedule and the count resets.
func (d *Dispatcher) fail(ctx context.Context, job Job, cause error, log zerolog.Logger) Outcome {
	now := d.now()
	failures := job.Rule.FailureCount + 1
	var next time.Time
	if failures < d.cfg.MaxFailures {
		next = now.Add(failureBackoff(d.cfg.FailureBackoff, failures))
		log.Warn().Err(cause).Int("failures", failures).Time("next", next).Msg("dispatch failed, backing off")
	} else {
		rec, err := job.Rule.Recurrence()
		if err != nil {
			next = now.Add(failureBackoff(d.cfg.FailureBackoff, failures))
		} else {
			next = rec.Next(now)
		}
		log.Warn().Err(cause).Int("failures", failures).Time("next", next).Msg("dispatch failed too often, skipping to next regular fire")
		failures = 0
	}
	ok, err := d.rules.RecordFailure(ctx, job.Rule.ID, job.Token, failures, next)
	if err != nil {
		log.Error().Err(err).Msg("record failure")
		return OutcomeError
	}
	if !ok {
		log.Debug().Msg("claim lost before failure was recorded")
	}
	return OutcomeRetry
}

func (d *Dispatcher) renew(ctx context.Context, job Job) (bool, error) {
	return d.rules.Renew(ctx, job.Rule.ID, job.Token, d.now(), d.lease(job))
}

func (d *Dispatcher) lease(job Job) time.Duration {
	if job.Lease <= 0 {
		return defaultLease
	}
	return job.Lease
}

func (d *Dispatcher) release(ctx context.Context, job Job) {
	if err := d.rules.Release(ctx, job.Rule.ID, job.Token); err != nil {
		d.log.Error().Err(err).Str("rule_id", job.Rule.ID).Msg("release claim")
	}
}

func (d *Dispatcher) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
