package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/metrics"
)

const maxBackoff = time.Minute

// Cycle is one unit of scheduled work.
type Cycle interface {
	Run(ctx context.Context) (Result, error)
}

// RetryPolicy bounds the retries of a cycle that failed transiently.
// MaxRetries 0 terminates on the first failure.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// delay is the wait before retry number attempt (0-based): Backoff doubled
// per attempt, capped at one minute.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// Poller runs a Cycle every interval until the context is cancelled or a
// cycle fails for good.
type Poller struct {
	cycle    Cycle
	interval time.Duration
	retry    RetryPolicy
	clock    clockwork.Clock
	status   *Status
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewPoller wires a Poller. status may be nil.
func NewPoller(c Cycle, interval time.Duration, retry RetryPolicy, clock clockwork.Clock, status *Status, m *metrics.Metrics, logger *logrus.Logger) *Poller {
	if status == nil {
		status = NewStatus()
	}
	return &Poller{
		cycle:    c,
		interval: interval,
		retry:    retry,
		clock:    clock,
		status:   status,
		metrics:  m,
		log:      logger.WithField("component", "poller"),
	}
}

// Run loops until ctx is cancelled, returning nil, or until a cycle fails
// with a fatal error or exhausts its retries, returning that error.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Infof("[poller] started, interval=%s max_retries=%d", p.interval, p.retry.MaxRetries)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("[poller] context cancelled, stopping")
			return nil
		default:
		}

		if err := p.runWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				p.log.Info("[poller] context cancelled during cycle, stopping")
				return nil
			}
			p.status.terminated(err)
			p.log.WithError(err).Errorf("[poller] terminating: %s error", fault.KindOf(err))
			return err
		}

		select {
		case <-ctx.Done():
			p.log.Info("[poller] context cancelled, stopping")
			return nil
		case <-p.clock.After(p.interval):
		}
	}
}

func (p *Poller) runWithRetry(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		start := p.clock.Now()
		p.status.started(start)

		res, err := p.cycle.Run(ctx)
		elapsed := p.clock.Since(start)
		p.metrics.CycleDuration.Observe(elapsed.Seconds())

		if err == nil {
			p.status.succeeded(p.clock.Now(), res)
			p.metrics.Cycles.WithLabelValues("ok").Inc()
			p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}

		p.status.failed(err)
		p.metrics.Cycles.WithLabelValues(fault.KindOf(err).String()).Inc()

		if !fault.Transient(err) || attempt >= p.retry.MaxRetries {
			return err
		}

		wait := p.retry.delay(attempt)
		p.metrics.Retries.Inc()
		p.log.WithError(err).Warnf("[poller] cycle failed (%s), retry %d/%d in %s",
			fault.KindOf(err), attempt+1, p.retry.MaxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(wait):
		}
	}
}
