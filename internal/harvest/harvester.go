// Package harvest runs the fetch, dedup and write cycle and the loop that
// schedules it.
package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"

	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/metrics"
	"github.com/jobstr/harvester/internal/note"
	"github.com/jobstr/harvester/internal/output"
	"github.com/jobstr/harvester/internal/store"
)

const previewLen = 80

// Querier runs one filter against the relay session.
type Querier interface {
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// Options are the fixed query parameters of a cycle.
type Options struct {
	Hashtag      string
	Lookback     time.Duration
	QueryTimeout time.Duration
	Mode         output.Mode
}

// Result summarizes one cycle.
type Result struct {
	Since    nostr.Timestamp
	Fetched  int
	Filtered int
	Written  int
	Archived int
}

// Harvester performs one complete fetch, dedup and persist cycle.
type Harvester struct {
	querier Querier
	writer  *output.Writer
	archive store.Archive // nil when disabled
	opts    Options
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewHarvester wires a Harvester. archive may be nil.
func NewHarvester(q Querier, w *output.Writer, archive store.Archive, opts Options, clock clockwork.Clock, m *metrics.Metrics, logger *logrus.Logger) *Harvester {
	return &Harvester{
		querier: q,
		writer:  w,
		archive: archive,
		opts:    opts,
		clock:   clock,
		metrics: m,
		log:     logger.WithField("component", "harvester"),
	}
}

// Filter builds the relay filter for a cycle starting at now.
func (h *Harvester) Filter(now time.Time) nostr.Filter {
	since := nostr.Timestamp(now.Add(-h.opts.Lookback).Unix())
	return nostr.Filter{
		Kinds: []int{nostr.KindTextNote},
		Tags:  nostr.TagMap{"t": []string{h.opts.Hashtag}},
		Since: &since,
	}
}

// Run executes one cycle. Nothing is written unless every step before the
// write succeeded.
func (h *Harvester) Run(ctx context.Context) (Result, error) {
	filter := h.Filter(h.clock.Now())
	res := Result{Since: *filter.Since}

	events, err := h.query(ctx, filter)
	if err != nil {
		return res, err
	}
	res.Fetched = len(events)
	h.metrics.RecordStage("fetched", res.Fetched)

	records := make([]note.Record, 0, len(events))
	for _, ev := range events {
		// relays do not always honour the filter
		if ev == nil || !filter.Matches(ev) {
			res.Filtered++
			continue
		}
		rec, err := note.FromEvent(ev)
		if err != nil {
			return res, fault.Wrap(fault.KindDeserialization, "parse event "+ev.ID, err)
		}
		records = append(records, rec)
	}
	h.metrics.RecordStage("filtered", res.Filtered)

	if h.opts.Mode == output.ModeMerge {
		prev, err := output.Load(h.writer.Path())
		if err != nil {
			return res, err
		}
		records = append(prev, records...)
	}

	unique, err := note.Dedup(records)
	if err != nil {
		return res, fault.Wrap(fault.KindDeserialization, "dedup", err)
	}

	if err := h.writer.Write(unique); err != nil {
		return res, err
	}
	res.Written = len(unique)
	h.metrics.RecordStage("written", res.Written)

	for _, rec := range unique {
		h.log.WithFields(logrus.Fields{
			"id":         rec.ID,
			"created_at": int64(rec.CreatedAt),
		}).Infof("note: %s", rec.Preview(previewLen))
	}

	if h.archive != nil && len(unique) > 0 {
		n, err := h.archive.UpsertNotes(ctx, unique)
		if err != nil {
			return res, fault.Wrap(fault.KindArchive, "archive", err)
		}
		res.Archived = n
		h.metrics.RecordStage("archived", n)
	}

	h.log.Infof("[cycle] fetched=%d filtered=%d written=%d archived=%d -> %s",
		res.Fetched, res.Filtered, res.Written, res.Archived, h.writer.Path())
	return res, nil
}

// query bounds the session call by the query timeout and classifies what
// comes back.
func (h *Harvester) query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	qctx, cancel := context.WithTimeout(ctx, h.opts.QueryTimeout)
	defer cancel()

	events, err := h.querier.Query(qctx, filter)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
		err = qctx.Err()
	}
	if err != nil {
		if fault.KindOf(err) == fault.KindUnknown {
			err = fault.Wrap(fault.KindQuery, "query", err)
		}
		return nil, err
	}
	return events, nil
}
