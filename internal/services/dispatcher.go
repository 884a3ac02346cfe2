// Package services – Dispatcher
//
// Dispatcher runs relay jobs on a bounded worker pool after the Twilio
// webhook has been acknowledged. Jobs are durable rows written by the intake
// path, so work accepted before a crash is found again by Recover on the
// next start. Replay lets an operator re-run a failed message.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 1024
)

// Relayer runs one relay to completion.
type Relayer interface {
	Relay(ctx context.Context, msg domain.InboundMessage) Outcome
}

// RecoveryReport summarizes a Recover pass.
type RecoveryReport struct {
	Resubmitted int
	Abandoned   int
	Completed   int
	Released    int
}

// Dispatcher owns the relay worker pool.
type Dispatcher struct {
	relay   Relayer
	jobs    JobStore
	idem    IdempotencyStore
	events  *EventRecorder
	pool    pond.Pool
	baseCtx context.Context
}

// NewDispatcher starts a pool of workers bounded by queueSize pending jobs.
// ctx is the process lifetime; cancelling it stops accepting work.
func NewDispatcher(ctx context.Context, relay Relayer, jobs JobStore, idem IdempotencyStore, events *EventRecorder, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		relay:   relay,
		jobs:    jobs,
		idem:    idem,
		events:  events,
		baseCtx: ctx,
		pool: pond.NewPool(
			workers,
			pond.WithQueueSize(queueSize),
			pond.WithContext(ctx),
		),
	}
}

// Submit queues msg for relay without blocking. jobID, when set, is moved
// through running and completed; an empty jobID runs the relay without job
// tracking. A full queue returns ErrDispatcherBusy and a stopped pool
// ErrDispatcherStopped; in both cases nothing runs.
func (d *Dispatcher) Submit(jobID string, msg domain.InboundMessage) error {
	if d.pool.Stopped() {
		return ErrDispatcherStopped
	}
	dispatcherQueued.Inc()
	if _, ok := d.pool.TrySubmit(func() {
		defer dispatcherQueued.Dec()
		d.run(jobID, msg)
	}); !ok {
		dispatcherQueued.Dec()
		if d.pool.Stopped() {
			return ErrDispatcherStopped
		}
		return ErrDispatcherBusy
	}
	return nil
}

func (d *Dispatcher) run(jobID string, msg domain.InboundMessage) {
	// Detach from the pool's context so a shutdown in the middle of a run
	// still lets it settle its idempotency record.
	ctx := context.WithoutCancel(d.baseCtx)
	lg := zerolog.Ctx(ctx).With().Str("job_id", jobID).Str("correlation_id", msg.MessageSID).Logger()
	ctx = lg.WithContext(ctx)

	if jobID != "" {
		if err := d.jobs.UpdateJobStatus(ctx, jobID, domain.JobRunning); err != nil {
			lg.Error().Err(err).Msg("mark job running failed")
		}
	}

	out := d.relay.Relay(ctx, msg)

	if jobID != "" {
		if err := d.jobs.UpdateJobStatus(ctx, jobID, domain.JobCompleted); err != nil {
			lg.Error().Err(err).Msg("mark job completed failed")
		}
	}
	lg.Debug().Str("status", string(out.Status)).Msg("relay job finished")
}

// Stop waits for queued and running jobs, then releases the workers.
func (d *Dispatcher) Stop() {
	d.pool.StopAndWait()
}

// Recover resumes work left behind by a previous process. It must run before
// new deliveries are accepted. Jobs that never claimed their message are
// resubmitted. Messages still marked processing were interrupted mid-run, so
// they are failed with "unknown" and left for an operator replay; no record
// stays processing.
func (d *Dispatcher) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	startedAt := time.Now().UTC()
	lg := zerolog.Ctx(ctx)

	open, err := d.jobs.ListJobsByStatus(ctx, domain.JobPending, domain.JobRunning)
	if err != nil {
		return rep, fmt.Errorf("list open jobs: %w", err)
	}

	for i := range open {
		job := open[i]
		var msg domain.InboundMessage
		if err := json.Unmarshal(job.Payload, &msg); err != nil || msg.MessageSID == "" {
			lg.Error().Err(err).Str("job_id", job.ID).Msg("undecodable relay job abandoned")
			_ = d.jobs.UpdateJobStatus(ctx, job.ID, domain.JobAbandoned)
			rep.Abandoned++
			continue
		}

		rec, err := d.idem.GetIdempotency(ctx, msg.MessageSID, dirInbound)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			if err := d.Submit(job.ID, msg); err != nil {
				return rep, err
			}
			rep.Resubmitted++
		case err != nil:
			return rep, fmt.Errorf("load idempotency for %s: %w", msg.MessageSID, err)
		case rec.Status == domain.IdemProcessing:
			d.interrupt(ctx, msg.MessageSID, msg.WorkspaceID)
			_ = d.jobs.UpdateJobStatus(ctx, job.ID, domain.JobAbandoned)
			rep.Abandoned++
		default:
			_ = d.jobs.UpdateJobStatus(ctx, job.ID, domain.JobCompleted)
			rep.Completed++
		}
	}

	// Processing records without an open job (for example a redelivery that
	// was running untracked).
	stale, err := d.idem.ListStaleIdempotency(ctx, startedAt)
	if err != nil {
		return rep, fmt.Errorf("list stale idempotency: %w", err)
	}
	for _, rec := range stale {
		if rec.Direction != dirInbound {
			continue
		}
		d.interrupt(ctx, rec.Key, "")
		rep.Released++
	}

	lg.Info().
		Int("resubmitted", rep.Resubmitted).
		Int("abandoned", rep.Abandoned).
		Int("completed", rep.Completed).
		Int("released", rep.Released).
		Msg("relay recovery finished")
	return rep, nil
}

func (d *Dispatcher) interrupt(ctx context.Context, key, workspace string) {
	const detail = "Relay interrupted by restart"
	if err := d.idem.MarkIdempotencyFailed(ctx, key, dirInbound, domain.CodeUnknown); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("correlation_id", key).Msg("release interrupted relay failed")
	}
	// Every open event for the key belongs to a run that died with the process.
	_ = d.events.ResolveOpen(ctx, key, repo.EventPatch{
		Status:      domain.EventFailed,
		ErrorCode:   domain.CodeUnknown,
		ErrorDetail: detail,
	}, domain.Event{WorkspaceID: workspace, Direction: dirInbound, TwilioMessageSID: key})
}

// Replay re-runs the relay of a message whose previous attempt failed.
func (d *Dispatcher) Replay(ctx context.Context, messageSID string) (*domain.Event, error) {
	job, err := d.jobs.GetJobByMessageSID(ctx, messageSID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	rec, err := d.idem.GetIdempotency(ctx, messageSID, dirInbound)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		return nil, err
	case rec.Status == domain.IdemDone:
		return nil, ErrAlreadyDelivered
	case rec.Status == domain.IdemProcessing:
		return nil, ErrInFlight
	}

	var msg domain.InboundMessage
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		return nil, fmt.Errorf("decode relay job: %w", err)
	}

	ev, err := d.events.Record(ctx, domain.Event{
		WorkspaceID:      msg.WorkspaceID,
		NumberTo:         msg.To,
		Direction:        dirInbound,
		Status:           domain.EventRetrying,
		TwilioMessageSID: messageSID,
		IdempotencyKey:   messageSID,
		RetryCount:       job.Attempts,
	})
	if err != nil {
		return nil, err
	}
	msg.EventID = ev.ID
	if err := d.Submit(job.ID, msg); err != nil {
		// Nothing will run for this event; settle it so the log does not show
		// a retry that never happened.
		_, _ = d.events.Resolve(ctx, ev.ID, repo.EventPatch{
			Status:      domain.EventFailed,
			ErrorCode:   domain.CodeUnknown,
			ErrorDetail: "Replay not scheduled: " + err.Error(),
		}, *ev)
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("correlation_id", messageSID).Int("retry_count", job.Attempts).Msg("relay replay submitted")
	return ev, nil
}
