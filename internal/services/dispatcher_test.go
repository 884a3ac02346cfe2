package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
)

func newDispatcher(t *testing.T, h *harness) *Dispatcher {
	t.Helper()
	return NewDispatcher(context.Background(), h.relay, h.store, h.store, h.events, 2, 16)
}

// enqueue writes a queued event and its pending job the way intake does and
// returns msg bound to that event.
func enqueue(t *testing.T, h *harness, msg domain.InboundMessage) (*domain.RelayJob, domain.InboundMessage) {
	t.Helper()
	ev := h.events.Build(domain.Event{
		WorkspaceID:      msg.WorkspaceID,
		NumberTo:         msg.To,
		Direction:        domain.DirectionTwilioToIntercom,
		Status:           domain.EventQueued,
		TwilioMessageSID: msg.MessageSID,
		IdempotencyKey:   msg.MessageSID,
	})
	msg.EventID = ev.ID
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	job, created, err := h.store.EnqueueInbound(context.Background(), ev, msg.MessageSID, payload)
	require.NoError(t, err)
	require.True(t, created)
	return job, msg
}

func TestDispatcher_SubmitRunsAndCompletesJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedRoute(t, h.store, "+15550000", "W1", true, time.Now())
	d := newDispatcher(t, h)

	job, msg := enqueue(t, h, inbound("SM1", "+15550100", "+15550000", "hi"))
	require.NoError(t, d.Submit(job.ID, msg))
	d.Stop()

	got, err := h.store.GetJobByMessageSID(ctx, "SM1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)

	evs := eventsByKey(t, h.store, "SM1")
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventOK, evs[0].Status)

	assert.ErrorIs(t, d.Submit(job.ID, msg), ErrDispatcherStopped)
}

func TestDispatcher_Recover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedRoute(t, h.store, "+15550000", "W1", true, time.Now())
	dir := domain.DirectionTwilioToIntercom

	// Never claimed: resubmitted.
	fresh, _ := enqueue(t, h, inbound("SM-fresh", "+15550100", "+15550000", "a"))

	// Claimed and interrupted mid-run.
	cut, _ := enqueue(t, h, inbound("SM-cut", "+15550101", "+15550000", "b"))
	require.NoError(t, h.store.UpdateJobStatus(ctx, cut.ID, domain.JobRunning))
	_, owned, err := h.tracker.Start(ctx, "SM-cut", dir)
	require.NoError(t, err)
	require.True(t, owned)

	// Delivered but the job row was never settled.
	done, _ := enqueue(t, h, inbound("SM-done", "+15550102", "+15550000", "c"))
	_, _, err = h.tracker.Start(ctx, "SM-done", dir)
	require.NoError(t, err)
	require.NoError(t, h.tracker.MarkDone(ctx, "SM-done", dir))

	// Processing without any job.
	_, _, err = h.tracker.Start(ctx, "SM-orphan", dir)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	d := newDispatcher(t, h)
	rep, err := d.Recover(ctx)
	require.NoError(t, err)
	d.Stop()

	assert.Equal(t, RecoveryReport{Resubmitted: 1, Abandoned: 1, Completed: 1, Released: 1}, rep)

	job, err := h.store.GetJobByMessageSID(ctx, "SM-fresh")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, job.ID)
	assert.Equal(t, domain.JobCompleted, job.Status)
	freshEvs := eventsByKey(t, h.store, "SM-fresh")
	require.Len(t, freshEvs, 1, "the resubmitted run resolves the original queued event")
	assert.Equal(t, domain.EventOK, freshEvs[0].Status)

	job, err = h.store.GetJobByMessageSID(ctx, "SM-cut")
	require.NoError(t, err)
	assert.Equal(t, domain.JobAbandoned, job.Status)
	rec, err := h.store.GetIdempotency(ctx, "SM-cut", dir)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemFailed, rec.Status)
	assert.Equal(t, domain.CodeUnknown, rec.LastErrorCode)
	evs := eventsByKey(t, h.store, "SM-cut")
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventFailed, evs[0].Status)

	job, err = h.store.GetJobByMessageSID(ctx, done.MessageSID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)

	rec, err = h.store.GetIdempotency(ctx, "SM-orphan", dir)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemFailed, rec.Status)

	stale, err := h.store.ListStaleIdempotency(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, stale, "no record is left processing")
}

func TestDispatcher_Replay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedRoute(t, h.store, "+15550000", "W1", true, time.Now())
	d := newDispatcher(t, h)
	t.Cleanup(d.Stop)

	_, err := d.Replay(ctx, "SM-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, _ := enqueue(t, h, inbound("SM1", "+15550100", "+15550000", "hi"))

	_, _, err = h.tracker.Start(ctx, "SM1", domain.DirectionTwilioToIntercom)
	require.NoError(t, err)
	_, err = d.Replay(ctx, "SM1")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, h.tracker.MarkDone(ctx, "SM1", domain.DirectionTwilioToIntercom))
	_, err = d.Replay(ctx, "SM1")
	assert.ErrorIs(t, err, ErrAlreadyDelivered)

	require.NoError(t, h.tracker.MarkFailed(ctx, "SM1", domain.DirectionTwilioToIntercom, domain.CodeIntercomError))
	require.NoError(t, h.store.UpdateJobStatus(ctx, job.ID, domain.JobRunning))
	ev, err := d.Replay(ctx, "SM1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventRetrying, ev.Status)
	assert.Equal(t, 1, ev.RetryCount)
}

func TestDispatcher_ReplayDeliversFailedMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedRoute(t, h.store, "+15550000", "W1", true, time.Now())

	_, msg := enqueue(t, h, inbound("SM1", "+15550100", "+15550000", "hi"))
	h.api.convErr = &intercom.APIError{StatusCode: 500}
	require.Equal(t, domain.EventFailed, h.relay.Relay(ctx, msg).Status)
	h.api.convErr = nil

	d := newDispatcher(t, h)
	_, err := d.Replay(ctx, "SM1")
	require.NoError(t, err)
	d.Stop()

	rec, err := h.store.GetIdempotency(ctx, "SM1", domain.DirectionTwilioToIntercom)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemDone, rec.Status)

	evs := eventsByKey(t, h.store, "SM1")
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventFailed, evs[0].Status)
	assert.Equal(t, domain.EventOK, evs[1].Status)
}

// gateRelayer blocks every relay until release is closed.
type gateRelayer struct {
	started chan struct{}
	release chan struct{}
	ran     atomic.Int32
}

func (g *gateRelayer) Relay(context.Context, domain.InboundMessage) Outcome {
	g.started <- struct{}{}
	<-g.release
	g.ran.Add(1)
	return Outcome{Status: domain.EventOK}
}

func TestDispatcher_SubmitNeverBlocksOnFullQueue(t *testing.T) {
	h := newHarness(t)
	g := &gateRelayer{started: make(chan struct{}, 16), release: make(chan struct{})}
	d := NewDispatcher(context.Background(), g, h.store, h.store, h.events, 1, 1)

	msg := inbound("SM1", "+15550100", "+15550000", "hi")
	require.NoError(t, d.Submit("", msg))
	<-g.started

	accepted := 1
	var busy error
	for i := 0; i < 8 && busy == nil; i++ {
		if err := d.Submit("", msg); err != nil {
			busy = err
			break
		}
		accepted++
	}
	assert.ErrorIs(t, busy, ErrDispatcherBusy)

	close(g.release)
	d.Stop()
	assert.EqualValues(t, accepted, g.ran.Load(), "rejected work never runs")
	assert.ErrorIs(t, d.Submit("", msg), ErrDispatcherStopped)
}
