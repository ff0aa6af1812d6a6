package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageRunStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the periodic flush picks up small batches.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWhenFull asserts Emit drops instead of blocking.
func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.EqualValues(t, 1, hub.Dropped())
}

// TestHubFlushOnClose ensures Close drains buffered events and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(Event{Stage: StageRunStart}) // invalid: no run id

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestRecorderStampsRunAndTime(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	capture := &captureEmitter{}
	rec := NewRecorder(runID, capture, fixedClock{t: fixed})

	rec.Emit(Event{Stage: StageChapterDone, Index: 2})

	require.Len(t, capture.events, 1)
	got := capture.events[0]
	require.Equal(t, runID, got.RunUUID())
	require.Equal(t, fixed, got.TS)
	require.NoError(t, got.Validate())
	require.Equal(t, runID, rec.RunID())
}

func TestEmitterFromContext(t *testing.T) {
	t.Parallel()

	fallback := &captureEmitter{}
	scoped := &captureEmitter{}

	EmitterFrom(context.Background(), fallback).Emit(Event{Stage: StageRunStart})
	require.Len(t, fallback.events, 1)

	ctx := WithEmitter(context.Background(), scoped)
	EmitterFrom(ctx, fallback).Emit(Event{Stage: StageRunDone})
	require.Len(t, scoped.events, 1)
	require.Len(t, fallback.events, 1)

	require.Equal(t, Nop{}, EmitterFrom(context.Background(), nil))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := sampleEvent(StageFetchDone)
	require.NoError(t, base.Validate())

	noSite := base
	noSite.Site = ""
	require.Error(t, noSite.Validate())

	unknown := base
	unknown.Stage = "NOPE"
	require.Error(t, unknown.Validate())

	negative := sampleEvent(StageChapterDone)
	negative.Index = -1
	require.Error(t, negative.Validate())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(0))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type captureEmitter struct {
	events []Event
}

func (c *captureEmitter) Emit(evt Event) {
	c.events = append(c.events, evt)
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Stage: stage,
	}
	if stage == StageFetchDone {
		evt.Site = "www.royalroad.com"
		evt.StatusClass = Status2xx
	}
	return evt
}
