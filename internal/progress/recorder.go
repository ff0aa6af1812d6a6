package progress

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Recorder stamps events with a run ID and timestamp before forwarding them.
type Recorder struct {
	runID [16]byte
	next  Emitter
	clock Clock
}

// NewRecorder scopes next to a single run. A nil next discards events.
func NewRecorder(runID uuid.UUID, next Emitter, clock Clock) *Recorder {
	if next == nil {
		next = Nop{}
	}
	return &Recorder{runID: UUIDToBytes(runID), next: next, clock: clock}
}

// RunID returns the run this recorder stamps onto events.
func (r *Recorder) RunID() uuid.UUID {
	return uuid.UUID(r.runID)
}

// Emit fills in RunID and TS when unset and forwards the event.
func (r *Recorder) Emit(evt Event) {
	if r == nil {
		return
	}
	if evt.RunID == [16]byte{} {
		evt.RunID = r.runID
	}
	if evt.TS.IsZero() {
		evt.TS = r.now()
	}
	r.next.Emit(evt)
}

func (r *Recorder) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now()
}
