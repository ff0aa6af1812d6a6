// Package progress provides the run events, the non-blocking hub, and the
// emitter interfaces that the fetchers, the chapter pipeline, and the run
// orchestrator use to report progress. Events are batched on a background
// goroutine and fanned out to pluggable sinks such as Prometheus collectors or
// structured logs.
package progress
