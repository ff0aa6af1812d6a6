// Package sinks implements concrete progress consumers: Prometheus collectors
// for run and fetch metrics, and a structured log sink for debugging.
package sinks
