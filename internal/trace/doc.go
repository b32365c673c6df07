// Package trace records what a merge run is doing.
//
// Tracing is off unless requested on the command line:
//
//	vcdmerge --trace=- --trace-level=detail a.vcd b.vcd out.vcd
//
// # Tracers
//
//   - Nop: used when tracing is disabled
//   - StreamTracer: writes each event as it happens (text or NDJSON)
//   - RingTracer: keeps the last events in memory for dumps after a failure
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// Every event has a scope; the level decides which scopes are emitted:
//
//   - LevelPhase: driver and phase events (headers, compose, merge)
//   - LevelDetail: adds per-source events (one input file or section)
//   - LevelDebug: adds per-group events from the merge loop
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "headers", 0)
//	defer span.End("")
package trace
