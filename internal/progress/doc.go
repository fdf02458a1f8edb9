// Package progress carries pipeline milestones (era start, list done, each
// bill outcome, era end) from the workers to pluggable sinks.
//
// The Hub keys events by run. A run's events reach the sinks together when
// the run ends, when enough of them pile up, or on the periodic flush; the
// Hub also keeps a live tally per run for the HTTP surface.
package progress
