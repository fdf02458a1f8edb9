// Package crawler defines the capabilities, error taxonomy and retry policy
// shared by the bill extractors, the per-era worker and its sinks.
package crawler
