// Package metrics exposes Prometheus instrumentation for probe calls,
// persistence writes and the connection status of paired boxes.
package metrics
