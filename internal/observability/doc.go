// Package observability builds the service logger and the Prometheus
// collectors that record token verification and key set refresh outcomes.
//
// Metrics implements cognito.Recorder, so the key store and verifier report
// through it without depending on Prometheus directly.
package observability
