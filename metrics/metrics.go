// Package metrics records session lifecycle events.
package metrics

// Recorder is implemented by PrometheusRecorder for production and
// NoopRecorder when metrics are disabled.
type Recorder interface {
	// RecordLogin records a login attempt by outcome ("success", "rejected",
	// "network", "partial_write", "unknown", "invalid_input").
	RecordLogin(result string)

	// RecordLogout records a logout and whether the server revocation succeeded.
	RecordLogout(revoked bool)

	// RecordInvalidation records an effective session clear and why it happened.
	RecordInvalidation(reason string)

	// RecordAuthFailure records an authentication failure response, including
	// ones that collapsed into an earlier invalidation.
	RecordAuthFailure()

	// RecordJarRepair records a credential copied from the durable store into the jar.
	RecordJarRepair()

	// RecordStorageError records a failed store or jar operation.
	RecordStorageError(op string)
}
