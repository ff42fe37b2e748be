package metrics

// NoopRecorder discards every event.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

func (*NoopRecorder) RecordLogin(string)        {}
func (*NoopRecorder) RecordLogout(bool)         {}
func (*NoopRecorder) RecordInvalidation(string) {}
func (*NoopRecorder) RecordAuthFailure()        {}
func (*NoopRecorder) RecordJarRepair()          {}
func (*NoopRecorder) RecordStorageError(string) {}

var _ Recorder = (*NoopRecorder)(nil)
