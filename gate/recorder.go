package gate

// Recorder receives gate events. Implementations must be safe for concurrent use.
//
// The label passed to every method is core.IdentityLabel of the bucket's
// identity, never the credential itself. It is empty for unauthenticated
// requests.
type Recorder interface {
	RecordDecision(label string, state State)
	RecordCharge(label string, remaining int64)
	RecordClamp(label string)
	RecordRefill(label string, added int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, State) {}
func (nopRecorder) RecordCharge(string, int64)   {}
func (nopRecorder) RecordClamp(string)           {}
func (nopRecorder) RecordRefill(string, int64)   {}
