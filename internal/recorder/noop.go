package recorder

// NoopRecorder is used when no history database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRunStart(_ *RunStart) error { return nil }
func (n *NoopRecorder) RecordDay(_ *DayOutcome) error     { return nil }
func (n *NoopRecorder) RecordRunEnd(_ *RunEnd) error      { return nil }
func (n *NoopRecorder) Runs(_ int) ([]Run, error)         { return nil, nil }
func (n *NoopRecorder) Close() error                      { return nil }
