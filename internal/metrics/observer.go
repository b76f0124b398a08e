package metrics

// Observer receives orchestration signals without coupling services to a
// concrete metrics backend.
type Observer interface {
	TaskTransition(status string)
	DispatchResult(outcome string)
	DispatchRetry()
	ObserveDispatchLatency(seconds float64)
	SweepRun(scanned int)
}

// NopObserver is used in tests.
type NopObserver struct{}

func (NopObserver) TaskTransition(string)          {}
func (NopObserver) DispatchResult(string)          {}
func (NopObserver) DispatchRetry()                 {}
func (NopObserver) ObserveDispatchLatency(float64) {}
func (NopObserver) SweepRun(int)                   {}
