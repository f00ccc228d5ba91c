package metrics

const (
	ThrottleDecisionsTotal = "throttle_decisions_total"
	ThrottleTrackedClients = "throttle_tracked_clients"
	ThrottleLastSweep      = "throttle_last_sweep_removed"
)

// RecordThrottleDecision counts one admit or reject decision.
func RecordThrottleDecision(admitted bool) {
	count(ThrottleDecisionsTotal, map[string]string{
		"decision": outcome(admitted, "admitted", "rejected"),
	})
}

// RecordThrottleSweep reports a sweeper pass: records removed and clients still tracked.
func RecordThrottleSweep(removed, tracked int) {
	gauge(ThrottleLastSweep, float64(removed), nil)
	gauge(ThrottleTrackedClients, float64(tracked), nil)
}
