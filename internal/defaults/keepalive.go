package defaults

import "time"

const minHeartbeatInterval = 500 * time.Millisecond

// HeartbeatIntervalFor returns the PING interval for a given idle timeout:
// idle/2, clamped to a small usability minimum, and guaranteed strictly
// less than the idle timeout itself.
func HeartbeatIntervalFor(idleTimeoutSeconds int32) time.Duration {
	if idleTimeoutSeconds <= 0 {
		return 0
	}
	idle := time.Duration(idleTimeoutSeconds) * time.Second
	interval := idle / 2
	if interval < minHeartbeatInterval {
		interval = minHeartbeatInterval
	}
	if interval >= idle {
		interval = idle / 2
	}
	return interval
}
