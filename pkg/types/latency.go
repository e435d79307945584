package types

import "time"

// LatencyMetric records the first-token responsiveness of one request.
// Produced at most once per request id.
type LatencyMetric struct {
	RequestID        string    `json:"requestId"`
	FirstTokenMs     int64     `json:"firstTokenMs"`
	Timestamp        time.Time `json:"timestamp"`
	ExceedsThreshold bool      `json:"exceedsThreshold"`
}
