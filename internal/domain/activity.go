package domain

import "time"

// ActivityLevel grades an activity entry for display.
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "info"
	ActivitySuccess ActivityLevel = "success"
	ActivityWarning ActivityLevel = "warning"
	ActivityError   ActivityLevel = "error"
)

// Activity is one line of the engine's human-readable trail.
type Activity struct {
	Time     time.Time     `json:"time"`
	Level    ActivityLevel `json:"level"`
	Kind     string        `json:"kind"`
	MarketID string        `json:"market_id,omitempty"`
	Message  string        `json:"message"`
}
