// pkg/core/playback.go
package core

import "time"

// PlaybackState is the engine state machine position.
type PlaybackState string

const (
	PlaybackStopped   PlaybackState = "stopped"
	PlaybackPlaying   PlaybackState = "playing"
	PlaybackCompleted PlaybackState = "completed"
)

// PlaybackSnapshot is a read-only view of the playback engine. Seq increases
// with every published change, so a consumer can drop frames older than the
// last one it applied.
type PlaybackSnapshot struct {
	Seq           uint64        `json:"seq"`
	Progress      float64       `json:"progress"`
	IsPlaying     bool          `json:"isPlaying"`
	State         PlaybackState `json:"state"`
	SimulatedTime time.Time     `json:"simulatedTime"`
	GlobalStart   time.Time     `json:"globalStart"`
	GlobalEnd     time.Time     `json:"globalEnd"`
}
