package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/aquintel/spillwatch/pkg/core"
)

// Server to client message types.
const (
	TypePlaybackFrame  = "playback_frame"
	TypeVesselsUpdated = "vessels_updated"
	TypeDetection      = "detection"
	TypeAck            = "ack"
	TypeError          = "error"
)

// Client to server message types.
const (
	TypeStart  = "start"
	TypeStop   = "stop"
	TypeSeek   = "seek"
	TypeRunAIS = "run_ais"
	TypeRunSAR = "run_sar"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage answers a client command that succeeded.
type AckMessage struct {
	Type   string `json:"type"` // always "ack"
	For    string `json:"for"`  // the message type being acknowledged
	Result any    `json:"result,omitempty"`
}

// ErrorMessage answers a client command that failed.
type ErrorMessage struct {
	Type  string `json:"type"` // always "error"
	For   string `json:"for"`
	Error string `json:"error"`
}

// PlaybackFramePayload is pushed on every playback change. Visible maps
// trajectory ID to the number of samples shown at Snapshot.Progress.
type PlaybackFramePayload struct {
	Snapshot core.PlaybackSnapshot `json:"snapshot"`
	Visible  map[string]int        `json:"visible"`
}

// VesselsUpdatedPayload is pushed after each fleet refresh.
type VesselsUpdatedPayload struct {
	Count     int                 `json:"count"`
	Plottable int                 `json:"plottable"`
	Anomalous int                 `json:"anomalous"`
	Reports   []core.VesselReport `json:"reports"`
}

// SeekPayload carries the target progress of a seek command.
type SeekPayload struct {
	Progress float64 `json:"progress"`
}

// VesselPayload names the vessel a SAR command is for.
type VesselPayload struct {
	MMSI string `json:"mmsi"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		raw = b
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
