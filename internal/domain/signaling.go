package domain

import "encoding/json"

// SignalType is the kind of a signaling message. The set is closed and the
// spellings are wire-compatible with the deployed web clients; do not rename.
type SignalType string

const (
	SignalTypeOffer             SignalType = "offer"
	SignalTypeAnswer            SignalType = "answer"
	SignalTypeICECandidate      SignalType = "ice-candidate"
	SignalTypeJoinCall          SignalType = "join-call"
	SignalTypeLeaveCall         SignalType = "leave-call"
	SignalTypeCaptureImage      SignalType = "capture-image"
	SignalTypeChatMessage       SignalType = "chat-message"
	SignalTypeCaptureRequest    SignalType = "capture-request"
	SignalTypeCaptureComplete   SignalType = "capture-complete"
	SignalTypeCaptureError      SignalType = "capture-error"
	SignalTypeICERestartRequest SignalType = "ice-restart-request"
)

var knownSignalTypes = map[SignalType]bool{
	SignalTypeOffer:             true,
	SignalTypeAnswer:            true,
	SignalTypeICECandidate:      true,
	SignalTypeJoinCall:          true,
	SignalTypeLeaveCall:         true,
	SignalTypeCaptureImage:      true,
	SignalTypeChatMessage:       true,
	SignalTypeCaptureRequest:    true,
	SignalTypeCaptureComplete:   true,
	SignalTypeCaptureError:      true,
	SignalTypeICERestartRequest: true,
}

// ValidSignalType reports whether t is one of the eleven known message types.
func ValidSignalType(t SignalType) bool {
	return knownSignalTypes[t]
}

// SignalingMessage is the ephemeral unit of exchange between the two call
// participants. Routed once, never persisted. Data is type-dependent and is
// passed through opaquely; consumers decode it where they need it.
type SignalingMessage struct {
	Type   SignalType      `json:"type"`
	CallID string          `json:"callId"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// CaptureResult is the payload a capture-complete message carries. The media
// layer turns it into a CapturedImage or VideoRecording record.
type CaptureResult struct {
	Kind         string         `json:"kind,omitempty"` // "image" (default) or "video"
	Filename     string         `json:"filename"`
	OriginalURL  string         `json:"originalUrl"`
	ThumbnailURL *string        `json:"thumbnailUrl,omitempty"`
	MimeType     string         `json:"mimeType,omitempty"`
	Duration     *float64       `json:"duration,omitempty"`
	Size         *int64         `json:"size,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
