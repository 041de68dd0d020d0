package models

// WallEventType tags a message on the realtime channel.
type WallEventType string

const (
	EventPhotoAdded         WallEventType = "PHOTO_ADDED"
	EventPhotoRemoved       WallEventType = "PHOTO_REMOVED"
	EventPhotoStatusChanged WallEventType = "PHOTO_STATUS_CHANGED"
	EventHeartbeat          WallEventType = "HEARTBEAT"
	EventChannelError       WallEventType = "CHANNEL_ERROR"

	// Handshake frames exchanged before the event stream starts.
	MsgAuth     WallEventType = "AUTH"
	MsgAuthOK   WallEventType = "AUTH_OK"
	MsgAuthFail WallEventType = "AUTH_FAIL"
)

// ErrorKind classifies a ChannelError.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindUnreachable  ErrorKind = "unreachable"
)

// ChannelError is delivered to subscribers when the channel hits a
// terminal authorization failure or exhausts its retry ceiling.
type ChannelError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

// WallMessage is the wire and dispatch format for one channel message.
// Photo events carry a Sequence; handshake and heartbeat frames do not.
type WallMessage struct {
	Type     WallEventType `json:"type"`
	EventID  string        `json:"eventId,omitempty"`
	Sequence int64         `json:"sequence,omitempty"`
	Token    string        `json:"token,omitempty"`
	Photo    *PhotoRecord  `json:"photo,omitempty"`
	Error    *ChannelError `json:"error,omitempty"`
}

// IsPhotoEvent reports whether the message participates in sequence
// ordering and deduplication.
func (m *WallMessage) IsPhotoEvent() bool {
	switch m.Type {
	case EventPhotoAdded, EventPhotoRemoved, EventPhotoStatusChanged:
		return true
	}
	return false
}
