package proto

import "time"

// MessageType is the closed set of envelope tags. Anything else unmarshals to
// MessageTypeUnknown and is rejected at the boundary.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeUserJoined
	MessageTypeScanAdded
	MessageTypeScanRemoved
	MessageTypeInventoryCompleted
	MessageTypeSessionTerminated
	MessageTypePing
	MessageTypePong
	MessageTypeError
)

func (msgType MessageType) String() string {
	names := map[MessageType]string{
		MessageTypeUserJoined:         "user_joined",
		MessageTypeScanAdded:          "scan_added",
		MessageTypeScanRemoved:        "scan_removed",
		MessageTypeInventoryCompleted: "inventory_completed",
		MessageTypeSessionTerminated:  "session_terminated",
		MessageTypePing:               "ping",
		MessageTypePong:               "pong",
		MessageTypeError:              "error"}

	name, ok := names[msgType]
	if !ok {
		return ""
	}

	return name
}

// PeriodData is the wire shape of a counting period.
type PeriodData struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// ScanData is the payload of one scan inside scan_added / scan_removed.
type ScanData struct {
	Identifier string    `json:"identifier"`
	User       string    `json:"user"`
	Timestamp  time.Time `json:"timestamp"`
}

type UserJoinedData struct {
	Unit     string     `json:"unit"`
	Period   PeriodData `json:"period"`
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
}

type ScanEventData struct {
	Unit     string     `json:"unit"`
	Period   PeriodData `json:"period"`
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	ScanData ScanData   `json:"scanData"`
}

type InventoryCompletedData struct {
	Unit        string     `json:"unit"`
	Period      PeriodData `json:"period"`
	CompletedBy string     `json:"completedBy"`
	SessionID   string     `json:"sessionId"`
	Message     string     `json:"message"`
}

type SessionTerminatedData struct {
	Unit        string     `json:"unit"`
	Period      PeriodData `json:"period"`
	CompletedBy string     `json:"completedBy"`
	Message     string     `json:"message"`
}

type PingData struct {
	Timestamp int64 `json:"timestamp"`
}

type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorData struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
