package proto

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func unmarshalMessageType(tag string) MessageType {
	msgTypes := map[string]MessageType{
		"user_joined":         MessageTypeUserJoined,
		"scan_added":          MessageTypeScanAdded,
		"scan_removed":        MessageTypeScanRemoved,
		"inventory_completed": MessageTypeInventoryCompleted,
		"session_terminated":  MessageTypeSessionTerminated,
		"ping":                MessageTypePing,
		"pong":                MessageTypePong,
		"error":               MessageTypeError}

	msgType, ok := msgTypes[tag]
	if !ok {
		return MessageTypeUnknown
	}

	return msgType
}

// UnmarshalMessage parses one envelope frame and returns the typed payload.
// Unknown tags come back as MessageTypeUnknown with an error; the caller
// answers with an error frame instead of closing the connection.
func UnmarshalMessage(data []byte) (MessageType, interface{}, error) {
	var env envelope

	if err := json.Unmarshal(data, &env); err != nil {
		return MessageTypeUnknown, nil, fmt.Errorf("collab: invalid message data: %s", err.Error())
	}

	if env.Type == "" {
		return MessageTypeUnknown, nil, fmt.Errorf("collab: message does not contain a type")
	}

	msgType := unmarshalMessageType(env.Type)
	if msgType == MessageTypeUnknown {
		return MessageTypeUnknown, nil, fmt.Errorf("collab: unknown message type '%s'", env.Type)
	}

	switch msgType {
	case MessageTypeUserJoined:
		return unmarshalData(msgType, env.Data, &UserJoinedData{})
	case MessageTypeScanAdded, MessageTypeScanRemoved:
		return unmarshalData(msgType, env.Data, &ScanEventData{})
	case MessageTypeInventoryCompleted:
		return unmarshalData(msgType, env.Data, &InventoryCompletedData{})
	case MessageTypeSessionTerminated:
		return unmarshalData(msgType, env.Data, &SessionTerminatedData{})
	case MessageTypePing:
		return unmarshalData(msgType, env.Data, &PingData{})
	case MessageTypePong:
		return unmarshalData(msgType, env.Data, &PongData{})
	case MessageTypeError:
		return unmarshalData(msgType, env.Data, &ErrorData{})
	}

	// This return should never be reached
	return MessageTypeUnknown, nil, fmt.Errorf("collab: unhandled message type '%s'", env.Type)
}

func unmarshalData(msgType MessageType, raw json.RawMessage, out interface{}) (MessageType, interface{}, error) {
	if len(raw) == 0 {
		return msgType, out, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return MessageTypeUnknown, nil, fmt.Errorf("collab: invalid %s data: %s", msgType, err.Error())
	}
	return msgType, out, nil
}

func MustUserJoinedData(msg interface{}) (*UserJoinedData, error) {
	m, ok := msg.(*UserJoinedData)
	if !ok {
		return nil, fmt.Errorf("collab: user_joined data expected")
	}
	return m, nil
}

func MustScanEventData(msg interface{}) (*ScanEventData, error) {
	m, ok := msg.(*ScanEventData)
	if !ok {
		return nil, fmt.Errorf("collab: scan event data expected")
	}
	return m, nil
}

func MustPingData(msg interface{}) (*PingData, error) {
	m, ok := msg.(*PingData)
	if !ok {
		return nil, fmt.Errorf("collab: ping data expected")
	}
	return m, nil
}

func MustPongData(msg interface{}) (*PongData, error) {
	m, ok := msg.(*PongData)
	if !ok {
		return nil, fmt.Errorf("collab: pong data expected")
	}
	return m, nil
}
