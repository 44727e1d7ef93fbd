package proto

import (
	"encoding/json"
	"time"
)

func marshalMessage(msgType MessageType, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Type: msgType.String(),
		Data: payload,
	})
}

func MarshalNewUserJoinedMessage(data UserJoinedData) ([]byte, error) {
	return marshalMessage(MessageTypeUserJoined, data)
}

func MarshalNewScanAddedMessage(data ScanEventData) ([]byte, error) {
	return marshalMessage(MessageTypeScanAdded, data)
}

func MarshalNewScanRemovedMessage(data ScanEventData) ([]byte, error) {
	return marshalMessage(MessageTypeScanRemoved, data)
}

func MarshalNewInventoryCompletedMessage(data InventoryCompletedData) ([]byte, error) {
	return marshalMessage(MessageTypeInventoryCompleted, data)
}

func MarshalNewSessionTerminatedMessage(data SessionTerminatedData) ([]byte, error) {
	return marshalMessage(MessageTypeSessionTerminated, data)
}

func MarshalNewPingMessage() ([]byte, error) {
	return marshalMessage(MessageTypePing, PingData{Timestamp: time.Now().UnixMilli()})
}

func MarshalNewPongMessage(timestamp int64) ([]byte, error) {
	return marshalMessage(MessageTypePong, PongData{Timestamp: timestamp})
}

func MarshalNewErrorMessage(message string) ([]byte, error) {
	return marshalMessage(MessageTypeError, ErrorData{
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}
