package proto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalMessage(t *testing.T) {
	t.Run("user_joined", func(t *testing.T) {
		raw := []byte(`{"type":"user_joined","data":{"unit":"warehouse-a","period":{"month":10,"year":2025},"userId":"u1","userName":"Ana"}}`)

		msgType, msg, err := UnmarshalMessage(raw)
		require.NoError(t, err)
		require.Equal(t, MessageTypeUserJoined, msgType)

		data, err := MustUserJoinedData(msg)
		require.NoError(t, err)
		assert.Equal(t, "warehouse-a", data.Unit)
		assert.Equal(t, PeriodData{Month: 10, Year: 2025}, data.Period)
		assert.Equal(t, "u1", data.UserID)
		assert.Equal(t, "Ana", data.UserName)
	})

	t.Run("scan_added", func(t *testing.T) {
		raw := []byte(`{"type":"scan_added","data":{"unit":"warehouse-a","period":{"month":10,"year":2025},"userId":"u1","userName":"Ana","scanData":{"identifier":"X1","user":"Ana","timestamp":"2025-10-15T09:30:00Z"}}}`)

		msgType, msg, err := UnmarshalMessage(raw)
		require.NoError(t, err)
		require.Equal(t, MessageTypeScanAdded, msgType)

		data, err := MustScanEventData(msg)
		require.NoError(t, err)
		assert.Equal(t, "X1", data.ScanData.Identifier)
		assert.Equal(t, time.Date(2025, 10, 15, 9, 30, 0, 0, time.UTC), data.ScanData.Timestamp)
	})

	t.Run("ping and pong", func(t *testing.T) {
		msgType, msg, err := UnmarshalMessage([]byte(`{"type":"ping","data":{"timestamp":1760000000000}}`))
		require.NoError(t, err)
		require.Equal(t, MessageTypePing, msgType)

		ping, err := MustPingData(msg)
		require.NoError(t, err)
		assert.Equal(t, int64(1760000000000), ping.Timestamp)

		msgType, msg, err = UnmarshalMessage([]byte(`{"type":"pong","data":{"timestamp":1760000000000}}`))
		require.NoError(t, err)
		require.Equal(t, MessageTypePong, msgType)

		pong, err := MustPongData(msg)
		require.NoError(t, err)
		assert.Equal(t, int64(1760000000000), pong.Timestamp)
	})

	t.Run("unknown tag is rejected", func(t *testing.T) {
		msgType, _, err := UnmarshalMessage([]byte(`{"type":"self_destruct","data":{}}`))
		assert.Error(t, err)
		assert.Equal(t, MessageTypeUnknown, msgType)
	})

	t.Run("missing tag is rejected", func(t *testing.T) {
		msgType, _, err := UnmarshalMessage([]byte(`{"data":{}}`))
		assert.Error(t, err)
		assert.Equal(t, MessageTypeUnknown, msgType)
	})

	t.Run("malformed frame is rejected", func(t *testing.T) {
		msgType, _, err := UnmarshalMessage([]byte(`{"type":`))
		assert.Error(t, err)
		assert.Equal(t, MessageTypeUnknown, msgType)
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		msgType, _, err := UnmarshalMessage([]byte(`{"type":"ping","data":{"timestamp":"yesterday"}}`))
		assert.Error(t, err)
		assert.Equal(t, MessageTypeUnknown, msgType)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	in := InventoryCompletedData{
		Unit:        "warehouse-a",
		Period:      PeriodData{Month: 10, Year: 2025},
		CompletedBy: "u1",
		SessionID:   "abc",
		Message:     "inventory session completed",
	}

	raw, err := MarshalNewInventoryCompletedMessage(in)
	require.NoError(t, err)

	msgType, msg, err := UnmarshalMessage(raw)
	require.NoError(t, err)
	require.Equal(t, MessageTypeInventoryCompleted, msgType)
	assert.Equal(t, &in, msg)
}

func TestMarshalErrorMessageCarriesTimestamp(t *testing.T) {
	raw, err := MarshalNewErrorMessage("rate limit exceeded for message type 'scan_added'")
	require.NoError(t, err)

	var env struct {
		Type string    `json:"type"`
		Data ErrorData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "error", env.Type)
	assert.Equal(t, "rate limit exceeded for message type 'scan_added'", env.Data.Message)
	assert.NotZero(t, env.Data.Timestamp)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "session_terminated", MessageTypeSessionTerminated.String())
	assert.Equal(t, "", MessageTypeUnknown.String())
}
