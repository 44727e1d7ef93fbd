package websocket

import (
	"net"
	"testing"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectBusyClosesWithTryAgainLater(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	go func() {
		RejectBusy(server, "room is at capacity")
		server.Close()
	}()

	frame, err := ws.ReadFrame(client)
	require.NoError(t, err)
	require.Equal(t, ws.OpClose, frame.Header.OpCode)

	code, reason := ws.ParseCloseFrameData(frame.Payload)
	assert.Equal(t, ws.StatusCode(1013), code)
	assert.Equal(t, "room is at capacity", reason)
}

func TestDriverPushReportsFullBuffer(t *testing.T) {
	driver := NewDriver(nil, make(chan struct{}, 1))

	for i := 0; i < cap(driver.Outbox); i++ {
		require.True(t, driver.Push(FlagContinue, []byte("frame")))
	}
	assert.False(t, driver.Push(FlagContinue, []byte("frame")),
		"a full outbox must count as a send failure")
}
