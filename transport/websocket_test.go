package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/require"

	"bumpfeed/domain/event"
	"bumpfeed/sink"
)

// The writer goroutine is the only writer on the conn: pongs and
// outbound frames both flow through it, so frame bytes never
// interleave.
func TestWriteLoop_AnswersPingsThroughTheSingleWriter(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	socketSink := sink.NewSocketSink(4)
	pings := make(chan struct{}, 1)
	h := NewHandler(slog.Default(), nil, nil, "instance-1", 4)
	go h.writeLoop(server, socketSink, pings)

	// Given a ping queued by the read loop
	pings <- struct{}{}

	// Then the writer answers it with a pong frame
	req.NoError(client.SetReadDeadline(time.Now().Add(time.Second)))
	frame, err := ws.ReadFrame(client)
	req.NoError(err)
	req.Equal(ws.OpPong, frame.Header.OpCode)

	// And a subsequent event still arrives as one well-formed frame
	req.NoError(socketSink.Consume(context.Background(), event.Heartbeat{At: time.Now()}))
	req.NoError(client.SetReadDeadline(time.Now().Add(time.Second)))
	frame, err = ws.ReadFrame(client)
	req.NoError(err)
	req.Equal(ws.OpText, frame.Header.OpCode)

	var fields map[string]any
	req.NoError(json.Unmarshal(frame.Payload, &fields))
	req.Equal("heartbeat", fields["type"])
	req.Equal("instance-1", fields["instance_id"])
	req.NotEmpty(fields["timestamp"])

	socketSink.Close()
}
