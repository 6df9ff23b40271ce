// Package transport owns the WebSocket edge: handshake, auth, the
// per-connection read loop feeding the router, and the writer
// goroutine draining the connection's sink.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"bumpfeed/auth"
	"bumpfeed/contract"
	"bumpfeed/domain/event"
	apperrors "bumpfeed/errors"
	"bumpfeed/runtime"
	"bumpfeed/sink"
)

// Time allowed to write one message to the peer.
const writeWait = 5 * time.Second


// Handler upgrades HTTP requests to WebSocket sessions and runs their
// lifecycles against the hub.
type Handler struct {
	log        *slog.Logger
	hub        *runtime.Hub
	verifier   contract.TokenVerifier
	instanceID string
	bufferSize int
}

func NewHandler(log *slog.Logger, hub *runtime.Hub, verifier contract.TokenVerifier,
	instanceID string, bufferSize int) *Handler {
	return &Handler{
		log:        log,
		hub:        hub,
		verifier:   verifier,
		instanceID: instanceID,
		bufferSize: bufferSize,
	}
}

// ServeHTTP performs the auth handshake and upgrade. An invalid token
// terminates the connection immediately with a policy-violation close
// code; nothing is admitted before the identity checks out.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	identity, authErr := h.verifier.Verify(token)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	if authErr != nil {
		h.log.Warn("Handshake rejected", "remote", r.RemoteAddr, "err", authErr)
		h.closeWith(conn, ws.StatusPolicyViolation, string(apperrors.KindOf(authErr)))
		return
	}

	// The request context dies when ServeHTTP returns; the session
	// outlives it on the hijacked connection.
	go h.session(context.WithoutCancel(r.Context()), conn, identity)
}

// session runs one connection to completion: admit, writer goroutine,
// read loop, teardown.
func (h *Handler) session(parent context.Context, conn net.Conn, identity contract.Identity) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	socketSink := sink.NewSocketSink(h.bufferSize)
	session := h.hub.Admit(ctx, identity, socketSink)

	// The writer goroutine owns all writes on the conn; pings from the
	// read loop are answered through it, never written here.
	pings := make(chan struct{}, 4)
	go h.writeLoop(conn, socketSink, pings)

	defer func() {
		h.hub.Disconnect(context.WithoutCancel(ctx), session.ID, "socket closed")
		socketSink.Close()
		_ = conn.Close()
	}()

	router := h.hub.Router()
	reader := wsutil.Reader{Source: conn, State: ws.StateServerSide, CheckUTF8: true}
	for {
		hdr, err := reader.NextFrame()
		if err != nil {
			h.log.Debug("Read loop ended", "connection", session.ID, "err", err)
			return
		}
		if hdr.OpCode.IsControl() {
			if err := reader.Discard(); err != nil {
				return
			}
			switch hdr.OpCode {
			case ws.OpPing:
				select {
				case pings <- struct{}{}:
				default:
				}
			case ws.OpClose:
				return
			}
			continue
		}
		msg, err := io.ReadAll(&reader)
		if err != nil {
			h.log.Debug("Read loop ended", "connection", session.ID, "err", err)
			return
		}
		if hdr.OpCode == ws.OpText {
			// Messages from one connection are handled strictly in
			// arrival order.
			router.Handle(ctx, session.ID, msg)
		}
	}
}

// writeLoop drains the sink onto the wire with a bounded deadline per
// frame. It exits when the sink closes or a write fails; a failed
// write leaves the read loop to notice the dead socket.
func (h *Handler) writeLoop(conn net.Conn, socketSink *sink.SocketSink, pings <-chan struct{}) {
	for {
		select {
		case e, ok := <-socketSink.Outbound:
			if !ok {
				return
			}
			frame, err := h.encode(e)
			if err != nil {
				h.log.Error("Outbound encode failed", "kind", e.Kind(), "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(conn, ws.OpText, frame); err != nil {
				h.log.Debug("Write loop ended", "err", err)
				return
			}
		case <-pings:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(conn, ws.OpPong, nil); err != nil {
				h.log.Debug("Write loop ended", "err", err)
				return
			}
		}
	}
}

// encode flattens the event payload into one object with the type
// discriminator, server time and instance id injected beside it.
func (h *Handler) encode(e event.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	fields["type"] = e.Kind()
	fields["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	fields["instance_id"] = h.instanceID
	return json.Marshal(fields)
}

func (h *Handler) closeWith(conn net.Conn, code ws.StatusCode, reason string) {
	body := ws.NewCloseFrameBody(code, reason)
	_ = ws.WriteFrame(conn, ws.NewCloseFrame(body))
	_ = conn.Close()
}
