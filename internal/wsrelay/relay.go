// Package wsrelay is a small, illustrative adapter: it pumps an
// eventlog.Store subscription onto a *websocket.Conn with no buffering of
// its own, demonstrating the shape a host-side REST/SSE transport (out of
// the core's scope per SPEC_FULL.md §1) would build to expose a session's
// live event stream over a WebSocket. Not imported by the core itself.
//
// Grounded on the reference service's internal/acp/session_host.go viewer
// write-pump: a per-connection send loop selecting on the subscription
// channel, a done signal, and a write deadline, with the same
// close-on-first-error discipline.
package wsrelay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace/agentcore/eventlog"
)

// WriteDeadline bounds each individual WriteMessage call, mirroring the
// reference service's per-viewer write timeout.
const WriteDeadline = 10 * time.Second

// Relay pumps events from sub onto conn until sub closes, conn's write
// pump fails, or stop is closed. It blocks the calling goroutine; a host
// runs it per-connection, typically in its own goroutine right after the
// WebSocket upgrade completes.
func Relay(conn *websocket.Conn, sub *eventlog.Subscription, stop <-chan struct{}, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	defer conn.Close()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("wsrelay: marshal event failed", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(WriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("wsrelay: write failed, closing connection", "error", err)
				return
			}
		case <-stop:
			return
		}
	}
}
