package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/devdash/internal/terminal"
)

// WebSocket close codes sent when a bridge ends for a reason other than
// the client going away.
const (
	CloseSlowConsumer websocket.StatusCode = 4408
	CloseSuperseded   websocket.StatusCode = 4409
	CloseExited       websocket.StatusCode = 4410
)

// wsReadLimit bounds a single client frame. Input larger than
// terminal.MaxInputMessageSize is dropped without closing the bridge, so
// the read limit sits above it.
const wsReadLimit = 1024 * 1024

// clientFrame is a text frame sent by the browser.
type clientFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// outputFrame carries one chunk of terminal output to the browser.
type outputFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// TerminalWS bridges a WebSocket to a terminal handle.
//
// Output produced after the bridge attaches is forwarded as
// {"type":"output","data":...} frames in production order; earlier output
// is available from the preview endpoint. The client sends
// {"type":"input","data":...} and {"type":"resize","cols":N,"rows":N}
// text frames, or raw input as binary frames.
//
// Closing the socket tears down only this bridge; the handle keeps
// running.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := Terminals.Attach(id)
	if err != nil {
		writeTerminalError(w, err)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] failed to accept terminal websocket for %s: %v", id, err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	var session string
	if info, err := Terminals.Get(id); err == nil {
		session = info.SessionName
	}
	started := time.Now()
	log.Printf("[ws] bridge attached: terminal=%s remote=%s", id, r.RemoteAddr)
	if TermAudit != nil {
		TermAudit.LogBridgeAttached(id, session, r.RemoteAddr)
	}

	relayCtx, relayCancel := context.WithCancel(r.Context())
	defer relayCancel()

	// Browser -> terminal input
	go func() {
		defer relayCancel()
		relayInput(relayCtx, conn, id)
	}()

	// Terminal output -> browser
	reason := relayOutput(relayCtx, conn, sub)
	closeBridge(conn, reason, sub.Diagnostic())

	log.Printf("[ws] bridge detached: terminal=%s reason=%s", id, reason)
	if TermAudit != nil {
		TermAudit.LogBridgeDetached(id, session, reason, time.Since(started))
	}
}

// relayOutput forwards subscription output until the subscription ends or
// the client goes away. It returns the reason the bridge ended.
func relayOutput(ctx context.Context, conn *websocket.Conn, sub *terminal.Subscription) string {
	var pending []byte
	for {
		select {
		case <-ctx.Done():
			return "client"
		case data, ok := <-sub.Output():
			if !ok {
				return string(sub.Reason())
			}
			var text string
			text, pending = splitUTF8(pending, data)
			if text == "" {
				continue
			}
			if err := wsjson.Write(ctx, conn, outputFrame{Type: "output", Data: text}); err != nil {
				return "client"
			}
		}
	}
}

// splitUTF8 joins carry and data and returns the longest prefix that does
// not end inside a multi-byte sequence, plus the incomplete remainder.
func splitUTF8(carry, data []byte) (string, []byte) {
	if len(carry) > 0 {
		data = append(carry, data...)
	}
	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if !utf8.FullRune(data[i:]) {
			cut = i
		}
		break
	}
	if cut == len(data) {
		return string(data), nil
	}
	rest := make([]byte, len(data)-cut)
	copy(rest, data[cut:])
	return string(data[:cut]), rest
}

// relayInput applies client frames to the handle until the client
// disconnects or ctx is cancelled. Malformed, oversized or rate-limited
// frames are dropped.
func relayInput(ctx context.Context, conn *websocket.Conn, id string) {
	limiter := terminal.NewRateLimiter(terminal.MessageRateLimit, terminal.MessageRateBurst)
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.Allow() {
			continue
		}

		if msgType == websocket.MessageBinary {
			writeInput(id, data)
			continue
		}
		var msg clientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "input":
			writeInput(id, []byte(msg.Data))
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				Terminals.Resize(id, msg.Cols, msg.Rows)
			}
		}
	}
}

func writeInput(id string, data []byte) {
	if len(data) > terminal.MaxInputMessageSize {
		log.Printf("[ws] input too large: terminal=%s size=%d limit=%d", id, len(data), terminal.MaxInputMessageSize)
		return
	}
	Terminals.Write(id, data)
}

// closeBridge closes conn with the code matching why the bridge ended. A
// crashed handle's diagnostic line is sent before the close frame.
func closeBridge(conn *websocket.Conn, reason, diagnostic string) {
	switch terminal.EndReason(reason) {
	case terminal.ReasonSuperseded:
		conn.Close(CloseSuperseded, "superseded")
	case terminal.ReasonExited:
		if diagnostic != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			wsjson.Write(ctx, conn, outputFrame{Type: "output", Data: diagnostic})
			cancel()
		}
		conn.Close(CloseExited, "process exited")
	case terminal.ReasonSlow:
		conn.Close(CloseSlowConsumer, "slow consumer")
	case terminal.ReasonClosed, terminal.ReasonDetached:
		conn.Close(websocket.StatusNormalClosure, reason)
	default:
		conn.Close(websocket.StatusNormalClosure, "")
	}
}
