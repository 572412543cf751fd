// SPDX-License-Identifier: MIT
package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// WebSocketPath is where the visualiser connects.
const WebSocketPath = "/ws"

// VisualMessage is the JSON frame streamed to the visualiser.
type VisualMessage struct {
	Seq    uint64         `json:"seq"`
	Volume float64        `json:"volume"`
	Level  float64        `json:"level"`
	Peak   bool           `json:"peak"`
	Beat   bool           `json:"beat"`
	Bands  analysis.Bands `json:"bands"`
	FFT    []float64      `json:"fft"`
}

// WebSocketSink serves a single visualiser client. A new connection replaces
// the current one.
type WebSocketSink struct {
	counters

	upgrader     websocket.Upgrader
	server       *http.Server
	listener     net.Listener
	writeTimeout time.Duration

	mu     sync.Mutex // protects client and closed
	client *websocket.Conn
	closed bool

	wg     sync.WaitGroup
	errLog *log.Limiter
}

// NewWebSocketSink listens on addr and starts serving in the background.
// Failing to listen is returned, so a busy port is a startup error.
func NewWebSocketSink(addr string) (*WebSocketSink, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on '%s': %w", addr, err)
	}

	ws := &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // local visualiser pages are served from file://
			},
		},
		listener:     ln,
		writeTimeout: 50 * time.Millisecond,
		errLog:       log.NewLimiter(10 * time.Second),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, ws.handleWebSocket)
	ws.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		log.Infof("WebSocket: serving on ws://%s%s", ln.Addr(), WebSocketPath)
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocket: server error: %v", err)
		}
	}()
	return ws, nil
}

// Addr returns the listening address.
func (ws *WebSocketSink) Addr() net.Addr { return ws.listener.Addr() }

func (ws *WebSocketSink) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket: upgrade error: %v", err)
		return
	}

	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		conn.Close()
		return
	}
	prev := ws.client
	ws.client = conn
	ws.wg.Add(1)
	ws.mu.Unlock()

	if prev != nil {
		log.Infof("WebSocket: client %s replaced by %s", prev.RemoteAddr(), conn.RemoteAddr())
		prev.Close()
	} else {
		log.Infof("WebSocket: client %s connected", conn.RemoteAddr())
	}

	// The visualiser never sends; reading only detects the close.
	go func() {
		defer ws.wg.Done()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.drop(conn)
				return
			}
		}
	}()
}

// drop forgets conn if it is still the current client.
func (ws *WebSocketSink) drop(conn *websocket.Conn) {
	ws.mu.Lock()
	current := ws.client == conn
	if current {
		ws.client = nil
	}
	ws.mu.Unlock()
	conn.Close()
	if current {
		log.Infof("WebSocket: client %s disconnected", conn.RemoteAddr())
	}
}

// Connected reports whether a client is attached.
func (ws *WebSocketSink) Connected() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.client != nil
}

// Publish writes s to the client, if there is one.
func (ws *WebSocketSink) Publish(s analysis.Snapshot) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.client == nil || ws.closed {
		return false
	}

	msg := VisualMessage{
		Seq:    s.Seq,
		Volume: s.Volume,
		Level:  s.Level,
		Peak:   s.Peak,
		Beat:   s.Beat,
		Bands:  s.Bands,
		FFT:    s.Spectrum,
	}
	ws.client.SetWriteDeadline(time.Now().Add(ws.writeTimeout))
	if err := ws.client.WriteJSON(msg); err != nil {
		ws.errLog.Warnf("WebSocket: write to %s failed: %v", ws.client.RemoteAddr(), err)
		ws.client.Close()
		ws.client = nil
		return ws.record(false)
	}
	return ws.record(true)
}

// Close disconnects the client and shuts the server down.
func (ws *WebSocketSink) Close() error {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return nil
	}
	ws.closed = true
	if ws.client != nil {
		ws.client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(ws.writeTimeout))
		ws.client.Close()
		ws.client = nil
	}
	ws.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := ws.server.Shutdown(ctx)
	ws.wg.Wait()
	log.Debugf("WebSocket: server closed")
	return err
}

var _ Sink = (*WebSocketSink)(nil)
