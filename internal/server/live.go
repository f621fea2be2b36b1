// Package server streams correlated scan results to websocket clients so
// external tooling (live plots, dashboards) can follow a session in real
// time instead of tailing the console.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/logging"
	"github.com/avetra/bleprobe/internal/scan"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Interval between pings keeping idle viewers alive
	pingPeriod = 30 * time.Second

	// Per-client queue depth before a viewer counts as too slow
	sendBuffer = 16
)

// liveResult is the JSON shape pushed to clients, matching the CSV export
// vocabulary. tx fields are present only when the payload decoded, and
// tx_power_ad only when the frame carried the structure.
type liveResult struct {
	ScanCycle int    `json:"scan_cycle"`
	RxUnixMs  uint64 `json:"rx_unix_ms"`
	TxUnixMs  uint64 `json:"tx_unix_ms,omitempty"`
	Counter   uint16 `json:"payload_counter"`
	DeltaMs   int64  `json:"delta_ms"`
	RSSI      int16  `json:"rssi_dbm"`
	TxPowerAD *int8  `json:"tx_power_ad,omitempty"`
	Payload   bool   `json:"payload_found"`
}

// Hub fans correlated results out to every connected websocket client.
// Each client has a buffered send queue drained by its own writeLoop
// goroutine, which is the connection's only writer; pings share that
// goroutine rather than racing it. Slow or dead clients are dropped
// rather than allowed to stall the scan goroutine.
type Hub struct {
	upgrader websocket.Upgrader

	// pingInterval exists so tests can tighten the ping cadence.
	pingInterval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Diagnostic tool on a trusted network; any origin may watch.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: pingPeriod,
		clients:      make(map[*websocket.Conn]chan []byte),
	}
}

// Publish sends one result to all connected clients. It is the scan
// engine observer and runs on the engine goroutine.
func (h *Hub) Publish(res scan.Result) {
	out := liveResult{
		ScanCycle: res.ScanCycle,
		RxUnixMs:  res.RxUnixMs,
		DeltaMs:   res.DeltaMs,
		RSSI:      res.RSSI,
		Payload:   res.PayloadFound,
	}
	if res.PayloadFound {
		out.TxUnixMs = res.TxUnixMs
		out.Counter = res.Counter
	}
	if res.TxPowerAD != adv.TxPowerAbsent {
		p := res.TxPowerAD
		out.TxPowerAD = &p
	}

	data, err := json.Marshal(out)
	if err != nil {
		logging.Error("Failed to marshal live result", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			// Queue full: the viewer cannot keep up with the scan rate.
			logging.Info("Dropping slow live client",
				zap.String("remote_addr", conn.RemoteAddr().String()),
			)
			delete(h.clients, conn)
			close(send)
		}
	}
}

// removeClient takes conn out of the client set and closes its send
// queue, ending the writeLoop. Safe to call more than once.
func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleLive upgrades the connection and parks it in the client set. The
// read loop exists only to notice disconnects; viewers never send data.
func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	send := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	logging.Info("Live client connected", zap.String("remote_addr", r.RemoteAddr))

	go h.writeLoop(conn, send)
	go func() {
		defer func() {
			h.removeClient(conn)
			logging.Info("Live client disconnected", zap.String("remote_addr", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop is the sole writer on conn: it drains the send queue and
// emits keepalive pings. It exits when the queue is closed (client
// removed) or a write fails, closing the connection either way.
func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case data, ok := <-send:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.removeClient(conn)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(conn)
				return
			}
		}
	}
}

// Serve runs the live export endpoint until ctx is done. Endpoints:
// /live (websocket result stream) and /healthz.
func Serve(ctx context.Context, addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", hub.handleLive)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Live export listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
