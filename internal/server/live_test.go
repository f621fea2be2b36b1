package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/scan"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.handleLive))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHubPublish(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	// Registration happens on the server goroutine; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	txPower := int8(-8)
	hub.Publish(scan.Result{
		ScanCycle:    1,
		RxUnixMs:     1700000005000,
		TxUnixMs:     1700000000000,
		DeltaMs:      5000,
		Counter:      42,
		RSSI:         -67,
		TxPowerAD:    txPower,
		PayloadFound: true,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if got["payload_counter"] != float64(42) {
		t.Errorf("payload_counter = %v, want 42", got["payload_counter"])
	}
	if got["delta_ms"] != float64(5000) {
		t.Errorf("delta_ms = %v, want 5000", got["delta_ms"])
	}
	if got["rssi_dbm"] != float64(-67) {
		t.Errorf("rssi_dbm = %v, want -67", got["rssi_dbm"])
	}
	if got["tx_power_ad"] != float64(-8) {
		t.Errorf("tx_power_ad = %v, want -8", got["tx_power_ad"])
	}
	if got["payload_found"] != true {
		t.Errorf("payload_found = %v, want true", got["payload_found"])
	}
}

func TestHubPublishOmitsAbsentFields(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(scan.Result{
		ScanCycle:    2,
		RxUnixMs:     1700000005000,
		RSSI:         -80,
		TxPowerAD:    adv.TxPowerAbsent,
		PayloadFound: false,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if _, present := got["tx_power_ad"]; present {
		t.Error("tx_power_ad present for a frame without the structure")
	}
	if _, present := got["tx_unix_ms"]; present {
		t.Error("tx_unix_ms present for an absent payload")
	}
	if got["payload_found"] != false {
		t.Errorf("payload_found = %v, want false", got["payload_found"])
	}
}

// Publishes must interleave safely with keepalive pings: the connection
// allows only one writer, so results and pings have to share it.
func TestHubPublishDuringPings(t *testing.T) {
	hub := NewHub()
	hub.pingInterval = 5 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(hub.handleLive))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"

	const clients = 8
	const wantPerClient = 20

	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial client %d: %v", i, err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < clients {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d clients registered", hub.ClientCount(), clients)
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan error, clients)
	for _, conn := range conns {
		go func(conn *websocket.Conn) {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for n := 0; n < wantPerClient; n++ {
				if _, _, err := conn.ReadMessage(); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(conn)
	}

	// Keep results flowing through many ping ticks.
	for i := 0; i < 200; i++ {
		hub.Publish(scan.Result{
			ScanCycle:    1,
			Counter:      uint16(i),
			RxUnixMs:     1700000000000 + uint64(i),
			RSSI:         -60,
			TxPowerAD:    adv.TxPowerAbsent,
			PayloadFound: true,
		})
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < clients; i++ {
		if err := <-done; err != nil {
			t.Errorf("client read: %v", err)
		}
	}
}

// A viewer that stops reading gets dropped instead of stalling Publish.
func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The client never reads: once its queue and the socket buffers fill,
	// Publish must keep returning promptly and shed it.
	deadline = time.Now().Add(5 * time.Second)
	for i := 0; hub.ClientCount() > 0; i++ {
		if time.Now().After(deadline) {
			t.Fatal("slow client was never dropped")
		}
		hub.Publish(scan.Result{
			ScanCycle:    1,
			Counter:      uint16(i),
			RxUnixMs:     1700000000000 + uint64(i),
			RSSI:         -60,
			TxPowerAD:    adv.TxPowerAbsent,
			PayloadFound: true,
		})
	}
	_ = conn
}

func TestHubPublishWithNoClients(t *testing.T) {
	hub := NewHub()
	// Must not block or panic.
	hub.Publish(scan.Result{RxUnixMs: 1, TxPowerAD: adv.TxPowerAbsent})
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}
