package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(Event{
		Type:     TypeShipmentCreated,
		Shipment: &shipment.Shipment{ShipmentID: "SHP-1", Status: shipment.StatusCreated},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != TypeShipmentCreated {
		t.Fatalf("type = %q, want %q", got.Type, TypeShipmentCreated)
	}
	if got.Shipment == nil || got.Shipment.ShipmentID != "SHP-1" {
		t.Fatalf("unexpected shipment payload: %+v", got.Shipment)
	}
	if got.At.IsZero() {
		t.Fatal("event timestamp not set")
	}
}

func TestHubRemovesDisconnectedSubscriber(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()
	hub.Close()
	// Publishing after close must not panic.
	hub.Publish(Event{Type: TypeStatusChanged})
}
