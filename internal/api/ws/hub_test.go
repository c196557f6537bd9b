package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsFilteredEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(biometric.DefaultThreshold)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	all := dial(t, srv, "")
	defer all.Close()
	kiosk := dial(t, srv, "?session=kiosk-9")
	defer kiosk.Close()
	waitForClients(t, hub, 2)

	now := time.Now()
	hub.Notify(ctx, models.Event{Type: models.EventEnrolled, Identity: "c-1", Timestamp: now})
	hub.Notify(ctx, models.Event{
		Type:      models.EventVerification,
		Identity:  "c-1",
		Timestamp: now,
		Outcome: &models.Outcome{
			ID:        uuid.New(),
			Kind:      models.TaskVerify,
			Session:   "kiosk-9",
			Claimed:   "c-1",
			Result:    biometric.ComparisonResult{Distance: 0.2, Decision: biometric.Match, Identity: "c-1"},
			Timestamp: now,
		},
	})

	read := func(conn *websocket.Conn) dto.WSEvent {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev dto.WSEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	}

	if ev := read(all); ev.Type != string(models.EventEnrolled) {
		t.Errorf("first event for unfiltered client = %s", ev.Type)
	}
	if ev := read(all); ev.Type != string(models.EventVerification) {
		t.Errorf("second event for unfiltered client = %s", ev.Type)
	}

	ev := read(kiosk)
	if ev.Type != string(models.EventVerification) || ev.Outcome == nil {
		t.Fatalf("filtered client got %+v", ev)
	}
	if ev.Outcome.Decision != string(biometric.Match) || ev.Outcome.Threshold != biometric.DefaultThreshold {
		t.Errorf("outcome = %+v", ev.Outcome)
	}
}

func TestHubRefusesClientsAfterShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(biometric.DefaultThreshold)
	go hub.Run(ctx)

	handled := make(chan struct{}, 4)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		hub.HandleWS(c)
		handled <- struct{}{}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	early := dial(t, srv, "")
	defer early.Close()
	waitForClients(t, hub, 1)
	<-handled

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The early client's read loop exits and must not hang on unregister.
	early.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := early.ReadMessage(); err == nil {
		t.Fatal("expected the early connection to be closed")
	}

	late := dial(t, srv, "")
	defer late.Close()
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked after the hub stopped")
	}
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("late client read error = %v, want going away close", err)
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d after shutdown", n)
	}
}
