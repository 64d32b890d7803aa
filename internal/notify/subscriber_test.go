package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// hubServer is a minimal in-test hub: it completes the handshake,
// records the joined group and pushes whatever the test enqueues.
type hubServer struct {
	*httptest.Server
	joined chan string
	push   chan HubMessage
}

func newHubServer(t *testing.T) *hubServer {
	t.Helper()
	hs := &hubServer{
		joined: make(chan string, 1),
		push:   make(chan HubMessage, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/hub/negotiate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(NegotiateResponse{
			ConnectionID: "conn-1",
			AvailableTransports: []TransportAvailable{
				{Transport: TransportWebSockets, TransferFormats: []string{"Text"}},
			},
		})
	})
	mux.HandleFunc("/hub", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		ack, _ := EncodeRecord(HandshakeResponse{})
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			return
		}

		// JoinGroup.
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, record := range SplitRecords(frame) {
			var msg HubMessage
			if json.Unmarshal(record, &msg) == nil && msg.Target == "JoinGroup" && len(msg.Arguments) > 0 {
				var group string
				json.Unmarshal(msg.Arguments[0], &group)
				hs.joined <- group
			}
		}

		for msg := range hs.push {
			record, _ := EncodeRecord(msg)
			if err := conn.WriteMessage(websocket.TextMessage, record); err != nil {
				return
			}
		}
	})
	hs.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(hs.push)
		hs.Server.Close()
	})
	return hs
}

func TestSubscriberJoinsGroupAndDispatchesEvents(t *testing.T) {
	server := newHubServer(t)
	events := make(chan Event, 4)

	sub := NewSubscriber(server.URL+"/hub", "student", func(ev Event) {
		events <- ev
	}, nil)
	sub.Start(context.Background())
	defer sub.Stop()

	select {
	case group := <-server.joined:
		if group != "student" {
			t.Fatalf("joined group %q, want student", group)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber never joined the group")
	}

	msg, err := Invocation(EventRejected, "reason X")
	if err != nil {
		t.Fatal(err)
	}
	server.push <- msg

	select {
	case ev := <-events:
		if ev.Name != EventRejected || ev.Reason != "reason X" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("refresh hook never invoked")
	}

	// Created and approved carry no arguments.
	created, _ := Invocation(EventCreated)
	server.push <- created
	select {
	case ev := <-events:
		if ev.Name != EventCreated || ev.Reason != "" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("refresh hook never invoked for created")
	}

	if sub.State() != StateConnected {
		t.Fatalf("state = %v, want connected", sub.State())
	}
}

func TestSubscriberPingIsIgnored(t *testing.T) {
	server := newHubServer(t)
	events := make(chan Event, 1)

	sub := NewSubscriber(server.URL+"/hub", "student", func(ev Event) { events <- ev }, nil)
	sub.Start(context.Background())
	defer sub.Stop()

	<-server.joined
	server.push <- HubMessage{Type: MsgPing}
	approved, _ := Invocation(EventApproved)
	server.push <- approved

	select {
	case ev := <-events:
		if ev.Name != EventApproved {
			t.Fatalf("event = %+v, ping must not reach the hook", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("refresh hook never invoked")
	}
}

func TestStopIsIdempotentAndSafeBeforeConnect(t *testing.T) {
	// Never started at all.
	idle := NewSubscriber("http://127.0.0.1:1", "student", nil, nil)
	idle.Stop()
	idle.Stop()

	// Started against a dead endpoint: stop must not wait for the
	// backoff schedule to run out.
	failing := NewSubscriber("http://127.0.0.1:1", "student", nil, nil, WithMaxAttempts(2))
	failing.Start(context.Background())
	failing.Stop()
	failing.Stop()

	if failing.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", failing.State())
	}
}

func TestConnectFailureDegradesSilently(t *testing.T) {
	sub := NewSubscriber("http://127.0.0.1:1", "student", nil, nil, WithMaxAttempts(1))
	sub.Start(context.Background())

	// One dial to a closed port fails fast; give the goroutine room.
	time.Sleep(200 * time.Millisecond)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && sub.State() != StateDisconnected {
		time.Sleep(10 * time.Millisecond)
	}
	if sub.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected after exhausted attempts", sub.State())
	}
	sub.Stop()
}

func TestSplitRecords(t *testing.T) {
	frame := append([]byte(`{"type":6}`), RecordSeparator)
	frame = append(frame, []byte(`{"type":1,"target":"AbsenceCreated"}`)...)
	frame = append(frame, RecordSeparator)

	records := SplitRecords(frame)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}
