package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"inpass/internal/domain"
	"inpass/internal/notify"
)

// Full loop: subscriber joins the hub, a status change on the backend
// pushes AbsenceRejected, the refresh hook fires, and the re-fetch
// surfaces the rejected record with its reason.
func TestStatusChangePushReachesSubscriberAndRefetch(t *testing.T) {
	server, _ := newTestBackend(t)
	client, tokens := newSDKClient(t, server)
	ctx := context.Background()
	registerStudent(t, client)

	created, err := client.CreateAbsence(ctx, sickDraft("2025-05-01"))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan notify.Event, 4)
	sub := notify.NewSubscriber(server.URL+"/notification", "student", func(ev notify.Event) {
		events <- ev
	}, nil)
	sub.Start(ctx)
	defer sub.Stop()

	waitConnected(t, sub)

	if err := setStatus(ctx, server.URL, tokens, created.ID, "Rejected", "reason X"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Name != notify.EventRejected || ev.Reason != "reason X" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rejection push never arrived")
	}

	refetched, err := client.Absence(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refetched.Status != domain.StatusRejected || refetched.RejectionReason != "reason X" {
		t.Fatalf("refetched = %+v, want rejected with reason X", refetched)
	}
}

func TestCreatePushesAbsenceCreated(t *testing.T) {
	server, _ := newTestBackend(t)
	client, _ := newSDKClient(t, server)
	ctx := context.Background()
	registerStudent(t, client)

	events := make(chan notify.Event, 4)
	sub := notify.NewSubscriber(server.URL+"/notification", "student", func(ev notify.Event) {
		events <- ev
	}, nil)
	sub.Start(ctx)
	defer sub.Stop()

	waitConnected(t, sub)

	if _, err := client.CreateAbsence(ctx, sickDraft("2025-06-01")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Name != notify.EventCreated {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("created push never arrived")
	}
}

func TestBroadcastSkipsOtherGroups(t *testing.T) {
	server, hub := newTestBackend(t)

	events := make(chan notify.Event, 1)
	sub := notify.NewSubscriber(server.URL+"/notification", "teacher", func(ev notify.Event) {
		events <- ev
	}, nil)
	sub.Start(context.Background())
	defer sub.Stop()

	waitConnected(t, sub)
	hub.Broadcast("student", notify.EventApproved)

	select {
	case ev := <-events:
		t.Fatalf("event %+v leaked into another group", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func waitConnected(t *testing.T, sub *notify.Subscriber) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sub.State() == notify.StateConnected {
			// The JoinGroup invocation races the first broadcast;
			// one settling beat keeps the test honest.
			time.Sleep(50 * time.Millisecond)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscriber never connected")
}

func setStatus(ctx context.Context, baseURL string, tokens interface {
	Token(context.Context) (string, error)
}, id, status, reason string) error {
	payload, err := json.Marshal(map[string]string{"status": status, "reason": reason})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/absences/%s/status", baseURL, id), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set status: %d", resp.StatusCode)
	}
	return nil
}
