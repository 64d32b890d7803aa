package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"inpass/internal/domain"
)

func TestListWithDetailsMergesEveryPageEntry(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	summaries := []domain.AbsenceRequest{
		{ID: "a1", UserID: "u1", Type: domain.AbsenceSick, StartDate: start, Status: domain.StatusPending},
		{ID: "a2", UserID: "u1", Type: domain.AbsenceFamily, StartDate: start, Status: domain.StatusPending},
	}
	details := map[string]domain.AbsenceRequest{
		"a1": {ID: "a1", Status: domain.StatusApproved},
		"a2": {ID: "a2", Status: domain.StatusRejected, RejectionReason: "reason X"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/absences", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"absences": summaries})
	})
	mux.HandleFunc("/absences/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/absences/"):]
		detail, ok := details[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(detail)
	})

	client, _ := newTestClient(t, mux)
	merged, err := client.ListAbsencesWithDetails(context.Background(), domain.ListParams{Page: 1, Size: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 2 {
		t.Fatalf("got %d records", len(merged))
	}
	if merged[0].Status != domain.StatusApproved || merged[0].Type != domain.AbsenceSick {
		t.Fatalf("merged[0] = %+v", merged[0])
	}
	if merged[1].RejectionReason != "reason X" {
		t.Fatalf("merged[1] = %+v, want the rejection reason", merged[1])
	}
	// Summary fields the detail omitted must survive.
	if merged[1].UserID != "u1" || merged[1].StartDate.IsZero() {
		t.Fatalf("merged[1] lost summary fields: %+v", merged[1])
	}
}

func TestListWithDetailsFailsWholePageOnOneDetailError(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/absences", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"absences": []domain.AbsenceRequest{
			{ID: "ok", StartDate: start},
			{ID: "gone", StartDate: start},
		}})
	})
	mux.HandleFunc("/absences/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/absences/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(domain.AbsenceRequest{ID: "ok", StartDate: start})
	})

	client, _ := newTestClient(t, mux)
	_, err := client.ListAbsencesWithDetails(context.Background(), domain.ListParams{Page: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want the detail failure to fail the page", err)
	}
}

func TestListWithDetailsEmptyPageSkipsDetailFetches(t *testing.T) {
	var detailCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/absences", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"absences": []domain.AbsenceRequest{}})
	})
	mux.HandleFunc("/absences/", func(w http.ResponseWriter, r *http.Request) {
		detailCalls++
	})

	client, _ := newTestClient(t, mux)
	merged, err := client.ListAbsencesWithDetails(context.Background(), domain.ListParams{Page: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 0 || detailCalls != 0 {
		t.Fatalf("merged=%v detailCalls=%d", merged, detailCalls)
	}
}
