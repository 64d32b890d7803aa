package mockserver

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"inpass/internal/api"
	"inpass/internal/domain"
	"inpass/internal/session"
)

func newTestBackend(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	logger := zap.NewNop()
	hub := NewHub(logger)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	handler := NewHandler(logger, NewMemoryStore(), issuer, hub, nil)
	server := httptest.NewServer(NewRouter(logger, handler, hub, issuer))
	t.Cleanup(server.Close)
	return server, hub
}

func newSDKClient(t *testing.T, server *httptest.Server) (*api.Client, session.TokenStore) {
	t.Helper()
	tokens := session.NewMemoryTokenStore()
	return api.NewClient(server.URL+"/api", tokens, nil), tokens
}

func registerStudent(t *testing.T, client *api.Client) {
	t.Helper()
	_, err := client.Register(context.Background(),
		domain.Credentials{Login: "ivan", Password: "secret-1"}, "Ivan Petrov")
	if err != nil {
		t.Fatal(err)
	}
}

func sickDraft(day string) domain.Draft {
	start, _ := time.Parse("2006-01-02", day)
	return domain.Draft{Type: domain.AbsenceSick, StartDate: start}
}

func TestRegisterLoginProfileRoundTrip(t *testing.T) {
	server, _ := newTestBackend(t)
	client, tokens := newSDKClient(t, server)
	ctx := context.Background()

	registerStudent(t, client)
	if token, _ := tokens.Token(ctx); token == "" {
		t.Fatal("register must leave a stored token")
	}

	profile, err := client.Profile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if profile.FullName != "Ivan Petrov" {
		t.Fatalf("profile = %+v", profile)
	}

	// A second client logs in with the same credentials.
	other, _ := newSDKClient(t, server)
	if _, err := other.Login(ctx, domain.Credentials{Login: "ivan", Password: "secret-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Login(ctx, domain.Credentials{Login: "ivan", Password: "wrong"}); !errors.Is(err, api.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterDuplicateLoginSurfacesMessage(t *testing.T) {
	server, _ := newTestBackend(t)
	client, _ := newSDKClient(t, server)
	registerStudent(t, client)

	other, _ := newSDKClient(t, server)
	_, err := other.Register(context.Background(),
		domain.Credentials{Login: "ivan", Password: "secret-2"}, "Another Ivan")
	var verr *api.ValidationError
	if !errors.As(err, &verr) || verr.Message != "login already taken" {
		t.Fatalf("err = %v, want the server message verbatim", err)
	}
}

func TestCreateListGetUpdate(t *testing.T) {
	server, _ := newTestBackend(t)
	client, _ := newSDKClient(t, server)
	ctx := context.Background()
	registerStudent(t, client)

	created, err := client.CreateAbsence(ctx, sickDraft("2025-03-01"))
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != domain.StatusPending {
		t.Fatalf("created = %+v", created)
	}

	if _, err := client.CreateAbsence(ctx, sickDraft("2025-03-10")); err != nil {
		t.Fatal(err)
	}

	page, err := client.ListAbsences(ctx, domain.ListParams{
		Page: 1, Size: 10, Sorting: domain.SortCreateDesc, Status: domain.StatusPending,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d absences, want 2", len(page))
	}

	got, err := client.Absence(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != created.ID {
		t.Fatalf("got = %+v", got)
	}

	if _, err := client.Absence(ctx, "no-such-id"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Full replace of the mutable fields.
	end, _ := time.Parse("2006-01-02", "2025-03-07")
	updated, err := client.UpdateAbsence(ctx, created.ID, domain.Draft{
		Type:              domain.AbsenceFamily,
		StartDate:         created.StartDate,
		EndDate:           &end,
		DeclarationToDean: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Type != domain.AbsenceFamily || !updated.DeclarationToDean || updated.EndDate == nil {
		t.Fatalf("updated = %+v", updated)
	}

	if _, err := client.UpdateAbsence(ctx, "no-such-id", sickDraft("2025-03-01")); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateWithAttachment(t *testing.T) {
	server, _ := newTestBackend(t)
	client, _ := newSDKClient(t, server)
	ctx := context.Background()
	registerStudent(t, client)

	path := filepath.Join(t.TempDir(), "certificate.pdf")
	if err := os.WriteFile(path, []byte("%PDF-"), 0o600); err != nil {
		t.Fatal(err)
	}

	start, _ := time.Parse("2006-01-02", "2025-04-01")
	end := start.AddDate(0, 0, 3)
	created, err := client.CreateAbsence(ctx, domain.Draft{
		Type:       domain.AbsenceAcademic,
		StartDate:  start,
		EndDate:    &end,
		Attachment: &domain.Document{URI: path, Name: "certificate.pdf", MimeType: "application/pdf"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(created.Documents) != 1 || created.Documents[0].Name != "certificate.pdf" {
		t.Fatalf("created = %+v, want the stored document reference", created)
	}

	// An update without a fresh upload keeps the stored attachment, so
	// the Academic rule still passes server-side.
	updated, err := client.UpdateAbsence(ctx, created.ID, domain.Draft{
		Type:       domain.AbsenceAcademic,
		StartDate:  start,
		EndDate:    &end,
		Attachment: &domain.Document{ID: created.Documents[0].ID, Name: created.Documents[0].Name},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Documents) != 1 {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestListPagination(t *testing.T) {
	server, _ := newTestBackend(t)
	client, _ := newSDKClient(t, server)
	ctx := context.Background()
	registerStudent(t, client)

	days := []string{"2025-01-01", "2025-01-02", "2025-01-03"}
	for _, day := range days {
		if _, err := client.CreateAbsence(ctx, sickDraft(day)); err != nil {
			t.Fatal(err)
		}
	}

	first, err := client.ListAbsences(ctx, domain.ListParams{Page: 1, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.ListAbsences(ctx, domain.ListParams{Page: 2, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	third, err := client.ListAbsences(ctx, domain.ListParams{Page: 3, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("pages = %d/%d", len(first), len(second))
	}
	if len(third) != 0 {
		t.Fatalf("page past the end = %d records, want an empty valid page", len(third))
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	logger := zap.NewNop()
	hub := NewHub(logger)
	issuer := NewTokenIssuer("test-secret", time.Millisecond)
	handler := NewHandler(logger, NewMemoryStore(), issuer, hub, nil)
	server := httptest.NewServer(NewRouter(logger, handler, hub, issuer))
	t.Cleanup(server.Close)

	client, tokens := newSDKClient(t, server)
	registerStudent(t, client)
	time.Sleep(10 * time.Millisecond)

	_, err := client.Profile(context.Background())
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if token, _ := tokens.Token(context.Background()); token != "" {
		t.Fatal("stale token must be cleared")
	}
}

func TestLoginRateLimited(t *testing.T) {
	logger := zap.NewNop()
	hub := NewHub(logger)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	limiter := NewMemoryLoginRateLimiter(time.Minute, 2)
	handler := NewHandler(logger, NewMemoryStore(), issuer, hub, limiter)
	server := httptest.NewServer(NewRouter(logger, handler, hub, issuer))
	t.Cleanup(server.Close)

	client, _ := newSDKClient(t, server)
	registerStudent(t, client)

	ctx := context.Background()
	creds := domain.Credentials{Login: "ivan", Password: "secret-1"}
	for i := 0; i < 2; i++ {
		if _, err := client.Login(ctx, creds); err != nil {
			t.Fatal(err)
		}
	}
	_, err := client.Login(ctx, creds)
	var verr *api.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want a 429 surfaced as validation-style rejection", err)
	}
}
