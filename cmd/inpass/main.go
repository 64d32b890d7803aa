package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inpass/internal/api"
	"inpass/internal/config"
	"inpass/internal/domain"
	"inpass/internal/notify"
	"inpass/internal/session"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	tokens := buildTokenStore(cfg, logger)

	// Single-slot dirty flag: push events raise it, the list commands
	// consume it and re-fetch.
	var dirty atomic.Bool

	client := api.NewClient(cfg.APIBaseURL, tokens, logger,
		api.WithTimeout(time.Duration(cfg.HTTPTimeoutMS)*time.Millisecond),
		api.WithAuthRejectHook(func() {
			fmt.Println("\nSession expired, please log in again.")
		}),
	)

	subscriber := notify.NewSubscriber(cfg.HubURL, cfg.Group, func(ev notify.Event) {
		dirty.Store(true)
		if ev.Reason != "" {
			fmt.Printf("\n[push] %s: %s — refresh your requests\n", ev.Name, ev.Reason)
			return
		}
		fmt.Printf("\n[push] %s — refresh your requests\n", ev.Name)
	}, logger)
	defer subscriber.Stop()

	if token, _ := tokens.Token(ctx); token == "" {
		if !authFlow(ctx, reader, client) {
			return
		}
	}
	subscriber.Start(ctx)

	for {
		fmt.Print("\n[P]rofile [L]ist [D]etail [C]reate [U]pdate l[O]gout [Q]uit:")
		choice, _ := reader.ReadString('\n')
		switch strings.ToUpper(strings.TrimSpace(choice)) {
		case "P":
			showProfile(ctx, client)
		case "L":
			listFlow(ctx, reader, client, &dirty)
		case "D":
			detailFlow(ctx, reader, client)
		case "C":
			draft, ok := draftFlow(reader)
			if ok {
				submit(client.CreateAbsence(ctx, draft))
			}
		case "U":
			fmt.Print("Request id: ")
			id, _ := reader.ReadString('\n')
			draft, ok := draftFlow(reader)
			if ok {
				submit(client.UpdateAbsence(ctx, strings.TrimSpace(id), draft))
			}
		case "O":
			if err := tokens.ClearToken(ctx); err != nil {
				fmt.Println("logout failed:", err)
				continue
			}
			fmt.Println("Logged out.")
			if !authFlow(ctx, reader, client) {
				return
			}
		case "Q":
			return
		}
	}
}

func buildTokenStore(cfg *config.Config, logger *zap.Logger) session.TokenStore {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err == nil {
			return session.NewRedisTokenStore(client, "")
		}
		logger.Warn("redis unavailable, falling back to file token store")
	}

	path := cfg.TokenFile
	if !filepath.IsAbs(path) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path)
		}
	}
	return session.NewFileTokenStore(path)
}

func authFlow(ctx context.Context, reader *bufio.Reader, client *api.Client) bool {
	for {
		fmt.Print("\n[L]ogin [R]egister [Q]uit: ")
		choice, _ := reader.ReadString('\n')
		switch strings.ToUpper(strings.TrimSpace(choice)) {
		case "L":
			creds := readCredentials(reader)
			if _, err := client.Login(ctx, creds); err != nil {
				printAPIError("login", err)
				continue
			}
			fmt.Println("Logged in.")
			return true
		case "R":
			creds := readCredentials(reader)
			fmt.Print("Full name: ")
			name, _ := reader.ReadString('\n')
			if _, err := client.Register(ctx, creds, strings.TrimSpace(name)); err != nil {
				printAPIError("register", err)
				continue
			}
			fmt.Println("Registered and logged in.")
			return true
		case "Q":
			return false
		}
	}
}

func readCredentials(reader *bufio.Reader) domain.Credentials {
	fmt.Print("Login: ")
	login, _ := reader.ReadString('\n')
	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	return domain.Credentials{
		Login:    strings.TrimSpace(login),
		Password: strings.TrimSpace(password),
	}
}

func showProfile(ctx context.Context, client *api.Client) {
	profile, err := client.Profile(ctx)
	if err != nil {
		printAPIError("profile", err)
		return
	}
	fmt.Printf("%s, group %s\n", profile.FullName, profile.GroupID)
}

// listFlow pages through summaries+details; pressing enter on the
// prompt is the "load more" trigger that bumps the page number.
func listFlow(ctx context.Context, reader *bufio.Reader, client *api.Client, dirty *atomic.Bool) {
	fmt.Print("Status filter (Pending/Approved/Rejected, empty for all): ")
	status, _ := reader.ReadString('\n')

	params := domain.ListParams{
		Page:    1,
		Size:    10,
		Sorting: domain.SortCreateDesc,
		Status:  domain.AbsenceStatus(strings.TrimSpace(status)),
	}
	for {
		dirty.Store(false)
		absences, err := client.ListAbsencesWithDetails(ctx, params)
		if err != nil {
			printAPIError("list", err)
			return
		}
		if len(absences) == 0 {
			if params.Page == 1 {
				fmt.Println("No requests found.")
			} else {
				fmt.Println("No more requests.")
			}
			return
		}
		for _, a := range absences {
			printAbsence(a)
		}
		fmt.Print("[enter] next page, anything else to stop: ")
		more, _ := reader.ReadString('\n')
		if strings.TrimSpace(more) != "" {
			return
		}
		if dirty.Load() {
			fmt.Println("Requests changed while browsing, restarting from page 1.")
			params.Page = 1
			continue
		}
		params.Page++
	}
}

func detailFlow(ctx context.Context, reader *bufio.Reader, client *api.Client) {
	fmt.Print("Request id: ")
	id, _ := reader.ReadString('\n')
	a, err := client.Absence(ctx, strings.TrimSpace(id))
	if err != nil {
		printAPIError("detail", err)
		return
	}
	printAbsence(a)
}

func draftFlow(reader *bufio.Reader) (domain.Draft, bool) {
	fmt.Print("Type (Sick/Family/Academic): ")
	typ, _ := reader.ReadString('\n')
	draft := domain.Draft{Type: domain.AbsenceType(strings.TrimSpace(typ))}

	fmt.Print("Start date (YYYY-MM-DD): ")
	start, _ := reader.ReadString('\n')
	startDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(start), time.Local)
	if err != nil {
		fmt.Println("Bad start date.")
		return domain.Draft{}, false
	}
	draft.StartDate = startDate

	fmt.Print("End date (YYYY-MM-DD, empty for open-ended): ")
	end, _ := reader.ReadString('\n')
	if trimmed := strings.TrimSpace(end); trimmed != "" {
		endDate, err := time.ParseInLocation("2006-01-02", trimmed, time.Local)
		if err != nil {
			fmt.Println("Bad end date.")
			return domain.Draft{}, false
		}
		draft.EndDate = &endDate
	}

	fmt.Print("Declaration filed with dean's office? [y/N]: ")
	decl, _ := reader.ReadString('\n')
	draft.DeclarationToDean = strings.EqualFold(strings.TrimSpace(decl), "y")

	fmt.Print("Attachment path (empty for none): ")
	path, _ := reader.ReadString('\n')
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		draft.Attachment = &domain.Document{
			URI:  trimmed,
			Name: filepath.Base(trimmed),
		}
	}

	if err := draft.Validate(); err != nil {
		fmt.Println("Draft rejected:", err)
		return domain.Draft{}, false
	}
	return draft, true
}

func submit(a domain.AbsenceRequest, err error) {
	if err != nil {
		printAPIError("submit", err)
		return
	}
	fmt.Println("Saved:")
	printAbsence(a)
}

func printAbsence(a domain.AbsenceRequest) {
	end := "open-ended"
	if a.EndDate != nil {
		end = a.EndDate.Format("2006-01-02")
	}
	fmt.Printf("  %s  %-8s  %s — %s  [%s]", a.ID, a.Type, a.StartDate.Format("2006-01-02"), end, a.Status)
	if a.Status == domain.StatusRejected && a.RejectionReason != "" {
		fmt.Printf("  reason: %s", a.RejectionReason)
	}
	if len(a.Documents) > 0 {
		fmt.Printf("  (document attached)")
	}
	if a.DeclarationToDean {
		fmt.Printf("  (declaration filed)")
	}
	fmt.Println()
}

func printAPIError(op string, err error) {
	var validation *api.ValidationError
	switch {
	case errors.Is(err, api.ErrUnreachable):
		fmt.Printf("%s: backend unreachable, try again later\n", op)
	case errors.Is(err, api.ErrUnauthenticated):
		// The reject hook already told the user.
	case errors.Is(err, api.ErrInvalidCredentials):
		fmt.Printf("%s: invalid credentials\n", op)
	case errors.Is(err, api.ErrNotFound):
		fmt.Printf("%s: no such request\n", op)
	case errors.As(err, &validation):
		fmt.Printf("%s: %s\n", op, validation.Message)
	default:
		fmt.Printf("%s: %v\n", op, err)
	}
}
