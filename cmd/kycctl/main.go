package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"akwaba.app/internal/auth"
	"akwaba.app/internal/config"
	"akwaba.app/internal/kyc"
	"akwaba.app/internal/kyc/client"
	"akwaba.app/internal/session"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		addr     = flag.String("addr", cfg.APIURL, "API base URL")
		token    = flag.String("token", cfg.Token, "Bearer token (default: dev token for -user)")
		user     = flag.String("user", "demo-user", "Subject for dev token issuance")
		roleFlag = flag.String("role", "GUEST", "KYC role")
		docURL   = flag.String("doc-url", "", "Uploaded document URL")
		docType  = flag.String("doc-type", "", "Document type (default: role policy default)")
		number   = flag.String("number", "", "Document number")
		consent  = flag.Bool("consent", false, "Consent to the role's declaration")
		redisURL = flag.String("redis", cfg.RedisURL, "Redis URL for the session cache")
	)
	flag.Parse()
	if len(flag.Args()) == 0 {
		log.Fatal("usage: kycctl [status|submit]")
	}

	role, err := kyc.ParseRole(*roleFlag)
	if err != nil {
		log.Fatalf("role: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if *token == "" {
		*token, err = devToken(ctx, *addr, *user)
		if err != nil {
			log.Fatalf("dev token: %v", err)
		}
	}
	// Session state is keyed by whoever the token names, not by -user.
	subject, err := auth.SubjectOf(*token)
	if err != nil {
		log.Fatalf("token: %v", err)
	}

	var cache session.Cache = session.NewMemoryCache()
	if *redisURL != "" {
		opts, err := redis.ParseURL(*redisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cache = session.NewRedisCache(rdb, "", cfg.SessionTTL)
	}

	api, err := client.New(*addr, client.WithBearerToken(*token))
	if err != nil {
		log.Fatal(err)
	}
	wf, err := client.NewWorkflow(api, session.NewTracker(cache, subject, role))
	if err != nil {
		log.Fatal(err)
	}

	switch flag.Arg(0) {
	case "status":
		snap, err := wf.Refresh(ctx)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		printSnapshot(snap)
	case "submit":
		wf.SetDocumentURL(*docURL)
		if *docType != "" && !wf.SetDocumentType(kyc.DocumentType(strings.ToUpper(*docType))) {
			log.Fatalf("document type %q is not accepted for %s", *docType, role)
		}
		wf.SetDocumentNumber(*number)
		wf.SetConsent(*consent)

		snap, err := wf.Submit(ctx)
		var conflict *client.ConflictError
		switch {
		case err == nil:
		case errors.Is(err, client.ErrSubmissionBlocked):
			log.Fatalf("submission blocked: %s", wf.Policy().ConsentText)
		case errors.As(err, &conflict):
			printSnapshot(snap)
			log.Fatalf("conflict: %v", err)
		default:
			log.Fatalf("submit: %v", err)
		}
		printSnapshot(snap)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}

func devToken(ctx context.Context, addr, user string) (string, error) {
	body, _ := json.Marshal(map[string]any{"user": user})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(addr, "/")+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func printSnapshot(s session.Snapshot) {
	line := fmt.Sprintf("role=%s status=%s", s.Role, s.Status)
	if s.Reason != "" {
		line += fmt.Sprintf(" reason=%q", s.Reason)
	}
	fmt.Println(line)
}
