package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"spesa/internal/cli"
	"spesa/internal/core"
	"spesa/internal/drive"
	applog "spesa/internal/log"
)

// oauth-init authorizes Google Drive uploads for one user from a terminal.
// It serves the redirect on a local port, so that URI must be registered on
// the OAuth client.
func main() {
	username := flag.String("user", "", "Username to authorize")
	port := flag.String("port", "8085", "Local port for the OAuth redirect")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentDrive, os.Getenv("LOG_LEVEL"))
	if *username == "" {
		fmt.Fprintln(os.Stderr, "Usage: oauth-init -user <username> [-port <port>]")
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.DriveEnabled() {
		logger.Error("Set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx := context.Background()
	user, err := repo.GetUserByUsername(ctx, *username)
	if err != nil {
		logger.Error("Unknown user", applog.FieldError, err, "username", *username)
		os.Exit(1)
	}

	clientJSON, err := cfg.OAuthClientJSON()
	if err != nil {
		logger.Error("Failed to read OAuth client", applog.FieldError, err)
		os.Exit(1)
	}
	provider, err := drive.GoogleProviderFromJSON(clientJSON, "http://localhost:"+*port+"/callback")
	if err != nil {
		logger.Error("Failed to configure OAuth client", applog.FieldError, err)
		os.Exit(1)
	}
	creds, err := drive.NewFileStore(cfg.CredentialsDir)
	if err != nil {
		logger.Error("Failed to open credential store", applog.FieldError, err)
		os.Exit(1)
	}
	mgr := drive.NewManager(provider, drive.NewDriveUploader(), creds, repo, repo)

	sessionID := uuid.NewString()
	consentURL, err := mgr.BeginAuthorization(ctx, user.ID, sessionID, core.CurrentPeriod(time.Now()))
	if err != nil {
		logger.Error("Failed to start authorization", applog.FieldError, err)
		os.Exit(1)
	}

	result := make(chan error, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errStr := q.Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			result <- fmt.Errorf("provider returned %s", errStr)
			return
		}
		_, err := mgr.CompleteAuthorization(r.Context(), user.ID, sessionID, q.Get("state"), q.Get("code"))
		if err != nil {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			result <- err
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		result <- nil
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			result <- fmt.Errorf("callback server: %w", err)
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", consentURL)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case err := <-result:
		if err != nil {
			logger.Error("Authorization failed", applog.FieldError, err)
			os.Exit(1)
		}
		fmt.Printf("Saved Drive credential for %s\n", user.Username)
	case <-time.After(5 * time.Minute):
		logger.Error("Authorization timed out")
		os.Exit(1)
	case <-interrupt:
		logger.Error("Interrupted")
		os.Exit(1)
	}
}
