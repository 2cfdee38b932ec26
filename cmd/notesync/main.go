package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/notesync/gitsync"
	"github.com/alexjbarnes/notesync/internal/bridge"
	"github.com/alexjbarnes/notesync/internal/config"
	"github.com/alexjbarnes/notesync/internal/controller"
	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
	"github.com/alexjbarnes/notesync/internal/github"
	"github.com/alexjbarnes/notesync/internal/logging"
	"github.com/alexjbarnes/notesync/internal/mcpserver"
	"github.com/alexjbarnes/notesync/internal/oracle"
	"github.com/alexjbarnes/notesync/internal/settings"
	"github.com/alexjbarnes/notesync/internal/store"
)

var Version = "dev"

// lockFileName is the sync lock inside the notes directory. The
// leading dot keeps it out of tracking and watching.
const lockFileName = ".notesync.lock"

func main() {
	// Handle the profile subcommand before config loading: it must work
	// without a complete sync configuration.
	if len(os.Args) > 1 && os.Args[1] == "profile" {
		if err := runProfile(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	mcpMode := len(os.Args) > 1 && os.Args[1] == "mcp"

	if err := run(mcpMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(mcpMode bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOut := os.Stdout
	if mcpMode {
		// stdout carries the MCP protocol stream.
		logOut = os.Stderr
	}
	logger := logging.NewLoggerTo(logOut, cfg.Environment)

	if err := applyProfile(cfg, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, st, err := buildSession(cfg, logger)
	if err != nil {
		return err
	}

	// The lock covers both modes: an MCP instance pulls and pushes the
	// same tree a daemon would.
	release, err := acquireLock(cfg.NotesDir)
	if err != nil {
		return err
	}
	defer release()

	if mcpMode {
		logger.Info("notesync MCP server starting", slog.String("version", Version))

		server := mcp.NewServer(
			&mcp.Implementation{Name: "notesync-mcp", Version: Version},
			nil,
		)
		mcpserver.RegisterTools(server, session)

		return server.Run(ctx, &mcp.StdioTransport{})
	}

	logger.Info("notesync starting",
		slog.String("version", Version),
		slog.String("notes_dir", cfg.NotesDir),
		slog.String("repo", cfg.Owner+"/"+cfg.Repo),
		slog.Bool("bridge", cfg.EnableBridge),
		slog.Bool("watcher", cfg.EnableWatcher),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.EnableBridge {
		g.Go(func() error {
			return runBridge(gctx, cfg, session, logger)
		})
	}

	if cfg.EnableWatcher {
		watcher := store.NewWatcher(st, session.MarkStale, logger)
		g.Go(func() error {
			return watcher.Watch(gctx)
		})
	}

	// An initial pass so status and diffs are populated right away. A
	// failure here is not fatal: the bridge and MCP surfaces retrigger
	// reconciliation on demand.
	g.Go(func() error {
		if _, err := session.Reconcile(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("initial reconciliation failed", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// acquireLock takes the exclusive sync lock for the notes directory,
// which must already exist. The returned release drops the lock and
// removes its file.
func acquireLock(dir string) (func(), error) {
	lock := flock.New(filepath.Join(dir, lockFileName))

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking notes directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("notes directory %s is in use by another notesync instance", dir)
	}

	release := func() {
		if err := lock.Unlock(); err == nil {
			os.Remove(lock.Path())
		}
	}

	return release, nil
}

// applyProfile fills repository coordinates from the stored sync
// profile. Environment values win over profile values.
func applyProfile(cfg *config.Config, logger *slog.Logger) error {
	if cfg.HasRepository() {
		return nil
	}

	s, err := settings.Open()
	if err != nil {
		return fmt.Errorf("opening settings: %w", err)
	}
	defer s.Close()

	p, err := s.Profile(cfg.Passphrase)
	if err != nil {
		if errors.Is(err, syncerrors.ErrNoProfile) {
			return fmt.Errorf("repository not configured: set NOTESYNC_GITHUB_OWNER, NOTESYNC_GITHUB_REPO, and NOTESYNC_GITHUB_TOKEN, or run \"notesync profile set\"")
		}

		return fmt.Errorf("reading sync profile: %w", err)
	}

	if cfg.Owner == "" {
		cfg.Owner = p.Owner
	}
	if cfg.Repo == "" {
		cfg.Repo = p.Repo
	}
	if cfg.Token == "" {
		cfg.Token = p.Token
	}
	if p.Branch != "" && os.Getenv("NOTESYNC_BRANCH") == "" {
		cfg.Branch = p.Branch
	}
	if p.FallbackBranch != "" && os.Getenv("NOTESYNC_FALLBACK_BRANCH") == "" {
		cfg.FallbackBranch = p.FallbackBranch
	}
	if p.Device != "" && os.Getenv("DEVICE_NAME") == "" {
		cfg.DeviceName = p.Device
	}

	if cfg.Token == "" && p.Sealed() {
		return fmt.Errorf("profile token is sealed: set NOTESYNC_PASSPHRASE to unseal it")
	}
	if !cfg.HasRepository() {
		return fmt.Errorf("repository not configured: profile is missing owner, repo, or token")
	}

	logger.Info("sync profile applied",
		slog.String("owner", cfg.Owner),
		slog.String("repo", cfg.Repo),
	)

	return nil
}

// buildSession wires the sync engine: store, remote client, change
// oracle, fetcher, reconciler, and the two executors behind a session.
func buildSession(cfg *config.Config, logger *slog.Logger) (*controller.Session, *store.Store, error) {
	st, err := store.New(cfg.NotesDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening notes store: %w", err)
	}

	remote := github.NewClient(github.Config{
		APIURL: cfg.APIURL,
		Owner:  cfg.Owner,
		Repo:   cfg.Repo,
		Token:  cfg.Token,
	}, nil)

	fetcher, err := gitsync.NewFetcher(remote, cfg.Branches(), st.Tracked, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating fetcher: %w", err)
	}

	committer := oracle.NewCommitter(st, cfg.DeviceName, logger)

	session := controller.New(controller.Config{
		Changes:   oracle.New(st, logger),
		Snapshots: fetcher,
		Reconcile: gitsync.NewReconciler(st, logger),
		Pull:      gitsync.NewPullExecutor(st, committer, cfg.DeviceName, logger),
		Push:      gitsync.NewPushExecutor(remote, committer, cfg.Branches(), cfg.DeviceName, logger),
		Logger:    logger,
	})

	return session, st, nil
}

// runBridge serves the loopback HTTP bridge until the context ends.
func runBridge(ctx context.Context, cfg *config.Config, session *controller.Session, logger *slog.Logger) error {
	mux := bridge.NewMux(bridge.Config{Session: session, Logger: logger})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,

		// Ties request contexts to the daemon lifetime so the websocket
		// event streams end on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	logger.Info("bridge listening", slog.String("addr", cfg.ListenAddr))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server error: %w", err)
	}

	return nil
}

// runProfile handles "notesync profile set|show|clear".
func runProfile(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: notesync profile <set|show|clear>")
	}

	s, err := settings.Open()
	if err != nil {
		return fmt.Errorf("opening settings: %w", err)
	}
	defer s.Close()

	switch args[0] {
	case "set":
		return profileSet(s, args[1:])
	case "show":
		return profileShow(s)
	case "clear":
		return s.DeleteProfile()
	default:
		return fmt.Errorf("unknown profile command %q, want set, show, or clear", args[0])
	}
}

func profileSet(s *settings.Settings, args []string) error {
	fs := flag.NewFlagSet("profile set", flag.ContinueOnError)
	owner := fs.String("owner", "", "repository owner (required)")
	repo := fs.String("repo", "", "repository name (required)")
	token := fs.String("token", "", "access token (required)")
	branch := fs.String("branch", "", "branch to sync, empty for the configured default")
	fallback := fs.String("fallback-branch", "", "branch tried when the primary does not exist")
	device := fs.String("device", "", "device label for commit messages")
	passphrase := fs.String("passphrase", "", "seal the token with this passphrase")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *owner == "" || *repo == "" || *token == "" {
		return fmt.Errorf("-owner, -repo, and -token are required")
	}

	p := settings.Profile{
		Owner:          *owner,
		Repo:           *repo,
		Branch:         *branch,
		FallbackBranch: *fallback,
		Device:         *device,
		Token:          *token,
	}
	if err := s.SaveProfile(p, *passphrase); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	fmt.Printf("profile saved for %s/%s\n", *owner, *repo)
	if *passphrase != "" {
		fmt.Println("token sealed; the daemon needs NOTESYNC_PASSPHRASE to use it")
	}

	return nil
}

func profileShow(s *settings.Settings) error {
	p, err := s.Profile("")
	if err != nil {
		return err
	}

	fmt.Printf("owner:    %s\n", p.Owner)
	fmt.Printf("repo:     %s\n", p.Repo)
	if p.Branch != "" {
		fmt.Printf("branch:   %s\n", p.Branch)
	}
	if p.FallbackBranch != "" {
		fmt.Printf("fallback: %s\n", p.FallbackBranch)
	}
	if p.Device != "" {
		fmt.Printf("device:   %s\n", p.Device)
	}

	switch {
	case p.Sealed():
		fmt.Println("token:    sealed")
	case p.Token != "":
		fmt.Println("token:    stored")
	default:
		fmt.Println("token:    not stored")
	}

	return nil
}
