package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"techpost/internal/api"
	"techpost/internal/config"
	"techpost/internal/database"
	"techpost/internal/encryption"
	"techpost/internal/engage"
	"techpost/internal/keystore"
)

// MaxLoginAttempts bounds how often ResolveLogin asks for credentials.
const MaxLoginAttempts = 3

// ErrCancelled means the visitor abandoned the login prompt.
var ErrCancelled = errors.New("login cancelled")

// TechPostApp is the application layer between the CLI and the engagement core.
// It constructs all dependencies from config, restores the persisted session
// and closes the database and log file on Close.
type TechPostApp struct {
	cfg      *config.Config
	logger   engage.Logger
	logFile  *os.File
	db       *database.SQLiteDatabase
	client   *api.Client
	sessions *engage.SessionStore
	store    *engage.EngagementStore
	ctrl     *engage.Controller
	unsub    func()
}

// NewTechPostApp creates a fully wired TechPostApp from the given config.
// command identifies the CLI command being run and is recorded in the log.
// prompter may be nil. The caller must call Close when done.
func NewTechPostApp(ctx context.Context, cfg *config.Config, command string, prompter engage.LoginPrompter) (*TechPostApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.New().String()[:8]
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("command", command)}

	db, err := database.NewDatabaseFromConfig(cfg.Database, engage.RealClock{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating sealer: %w", err)
	}

	keys, err := keystore.NewKeystoreFromConfig(cfg.Session, sealer, db)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	client, err := api.NewClientFromConfig(cfg.API, logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	sessions := engage.NewSessionStore(client, keys, logger)
	store := engage.NewEngagementStore(client, cfg.Comments.PreviewCount, logger, engage.RealClock{}, engage.UUIDGenerator{})
	unsub := sessions.Subscribe(store.OnSessionChange)
	ctrl := engage.NewController(sessions, client, store, prompter, db, logger)

	a := &TechPostApp{
		cfg:      cfg,
		logger:   logger,
		logFile:  logFile,
		db:       db,
		client:   client,
		sessions: sessions,
		store:    store,
		ctrl:     ctrl,
		unsub:    unsub,
	}
	sessions.Restore(ctx)
	return a, nil
}

// Identity returns the logged-in user, or ok=false when anonymous.
func (a *TechPostApp) Identity() (engage.Identity, bool) {
	sess, ok := a.sessions.Current()
	return sess.Identity, ok
}

// Register creates an account without logging in.
func (a *TechPostApp) Register(ctx context.Context, name, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", engage.ErrInvalidInput)
	}
	if err := a.client.Register(ctx, name, email, password); err != nil {
		return err
	}
	a.logger.Info("registered", "email", email)
	return nil
}

// Login logs in and replays any action waiting for it.
func (a *TechPostApp) Login(ctx context.Context, email, password string) (engage.Result, error) {
	return a.ctrl.Login(ctx, email, password)
}

// Logout clears the session and the persisted credential.
func (a *TechPostApp) Logout(ctx context.Context) error {
	return a.sessions.Logout(ctx)
}

// Posts lists every post, newest first.
func (a *TechPostApp) Posts(ctx context.Context) ([]engage.Post, error) {
	return a.client.ListPosts(ctx)
}

// ShowPost loads a post and returns its view. all expands the comment list.
func (a *TechPostApp) ShowPost(ctx context.Context, postID int64, all bool) (engage.PostSnapshot, error) {
	if err := a.load(ctx, postID); err != nil {
		return engage.PostSnapshot{}, err
	}
	if all {
		a.store.ShowAllComments()
	}
	snap, _ := a.store.Snapshot()
	return snap, nil
}

// Like toggles the visitor's like on postID. When anonymous the like is
// deferred and Result.Deferred is set; use ResolveLogin to finish it.
func (a *TechPostApp) Like(ctx context.Context, postID int64) (engage.Result, error) {
	if err := a.load(ctx, postID); err != nil {
		return engage.Result{}, err
	}
	liked, _ := a.store.Liked(postID)
	return a.ctrl.Attempt(ctx, engage.LikeAction(postID, !liked))
}

// Comment posts text on postID, deferring it when anonymous.
func (a *TechPostApp) Comment(ctx context.Context, postID int64, text string) (engage.Result, error) {
	if err := a.load(ctx, postID); err != nil {
		return engage.Result{}, err
	}
	return a.ctrl.Attempt(ctx, engage.CommentAction(postID, text))
}

// ResolveLogin collects credentials from src until a login succeeds, the
// visitor cancels with an empty email, or MaxLoginAttempts is reached. On
// success the deferred action is replayed and its result returned. A
// cancelled or exhausted prompt discards the deferred action.
func (a *TechPostApp) ResolveLogin(ctx context.Context, src CredentialSource, reason engage.PromptReason) (engage.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxLoginAttempts; attempt++ {
		email, password, err := src.Credentials(reason)
		if err != nil {
			a.ctrl.Cancel()
			return engage.Result{}, err
		}
		if email == "" {
			a.ctrl.Cancel()
			return engage.Result{}, ErrCancelled
		}

		res, err := a.ctrl.Login(ctx, email, password)
		if err == nil {
			return res, nil
		}
		var authErr *engage.AuthError
		if !errors.As(err, &authErr) {
			a.ctrl.Cancel()
			return engage.Result{}, err
		}
		a.logger.Warn("login refused", "attempt", attempt, "error", authErr.Message)
		lastErr = err
	}
	a.ctrl.Cancel()
	return engage.Result{}, lastErr
}

// Pending returns the action waiting for a login, if any.
func (a *TechPostApp) Pending() (engage.Action, bool) {
	return a.ctrl.Pending()
}

// History returns the most recent journaled actions.
func (a *TechPostApp) History(limit int) ([]*database.Action, error) {
	return a.db.ListActions(limit)
}

// ExportHistory writes the action journal to a new sqlite file at path.
// Stored credentials are not included.
func (a *TechPostApp) ExportHistory(path string) error {
	if err := a.db.ExportJournal(path); err != nil {
		return err
	}
	a.logger.Info("exported history", "path", path)
	return nil
}

// Close closes the database and the log file.
func (a *TechPostApp) Close() error {
	var firstErr error
	a.unsub()
	a.store.Unmount()

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func (a *TechPostApp) load(ctx context.Context, postID int64) error {
	var sess *engage.Session
	if s, ok := a.sessions.Current(); ok {
		sess = &s
	}
	return a.store.Load(ctx, postID, sess)
}
