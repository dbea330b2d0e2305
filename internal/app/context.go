package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lubereport/internal/api"
	"lubereport/internal/config"
	"lubereport/internal/db"
	"lubereport/internal/domain"
	"lubereport/internal/draft"
	"lubereport/internal/events"
	"lubereport/internal/imageenc"
	"lubereport/internal/migrate"
	"lubereport/internal/repo"
	"lubereport/internal/session"
)

// Options overrides parts of the workspace configuration.
type Options struct {
	APIURL  string
	Timeout time.Duration
	// Backend replaces the REST client behind the draft controller; used by
	// tests.
	Backend draft.Backend
	Now     func() time.Time
}

// Env is an opened workspace: config, local store, session and API client.
type Env struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Session   *session.Context
	Client    *api.Client

	backend draft.Backend
	now     func() time.Time
	unsub   func()
}

// Open resolves the workspace: it loads lubereport.yml (or the built-in
// defaults), migrates the local database and restores the saved session.
func Open(ctx context.Context, workspace string, opts Options) (*Env, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if opts.APIURL != "" {
		cfg.Backend.BaseURL = opts.APIURL
	}
	if opts.Timeout > 0 {
		cfg.Backend.Timeout = opts.Timeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open workspace db: %w", err)
	}
	if _, err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate workspace db: %w", err)
	}
	r := repo.Repo{DB: conn, Now: now}

	stored, err := r.GetSession(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read session: %w", err)
	}
	sess := session.New(sessionFromStore(stored))

	client := api.New(cfg.Backend.BaseURL, sess.State().Token)
	client.Timeout = cfg.Backend.Timeout

	env := &Env{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Events:    events.Writer{DB: conn, Now: now},
		Session:   sess,
		Client:    client,
		backend:   client,
		now:       now,
	}
	if opts.Backend != nil {
		env.backend = opts.Backend
	}
	var mu sync.Mutex
	prev := sess.State()
	env.unsub = sess.Subscribe(func(s session.State) {
		mu.Lock()
		defer mu.Unlock()
		if client.Token != s.Token {
			client.Token = s.Token
		}
		bg := context.Background()
		if err := r.SetSession(bg, sessionToStore(s)); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("session not saved")
		}
		for _, kind := range sessionChanges(prev, s) {
			if err := env.Events.Append(bg, nil, kind, events.KindSession, "", s.Profile.Username, events.EventPayload{"sector": s.Sector}); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("event", kind).Msg("event not recorded")
			}
		}
		prev = s
	})
	return env, nil
}

func sessionChanges(prev, next session.State) []string {
	var kinds []string
	switch {
	case !prev.LoggedIn() && next.LoggedIn():
		kinds = append(kinds, "session.login")
	case prev.LoggedIn() && !next.LoggedIn():
		kinds = append(kinds, "session.logout")
	}
	if prev.Sector != next.Sector {
		kinds = append(kinds, "session.sector")
	}
	return kinds
}

// Close releases the database.
func (e *Env) Close() error {
	if e.unsub != nil {
		e.unsub()
	}
	return e.DB.Close()
}

func sessionFromStore(m map[string]string) session.State {
	id, _ := strconv.ParseInt(m[repo.KeyUserID], 10, 64)
	return session.State{
		Token:  m[repo.KeyToken],
		Sector: domain.Sector(m[repo.KeySector]),
		Profile: domain.Profile{
			ID:       id,
			Role:     m[repo.KeyRole],
			Username: m[repo.KeyUsername],
		},
	}
}

func sessionToStore(s session.State) map[string]string {
	id := ""
	if s.Profile.ID != 0 {
		id = strconv.FormatInt(s.Profile.ID, 10)
	}
	return map[string]string{
		repo.KeyToken:    s.Token,
		repo.KeySector:   string(s.Sector),
		repo.KeyUsername: s.Profile.Username,
		repo.KeyRole:     s.Profile.Role,
		repo.KeyUserID:   id,
	}
}

// NewController builds a draft controller wired to the workspace: catalog
// and timezone from the config, mutations appended to the event log. The
// last saved draft is restored when there is one; otherwise the draft starts
// empty in the active sector.
func (e *Env) NewController(ctx context.Context) (*draft.Controller, error) {
	actor := e.Session.State().Profile.Username
	c := draft.New(e.backend, draft.Options{
		Catalog:  e.Config.Catalog,
		Location: e.Config.Location(),
		Now:      e.now,
		NewID:    uuid.NewString,
		Encoder:  imageenc.Encoder{},
		OnChange: func(ctx context.Context, kind string, payload map[string]any) {
			if err := e.Events.Append(ctx, nil, kind, events.KindDraft, "", actor, payload); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("event", kind).Msg("event not recorded")
			}
		},
	})

	d, err := e.currentDraft(ctx)
	switch {
	case err == nil:
		if err := c.Restore(d.State); err != nil {
			return nil, err
		}
		if sector := e.Session.Sector(); sector != "" && sector != c.State().Sector {
			c.SetSector(ctx, sector)
		}
	case errors.Is(err, repo.ErrNotFound):
		if sector := e.Session.Sector(); sector != "" {
			c.SetSector(ctx, sector)
		}
	default:
		return nil, err
	}
	return c, nil
}

// currentDraft loads the draft named in the session, falling back to the
// most recently saved one when the key is missing or stale.
func (e *Env) currentDraft(ctx context.Context) (repo.Draft, error) {
	stored, err := e.Repo.GetSession(ctx)
	if err != nil {
		return repo.Draft{}, err
	}
	if id := stored[repo.KeyDraft]; id != "" {
		d, err := e.Repo.LoadDraft(ctx, id)
		if !errors.Is(err, repo.ErrNotFound) {
			return d, err
		}
		zerolog.Ctx(ctx).Debug().Str("draft", id).Msg("stored draft missing, using latest")
	}
	return e.Repo.LatestDraft(ctx)
}

// SaveDraft persists the controller state and marks it as the current draft.
func (e *Env) SaveDraft(ctx context.Context, c *draft.Controller) error {
	data, err := c.Snapshot()
	if err != nil {
		return err
	}
	s := c.State()
	if err := e.Repo.SaveDraft(ctx, repo.Draft{
		ID:       s.ID,
		Sector:   s.Sector,
		Mode:     string(s.Mode),
		ReportID: s.ReportID,
		State:    data,
	}); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return e.Repo.SetSession(ctx, map[string]string{repo.KeyDraft: s.ID})
}

// Submit sends the draft, then replaces the stored draft with the fresh one
// the controller starts after a successful submit.
func (e *Env) Submit(ctx context.Context, c *draft.Controller) (domain.Report, error) {
	oldID := c.State().ID
	report, err := c.Submit(ctx)
	if err != nil {
		return report, err
	}
	if err := e.Repo.DeleteDraft(ctx, oldID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("draft", oldID).Msg("old draft not removed")
	}
	reportID := ""
	if report.ID != nil {
		reportID = strconv.FormatInt(*report.ID, 10)
	}
	actor := e.Session.State().Profile.Username
	if err := e.Events.Append(ctx, nil, "report.submitted", events.KindReport, reportID, actor, events.EventPayload{"sector": report.Sector}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("event not recorded")
	}
	return report, e.SaveDraft(ctx, c)
}

// Discard drops the stored draft and starts a new one.
func (e *Env) Discard(ctx context.Context, c *draft.Controller) error {
	if err := e.Repo.DeleteDraft(ctx, c.State().ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	c.Reset(ctx)
	return e.SaveDraft(ctx, c)
}
