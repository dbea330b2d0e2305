package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lubereport/internal/domain"
	"lubereport/internal/draft"
	"lubereport/internal/repo"
)

type fakeBackend struct {
	created []domain.ReportDraft
}

func (f *fakeBackend) ZoneOfDay(context.Context, domain.Sector, string) (domain.ZoneOfDay, error) {
	return domain.ZoneOfDay{Zones: "Zone 2"}, nil
}

func (f *fakeBackend) Machines(context.Context, domain.Sector, string) ([]domain.Machine, error) {
	return []domain.Machine{{ID: 1, MachineTag: "C283"}}, nil
}

func (f *fakeBackend) CreateReport(_ context.Context, body domain.ReportDraft) (domain.Report, error) {
	f.created = append(f.created, body)
	id := int64(len(f.created))
	return domain.Report{ID: &id, Sector: body.Sector}, nil
}

func (f *fakeBackend) UpdateReport(_ context.Context, id int64, body domain.ReportDraft) (domain.Report, error) {
	return domain.Report{ID: &id, Sector: body.Sector}, nil
}

func openTestEnv(t *testing.T, dir string, b draft.Backend) *Env {
	t.Helper()
	env, err := Open(context.Background(), dir, Options{
		Backend: b,
		Now:     func() time.Time { return time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return env
}

func TestSessionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	env := openTestEnv(t, dir, &fakeBackend{})
	env.Session.Login("tok-1", domain.Profile{ID: 3, Username: "alice", Role: "admin"})
	require.NoError(t, env.Session.SetSector(domain.SectorACE))
	assert.Equal(t, "tok-1", env.Client.Token)
	require.NoError(t, env.Close())

	env = openTestEnv(t, dir, &fakeBackend{})
	defer env.Close()
	s := env.Session.State()
	assert.Equal(t, "tok-1", s.Token)
	assert.Equal(t, domain.SectorACE, s.Sector)
	assert.Equal(t, domain.Profile{ID: 3, Username: "alice", Role: "admin"}, s.Profile)
	assert.Equal(t, "tok-1", env.Client.Token)

	env.Session.Logout()
	stored, err := env.Repo.GetSession(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, stored, repo.KeyToken)
	assert.Equal(t, "AC/E", stored[repo.KeySector])

	evts, err := env.Repo.ListEvents(context.Background(), repo.EventFilter{Type: "session.*"})
	require.NoError(t, err)
	var kinds []string
	for _, e := range evts {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []string{"session.logout", "session.sector", "session.login"}, kinds)
}

func TestDraftPersistsBetweenControllers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	env := openTestEnv(t, dir, &fakeBackend{})
	defer env.Close()
	require.NoError(t, env.Session.SetSector(domain.SectorACV))

	c, err := env.NewController(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SectorACV, c.State().Sector)
	assert.Equal(t, "Zone 2", c.State().Tour)
	require.NoError(t, c.DispatchEntries(ctx, draft.EntryAction{Type: draft.ActionUpdate, Index: 0, Field: draft.FieldMachine, Value: "C283"}))
	require.NoError(t, env.SaveDraft(ctx, c))

	again, err := env.NewController(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.State().ID, again.State().ID)
	assert.Equal(t, "C283", again.State().Entries[0].Machine)

	events, err := env.Repo.ListEvents(ctx, repo.EventFilter{Type: "draft.*"})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestDraftFallsBackToLatest(t *testing.T) {
	ctx := context.Background()
	env := openTestEnv(t, t.TempDir(), &fakeBackend{})
	defer env.Close()
	require.NoError(t, env.Session.SetSector(domain.SectorACV))

	c, err := env.NewController(ctx)
	require.NoError(t, err)
	require.NoError(t, c.DispatchEntries(ctx, draft.EntryAction{Type: draft.ActionUpdate, Index: 0, Field: draft.FieldComment, Value: "fuite"}))
	require.NoError(t, env.SaveDraft(ctx, c))
	id := c.State().ID

	require.NoError(t, env.Repo.SetSession(ctx, map[string]string{repo.KeyDraft: ""}))
	restored, err := env.NewController(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, restored.State().ID)
	assert.Equal(t, "fuite", restored.State().Entries[0].Comment)

	require.NoError(t, env.Repo.SetSession(ctx, map[string]string{repo.KeyDraft: "gone"}))
	restored, err = env.NewController(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, restored.State().ID)
}

func TestSectorChangeFollowsSession(t *testing.T) {
	ctx := context.Background()
	env := openTestEnv(t, t.TempDir(), &fakeBackend{})
	defer env.Close()
	require.NoError(t, env.Session.SetSector(domain.SectorACV))
	c, err := env.NewController(ctx)
	require.NoError(t, err)
	require.NoError(t, env.SaveDraft(ctx, c))

	require.NoError(t, env.Session.SetSector(domain.SectorACE))
	c, err = env.NewController(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SectorACE, c.State().Sector)
}

func TestSubmitReplacesStoredDraft(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	env := openTestEnv(t, t.TempDir(), b)
	defer env.Close()
	require.NoError(t, env.Session.SetSector(domain.SectorACV))

	c, err := env.NewController(ctx)
	require.NoError(t, err)
	require.NoError(t, c.DispatchEntries(ctx, draft.EntryAction{Type: draft.ActionUpdate, Index: 0, Field: draft.FieldMachine, Value: "C283"}))
	require.NoError(t, c.DispatchEntries(ctx, draft.EntryAction{Type: draft.ActionUpdate, Index: 0, Field: draft.FieldComment, Value: "Fuite"}))
	require.NoError(t, env.SaveDraft(ctx, c))
	oldID := c.State().ID

	report, err := env.Submit(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, report.ID)
	require.Len(t, b.created, 1)

	_, err = env.Repo.LoadDraft(ctx, oldID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.NotEqual(t, oldID, c.State().ID)
	assert.Equal(t, domain.SectorACV, c.State().Sector)

	submitted, err := env.Repo.ListEvents(ctx, repo.EventFilter{Type: "report.submitted"})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "1", submitted[0].EntityID)
}
