package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lubereport/internal/domain"
	"lubereport/internal/imageenc"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ZoneOfDay(ctx context.Context, sector domain.Sector, day string) (domain.ZoneOfDay, error) {
	args := m.Called(ctx, sector, day)
	return args.Get(0).(domain.ZoneOfDay), args.Error(1)
}

func (m *mockBackend) Machines(ctx context.Context, sector domain.Sector, day string) ([]domain.Machine, error) {
	args := m.Called(ctx, sector, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Machine), args.Error(1)
}

func (m *mockBackend) CreateReport(ctx context.Context, body domain.ReportDraft) (domain.Report, error) {
	args := m.Called(ctx, body)
	return args.Get(0).(domain.Report), args.Error(1)
}

func (m *mockBackend) UpdateReport(ctx context.Context, id int64, body domain.ReportDraft) (domain.Report, error) {
	args := m.Called(ctx, id, body)
	return args.Get(0).(domain.Report), args.Error(1)
}

var (
	wednesday = time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	monday    = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
)

func testCatalog(sector domain.Sector) []domain.CatalogMachine {
	if sector != domain.SectorACE {
		return nil
	}
	return []domain.CatalogMachine{
		{Tag: "P470A", Type: domain.MachinePression},
		{Tag: "C204", Type: domain.MachineClassique},
	}
}

func newTestController(t *testing.T, backend Backend, now time.Time) *Controller {
	t.Helper()
	return New(backend, Options{
		Catalog:  testCatalog,
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
}

func TestRefreshSetsZoneAndMachines(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	b.On("ZoneOfDay", mock.Anything, domain.SectorACV, "2024-03-06").Return(domain.ZoneOfDay{Zones: "Zone 3"}, nil)
	b.On("Machines", mock.Anything, domain.SectorACV, "2024-03-06").Return([]domain.Machine{{ID: 1, MachineTag: "C283"}}, nil)

	c := newTestController(t, b, wednesday)
	c.SetSector(ctx, domain.SectorACV)

	assert.Equal(t, "Zone 3", c.State().Zone)
	assert.Equal(t, "Zone 3", c.State().Tour)
	require.Len(t, c.Machines(), 1)
	b.AssertExpectations(t)
}

func TestRefreshDegradesOnFailure(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	b.On("ZoneOfDay", mock.Anything, domain.SectorACV, mock.Anything).Return(domain.ZoneOfDay{}, errors.New("boom"))
	b.On("Machines", mock.Anything, domain.SectorACV, mock.Anything).Return(nil, errors.New("boom"))

	c := newTestController(t, b, wednesday)
	c.SetSector(ctx, domain.SectorACV)
	assert.Equal(t, zoneLoadFailed, c.State().Zone)
	assert.Equal(t, "", c.State().Tour)
	assert.Empty(t, c.Machines())
}

func TestRefreshEmptyZone(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	b.On("ZoneOfDay", mock.Anything, mock.Anything, mock.Anything).Return(domain.ZoneOfDay{}, nil)
	b.On("Machines", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Machine{}, nil)

	c := newTestController(t, b, wednesday)
	c.SetSector(ctx, domain.SectorACE)
	assert.Equal(t, zoneUnavailable, c.State().Zone)
}

func TestValidateRequiresMeaningfulRow(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, nil, wednesday)

	var verr *ValidationError
	require.ErrorAs(t, c.Validate(), &verr)
	assert.Equal(t, "Veuillez remplir au moins une ligne.", verr.Message)

	require.NoError(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 0, Field: FieldMachine, Value: "C283"}))
	require.Error(t, c.Validate(), "machine without comment is not enough")

	require.NoError(t, c.DispatchSafety(ctx, SafetyAction{Type: ActionAdd}))
	require.NoError(t, c.DispatchSafety(ctx, SafetyAction{Type: ActionUpdate, Index: 0, Field: FieldType, Value: "EPI"}))
	require.NoError(t, c.DispatchSafety(ctx, SafetyAction{Type: ActionUpdate, Index: 0, Field: FieldDescription, Value: "gants"}))
	assert.NoError(t, c.Validate())
}

func TestValidateHeavyDayUsesHeavyForm(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, nil, monday)
	c.state.Sector = domain.SectorACE
	require.True(t, c.ShowHeavyForm())

	require.NoError(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 0, Field: FieldMachine, Value: "C204"}))
	require.NoError(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 0, Field: FieldComment, Value: "fuite"}))
	require.Error(t, c.Validate(), "classic rows are hidden on heavy days")

	require.NoError(t, c.SetHeavy(ctx, "P470A", HeavyChanges{Pression: ptr("4")}))
	assert.NoError(t, c.Validate())
}

func TestDispatchGuardsIndexes(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, nil, wednesday)
	assert.ErrorIs(t, c.DispatchEntries(ctx, EntryAction{Type: ActionRemove, Index: 0}), ErrLastRow)
	assert.ErrorIs(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 3}), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.DispatchSafety(ctx, SafetyAction{Type: ActionRemove, Index: 0}), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.SetHeavy(ctx, "NOPE", HeavyChanges{}), ErrUnknownMachine)
}

func TestSubmitClassicDayPostsOnce(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	var sent domain.ReportDraft
	b.On("CreateReport", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(domain.ReportDraft) }).
		Return(domain.Report{Sector: domain.SectorACV}, nil).Once()

	var submitted int
	c := New(b, Options{
		Catalog:     testCatalog,
		Location:    time.UTC,
		Now:         func() time.Time { return wednesday },
		OnSubmitted: func(domain.Report) { submitted++ },
	})
	c.state.Sector = domain.SectorACV
	require.NoError(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 0, Field: FieldMachine, Value: "C283"}))
	require.NoError(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 0, Field: FieldComment, Value: "fuite huile"}))

	_, err := c.Submit(ctx)
	require.NoError(t, err)
	b.AssertNumberOfCalls(t, "CreateReport", 1)
	b.AssertNotCalled(t, "UpdateReport", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, sent.Entries, 1)
	assert.Nil(t, sent.HeavyEntries)
	assert.Equal(t, 1, submitted)

	assert.Equal(t, InitialEntries(), c.State().Entries)
	assert.Empty(t, c.State().Safety)
	assert.Equal(t, domain.SectorACV, c.State().Sector)
}

func TestSubmitHeavyDaySendsSortedEntries(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	var sent domain.ReportDraft
	b.On("CreateReport", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(domain.ReportDraft) }).
		Return(domain.Report{}, nil)

	c := newTestController(t, b, monday)
	c.state.Sector = domain.SectorACE
	c.ToggleAllRAS(ctx)

	_, err := c.Submit(ctx)
	require.NoError(t, err)
	require.Len(t, sent.HeavyEntries, 2)
	assert.Equal(t, "C204", sent.HeavyEntries[0].MachineTag)
	assert.Equal(t, "P470A", sent.HeavyEntries[1].MachineTag)
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	b.On("UpdateReport", mock.Anything, int64(7), mock.Anything).Return(domain.Report{}, errors.New("500"))
	b.On("ZoneOfDay", mock.Anything, mock.Anything, mock.Anything).Return(domain.ZoneOfDay{Zones: "Zone 1"}, nil).Maybe()
	b.On("Machines", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Machine{}, nil).Maybe()

	c := newTestController(t, b, wednesday)
	id := int64(7)
	c.Load(ctx, domain.Report{
		ID:     &id,
		Sector: domain.SectorACV,
		Tour:   "Zone 1",
		Date:   wednesday,
		Entries: []domain.EntryRecord{
			{MachineTag: "C283", Comment: "bruit", OutOfTour: true},
		},
	}, ModeEdit)
	before := c.State()

	_, err := c.Submit(ctx)
	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.Update)
	assert.Equal(t, before, c.State())
}

func TestLoadDuplicateStripsID(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, nil, wednesday)
	id := int64(3)
	report := domain.Report{
		ID:     &id,
		Sector: domain.SectorACE,
		Tour:   "Zone 2",
		Date:   monday,
		Entries: []domain.EntryRecord{
			{MachineTag: "C204", Comment: "usure", OutOfTour: true},
		},
		SafetyEvents: []domain.SafetyEvent{{Type: "EPI", Description: "casque"}},
		HeavyEntries: []domain.HeavyEntry{{MachineTag: "P470A", Pression: domain.MeasurePtr("5")}},
	}

	c.Load(ctx, report, ModeDuplicate)
	s := c.State()
	assert.Nil(t, s.ReportID)
	assert.Equal(t, ModeDuplicate, s.Mode)
	assert.Equal(t, "Zone 2", s.Tour)
	assert.Equal(t, monday, s.Date)
	require.Len(t, s.Entries, 1)
	assert.True(t, s.Entries[0].OutOfTour)
	assert.Equal(t, []string{}, s.Entries[0].Images)
	require.Len(t, s.Safety, 1)
	assert.Equal(t, "5", s.Heavy["P470A"].Pression)

	c.Load(ctx, report, ModeEdit)
	require.NotNil(t, c.State().ReportID)
	assert.Equal(t, int64(3), *c.State().ReportID)
}

func TestLoadRefreshesForReportDay(t *testing.T) {
	ctx := context.Background()
	b := &mockBackend{}
	b.On("ZoneOfDay", mock.Anything, domain.SectorACV, "2024-03-04").Return(domain.ZoneOfDay{Zones: "Zone 5"}, nil)
	b.On("Machines", mock.Anything, domain.SectorACV, "2024-03-04").Return([]domain.Machine{{ID: 4, MachineTag: "B12"}, {ID: 5, MachineTag: "B13"}}, nil)

	c := newTestController(t, b, wednesday)
	id := int64(9)
	c.Load(ctx, domain.Report{
		ID:      &id,
		Sector:  domain.SectorACV,
		Tour:    "Zone 4",
		Date:    monday,
		Entries: []domain.EntryRecord{{MachineTag: "B12", Comment: "fuite"}},
	}, ModeEdit)

	s := c.State()
	assert.Equal(t, "Zone 5", s.Zone)
	assert.Equal(t, "Zone 4", s.Tour)
	require.Len(t, c.Machines(), 2)
	assert.Equal(t, "B12", c.Machines()[0].MachineTag)
	b.AssertExpectations(t)

	b2 := &mockBackend{}
	b2.On("ZoneOfDay", mock.Anything, mock.Anything, mock.Anything).Return(domain.ZoneOfDay{}, errors.New("down"))
	b2.On("Machines", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	c = newTestController(t, b2, wednesday)
	c.Load(ctx, domain.Report{ID: &id, Sector: domain.SectorACV, Tour: "Zone 4", Date: monday}, ModeEdit)
	assert.Equal(t, "Zone 4", c.State().Tour)
	assert.Empty(t, c.Machines())
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, nil, wednesday)
	require.NoError(t, c.DispatchEntries(ctx, EntryAction{Type: ActionUpdate, Index: 0, Field: FieldComment, Value: "note"}))
	data, err := c.Snapshot()
	require.NoError(t, err)

	other := newTestController(t, nil, monday)
	require.NoError(t, other.Restore(data))
	assert.Equal(t, "note", other.State().Entries[0].Comment)
	assert.True(t, other.State().Date.Equal(wednesday))
}

func TestAttachImages(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, nil, monday)
	c.state.Sector = domain.SectorACE

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	files := []imageenc.File{imageenc.FromBytes("a.png", png), imageenc.FromBytes("b.txt", []byte("hello"))}

	n, err := c.AttachImages(ctx, Target{Kind: TargetEntry, Index: 0}, files)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, c.State().Entries[0].Images, 1)
	assert.Contains(t, c.State().Entries[0].Images[0], "data:image/png;base64,")

	n, err = c.AttachImages(ctx, Target{Kind: TargetHeavy, Tag: "C204"}, files[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, c.State().Heavy["C204"].Images, 1)

	_, err = c.AttachImages(ctx, Target{Kind: TargetSafety, Index: 0}, files)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
