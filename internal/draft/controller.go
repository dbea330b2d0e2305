package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lubereport/internal/domain"
	"lubereport/internal/imageenc"
)

const (
	zoneUnavailable = "Données non disponibles"
	zoneLoadFailed  = "Erreur de chargement de la zone."
	emptyDraftMsg   = "Veuillez remplir au moins une ligne."
)

// Backend is the part of the REST API the form needs.
type Backend interface {
	ZoneOfDay(ctx context.Context, sector domain.Sector, day string) (domain.ZoneOfDay, error)
	Machines(ctx context.Context, sector domain.Sector, day string) ([]domain.Machine, error)
	CreateReport(ctx context.Context, body domain.ReportDraft) (domain.Report, error)
	UpdateReport(ctx context.Context, id int64, body domain.ReportDraft) (domain.Report, error)
}

// Mode tells whether the draft creates, edits or duplicates a report.
type Mode string

const (
	ModeNew       Mode = "new"
	ModeEdit      Mode = "edit"
	ModeDuplicate Mode = "duplicate"
)

// State is the serializable content of an open form.
type State struct {
	ID       string                 `json:"id"`
	Mode     Mode                   `json:"mode"`
	ReportID *int64                 `json:"report_id,omitempty"`
	Sector   domain.Sector          `json:"sector"`
	Date     time.Time              `json:"date"`
	Tour     string                 `json:"tour"`
	Zone     string                 `json:"zone"`
	Entries  []*domain.AnomalyEntry `json:"entries"`
	Safety   []*domain.SafetyEvent  `json:"safety"`
	Heavy    HeavyData              `json:"heavy"`
}

// Options configures a Controller.
type Options struct {
	Catalog     func(domain.Sector) []domain.CatalogMachine
	HeavyDay    HeavyDayPolicy
	Encoder     imageenc.Encoder
	Location    *time.Location
	Now         func() time.Time
	NewID       func() string
	OnSubmitted func(domain.Report)
	OnChange    func(ctx context.Context, kind string, payload map[string]any)
}

// Controller owns the three draft containers for one open form.
type Controller struct {
	backend  Backend
	opts     Options
	state    State
	machines []domain.Machine
}

// New returns a controller with an empty draft.
func New(backend Backend, opts Options) *Controller {
	if opts.HeavyDay == nil {
		opts.HeavyDay = DefaultHeavyDay
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return "" }
	}
	c := &Controller{backend: backend, opts: opts}
	c.state = c.emptyState("")
	return c
}

func (c *Controller) emptyState(sector domain.Sector) State {
	return State{
		ID:      c.opts.NewID(),
		Mode:    ModeNew,
		Sector:  sector,
		Date:    c.opts.Now().In(c.opts.Location),
		Entries: InitialEntries(),
		Safety:  InitialSafety(),
		Heavy:   HeavyData{},
	}
}

// State returns the current draft.
func (c *Controller) State() State { return c.state }

// Snapshot serializes the draft.
func (c *Controller) Snapshot() ([]byte, error) {
	return json.Marshal(c.state)
}

// Restore replaces the draft with a previously saved snapshot.
func (c *Controller) Restore(data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode draft: %w", err)
	}
	if s.Entries == nil {
		s.Entries = InitialEntries()
	}
	if s.Safety == nil {
		s.Safety = InitialSafety()
	}
	if s.Heavy == nil {
		s.Heavy = HeavyData{}
	}
	if s.Mode == "" {
		s.Mode = ModeNew
	}
	c.state = s
	return nil
}

// Machines returns the route machines fetched for the current sector and date.
func (c *Controller) Machines() []domain.Machine { return c.machines }

// Catalog returns the heavy-machine catalog of the current sector.
func (c *Controller) Catalog() []domain.CatalogMachine {
	if c.opts.Catalog == nil {
		return nil
	}
	return c.opts.Catalog(c.state.Sector)
}

func (c *Controller) catalogTags() []string {
	catalog := c.Catalog()
	tags := make([]string, 0, len(catalog))
	for _, m := range catalog {
		tags = append(tags, m.Tag)
	}
	return tags
}

// IsHeavyDay reports whether the draft date is a heavy-machine round.
func (c *Controller) IsHeavyDay() bool {
	return c.opts.HeavyDay(c.state.Date.In(c.opts.Location))
}

// ShowHeavyForm reports whether the heavy-machine form replaces the
// classical anomaly table.
func (c *Controller) ShowHeavyForm() bool {
	return c.IsHeavyDay() && c.state.Sector != ""
}

func (c *Controller) day() string {
	return c.state.Date.In(c.opts.Location).Format("2006-01-02")
}

// SetSector switches sector and reloads the zone and machine list.
func (c *Controller) SetSector(ctx context.Context, sector domain.Sector) {
	c.state.Sector = sector
	c.changed(ctx, "draft.sector", map[string]any{"sector": sector})
	c.Refresh(ctx)
}

// SetDate changes the report date and reloads the zone and machine list.
func (c *Controller) SetDate(ctx context.Context, day time.Time) {
	c.state.Date = day.In(c.opts.Location)
	c.changed(ctx, "draft.date", map[string]any{"date": c.day()})
	c.Refresh(ctx)
}

// Refresh fetches the zone of the day and the route machines. Failures
// never block the form: the zone shows an error text and the machine list
// stays empty.
func (c *Controller) Refresh(ctx context.Context) {
	if c.state.Sector == "" || c.backend == nil {
		return
	}
	logger := zerolog.Ctx(ctx).With().Str("sector", string(c.state.Sector)).Str("day", c.day()).Logger()

	zone, err := c.backend.ZoneOfDay(ctx, c.state.Sector, c.day())
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("zone of the day unavailable")
		c.state.Zone = zoneLoadFailed
		c.state.Tour = ""
	case zone.Zones != "":
		c.state.Zone = zone.Zones
		c.state.Tour = zone.Zones
	case zone.Message != "":
		c.state.Zone = zone.Message
		c.state.Tour = zone.Message
	default:
		c.state.Zone = zoneUnavailable
		c.state.Tour = ""
	}

	machines, err := c.backend.Machines(ctx, c.state.Sector, c.day())
	if err != nil {
		logger.Warn().Err(err).Msg("machine list unavailable")
		c.machines = nil
		return
	}
	c.machines = machines
}

// Load rebuilds the draft from a persisted report. Edit keeps the report id
// so that submit updates it; duplicate drops it so that submit creates a
// new report. The zone and machine list are refetched for the report's day
// while the persisted tour is kept.
func (c *Controller) Load(ctx context.Context, report domain.Report, mode Mode) {
	sector := c.state.Sector
	if sector == "" {
		sector = report.Sector
	}
	s := c.emptyState(sector)
	s.Mode = mode
	if mode == ModeEdit && report.ID != nil {
		id := *report.ID
		s.ReportID = &id
	} else {
		s.Mode = ModeDuplicate
	}

	if len(report.Entries) > 0 {
		rows := make([]*domain.AnomalyEntry, 0, len(report.Entries))
		for _, e := range report.Entries {
			rows = append(rows, &domain.AnomalyEntry{
				Machine:   e.MachineTag,
				Comment:   e.Comment,
				Images:    imagesOrEmpty(e.Images),
				OutOfTour: bool(e.OutOfTour),
			})
		}
		s.Entries = ReduceEntries(s.Entries, EntryAction{Type: ActionInit, Payload: rows})
	}
	if len(report.SafetyEvents) > 0 {
		rows := make([]*domain.SafetyEvent, 0, len(report.SafetyEvents))
		for _, e := range report.SafetyEvents {
			rows = append(rows, &domain.SafetyEvent{
				Type:        e.Type,
				Description: e.Description,
				Images:      imagesOrEmpty(e.Images),
			})
		}
		s.Safety = ReduceSafety(s.Safety, SafetyAction{Type: ActionInit, Payload: rows})
	}
	if len(report.HeavyEntries) > 0 {
		s.Heavy = HeavyDataFromEntries(report.HeavyEntries)
	}
	s.Tour = report.Tour
	s.Zone = report.Tour
	if !report.Date.IsZero() {
		s.Date = report.Date.In(c.opts.Location)
	}
	c.state = s
	c.Refresh(ctx)
	if report.Tour != "" {
		c.state.Tour = report.Tour
	}
	c.changed(ctx, "draft.load", map[string]any{"mode": c.state.Mode, "report_id": c.state.ReportID})
}

// DispatchEntries applies an anomaly action. Indexes are checked here so
// that the reducer itself stays a plain transition.
func (c *Controller) DispatchEntries(ctx context.Context, a EntryAction) error {
	switch a.Type {
	case ActionUpdate:
		if a.Index < 0 || a.Index >= len(c.state.Entries) {
			return ErrIndexOutOfRange
		}
	case ActionRemove:
		if a.Index < 0 || a.Index >= len(c.state.Entries) {
			return ErrIndexOutOfRange
		}
		if len(c.state.Entries) <= 1 {
			return ErrLastRow
		}
	}
	c.state.Entries = ReduceEntries(c.state.Entries, a)
	c.changed(ctx, "draft.entries."+string(a.Type), actionPayload(a.Index, a.Field, a.Value))
	return nil
}

// DispatchSafety applies a safety action.
func (c *Controller) DispatchSafety(ctx context.Context, a SafetyAction) error {
	switch a.Type {
	case ActionUpdate, ActionRemove:
		if a.Index < 0 || a.Index >= len(c.state.Safety) {
			return ErrIndexOutOfRange
		}
	}
	c.state.Safety = ReduceSafety(c.state.Safety, a)
	c.changed(ctx, "draft.safety."+string(a.Type), actionPayload(a.Index, a.Field, a.Value))
	return nil
}

// SetHeavy merges changes into one machine's reading.
func (c *Controller) SetHeavy(ctx context.Context, tag string, changes HeavyChanges) error {
	if !c.inCatalog(tag) {
		return fmt.Errorf("%w: %s", ErrUnknownMachine, tag)
	}
	c.state.Heavy = c.state.Heavy.Set(tag, changes)
	c.changed(ctx, "draft.heavy.set", map[string]any{"tag": tag})
	return nil
}

// ToggleAllRAS marks the whole sector catalog as nothing-to-report, or
// clears it when it already is.
func (c *Controller) ToggleAllRAS(ctx context.Context) bool {
	tags := c.catalogTags()
	c.state.Heavy = c.state.Heavy.ToggleAllRAS(tags)
	all := c.state.Heavy.AllRAS(tags)
	c.changed(ctx, "draft.heavy.toggle_ras", map[string]any{"ras": all})
	return all
}

func (c *Controller) inCatalog(tag string) bool {
	for _, t := range c.catalogTags() {
		if t == tag {
			return true
		}
	}
	return false
}

// TargetKind selects which container receives attached images.
type TargetKind string

const (
	TargetEntry  TargetKind = "entry"
	TargetSafety TargetKind = "safety"
	TargetHeavy  TargetKind = "heavy"
)

// Target addresses one row by index, or one heavy machine by tag.
type Target struct {
	Kind  TargetKind `json:"kind"`
	Index int        `json:"index,omitempty"`
	Tag   string     `json:"tag,omitempty"`
}

// AttachImages encodes files and appends them to the target's images.
// Files that fail to encode are dropped; the number attached is returned.
func (c *Controller) AttachImages(ctx context.Context, target Target, files []imageenc.File) (int, error) {
	switch target.Kind {
	case TargetEntry:
		if target.Index < 0 || target.Index >= len(c.state.Entries) {
			return 0, ErrIndexOutOfRange
		}
	case TargetSafety:
		if target.Index < 0 || target.Index >= len(c.state.Safety) {
			return 0, ErrIndexOutOfRange
		}
	case TargetHeavy:
		if !c.inCatalog(target.Tag) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownMachine, target.Tag)
		}
	default:
		return 0, fmt.Errorf("unknown image target %q", target.Kind)
	}

	encoded := c.opts.Encoder.Encode(ctx, files)
	if len(encoded) == 0 {
		return 0, nil
	}
	switch target.Kind {
	case TargetEntry:
		images := imageenc.Append(c.state.Entries[target.Index].Images, encoded)
		c.state.Entries = ReduceEntries(c.state.Entries, EntryAction{Type: ActionUpdate, Index: target.Index, Field: FieldImages, Value: images})
	case TargetSafety:
		images := imageenc.Append(c.state.Safety[target.Index].Images, encoded)
		c.state.Safety = ReduceSafety(c.state.Safety, SafetyAction{Type: ActionUpdate, Index: target.Index, Field: FieldImages, Value: images})
	case TargetHeavy:
		images := imageenc.Append(c.state.Heavy[target.Tag].Images, encoded)
		c.state.Heavy = c.state.Heavy.Set(target.Tag, HeavyChanges{Images: images})
	}
	c.changed(ctx, "draft.images", map[string]any{"target": target, "count": len(encoded)})
	return len(encoded), nil
}

// Validate checks that the active form mode has at least one meaningful row.
func (c *Controller) Validate() error {
	hasSafety := false
	for _, e := range c.state.Safety {
		if e.Valid() {
			hasSafety = true
			break
		}
	}
	if c.ShowHeavyForm() {
		if !c.state.Heavy.Meaningful() && !hasSafety {
			return &ValidationError{Message: emptyDraftMsg}
		}
		return nil
	}
	hasClassic := false
	for _, e := range c.state.Entries {
		if e.Valid() {
			hasClassic = true
			break
		}
	}
	if !hasClassic && !hasSafety {
		return &ValidationError{Message: emptyDraftMsg}
	}
	return nil
}

// Payload builds the create/update request body.
func (c *Controller) Payload() domain.ReportDraft {
	entries := make([]domain.AnomalyEntry, 0, len(c.state.Entries))
	for _, e := range c.state.Entries {
		row := *e
		row.Images = imagesOrEmpty(row.Images)
		entries = append(entries, row)
	}
	safety := make([]domain.SafetyEvent, 0, len(c.state.Safety))
	for _, e := range c.state.Safety {
		row := *e
		row.Images = imagesOrEmpty(row.Images)
		safety = append(safety, row)
	}
	var heavy []domain.HeavyEntry
	if c.ShowHeavyForm() {
		heavy = c.state.Heavy.Entries()
	}
	return domain.ReportDraft{
		Sector:       c.state.Sector,
		Tour:         c.state.Tour,
		Date:         c.state.Date.UTC(),
		Entries:      entries,
		SafetyEvents: safety,
		HeavyEntries: heavy,
	}
}

// Submit validates the draft and creates or updates the report. On success
// the draft is reset; on failure it is left intact.
func (c *Controller) Submit(ctx context.Context) (domain.Report, error) {
	if err := c.Validate(); err != nil {
		return domain.Report{}, err
	}
	if c.backend == nil {
		return domain.Report{}, &SubmitError{Err: fmt.Errorf("no backend configured")}
	}
	logger := zerolog.Ctx(ctx)
	body := c.Payload()

	var (
		saved domain.Report
		err   error
	)
	update := c.state.ReportID != nil
	if update {
		saved, err = c.backend.UpdateReport(ctx, *c.state.ReportID, body)
	} else {
		saved, err = c.backend.CreateReport(ctx, body)
	}
	if err != nil {
		logger.Error().Err(err).Bool("update", update).Msg("report not saved")
		return domain.Report{}, &SubmitError{Update: update, Err: err}
	}
	logger.Info().Bool("update", update).Str("sector", string(body.Sector)).Msg("report saved")
	c.Reset(ctx)
	if c.opts.OnSubmitted != nil {
		c.opts.OnSubmitted(saved)
	}
	return saved, nil
}

// Reset empties the three containers and moves the date back to today.
// The sector is kept.
func (c *Controller) Reset(ctx context.Context) {
	c.state = c.emptyState(c.state.Sector)
	c.changed(ctx, "draft.reset", nil)
}

func (c *Controller) changed(ctx context.Context, kind string, payload map[string]any) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(ctx, kind, payload)
	}
}

func actionPayload(index int, field string, value any) map[string]any {
	p := map[string]any{"index": index}
	if field != "" {
		p["field"] = field
		if _, isImages := value.([]string); !isImages {
			p["value"] = value
		}
	}
	return p
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
