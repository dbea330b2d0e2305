// Package reportlist derives what the report listing shows: order, badge
// counts and which actions a report allows from the active sector.
package reportlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"lubereport/internal/domain"
	"lubereport/internal/session"
)

// ErrNotConfirmed is returned by Delete when the user did not confirm.
var ErrNotConfirmed = errors.New("deletion must be confirmed")

// SortKey orders the listing.
type SortKey string

const (
	DateDesc   SortKey = "date_desc"
	DateAsc    SortKey = "date_asc"
	SectorAsc  SortKey = "sector_asc"
	SectorDesc SortKey = "sector_desc"
)

// SortKeys lists the accepted keys, default first.
var SortKeys = []SortKey{DateDesc, DateAsc, SectorAsc, SectorDesc}

// ParseSortKey maps "" to DateDesc and rejects unknown keys.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return DateDesc, nil
	}
	for _, k := range SortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// Sort returns a sorted copy of reports; the input is left as it is.
func Sort(reports []domain.Report, key SortKey) []domain.Report {
	out := append([]domain.Report(nil), reports...)
	var less func(a, b domain.Report) bool
	switch key {
	case DateAsc:
		less = func(a, b domain.Report) bool { return a.Date.Before(b.Date) }
	case SectorAsc:
		less = func(a, b domain.Report) bool { return a.Sector < b.Sector }
	case SectorDesc:
		less = func(a, b domain.Report) bool { return a.Sector > b.Sector }
	default:
		less = func(a, b domain.Report) bool { return a.Date.After(b.Date) }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Badges are the per-report counters shown in the listing.
type Badges struct {
	Classic   int `json:"classic"`
	OutOfTour int `json:"out_of_tour"`
	Safety    int `json:"safety"`
	Heavy     int `json:"heavy"`
	Photos    int `json:"photos"`
}

// BadgesOf counts a report's records.
func BadgesOf(r domain.Report) Badges {
	var b Badges
	for _, e := range r.Entries {
		if e.Classic() {
			b.Classic++
		}
		if bool(e.OutOfTour) && e.Comment != "" {
			b.OutOfTour++
		}
		b.Photos += photoCount(e.Images, e.Image)
	}
	for _, e := range r.SafetyEvents {
		if e.Valid() {
			b.Safety++
		}
		b.Photos += photoCount(e.Images, e.Image)
	}
	for _, e := range r.HeavyEntries {
		if e.AnyFieldSet() {
			b.Heavy++
		}
		b.Photos += photoCount(e.Images, e.Image)
	}
	return b
}

func photoCount(images []string, legacy string) int {
	if images != nil {
		return len(images)
	}
	if legacy != "" {
		return 1
	}
	return 0
}

// Actions says what the user may do with a report.
type Actions struct {
	Edit      bool `json:"edit"`
	Delete    bool `json:"delete"`
	Duplicate bool `json:"duplicate"`
	View      bool `json:"view"`
	Export    bool `json:"export"`
}

// Permissions allows edit and delete only inside the active sector.
func Permissions(r domain.Report, active domain.Sector) Actions {
	own := active != "" && r.Sector == active
	return Actions{Edit: own, Delete: own, Duplicate: true, View: true, Export: true}
}

// Item is one listing line.
type Item struct {
	Report  domain.Report `json:"report"`
	Badges  Badges        `json:"badges"`
	Actions Actions       `json:"actions"`
}

// Build sorts reports and derives badges and actions for each.
func Build(reports []domain.Report, key SortKey, active domain.Sector) []Item {
	sorted := Sort(reports, key)
	items := make([]Item, 0, len(sorted))
	for _, r := range sorted {
		items = append(items, Item{Report: r, Badges: BadgesOf(r), Actions: Permissions(r, active)})
	}
	return items
}

// Filter narrows the listing. Zero fields match everything; From and To are
// inclusive calendar days.
type Filter struct {
	Sector domain.Sector
	From   time.Time
	To     time.Time
}

// Apply returns the reports matching f, in input order.
func (f Filter) Apply(reports []domain.Report) []domain.Report {
	out := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		if f.Sector != "" && r.Sector != f.Sector {
			continue
		}
		if !f.From.IsZero() && r.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.Date.Before(f.To.AddDate(0, 0, 1)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Deleter removes a persisted report.
type Deleter interface {
	DeleteReport(ctx context.Context, id int64) error
}

// Delete removes r after checking the sector and the confirmation. The
// backend is not called when either check fails.
func Delete(ctx context.Context, d Deleter, r domain.Report, active domain.Sector, confirmed bool) error {
	if !Permissions(r, active).Delete {
		return session.ForbiddenError{Permission: fmt.Sprintf("report.delete in sector %s", r.Sector)}
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if r.ID == nil {
		return fmt.Errorf("report has no id")
	}
	if err := d.DeleteReport(ctx, *r.ID); err != nil {
		return fmt.Errorf("delete report %d: %w", *r.ID, err)
	}
	return nil
}

// RenderTable writes the listing as a text table.
func RenderTable(w io.Writer, items []Item, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Date", "Sector", "Tour", "Anomalies", "Hors tournée", "Sécurité", "Relevés", "Photos", "Actions"})
	for _, it := range items {
		id := ""
		if it.Report.ID != nil {
			id = fmt.Sprint(*it.Report.ID)
		}
		tw.AppendRow(table.Row{
			id,
			it.Report.Date.In(loc).Format("02/01/2006"),
			it.Report.Sector,
			text.Trim(it.Report.Tour, 30),
			it.Badges.Classic,
			it.Badges.OutOfTour,
			it.Badges.Safety,
			it.Badges.Heavy,
			it.Badges.Photos,
			actionLabel(it.Actions),
		})
	}
	tw.Render()
}

func actionLabel(a Actions) string {
	var parts []string
	if a.Edit {
		parts = append(parts, "edit")
	}
	if a.Delete {
		parts = append(parts, "delete")
	}
	if a.Duplicate {
		parts = append(parts, "duplicate")
	}
	if a.Export {
		parts = append(parts, "export")
	}
	return strings.Join(parts, ",")
}
