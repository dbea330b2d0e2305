// Package pdfdoc turns a persisted report into a printable A4 document.
//
// Assemble computes the print plan (sections, ordering, photo list) and is
// pure; Render draws a plan with fpdf.
package pdfdoc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lubereport/internal/domain"
)

const (
	// DefaultTitle is printed when no title is configured.
	DefaultTitle = "Rapport journalier de lubrification"
	bullet       = "   •   "
)

// Row is one line of a two-column table.
type Row struct {
	Key  string
	Text string
}

// HeavySection lists heavy-machine readings. Visible rows carry at least one
// reading; the other tags are summarised in a single R.A.S. sentence.
type HeavySection struct {
	Visible []Row
	RAS     []string
}

// RASLabel is the highlighted prefix of the R.A.S. sentence.
func (h HeavySection) RASLabel() string {
	return fmt.Sprintf("Machines R.A.S. (%d) :", len(h.RAS))
}

// RASSentence is the full R.A.S. line, or "" when every machine has a reading.
func (h HeavySection) RASSentence() string {
	if len(h.RAS) == 0 {
		return ""
	}
	return h.RASLabel() + " " + strings.Join(h.RAS, ", ")
}

// Photo is one appendix page.
type Photo struct {
	Label string
	Data  string
}

// Document is the print plan of one report.
type Document struct {
	Title     string
	Logo      string
	Sector    string
	PrintDate string
	Tour      string
	Classic   []Row
	Heavy     *HeavySection
	OutOfTour []Row
	Safety    []Row
	Photos    []Photo
}

// Options tunes the header.
type Options struct {
	Title    string
	Logo     string
	Location *time.Location
}

// Assemble builds the print plan for report. now is the print date, not the
// report date.
func Assemble(report domain.Report, now time.Time, opts Options) Document {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}
	doc := Document{
		Title:     title,
		Logo:      opts.Logo,
		Sector:    string(report.Sector),
		PrintDate: now.In(loc).Format("02/01/2006"),
	}
	if report.Tour != "" && len(report.HeavyEntries) == 0 {
		doc.Tour = report.Tour
	}

	var classic, outOfTour []domain.EntryRecord
	for _, e := range report.Entries {
		if e.Classic() {
			classic = append(classic, e)
		}
		if e.OutOfTour {
			outOfTour = append(outOfTour, e)
		}
	}
	sortEntries(classic)
	sortEntries(outOfTour)
	for _, e := range classic {
		doc.Classic = append(doc.Classic, Row{Key: e.MachineTag, Text: e.Comment})
	}
	for _, e := range outOfTour {
		doc.OutOfTour = append(doc.OutOfTour, Row{Key: e.MachineTag, Text: e.Comment})
	}

	if len(report.HeavyEntries) > 0 {
		doc.Heavy = heavySection(report.HeavyEntries, loc)
	}

	safety := append([]domain.SafetyEvent(nil), report.SafetyEvents...)
	sort.SliceStable(safety, func(i, j int) bool { return safety[i].Type < safety[j].Type })
	for _, e := range safety {
		doc.Safety = append(doc.Safety, Row{Key: e.Type, Text: e.Description})
	}

	doc.Photos = collectPhotos(report)
	return doc
}

func sortEntries(entries []domain.EntryRecord) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].MachineTag < entries[j].MachineTag })
}

func heavySection(entries []domain.HeavyEntry, loc *time.Location) *HeavySection {
	sorted := append([]domain.HeavyEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MachineTag < sorted[j].MachineTag })

	section := &HeavySection{}
	for _, e := range sorted {
		if !e.HasMeasures() {
			section.RAS = append(section.RAS, e.MachineTag)
			continue
		}
		section.Visible = append(section.Visible, Row{Key: e.MachineTag, Text: heavyText(e, loc)})
	}
	sort.Strings(section.RAS)
	return section
}

// heavyText joins the present readings in a fixed order, then puts the
// observation on its own line.
func heavyText(e domain.HeavyEntry, loc *time.Location) string {
	var parts []string
	if e.Pression.Present() {
		parts = append(parts, "Pression : "+e.Pression.String()+" bar")
	}
	if e.Temperature.Present() {
		parts = append(parts, "Température : "+e.Temperature.String()+" °C")
	}
	if h := domain.Deref(e.Heure); h != "" {
		parts = append(parts, "Heure : "+h)
	}
	if v := domain.Deref(e.VidangeDate); v != "" {
		parts = append(parts, "Vidange : "+frenchDate(v, loc))
	}
	if e.ControleEau.True() {
		parts = append(parts, "Circulation eau : OK")
	}
	if e.ControleNiveauHuile.True() {
		parts = append(parts, "Niveau huile GM : OK")
	}
	var lines []string
	if len(parts) > 0 {
		lines = append(lines, strings.Join(parts, bullet))
	}
	if obs := domain.Deref(e.Observation); obs != "" {
		lines = append(lines, obs)
	}
	return strings.Join(lines, "\n")
}

// frenchDate formats a backend date as dd/mm/yyyy; unparseable values are
// printed as received.
func frenchDate(v string, loc *time.Location) string {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc).Format("02/01/2006")
	}
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return t.Format("02/01/2006")
	}
	return v
}

// collectPhotos walks entries, safety events and heavy entries in that order.
// A record with an images array uses it; otherwise the legacy single image.
func collectPhotos(report domain.Report) []Photo {
	type source struct {
		label  string
		images []string
		image  string
	}
	var sources []source
	for _, e := range report.Entries {
		sources = append(sources, source{label: e.MachineTag, images: e.Images, image: e.Image})
	}
	for _, e := range report.SafetyEvents {
		sources = append(sources, source{label: e.Type, images: e.Images, image: e.Image})
	}
	for _, e := range report.HeavyEntries {
		sources = append(sources, source{label: e.MachineTag, images: e.Images, image: e.Image})
	}

	var photos []Photo
	for i, s := range sources {
		if s.images != nil {
			for j, img := range s.images {
				label := s.label
				if label == "" {
					label = fmt.Sprintf("Photo %d-%d", i+1, j+1)
				}
				photos = append(photos, Photo{Label: label, Data: img})
			}
			continue
		}
		if s.image != "" {
			label := s.label
			if label == "" {
				label = fmt.Sprintf("Photo %d", i+1)
			}
			photos = append(photos, Photo{Label: label, Data: s.image})
		}
	}
	return photos
}

// FileName is the export name: sector and the current date.
func FileName(sector domain.Sector, now time.Time) string {
	s := strings.ReplaceAll(string(sector), "/", "-")
	return fmt.Sprintf("Rapport %s %s.pdf", s, now.Format("2006-01-02"))
}
