package draft

import (
	"sort"

	"lubereport/internal/domain"
)

// HeavyReading is the form state of one heavy machine. Which measurement
// fields are shown depends on the machine's catalog type.
type HeavyReading struct {
	Pression    string   `json:"pression,omitempty"`
	Temperature string   `json:"temperature,omitempty"`
	Heure       string   `json:"heure,omitempty"`
	Vidange     string   `json:"vidange,omitempty"`
	Circulation bool     `json:"circulation,omitempty"`
	Niveau      bool     `json:"niveau,omitempty"`
	RAS         bool     `json:"ras,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Meaningful reports whether any field of the reading is filled in.
func (r HeavyReading) Meaningful() bool {
	return r.Pression != "" || r.Temperature != "" || r.Heure != "" || r.Vidange != "" ||
		r.Circulation || r.Niveau || r.RAS || r.Comment != "" || len(r.Images) > 0
}

// HeavyChanges is a partial update; nil fields are left as they are.
type HeavyChanges struct {
	Pression    *string  `json:"pression,omitempty"`
	Temperature *string  `json:"temperature,omitempty"`
	Heure       *string  `json:"heure,omitempty"`
	Vidange     *string  `json:"vidange,omitempty"`
	Circulation *bool    `json:"circulation,omitempty"`
	Niveau      *bool    `json:"niveau,omitempty"`
	RAS         *bool    `json:"ras,omitempty"`
	Comment     *string  `json:"comment,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// HeavyData maps a machine tag to its reading for the current draft.
type HeavyData map[string]HeavyReading

// Set merges changes into the reading of tag and returns the new mapping.
// While ras is set the comment is cleared and cannot be written.
func (d HeavyData) Set(tag string, c HeavyChanges) HeavyData {
	next := d.clone()
	r := next[tag]
	if c.Pression != nil {
		r.Pression = *c.Pression
	}
	if c.Temperature != nil {
		r.Temperature = *c.Temperature
	}
	if c.Heure != nil {
		r.Heure = *c.Heure
	}
	if c.Vidange != nil {
		r.Vidange = *c.Vidange
	}
	if c.Circulation != nil {
		r.Circulation = *c.Circulation
	}
	if c.Niveau != nil {
		r.Niveau = *c.Niveau
	}
	if c.RAS != nil {
		r.RAS = *c.RAS
	}
	if c.Comment != nil && !r.RAS {
		r.Comment = *c.Comment
	}
	if c.Images != nil {
		r.Images = c.Images
	}
	if r.RAS {
		r.Comment = ""
	}
	next[tag] = r
	return next
}

// AllRAS reports whether every tag is marked nothing-to-report.
func (d HeavyData) AllRAS(tags []string) bool {
	if len(tags) == 0 {
		return false
	}
	for _, tag := range tags {
		if !d[tag].RAS {
			return false
		}
	}
	return true
}

// ToggleAllRAS flips the whole catalog at once: if every tag is RAS they are
// all cleared, otherwise they are all set. Comments are cleared either way.
func (d HeavyData) ToggleAllRAS(tags []string) HeavyData {
	target := !d.AllRAS(tags)
	next := d.clone()
	for _, tag := range tags {
		r := next[tag]
		r.RAS = target
		r.Comment = ""
		next[tag] = r
	}
	return next
}

// Meaningful reports whether at least one reading carries data.
func (d HeavyData) Meaningful() bool {
	for _, r := range d {
		if r.Meaningful() {
			return true
		}
	}
	return false
}

// Tags returns the tags present in the mapping, sorted.
func (d HeavyData) Tags() []string {
	tags := make([]string, 0, len(d))
	for tag := range d {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Entries normalizes the mapping into wire records. Unset and false values
// become null.
func (d HeavyData) Entries() []domain.HeavyEntry {
	out := make([]domain.HeavyEntry, 0, len(d))
	for _, tag := range d.Tags() {
		r := d[tag]
		images := r.Images
		if images == nil {
			images = []string{}
		}
		out = append(out, domain.HeavyEntry{
			MachineTag:          tag,
			Pression:            domain.MeasurePtr(r.Pression),
			Temperature:         domain.MeasurePtr(r.Temperature),
			Heure:               domain.StringPtr(r.Heure),
			VidangeDate:         domain.StringPtr(r.Vidange),
			ControleEau:         domain.FlagPtr(r.Circulation),
			ControleNiveauHuile: domain.FlagPtr(r.Niveau),
			Observation:         domain.StringPtr(r.Comment),
			Images:              images,
		})
	}
	return out
}

// HeavyDataFromEntries rebuilds the mapping from persisted records.
func HeavyDataFromEntries(entries []domain.HeavyEntry) HeavyData {
	d := make(HeavyData, len(entries))
	for _, e := range entries {
		images := e.Images
		if images == nil {
			images = []string{}
		}
		d[e.MachineTag] = HeavyReading{
			Pression:    e.Pression.String(),
			Temperature: e.Temperature.String(),
			Heure:       domain.Deref(e.Heure),
			Vidange:     domain.Deref(e.VidangeDate),
			Circulation: e.ControleEau.True(),
			Niveau:      e.ControleNiveauHuile.True(),
			Comment:     domain.Deref(e.Observation),
			Images:      images,
		}
	}
	return d
}

func (d HeavyData) clone() HeavyData {
	next := make(HeavyData, len(d))
	for k, v := range d {
		next[k] = v
	}
	return next
}
