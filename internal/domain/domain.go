package domain

import "time"

// Sector identifies one of the two plant zones.
type Sector string

const (
	SectorACV Sector = "AC/V"
	SectorACE Sector = "AC/E"
)

// Sectors lists every known sector in display order.
var Sectors = []Sector{SectorACV, SectorACE}

func (s Sector) Valid() bool {
	return s == SectorACV || s == SectorACE
}

func (s Sector) String() string { return string(s) }

// AnomalyEntry is one anomaly row of a report draft, as sent to the backend.
type AnomalyEntry struct {
	Machine   string   `json:"machine"`
	Comment   string   `json:"comment"`
	Images    []string `json:"images"`
	OutOfTour bool     `json:"out_of_tour,omitempty"`
}

// Valid reports whether the row can be counted and exported.
func (e AnomalyEntry) Valid() bool {
	return e.Machine != "" && e.Comment != ""
}

// EntryRecord is an anomaly row as persisted by the backend.
type EntryRecord struct {
	ID         int64    `json:"id,omitempty"`
	MachineTag string   `json:"machine_tag"`
	Comment    string   `json:"comment"`
	Images     []string `json:"images"`
	Image      string   `json:"image,omitempty"`
	OutOfTour  Flag     `json:"out_of_tour"`
}

// Classic reports whether the record is a valid on-tour anomaly.
func (e EntryRecord) Classic() bool {
	return !bool(e.OutOfTour) && e.MachineTag != "" && e.Comment != ""
}

// SafetyEvent is a safety observation; the same shape is used on the wire
// in both directions. Image carries the legacy single-photo field.
type SafetyEvent struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Image       string   `json:"image,omitempty"`
}

func (e SafetyEvent) Valid() bool {
	return e.Type != "" && e.Description != ""
}

// SafetyTypes is the fixed safety event taxonomy.
var SafetyTypes = []string{
	"Atteinte corporelle",
	"Comportement à risque",
	"Électrique",
	"EPI",
	"Infrastructure",
	"Logistique",
	"Levage",
	"Sécurité machine",
	"Pollution",
	"Produits chimiques",
	"Incendie",
	"Sécurité procédé",
	"Travaux extérieurs",
	"Autre",
}

// IsSafetyType reports whether t belongs to the taxonomy.
func IsSafetyType(t string) bool {
	for _, s := range SafetyTypes {
		if s == t {
			return true
		}
	}
	return false
}

// HeavyEntry is a heavy-machine reading on the wire. Unset optional fields
// are nil and marshal to null; they are never omitted.
type HeavyEntry struct {
	MachineTag          string   `json:"machine_tag"`
	Pression            *Measure `json:"pression"`
	Temperature         *Measure `json:"temperature"`
	Heure               *string  `json:"heure"`
	VidangeDate         *string  `json:"vidange_date"`
	ControleEau         *Flag    `json:"controle_eau"`
	ControleNiveauHuile *Flag    `json:"controle_niveau_huile"`
	Observation         *string  `json:"observation"`
	Images              []string `json:"images"`
	Image               string   `json:"image,omitempty"`
}

// HasMeasures reports whether at least one measurement or the observation is set.
func (h HeavyEntry) HasMeasures() bool {
	return h.Pression.Present() ||
		h.Temperature.Present() ||
		nonEmpty(h.Heure) ||
		nonEmpty(h.VidangeDate) ||
		h.ControleEau.True() ||
		h.ControleNiveauHuile.True() ||
		nonEmpty(h.Observation)
}

// AnyFieldSet reports whether any field other than the machine tag carries
// a value. Zero readings and unchecked flags sent by the backend count.
func (h HeavyEntry) AnyFieldSet() bool {
	return h.Pression.Set() ||
		h.Temperature.Set() ||
		nonEmpty(h.Heure) ||
		nonEmpty(h.VidangeDate) ||
		h.ControleEau != nil ||
		h.ControleNiveauHuile != nil ||
		nonEmpty(h.Observation) ||
		len(h.Images) > 0 ||
		h.Image != ""
}

func nonEmpty(s *string) bool { return s != nil && *s != "" }

// Report is a persisted daily report.
type Report struct {
	ID           *int64        `json:"id,omitempty"`
	Sector       Sector        `json:"sector"`
	Tour         string        `json:"tour"`
	Date         time.Time     `json:"date"`
	Entries      []EntryRecord `json:"entries"`
	SafetyEvents []SafetyEvent `json:"safetyEvents"`
	HeavyEntries []HeavyEntry  `json:"heavyEntries"`
}

// ReportDraft is the create/update request body. HeavyEntries is nil on
// classical days and then serializes to null.
type ReportDraft struct {
	Sector       Sector         `json:"sector"`
	Tour         string         `json:"tour"`
	Date         time.Time      `json:"date"`
	Entries      []AnomalyEntry `json:"entries"`
	SafetyEvents []SafetyEvent  `json:"safetyEvents"`
	HeavyEntries []HeavyEntry   `json:"heavyEntries"`
}

// MachineType selects which inputs the heavy-machine form shows for a tag.
type MachineType string

const (
	MachineP211      MachineType = "p211"
	MachineVidange   MachineType = "vidange"
	MachineControle  MachineType = "controle"
	MachinePression  MachineType = "pression"
	MachineClassique MachineType = "classique"
)

func (t MachineType) Valid() bool {
	switch t {
	case MachineP211, MachineVidange, MachineControle, MachinePression, MachineClassique:
		return true
	}
	return false
}

// Fields returns the subtype-specific reading fields. Every subtype also
// carries ras, comment and images.
func (t MachineType) Fields() []string {
	switch t {
	case MachineP211:
		return []string{"pression", "temperature", "heure"}
	case MachineVidange:
		return []string{"vidange"}
	case MachineControle:
		return []string{"circulation", "niveau"}
	case MachinePression:
		return []string{"pression"}
	default:
		return nil
	}
}

// CatalogMachine is one entry of a sector's heavy-machine catalog.
type CatalogMachine struct {
	Tag  string      `json:"tag" yaml:"tag"`
	Type MachineType `json:"type" yaml:"type"`
}

// Machine is a machine of the patrol route returned by the backend.
type Machine struct {
	ID         int64  `json:"id"`
	MachineTag string `json:"machine_tag"`
	TourID     int64  `json:"tour_id"`
}

type Tour struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}

type Profile struct {
	ID       int64  `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// NewUser is the admin create-user body.
type NewUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// MachineHistory lists past findings for one machine tag.
type MachineHistory struct {
	Classical []HistoryEntry `json:"classical"`
	Heavy     []HeavyHistory `json:"heavy"`
}

type HistoryEntry struct {
	Date      time.Time `json:"date"`
	Sector    string    `json:"sector"`
	Comment   string    `json:"comment"`
	OutOfTour Flag      `json:"out_of_tour"`
}

type HeavyHistory struct {
	Date time.Time `json:"date"`
	HeavyEntry
}

// AdminReportPage is one page of the admin aggregate listing.
type AdminReportPage struct {
	Data  []Report `json:"data"`
	Pages int      `json:"pages"`
	Total int      `json:"total"`
}

type MachineCount struct {
	MachineTag string `json:"machine_tag"`
	Count      int    `json:"count"`
}

type ZoneCount struct {
	Zone  string `json:"zone"`
	Count int    `json:"count"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type DailyPoint struct {
	Date      string `json:"date"`
	Anomalies int    `json:"anomalies"`
	Safety    int    `json:"safety"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Stats is the precomputed aggregate returned by /stats.
type Stats struct {
	TopMachines           []MachineCount `json:"topMachines"`
	Zones                 []ZoneCount    `json:"zones"`
	SafetyTypes           []TypeCount    `json:"safetyTypes"`
	DailyEvolution        []DailyPoint   `json:"dailyEvolution"`
	AnomaliesPerMonth     []MonthCount   `json:"anomaliesPerMonth"`
	SafetyPerMonth        []MonthCount   `json:"safetyPerMonth"`
	TotalReports          int            `json:"totalReports"`
	AvgAnomaliesPerReport float64        `json:"avgAnomaliesPerReport"`
	CurrentMonthAnomalies int            `json:"currentMonthAnomalies"`
	PrevMonthAnomalies    int            `json:"prevMonthAnomalies"`
	CurrentMonthSafety    int            `json:"currentMonthSafety"`
	PrevMonthSafety       int            `json:"prevMonthSafety"`
}

// ZoneOfDay is the patrol route resolved for a sector and date. The backend
// sends either zones or an explanatory message.
type ZoneOfDay struct {
	Zones   string `json:"zones"`
	Message string `json:"message"`
}

// Event is one entry of the workspace activity log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// Export records a PDF written from the workspace.
type Export struct {
	ID        int64  `json:"id"`
	ReportID  int64  `json:"report_id"`
	Sector    Sector `json:"sector"`
	FileName  string `json:"file_name"`
	Photos    int    `json:"photos"`
	CreatedAt string `json:"created_at"`
}
