package server

import (
	"context"
	"encoding/json"

	"lubereport/internal/domain"
	"lubereport/internal/draft"
	"lubereport/internal/reportlist"
	"lubereport/internal/session"
	"lubereport/internal/stats"
)

// Request payloads

type SetSectorRequest struct {
	Sector domain.Sector `json:"sector" enum:"AC/V,AC/E"`
}

type NewDraftRequest struct {
	Sector *domain.Sector `json:"sector,omitempty" enum:"AC/V,AC/E"`
	Date   *string        `json:"date,omitempty" format:"date"`
}

type EntryActionRequest struct {
	Type  draft.ActionType `json:"type" enum:"ADD,ADD_OUT_OF_TOUR,UPDATE,REMOVE,RESET"`
	Index int              `json:"index,omitempty"`
	Field string           `json:"field,omitempty" enum:"machine,comment,out_of_tour"`
	Value any              `json:"value,omitempty"`
}

type SafetyActionRequest struct {
	Type  draft.ActionType `json:"type" enum:"ADD,UPDATE,REMOVE,RESET"`
	Index int              `json:"index,omitempty"`
	Field string           `json:"field,omitempty" enum:"type,description"`
	Value any              `json:"value,omitempty"`
}

type ImageUpload struct {
	Name string `json:"name"`
	Data []byte `json:"data" contentEncoding:"base64"`
}

type AttachImagesRequest struct {
	Target draft.Target  `json:"target"`
	Files  []ImageUpload `json:"files" minItems:"1"`
}

// Responses

type SessionResponse struct {
	Sector   domain.Sector  `json:"sector"`
	Profile  domain.Profile `json:"profile"`
	LoggedIn bool           `json:"logged_in"`
}

type HeavyMachineResponse struct {
	Tag     string             `json:"tag"`
	Type    domain.MachineType `json:"type"`
	Reading draft.HeavyReading `json:"reading"`
}

type DraftResponse struct {
	ID        string                 `json:"id"`
	Mode      draft.Mode             `json:"mode"`
	ReportID  *int64                 `json:"report_id,omitempty"`
	Sector    domain.Sector          `json:"sector"`
	Date      string                 `json:"date" format:"date"`
	Tour      string                 `json:"tour"`
	Zone      string                 `json:"zone"`
	HeavyDay  bool                   `json:"heavy_day"`
	HeavyForm bool                   `json:"heavy_form"`
	AllRAS    bool                   `json:"all_ras"`
	Entries   []domain.AnomalyEntry  `json:"entries"`
	Safety    []domain.SafetyEvent   `json:"safety"`
	Heavy     []HeavyMachineResponse `json:"heavy"`
	Machines  []domain.Machine       `json:"machines"`
}

type AttachImagesResponse struct {
	Attached int           `json:"attached"`
	Draft    DraftResponse `json:"draft"`
}

type ToggleRASResponse struct {
	RAS   bool          `json:"ras"`
	Draft DraftResponse `json:"draft"`
}

type ReportListResponse struct {
	Items []reportlist.Item  `json:"items"`
	Sort  reportlist.SortKey `json:"sort"`
}

type StatsResponse struct {
	Stats   domain.Stats          `json:"stats"`
	Summary stats.Summary         `json:"summary"`
	Keyword []domain.MachineCount `json:"keyword,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func sessionResponse(ctx context.Context, s session.State) SessionResponse {
	res := SessionResponse{Sector: s.Sector, Profile: s.Profile, LoggedIn: s.LoggedIn()}
	if p, ok := principalFromContext(ctx); ok {
		res.Profile = domain.Profile{ID: p.UserID, Username: p.Username, Role: p.Role}
		res.LoggedIn = true
	}
	return res
}

func draftResponse(c *draft.Controller) DraftResponse {
	s := c.State()
	res := DraftResponse{
		ID:        s.ID,
		Mode:      s.Mode,
		ReportID:  s.ReportID,
		Sector:    s.Sector,
		Date:      s.Date.Format("2006-01-02"),
		Tour:      s.Tour,
		Zone:      s.Zone,
		HeavyDay:  c.IsHeavyDay(),
		HeavyForm: c.ShowHeavyForm(),
		Entries:   make([]domain.AnomalyEntry, 0, len(s.Entries)),
		Safety:    make([]domain.SafetyEvent, 0, len(s.Safety)),
		Heavy:     []HeavyMachineResponse{},
		Machines:  c.Machines(),
	}
	for _, e := range s.Entries {
		res.Entries = append(res.Entries, *e)
	}
	for _, e := range s.Safety {
		res.Safety = append(res.Safety, *e)
	}
	if res.Machines == nil {
		res.Machines = []domain.Machine{}
	}
	catalog := c.Catalog()
	tags := make([]string, 0, len(catalog))
	for _, m := range catalog {
		tags = append(tags, m.Tag)
		res.Heavy = append(res.Heavy, HeavyMachineResponse{Tag: m.Tag, Type: m.Type, Reading: s.Heavy[m.Tag]})
	}
	res.AllRAS = s.Heavy.AllRAS(tags)
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
