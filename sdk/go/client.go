package lubereportsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

// Client is a minimal client of the lubereport HTTP API served by `lr serve`.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Entry is an anomaly row of the draft.
type Entry struct {
	Machine   string   `json:"machine"`
	Comment   string   `json:"comment"`
	Images    []string `json:"images"`
	OutOfTour bool     `json:"out_of_tour,omitempty"`
}

// SafetyEvent is a safety row of the draft.
type SafetyEvent struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// HeavyReading is the form state of one heavy machine.
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

type HeavyMachine struct {
	Tag     string       `json:"tag"`
	Type    string       `json:"type"`
	Reading HeavyReading `json:"reading"`
}

// Draft represents the API draft model (partial).
type Draft struct {
	ID        string         `json:"id"`
	Mode      string         `json:"mode"`
	ReportID  *int64         `json:"report_id,omitempty"`
	Sector    string         `json:"sector"`
	Date      string         `json:"date"`
	Zone      string         `json:"zone"`
	HeavyDay  bool           `json:"heavy_day"`
	HeavyForm bool           `json:"heavy_form"`
	AllRAS    bool           `json:"all_ras"`
	Entries   []Entry        `json:"entries"`
	Safety    []SafetyEvent  `json:"safety"`
	Heavy     []HeavyMachine `json:"heavy"`
}

// HeavyChanges is a partial heavy-machine update; nil fields are kept.
type HeavyChanges struct {
	Pression    *string `json:"pression,omitempty"`
	Temperature *string `json:"temperature,omitempty"`
	Heure       *string `json:"heure,omitempty"`
	Vidange     *string `json:"vidange,omitempty"`
	Circulation *bool   `json:"circulation,omitempty"`
	Niveau      *bool   `json:"niveau,omitempty"`
	RAS         *bool   `json:"ras,omitempty"`
	Comment     *string `json:"comment,omitempty"`
}

// Report is a persisted report as returned after submit (partial).
type Report struct {
	ID     *int64 `json:"id,omitempty"`
	Sector string `json:"sector"`
	Tour   string `json:"tour"`
	Date   string `json:"date"`
}

// ReportItem is one row of the report listing.
type ReportItem struct {
	Report  Report          `json:"report"`
	Badges  map[string]int  `json:"badges"`
	Actions map[string]bool `json:"actions"`
}

// ReportFilter scopes the report listing.
type ReportFilter struct {
	Sort   string `url:"sort,omitempty"`
	Sector string `url:"sector,omitempty"`
	From   string `url:"from,omitempty"`
	To     string `url:"to,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the error code of the envelope
// when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SetSector switches the active sector of the served workspace.
func (c *Client) SetSector(ctx context.Context, sector string) error {
	return c.do(ctx, http.MethodPut, "session/sector", nil, map[string]string{"sector": sector}, nil)
}

// Draft returns the current draft.
func (c *Client) Draft(ctx context.Context) (Draft, error) {
	var resp Draft
	err := c.do(ctx, http.MethodGet, "draft", nil, nil, &resp)
	return resp, err
}

// NewDraft starts an empty draft; date is YYYY-MM-DD or empty for today.
func (c *Client) NewDraft(ctx context.Context, date string) (Draft, error) {
	body := map[string]any{}
	if date != "" {
		body["date"] = date
	}
	var resp Draft
	err := c.do(ctx, http.MethodPost, "draft/new", nil, body, &resp)
	return resp, err
}

// EntryAction applies an anomaly row action (ADD, ADD_OUT_OF_TOUR, UPDATE,
// REMOVE or RESET).
func (c *Client) EntryAction(ctx context.Context, action string, index int, field string, value any) (Draft, error) {
	body := map[string]any{"type": action, "index": index}
	if field != "" {
		body["field"] = field
		body["value"] = value
	}
	var resp Draft
	err := c.do(ctx, http.MethodPost, "draft/entries", nil, body, &resp)
	return resp, err
}

// SafetyAction applies a safety row action.
func (c *Client) SafetyAction(ctx context.Context, action string, index int, field string, value any) (Draft, error) {
	body := map[string]any{"type": action, "index": index}
	if field != "" {
		body["field"] = field
		body["value"] = value
	}
	var resp Draft
	err := c.do(ctx, http.MethodPost, "draft/safety", nil, body, &resp)
	return resp, err
}

// SetHeavy merges changes into the reading of one heavy machine.
func (c *Client) SetHeavy(ctx context.Context, tag string, changes HeavyChanges) (Draft, error) {
	var resp Draft
	err := c.do(ctx, http.MethodPatch, "draft/heavy/"+url.PathEscape(tag), nil, changes, &resp)
	return resp, err
}

// Submit creates or updates the report behind the draft.
func (c *Client) Submit(ctx context.Context) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "draft/submit", nil, nil, &resp)
	return resp, err
}

// Reports returns the report listing.
func (c *Client) Reports(ctx context.Context, f ReportFilter) ([]ReportItem, error) {
	var resp struct {
		Items []ReportItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "reports", f, nil, &resp)
	return resp.Items, err
}

// DeleteReport deletes a report of the active sector.
func (c *Client) DeleteReport(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("reports/%d", id), struct {
		Confirm bool `url:"confirm"`
	}{true}, nil, nil)
}

// ReportPDF downloads the PDF export of a report.
func (c *Client) ReportPDF(ctx context.Context, id int64, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, fmt.Sprintf("reports/%d/pdf", id), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := struct {
		Limit  int    `url:"limit,omitempty"`
		Cursor string `url:"cursor,omitempty"`
	}{limit, cursor}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, "events", params, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, params, body, out any) error {
	resp, err := c.send(ctx, method, endpoint, params, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, params, body any) (*http.Response, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return nil, err
		}
		if q := v.Encode(); q != "" {
			u += "?" + q
		}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(base, "/v0") {
		base += "/v0"
	}
	return base
}
