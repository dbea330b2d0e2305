// Package api is the HTTP client of the maintenance backend.
package api

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
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lubereport/internal/domain"
)

// Client calls the backend REST API. A zero Timeout means no client-side
// timeout.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DayQuery selects a sector on a given day (YYYY-MM-DD).
type DayQuery struct {
	Sector domain.Sector `url:"sector"`
	Date   string        `url:"date"`
}

// AdminReportsQuery filters the admin aggregate listing.
type AdminReportsQuery struct {
	Page        int           `url:"page,omitempty"`
	Limit       int           `url:"limit,omitempty"`
	Sector      domain.Sector `url:"sector,omitempty"`
	DateFrom    string        `url:"dateFrom,omitempty"`
	DateTo      string        `url:"dateTo,omitempty"`
	AnomalyType string        `url:"anomalyType,omitempty"`
	ExportCSV   int           `url:"exportCsv,omitempty"`
}

// StatsQuery scopes the dashboard aggregates.
type StatsQuery struct {
	Sector  domain.Sector `url:"sector,omitempty"`
	From    string        `url:"from,omitempty"`
	To      string        `url:"to,omitempty"`
	Keyword string        `url:"keyword,omitempty"`
}

// Login exchanges credentials for a bearer token. The token is also kept on
// the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login response carries no token")
	}
	c.Token = resp.Token
	return resp.Token, nil
}

// Me returns the profile behind the current token.
func (c *Client) Me(ctx context.Context) (domain.Profile, error) {
	var resp domain.Profile
	err := c.do(ctx, http.MethodGet, "auth/me", nil, nil, &resp)
	return resp, err
}

// ZoneOfDay resolves the patrol route of a sector on a day.
func (c *Client) ZoneOfDay(ctx context.Context, sector domain.Sector, day string) (domain.ZoneOfDay, error) {
	var resp domain.ZoneOfDay
	err := c.do(ctx, http.MethodGet, "zone-of-the-day", DayQuery{Sector: sector, Date: day}, nil, &resp)
	return resp, err
}

// Machines lists the route machines of a sector on a day.
func (c *Client) Machines(ctx context.Context, sector domain.Sector, day string) ([]domain.Machine, error) {
	var resp []domain.Machine
	err := c.do(ctx, http.MethodGet, "machines", DayQuery{Sector: sector, Date: day}, nil, &resp)
	return resp, err
}

// ListReports returns every persisted report visible to the user.
func (c *Client) ListReports(ctx context.Context) ([]domain.Report, error) {
	var resp []domain.Report
	err := c.do(ctx, http.MethodGet, "reports", nil, nil, &resp)
	return resp, err
}

// GetReport finds one report in the listing; the backend has no single
// report endpoint.
func (c *Client) GetReport(ctx context.Context, id int64) (domain.Report, error) {
	reports, err := c.ListReports(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	for _, r := range reports {
		if r.ID != nil && *r.ID == id {
			return r, nil
		}
	}
	return domain.Report{}, &APIError{StatusCode: http.StatusNotFound, Body: fmt.Sprintf("report %d not found", id)}
}

// CreateReport posts a new report.
func (c *Client) CreateReport(ctx context.Context, body domain.ReportDraft) (domain.Report, error) {
	var resp domain.Report
	err := c.do(ctx, http.MethodPost, "reports", nil, body, &resp)
	return resp, err
}

// UpdateReport replaces a persisted report.
func (c *Client) UpdateReport(ctx context.Context, id int64, body domain.ReportDraft) (domain.Report, error) {
	var resp domain.Report
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("reports/%d", id), nil, body, &resp)
	return resp, err
}

// DeleteReport removes a report.
func (c *Client) DeleteReport(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("reports/%d", id), nil, nil, nil)
}

// MachineHistory returns past findings for a machine tag.
func (c *Client) MachineHistory(ctx context.Context, tag string) (domain.MachineHistory, error) {
	var resp domain.MachineHistory
	err := c.do(ctx, http.MethodGet, "machines/"+url.PathEscape(tag)+"/history", nil, nil, &resp)
	return resp, err
}

// AdminReports returns one page of the admin listing.
func (c *Client) AdminReports(ctx context.Context, q AdminReportsQuery) (domain.AdminReportPage, error) {
	q.ExportCSV = 0
	var resp domain.AdminReportPage
	err := c.do(ctx, http.MethodGet, "admin/reports", q, nil, &resp)
	return resp, err
}

// AdminReportsCSV streams the CSV export of the admin listing into w.
func (c *Client) AdminReportsCSV(ctx context.Context, q AdminReportsQuery, w io.Writer) error {
	q.ExportCSV = 1
	resp, err := c.send(ctx, http.MethodGet, "admin/reports", q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// Stats returns the dashboard aggregates.
func (c *Client) Stats(ctx context.Context, q StatsQuery) (domain.Stats, error) {
	q.Keyword = ""
	var resp domain.Stats
	err := c.do(ctx, http.MethodGet, "stats", q, nil, &resp)
	return resp, err
}

// TopKeyword counts comments matching a keyword per machine.
func (c *Client) TopKeyword(ctx context.Context, q StatsQuery) ([]domain.MachineCount, error) {
	var resp struct {
		Results []domain.MachineCount `json:"results"`
	}
	err := c.do(ctx, http.MethodGet, "stats/top-keyword", q, nil, &resp)
	return resp.Results, err
}

// AdminUsers lists accounts.
func (c *Client) AdminUsers(ctx context.Context) ([]domain.User, error) {
	var resp []domain.User
	err := c.do(ctx, http.MethodGet, "admin/users", nil, nil, &resp)
	return resp, err
}

// CreateUser creates an account.
func (c *Client) CreateUser(ctx context.Context, u domain.NewUser) error {
	return c.do(ctx, http.MethodPost, "admin/users", nil, u, nil)
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("admin/users/%d", id), nil, nil, nil)
}

// AllTours lists every patrol route.
func (c *Client) AllTours(ctx context.Context) ([]domain.Tour, error) {
	var resp []domain.Tour
	err := c.do(ctx, http.MethodGet, "tours/all", nil, nil, &resp)
	return resp, err
}

// AllMachines lists every route machine regardless of day.
func (c *Client) AllMachines(ctx context.Context) ([]domain.Machine, error) {
	var resp []domain.Machine
	err := c.do(ctx, http.MethodGet, "machines/all", nil, nil, &resp)
	return resp, err
}

type machineBody struct {
	MachineTag string `json:"machine_tag"`
	TourID     int64  `json:"tour_id"`
}

// CreateMachine adds a machine to a route.
func (c *Client) CreateMachine(ctx context.Context, tag string, tourID int64) error {
	return c.do(ctx, http.MethodPost, "machines", nil, machineBody{MachineTag: tag, TourID: tourID}, nil)
}

// UpdateMachine renames or moves a machine.
func (c *Client) UpdateMachine(ctx context.Context, id int64, tag string, tourID int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("machines/%d", id), nil, machineBody{MachineTag: tag, TourID: tourID}, nil)
}

// DeleteMachine removes a machine from its route.
func (c *Client) DeleteMachine(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("machines/%d", id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params, body, out any) error {
	resp, err := c.send(ctx, method, endpoint, params, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, params, body any) (*http.Response, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
		if enc := v.Encode(); enc != "" {
			target += "?" + enc
		}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := zerolog.Ctx(ctx)
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		logger.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Str("request_id", requestID).Msg("backend unreachable")
		return nil, err
	}
	logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("request_id", requestID).
		Msg("backend call")
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

type tokenKey struct{}

// WithToken makes calls made with ctx use token instead of Client.Token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func (c *Client) token(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		return t
	}
	return c.Token
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
