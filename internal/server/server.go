package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"lubereport/internal/api"
	"lubereport/internal/app"
	"lubereport/internal/draft"
	"lubereport/internal/reportlist"
	"lubereport/internal/repo"
	"lubereport/internal/session"
)

// Config for the HTTP API handler.
type Config struct {
	Env      *app.Env
	BasePath string
	Logger   zerolog.Logger
	Now      func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"Veuillez remplir au moins une ligne."`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"index\":2}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// workspace is the single draft owner behind the API.
type workspace struct {
	mu   sync.Mutex
	env  *app.Env
	ctrl *draft.Controller
}

// withDraft runs fn under the draft lock and saves the draft afterwards,
// whatever fn returned.
func (w *workspace) withDraft(ctx context.Context, fn func(c *draft.Controller) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := fn(w.ctrl)
	if saveErr := w.env.SaveDraft(ctx, w.ctrl); saveErr != nil {
		zerolog.Ctx(ctx).Error().Err(saveErr).Msg("draft not saved")
		if err == nil {
			err = saveErr
		}
	}
	return err
}

// New returns an HTTP handler exposing the local report API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Env == nil {
		return nil, errors.New("server: workspace env required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ctx := cfg.Logger.WithContext(context.Background())
	ctrl, err := cfg.Env.NewController(ctx)
	if err != nil {
		return nil, fmt.Errorf("open draft: %w", err)
	}
	ws := &workspace{env: cfg.Env, ctrl: ctrl}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newRequestLogger(cfg.Logger))
	router.Use(newAuthMiddleware(basePath, now))
	hcfg := huma.DefaultConfig("lubereport local API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	humaAPI := humachi.New(router, hcfg)
	group := huma.NewGroup(humaAPI, basePath)

	registerHealth(group)
	registerSession(group, ws)
	registerDraft(group, ws)
	registerReports(group, ws)
	registerStats(group, ws)
	registerEvents(group, ws)
	registerOpenAPI(router, humaAPI, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve *draft.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Message, nil)
	}
	var fe session.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var sub *draft.SubmitError
	if errors.As(err, &sub) {
		details := map[string]any{"update": sub.Update}
		var ae *api.APIError
		if errors.As(sub.Err, &ae) {
			details["status"] = ae.StatusCode
		}
		return newAPIError(http.StatusBadGateway, "submit_failed", err.Error(), details)
	}
	var ae *api.APIError
	if errors.As(err, &ae) {
		switch ae.StatusCode {
		case http.StatusNotFound:
			return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
		case http.StatusUnauthorized:
			return newAPIError(http.StatusUnauthorized, "unauthorized", "backend rejected the token", nil)
		case http.StatusForbidden:
			return newAPIError(http.StatusForbidden, "forbidden", "backend refused the request", nil)
		}
		return newAPIError(http.StatusBadGateway, "backend_error", err.Error(), map[string]any{"status": ae.StatusCode})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, draft.ErrUnknownMachine):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, draft.ErrIndexOutOfRange):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, draft.ErrLastRow):
		return newAPIError(http.StatusConflict, "last_row", err.Error(), nil)
	case errors.Is(err, reportlist.ErrNotConfirmed):
		return newAPIError(http.StatusBadRequest, "confirmation_required", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadGateway:
		return "backend_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, humaAPI huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := humaAPI.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func registerHealth(humaAPI huma.API) {
	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSession(humaAPI huma.API, ws *workspace) {
	huma.Register(humaAPI, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/session",
		Summary:     "Active sector and profile",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: sessionResponse(ctx, ws.env.Session.State())}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "set-sector",
		Method:      http.MethodPut,
		Path:        "/session/sector",
		Summary:     "Switch the active sector",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SetSectorRequest
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		if err := ws.env.Session.SetSector(input.Body.Sector); err != nil {
			return nil, handleError(err)
		}
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			if c.State().Sector != input.Body.Sector {
				c.SetSector(ctx, input.Body.Sector)
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: sessionResponse(ctx, ws.env.Session.State())}, nil
	})
}

func registerEvents(humaAPI huma.API, ws *workspace) {
	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent workspace events",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"draft,report,session"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := ws.env.Repo.ListEvents(ctx, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     input.Cursor,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
