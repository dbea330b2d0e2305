package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"lubereport/internal/domain"
	"lubereport/internal/draft"
	"lubereport/internal/imageenc"
)

type draftOutput struct {
	Body DraftResponse `json:"body"`
}

func registerDraft(humaAPI huma.API, ws *workspace) {
	huma.Register(humaAPI, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/draft",
		Summary:     "Current report draft",
	}, func(ctx context.Context, _ *struct{}) (*draftOutput, error) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return &draftOutput{Body: draftResponse(ws.ctrl)}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "new-draft",
		Method:      http.MethodPost,
		Path:        "/draft/new",
		Summary:     "Start an empty draft",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body *NewDraftRequest
	}) (*draftOutput, error) {
		var req NewDraftRequest
		if input.Body != nil {
			req = *input.Body
		}
		var day time.Time
		if req.Date != nil {
			parsed, err := time.ParseInLocation("2006-01-02", *req.Date, ws.env.Config.Location())
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid date", map[string]any{"date": *req.Date})
			}
			day = parsed
		}
		if req.Sector != nil {
			if err := ws.env.Session.SetSector(*req.Sector); err != nil {
				return nil, handleError(err)
			}
		}
		var res DraftResponse
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			c.Reset(ctx)
			refreshed := false
			if sector := ws.env.Session.Sector(); sector != "" && sector != c.State().Sector {
				c.SetSector(ctx, sector)
				refreshed = true
			}
			switch {
			case !day.IsZero():
				c.SetDate(ctx, day)
			case !refreshed:
				c.Refresh(ctx)
			}
			res = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &draftOutput{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "draft-entries",
		Method:      http.MethodPost,
		Path:        "/draft/entries",
		Summary:     "Apply an anomaly row action",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body EntryActionRequest
	}) (*draftOutput, error) {
		a := draft.EntryAction{Type: input.Body.Type, Index: input.Body.Index, Field: input.Body.Field, Value: input.Body.Value}
		if a.Type == draft.ActionUpdate {
			if err := checkFieldValue(a.Field, a.Value); err != nil {
				return nil, handleError(err)
			}
		}
		var res DraftResponse
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			if err := c.DispatchEntries(ctx, a); err != nil {
				return err
			}
			res = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &draftOutput{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "draft-safety",
		Method:      http.MethodPost,
		Path:        "/draft/safety",
		Summary:     "Apply a safety row action",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SafetyActionRequest
	}) (*draftOutput, error) {
		a := draft.SafetyAction{Type: input.Body.Type, Index: input.Body.Index, Field: input.Body.Field, Value: input.Body.Value}
		if a.Type == draft.ActionUpdate {
			if err := checkFieldValue(a.Field, a.Value); err != nil {
				return nil, handleError(err)
			}
			if t, _ := a.Value.(string); a.Field == draft.FieldType && t != "" && !ws.env.Config.IsSafetyType(t) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown safety type", map[string]any{"type": t})
			}
		}
		var res DraftResponse
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			if err := c.DispatchSafety(ctx, a); err != nil {
				return err
			}
			res = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &draftOutput{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "draft-heavy-set",
		Method:      http.MethodPatch,
		Path:        "/draft/heavy/{tag}",
		Summary:     "Merge a heavy-machine reading",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Tag  string `path:"tag"`
		Body draft.HeavyChanges
	}) (*draftOutput, error) {
		var res DraftResponse
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			if err := c.SetHeavy(ctx, input.Tag, input.Body); err != nil {
				return err
			}
			res = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &draftOutput{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "draft-heavy-toggle-ras",
		Method:      http.MethodPost,
		Path:        "/draft/heavy/toggle-ras",
		Summary:     "Toggle nothing-to-report on every heavy machine",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ToggleRASResponse `json:"body"`
	}, error) {
		var res ToggleRASResponse
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			res.RAS = c.ToggleAllRAS(ctx)
			res.Draft = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ToggleRASResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "draft-images",
		Method:      http.MethodPost,
		Path:        "/draft/images",
		Summary:     "Attach photos to a row",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body AttachImagesRequest
	}) (*struct {
		Body AttachImagesResponse `json:"body"`
	}, error) {
		files := make([]imageenc.File, 0, len(input.Body.Files))
		for _, f := range input.Body.Files {
			files = append(files, imageenc.FromBytes(f.Name, f.Data))
		}
		var res AttachImagesResponse
		err := ws.withDraft(ctx, func(c *draft.Controller) error {
			n, err := c.AttachImages(ctx, input.Body.Target, files)
			if err != nil {
				return err
			}
			res.Attached = n
			res.Draft = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttachImagesResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "draft-submit",
		Method:      http.MethodPost,
		Path:        "/draft/submit",
		Summary:     "Create or update the report",
		Errors:      []int{http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		report, err := ws.env.Submit(ctx, ws.ctrl)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: report}, nil
	})
}

// checkFieldValue rejects values of the wrong JSON type before they reach
// the reducers, which would silently ignore them.
func checkFieldValue(field string, value any) error {
	switch field {
	case draft.FieldOutOfTour:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("invalid value for %s: boolean required", field)
		}
	case draft.FieldMachine, draft.FieldComment, draft.FieldType, draft.FieldDescription:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("invalid value for %s: string required", field)
		}
	default:
		return fmt.Errorf("invalid field %q", field)
	}
	return nil
}
