package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"lubereport/internal/api"
	"lubereport/internal/domain"
	"lubereport/internal/draft"
	"lubereport/internal/reportlist"
	"lubereport/internal/session"
	"lubereport/internal/stats"
)

// ReportPath binds the {id} segment of the report routes. Huma skips
// unexported embedded structs, so it must stay exported.
type ReportPath struct {
	ID int64 `path:"id"`
}

func registerReports(humaAPI huma.API, ws *workspace) {
	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports with badges and allowed actions",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Sort   string `query:"sort" enum:"date_desc,date_asc,sector_asc,sector_desc"`
		Sector string `query:"sector" enum:"AC/V,AC/E"`
		From   string `query:"from" format:"date"`
		To     string `query:"to" format:"date"`
	}) (*struct {
		Body ReportListResponse `json:"body"`
	}, error) {
		key, err := reportlist.ParseSortKey(input.Sort)
		if err != nil {
			return nil, handleError(err)
		}
		filter, err := parseFilter(domain.Sector(input.Sector), input.From, input.To, ws.env.Config.Location())
		if err != nil {
			return nil, handleError(err)
		}
		reports, err := ws.env.Client.ListReports(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := reportlist.Build(filter.Apply(reports), key, ws.env.Session.Sector())
		return &struct {
			Body ReportListResponse `json:"body"`
		}{Body: ReportListResponse{Items: items, Sort: key}}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "load-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/load",
		Summary:     "Open a report in the draft for edit or duplicate",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportPath
		Mode draft.Mode `query:"mode" enum:"edit,duplicate" default:"edit"`
	}) (*draftOutput, error) {
		report, err := ws.env.Client.GetReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		mode := input.Mode
		if mode == "" {
			mode = draft.ModeEdit
		}
		if mode == draft.ModeEdit {
			if err := session.RequireSector(ws.env.Session.Sector(), report.Sector, "edit"); err != nil {
				return nil, handleError(err)
			}
		}
		var res DraftResponse
		err = ws.withDraft(ctx, func(c *draft.Controller) error {
			c.Load(ctx, report, mode)
			res = draftResponse(c)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &draftOutput{Body: res}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID:   "delete-report",
		Method:        http.MethodDelete,
		Path:          "/reports/{id}",
		Summary:       "Delete a report of the active sector",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportPath
		Confirm bool `query:"confirm"`
	}) (*struct{}, error) {
		report, err := ws.env.Client.GetReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := reportlist.Delete(ctx, ws.env.Client, report, ws.env.Session.Sector(), input.Confirm); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(humaAPI, huma.Operation{
		OperationID: "report-pdf",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/pdf",
		Summary:     "Render a report as PDF",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ReportPath) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		report, err := ws.env.Client.GetReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		name, err := ws.env.ExportPDF(ctx, report, &buf)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        "application/pdf",
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
			Body:               buf.Bytes(),
		}, nil
	})
}

func registerStats(humaAPI huma.API, ws *workspace) {
	huma.Register(humaAPI, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Dashboard aggregates",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Sector  string `query:"sector" enum:"AC/V,AC/E"`
		From    string `query:"from" format:"date"`
		To      string `query:"to" format:"date"`
		Keyword string `query:"keyword"`
	}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		q := api.StatsQuery{Sector: domain.Sector(input.Sector), From: input.From, To: input.To, Keyword: input.Keyword}
		s, err := ws.env.Client.Stats(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		res := StatsResponse{Stats: s, Summary: stats.Summarize(s)}
		if input.Keyword != "" {
			res.Keyword, err = ws.env.Client.TopKeyword(ctx, q)
			if err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: res}, nil
	})
}

func parseFilter(sector domain.Sector, from, to string, loc *time.Location) (reportlist.Filter, error) {
	f := reportlist.Filter{Sector: sector}
	var err error
	if from != "" {
		if f.From, err = time.ParseInLocation("2006-01-02", from, loc); err != nil {
			return f, fmt.Errorf("invalid from date %q", from)
		}
	}
	if to != "" {
		if f.To, err = time.ParseInLocation("2006-01-02", to, loc); err != nil {
			return f, fmt.Errorf("invalid to date %q", to)
		}
	}
	return f, nil
}
