package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"lubereport/internal/domain"
	"lubereport/internal/pdfdoc"
)

// DocumentOptions returns the PDF header settings of the workspace. A
// relative logo path is resolved against the workspace.
func (e *Env) DocumentOptions() pdfdoc.Options {
	logo := e.Config.Report.Logo
	if logo != "" && !filepath.IsAbs(logo) {
		logo = filepath.Join(e.Workspace, logo)
	}
	return pdfdoc.Options{
		Title:    e.Config.Report.Title,
		Logo:     logo,
		Location: e.Config.Location(),
	}
}

// ExportPDF renders report to w and records the export. It returns the
// suggested file name.
func (e *Env) ExportPDF(ctx context.Context, report domain.Report, w io.Writer) (string, error) {
	now := e.now()
	doc := pdfdoc.Assemble(report, now, e.DocumentOptions())
	if err := pdfdoc.Render(ctx, w, doc); err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}
	name := pdfdoc.FileName(report.Sector, now.In(e.Config.Location()))
	var reportID int64
	if report.ID != nil {
		reportID = *report.ID
	}
	if _, err := e.Repo.RecordExport(ctx, domain.Export{
		ReportID: reportID,
		Sector:   report.Sector,
		FileName: name,
		Photos:   len(doc.Photos),
	}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("export not recorded")
	}
	return name, nil
}
