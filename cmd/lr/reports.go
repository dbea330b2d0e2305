package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lubereport/internal/api"
	"lubereport/internal/app"
	"lubereport/internal/domain"
	"lubereport/internal/reportlist"
	"lubereport/internal/stats"
)

func reportsCmd() *cobra.Command {
	r := &cobra.Command{Use: "reports", Short: "Browse persisted reports"}
	r.AddCommand(reportsListCmd())
	r.AddCommand(reportsShowCmd())
	r.AddCommand(reportsDeleteCmd())
	r.AddCommand(reportsExportCmd())
	r.AddCommand(reportsExportsCmd())
	return r
}

func reportsListCmd() *cobra.Command {
	var sortKey, sector, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports with badges and allowed actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := reportlist.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				loc := env.Config.Location()
				f := reportlist.Filter{Sector: domain.Sector(strings.ToUpper(sector))}
				if from != "" {
					if f.From, err = parseDay(from, loc); err != nil {
						return err
					}
				}
				if to != "" {
					if f.To, err = parseDay(to, loc); err != nil {
						return err
					}
				}
				reports, err := env.Client.ListReports(ctx)
				if err != nil {
					return err
				}
				items := reportlist.Build(f.Apply(reports), key, env.Session.Sector())
				if viper.GetBool("json") {
					return printJSON(items)
				}
				reportlist.RenderTable(os.Stdout, items, loc)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", string(reportlist.DateDesc), "date_desc, date_asc, sector_asc or sector_desc")
	cmd.Flags().StringVar(&sector, "sector", "", "sector filter")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func reportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show REPORT_ID",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				report, err := env.Client.GetReport(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(reportlist.Item{
					Report:  report,
					Badges:  reportlist.BadgesOf(report),
					Actions: reportlist.Permissions(report, env.Session.Sector()),
				})
			})
		},
	}
}

func reportsDeleteCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete REPORT_ID",
		Short: "Delete a report of the active sector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				report, err := env.Client.GetReport(ctx, id)
				if err != nil {
					return err
				}
				if err := reportlist.Delete(ctx, env.Client, report, env.Session.Sector(), confirm); err != nil {
					return err
				}
				fmt.Printf("report %d deleted\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the deletion")
	return cmd
}

func reportsExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export REPORT_ID",
		Short: "Render a report as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				report, err := env.Client.GetReport(ctx, id)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				name, err := env.ExportPDF(ctx, report, &buf)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = name
				} else if info, err := os.Stat(path); err == nil && info.IsDir() {
					path = filepath.Join(path, name)
				}
				if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file or directory")
	return cmd
}

func reportsExportsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "PDF files generated from this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				exports, err := env.Repo.ListExports(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(exports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Report", "Sector", "File", "Photos", "Created"})
				for _, e := range exports {
					tw.AppendRow(table.Row{e.ID, e.ReportID, e.Sector, e.FileName, e.Photos, e.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of exports")
	return cmd
}

func machinesCmd() *cobra.Command {
	m := &cobra.Command{Use: "machines", Short: "Machine lookups"}
	m.AddCommand(&cobra.Command{
		Use:   "history TAG",
		Short: "Past findings for a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				h, err := env.Client.MachineHistory(ctx, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(h)
				}
				loc := env.Config.Location()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Anomalies")
				tw.AppendHeader(table.Row{"Date", "Sector", "Comment", "Out of tour"})
				for _, e := range h.Classical {
					tw.AppendRow(table.Row{e.Date.In(loc).Format("02/01/2006"), e.Sector, e.Comment, bool(e.OutOfTour)})
				}
				tw.Render()
				if len(h.Heavy) > 0 {
					tw = table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.SetTitle("Relevés")
					tw.AppendHeader(table.Row{"Date", "Pression", "Temp.", "Heure", "Vidange", "Observation"})
					for _, e := range h.Heavy {
						tw.AppendRow(table.Row{e.Date.In(loc).Format("02/01/2006"), measure(e.Pression), measure(e.Temperature), str(e.Heure), str(e.VidangeDate), str(e.Observation)})
					}
					tw.Render()
				}
				return nil
			})
		},
	})
	return m
}

func statsCmd() *cobra.Command {
	var q api.StatsQuery
	var sector string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dashboard aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Sector = domain.Sector(strings.ToUpper(sector))
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				s, err := env.Client.Stats(ctx, q)
				if err != nil {
					return err
				}
				var counts []domain.MachineCount
				if q.Keyword != "" {
					if counts, err = env.Client.TopKeyword(ctx, q); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"stats": s, "summary": stats.Summarize(s), "keyword": counts})
				}
				stats.Render(os.Stdout, s)
				if q.Keyword != "" {
					stats.RenderMachines(os.Stdout, fmt.Sprintf("Machines pour « %s »", q.Keyword), counts)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "sector filter")
	cmd.Flags().StringVar(&q.From, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.To, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.Keyword, "keyword", "", "comment keyword for the machine ranking")
	return cmd
}

func measure(m *domain.Measure) string {
	if m == nil {
		return ""
	}
	return m.String()
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
