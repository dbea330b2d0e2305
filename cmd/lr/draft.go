package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lubereport/internal/app"
	"lubereport/internal/draft"
	"lubereport/internal/imageenc"
	"lubereport/internal/session"
)

func draftCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "draft",
		Short: "Edit the current report draft",
		Long:  "The draft is kept in the workspace between commands. Anomaly rows need a machine and a comment; safety rows need a type and a description; on heavy days every heavy machine of the sector has a reading.",
	}
	d.AddCommand(draftShowCmd())
	d.AddCommand(draftNewCmd())
	d.AddCommand(draftLoadCmd("edit", draft.ModeEdit))
	d.AddCommand(draftLoadCmd("duplicate", draft.ModeDuplicate))
	d.AddCommand(draftEntryCmd())
	d.AddCommand(draftSafetyCmd())
	d.AddCommand(draftHeavyCmd())
	d.AddCommand(draftAttachCmd())
	d.AddCommand(draftSubmitCmd())
	d.AddCommand(draftResetCmd())
	return d
}

// withDraft opens the workspace draft, applies fn and saves the result.
func withDraft(ctx context.Context, fn func(context.Context, *app.Env, *draft.Controller) error) error {
	return withEnv(ctx, func(ctx context.Context, env *app.Env) error {
		c, err := env.NewController(ctx)
		if err != nil {
			return err
		}
		fnErr := fn(ctx, env, c)
		if err := env.SaveDraft(ctx, c); err != nil {
			return err
		}
		if fnErr != nil {
			return fnErr
		}
		return printDraft(c)
	})
}

func draftShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				if len(c.Machines()) == 0 {
					c.Refresh(ctx)
				}
				return nil
			})
		},
	}
}

func draftNewCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start an empty draft for today or --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				c.Reset(ctx)
				if date == "" {
					c.Refresh(ctx)
					return nil
				}
				day, err := parseDay(date, env.Config.Location())
				if err != nil {
					return err
				}
				c.SetDate(ctx, day)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "report date (YYYY-MM-DD)")
	return cmd
}

func draftLoadCmd(use string, mode draft.Mode) *cobra.Command {
	return &cobra.Command{
		Use:   use + " REPORT_ID",
		Short: fmt.Sprintf("Open a report in the draft (%s)", mode),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				report, err := env.Client.GetReport(ctx, id)
				if err != nil {
					return err
				}
				if mode == draft.ModeEdit {
					if err := session.RequireSector(env.Session.Sector(), report.Sector, "edit"); err != nil {
						return err
					}
				}
				c.Load(ctx, report, mode)
				return nil
			})
		},
	}
}

func draftEntryCmd() *cobra.Command {
	e := &cobra.Command{Use: "entry", Short: "Anomaly rows"}

	var outOfTour bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Append an empty anomaly row",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := draft.ActionAdd
			if outOfTour {
				t = draft.ActionAddOutOfTour
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				return c.DispatchEntries(ctx, draft.EntryAction{Type: t})
			})
		},
	}
	add.Flags().BoolVar(&outOfTour, "out-of-tour", false, "row for a machine outside today's route")

	var machine, comment string
	var oot bool
	set := &cobra.Command{
		Use:   "set INDEX",
		Short: "Update fields of an anomaly row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			var actions []draft.EntryAction
			if cmd.Flags().Changed("machine") {
				actions = append(actions, draft.EntryAction{Type: draft.ActionUpdate, Index: idx, Field: draft.FieldMachine, Value: machine})
			}
			if cmd.Flags().Changed("comment") {
				actions = append(actions, draft.EntryAction{Type: draft.ActionUpdate, Index: idx, Field: draft.FieldComment, Value: comment})
			}
			if cmd.Flags().Changed("out-of-tour") {
				actions = append(actions, draft.EntryAction{Type: draft.ActionUpdate, Index: idx, Field: draft.FieldOutOfTour, Value: oot})
			}
			if len(actions) == 0 {
				return fmt.Errorf("nothing to update: pass --machine, --comment or --out-of-tour")
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				for _, a := range actions {
					if err := c.DispatchEntries(ctx, a); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	set.Flags().StringVar(&machine, "machine", "", "machine tag")
	set.Flags().StringVar(&comment, "comment", "", "anomaly comment")
	set.Flags().BoolVar(&oot, "out-of-tour", false, "out-of-tour flag")

	rm := &cobra.Command{
		Use:   "rm INDEX",
		Short: "Remove an anomaly row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				return c.DispatchEntries(ctx, draft.EntryAction{Type: draft.ActionRemove, Index: idx})
			})
		},
	}

	e.AddCommand(add, set, rm)
	return e
}

func draftSafetyCmd() *cobra.Command {
	s := &cobra.Command{Use: "safety", Short: "Safety events"}

	add := &cobra.Command{
		Use:   "add",
		Short: "Append an empty safety row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				return c.DispatchSafety(ctx, draft.SafetyAction{Type: draft.ActionAdd})
			})
		},
	}

	var typ, desc string
	set := &cobra.Command{
		Use:   "set INDEX",
		Short: "Update fields of a safety row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				var actions []draft.SafetyAction
				if cmd.Flags().Changed("type") {
					if typ != "" && !env.Config.IsSafetyType(typ) {
						return fmt.Errorf("unknown safety type %q (see 'lr config show')", typ)
					}
					actions = append(actions, draft.SafetyAction{Type: draft.ActionUpdate, Index: idx, Field: draft.FieldType, Value: typ})
				}
				if cmd.Flags().Changed("description") {
					actions = append(actions, draft.SafetyAction{Type: draft.ActionUpdate, Index: idx, Field: draft.FieldDescription, Value: desc})
				}
				if len(actions) == 0 {
					return fmt.Errorf("nothing to update: pass --type or --description")
				}
				for _, a := range actions {
					if err := c.DispatchSafety(ctx, a); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	set.Flags().StringVar(&typ, "type", "", "safety event type")
	set.Flags().StringVar(&desc, "description", "", "description")

	rm := &cobra.Command{
		Use:   "rm INDEX",
		Short: "Remove a safety row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				return c.DispatchSafety(ctx, draft.SafetyAction{Type: draft.ActionRemove, Index: idx})
			})
		},
	}

	s.AddCommand(add, set, rm)
	return s
}

func draftHeavyCmd() *cobra.Command {
	h := &cobra.Command{Use: "heavy", Short: "Heavy-machine readings"}

	var pression, temperature, heure, vidange, comment string
	var circulation, niveau, ras bool
	set := &cobra.Command{
		Use:   "set TAG",
		Short: "Merge fields into a heavy-machine reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch draft.HeavyChanges
			flags := cmd.Flags()
			if flags.Changed("pression") {
				ch.Pression = &pression
			}
			if flags.Changed("temperature") {
				ch.Temperature = &temperature
			}
			if flags.Changed("heure") {
				ch.Heure = &heure
			}
			if flags.Changed("vidange") {
				ch.Vidange = &vidange
			}
			if flags.Changed("circulation") {
				ch.Circulation = &circulation
			}
			if flags.Changed("niveau") {
				ch.Niveau = &niveau
			}
			if flags.Changed("ras") {
				ch.RAS = &ras
			}
			if flags.Changed("comment") {
				ch.Comment = &comment
			}
			tag := strings.ToUpper(args[0])
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				return c.SetHeavy(ctx, tag, ch)
			})
		},
	}
	set.Flags().StringVar(&pression, "pression", "", "pressure (bar)")
	set.Flags().StringVar(&temperature, "temperature", "", "temperature (°C)")
	set.Flags().StringVar(&heure, "heure", "", "running hours")
	set.Flags().StringVar(&vidange, "vidange", "", "last oil change (YYYY-MM-DD)")
	set.Flags().BoolVar(&circulation, "circulation", false, "water circulation checked")
	set.Flags().BoolVar(&niveau, "niveau", false, "oil level checked")
	set.Flags().BoolVar(&ras, "ras", false, "nothing to report")
	set.Flags().StringVar(&comment, "comment", "", "observation")

	toggle := &cobra.Command{
		Use:   "ras",
		Short: "Toggle nothing-to-report on every heavy machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				c.ToggleAllRAS(ctx)
				return nil
			})
		},
	}

	h.AddCommand(set, toggle)
	return h
}

func draftAttachCmd() *cobra.Command {
	var entry, safety int
	var heavy string
	cmd := &cobra.Command{
		Use:   "attach FILE...",
		Short: "Attach photos to a row (--entry, --safety or --heavy)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target draft.Target
			set := 0
			if cmd.Flags().Changed("entry") {
				target = draft.Target{Kind: draft.TargetEntry, Index: entry}
				set++
			}
			if cmd.Flags().Changed("safety") {
				target = draft.Target{Kind: draft.TargetSafety, Index: safety}
				set++
			}
			if heavy != "" {
				target = draft.Target{Kind: draft.TargetHeavy, Tag: strings.ToUpper(heavy)}
				set++
			}
			if set != 1 {
				return fmt.Errorf("pass exactly one of --entry, --safety or --heavy")
			}
			return withDraft(cmd.Context(), func(ctx context.Context, env *app.Env, c *draft.Controller) error {
				n, err := c.AttachImages(ctx, target, imageenc.FromPaths(args...))
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "attached %d of %d file(s)\n", n, len(args))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&entry, "entry", 0, "anomaly row index")
	cmd.Flags().IntVar(&safety, "safety", 0, "safety row index")
	cmd.Flags().StringVar(&heavy, "heavy", "", "heavy machine tag")
	return cmd
}

func draftSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Create or update the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				c, err := env.NewController(ctx)
				if err != nil {
					return err
				}
				report, err := env.Submit(ctx, c)
				if err != nil {
					if saveErr := env.SaveDraft(ctx, c); saveErr != nil {
						return fmt.Errorf("%w (draft not saved: %v)", err, saveErr)
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				if report.ID != nil {
					fmt.Printf("report %d saved (%s)\n", *report.ID, report.Sector)
				} else {
					fmt.Println("report saved")
				}
				return nil
			})
		},
	}
}

func draftResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the draft and start an empty one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				c, err := env.NewController(ctx)
				if err != nil {
					return err
				}
				if err := env.Discard(ctx, c); err != nil {
					return err
				}
				return printDraft(c)
			})
		},
	}
}

func printDraft(c *draft.Controller) error {
	s := c.State()
	if viper.GetBool("json") {
		return printJSON(s)
	}
	mode := string(s.Mode)
	if s.ReportID != nil {
		mode = fmt.Sprintf("%s #%d", mode, *s.ReportID)
	}
	fmt.Printf("Draft %s  %s  %s  %s\n", s.Sector, s.Date.Format("2006-01-02"), mode, s.Zone)

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Anomalies")
	tw.AppendHeader(table.Row{"#", "Machine", "Comment", "Out of tour", "Photos"})
	for i, e := range s.Entries {
		tw.AppendRow(table.Row{i, e.Machine, e.Comment, e.OutOfTour, len(e.Images)})
	}
	tw.Render()

	if len(s.Safety) > 0 {
		tw = table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetTitle("Safety")
		tw.AppendHeader(table.Row{"#", "Type", "Description", "Photos"})
		for i, e := range s.Safety {
			tw.AppendRow(table.Row{i, e.Type, e.Description, len(e.Images)})
		}
		tw.Render()
	}

	if c.ShowHeavyForm() {
		tw = table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetTitle("Heavy machines")
		tw.AppendHeader(table.Row{"Tag", "Type", "Pression", "Temp.", "Heure", "Vidange", "Circ.", "Niveau", "RAS", "Comment", "Photos"})
		for _, m := range c.Catalog() {
			r := s.Heavy[m.Tag]
			tw.AppendRow(table.Row{m.Tag, m.Type, r.Pression, r.Temperature, r.Heure, r.Vidange, r.Circulation, r.Niveau, r.RAS, r.Comment, len(r.Images)})
		}
		tw.Render()
	}
	return nil
}
