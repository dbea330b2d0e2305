package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lubereport/internal/api"
	"lubereport/internal/app"
	"lubereport/internal/domain"
	"lubereport/internal/reportlist"
	"lubereport/internal/session"
)

func adminCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "admin",
		Short: "Administration (admin role only)",
	}
	a.AddCommand(adminReportsCmd())
	a.AddCommand(adminUsersCmd())
	a.AddCommand(adminMachinesCmd())
	a.AddCommand(adminToursCmd())
	return a
}

// withAdmin runs fn only for a logged-in admin.
func withAdmin(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	return withEnv(ctx, func(ctx context.Context, env *app.Env) error {
		if err := session.RequireRole(env.Session.State().Profile, session.RoleAdmin); err != nil {
			return err
		}
		return fn(ctx, env)
	})
}

func adminReportsCmd() *cobra.Command {
	var q api.AdminReportsQuery
	var sector string
	var csvOut bool
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Paged report listing across sectors, or its CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Sector = domain.Sector(strings.ToUpper(sector))
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if csvOut {
					return env.Client.AdminReportsCSV(ctx, q, os.Stdout)
				}
				page, err := env.Client.AdminReports(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				reportlist.RenderTable(os.Stdout, reportlist.Build(page.Data, reportlist.DateDesc, env.Session.Sector()), env.Config.Location())
				fmt.Printf("page %d/%d, %d report(s)\n", max(q.Page, 1), page.Pages, page.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&sector, "sector", "", "sector filter")
	cmd.Flags().StringVar(&q.DateFrom, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.DateTo, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.AnomalyType, "anomaly-type", "", "classic, out_of_tour or safety")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "write the CSV export to stdout")
	return cmd
}

func adminUsersCmd() *cobra.Command {
	u := &cobra.Command{Use: "users", Short: "Backend user accounts"}
	u.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				users, err := env.Client.AdminUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Role"})
				for _, usr := range users {
					tw.AppendRow(table.Row{usr.ID, usr.Username, usr.Role})
				}
				tw.Render()
				return nil
			})
		},
	})

	var nu domain.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if nu.Username == "" {
				return fmt.Errorf("--username required")
			}
			if nu.Password == "" {
				line, err := prompt("password: ")
				if err != nil {
					return err
				}
				nu.Password = line
			}
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Client.CreateUser(ctx, nu); err != nil {
					return err
				}
				fmt.Println("user created:", nu.Username)
				return nil
			})
		},
	}
	create.Flags().StringVarP(&nu.Username, "username", "u", "", "user name")
	create.Flags().StringVar(&nu.Password, "password", "", "password (prompted when empty)")
	create.Flags().StringVar(&nu.Role, "role", "user", "role (user or admin)")
	u.AddCommand(create)

	u.AddCommand(&cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Client.DeleteUser(ctx, id); err != nil {
					return err
				}
				fmt.Printf("user %d deleted\n", id)
				return nil
			})
		},
	})
	return u
}

func adminMachinesCmd() *cobra.Command {
	m := &cobra.Command{Use: "machines", Short: "Route machines"}
	m.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				machines, err := env.Client.AllMachines(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(machines)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Tag", "Tour"})
				for _, mc := range machines {
					tw.AppendRow(table.Row{mc.ID, mc.MachineTag, mc.TourID})
				}
				tw.Render()
				return nil
			})
		},
	})

	var tag string
	var tourID int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a machine to a tour",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" || tourID <= 0 {
				return fmt.Errorf("--tag and --tour required")
			}
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Client.CreateMachine(ctx, strings.ToUpper(tag), tourID); err != nil {
					return err
				}
				fmt.Println("machine created:", strings.ToUpper(tag))
				return nil
			})
		},
	}
	create.Flags().StringVar(&tag, "tag", "", "machine tag")
	create.Flags().Int64Var(&tourID, "tour", 0, "tour id")
	m.AddCommand(create)

	var utag string
	var utour int64
	update := &cobra.Command{
		Use:   "update MACHINE_ID",
		Short: "Rename a machine or move it to another tour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if utag == "" || utour <= 0 {
				return fmt.Errorf("--tag and --tour required")
			}
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Client.UpdateMachine(ctx, id, strings.ToUpper(utag), utour); err != nil {
					return err
				}
				fmt.Printf("machine %d updated\n", id)
				return nil
			})
		},
	}
	update.Flags().StringVar(&utag, "tag", "", "machine tag")
	update.Flags().Int64Var(&utour, "tour", 0, "tour id")
	m.AddCommand(update)

	m.AddCommand(&cobra.Command{
		Use:   "delete MACHINE_ID",
		Short: "Delete a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Client.DeleteMachine(ctx, id); err != nil {
					return err
				}
				fmt.Printf("machine %d deleted\n", id)
				return nil
			})
		},
	})
	return m
}

func adminToursCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tours",
		Short: "List tours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				tours, err := env.Client.AllTours(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tours)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Sector"})
				for _, t := range tours {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Sector})
				}
				tw.Render()
				return nil
			})
		},
	}
}
