package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spycat/internal/app"
	"spycat/internal/config"
	"spycat/internal/db"
	"spycat/internal/events"
	"spycat/internal/migrate"
	"spycat/internal/seed"
	"spycat/internal/service"
)

var rootCmd = &cobra.Command{
	Use:   "spycat",
	Short: "Spy Cat Agency backend",
	Long: `Spy Cat Agency manages spy cats, their missions and the targets of each mission.
- Cats: agents with a breed checked against the breed registry and a salary.
- Missions: a named list of targets, optionally assigned to one cat.
- Targets: notes are frozen once a target is complete; a mission completes with its last target.
- Event log: every change is recorded, view it with 'spycat log tail'.

Configuration comes from environment variables (SERVER_PORT, DB_DRIVER, ...) and an
optional YAML file passed with --config.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catsCmd())
	rootCmd.AddCommand(missionsCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := a.Handler()
				if err != nil {
					return err
				}
				if addr == "" {
					addr = a.Config.Addr()
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				docs := " (OpenAPI at /openapi.json, Swagger UI at /docs)"
				if a.Config.IsProduction() {
					docs = ""
				}
				a.Logger.Info("serving Spy Cat Agency API", "addr", "http://"+addr+"/api", "mode", a.Config.ExecutionMode)
				fmt.Printf("Serving Spy Cat Agency API on http://%s/api%s\n", addr, docs)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				a.Logger.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to SERVER_HOST:SERVER_PORT)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, dialect, err := db.Open(cmd.Context(), cfg.DB)
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Migrate(cmd.Context(), conn, dialect)
			if err != nil {
				return err
			}
			version, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"applied": applied, "schema_version": version, "driver": cfg.DB.Driver})
			}
			fmt.Printf("Applied %d migration(s) on %s, schema version %d\n", applied, cfg.DB.Driver, version)
			return nil
		},
	}
}

func catsCmd() *cobra.Command {
	cats := &cobra.Command{Use: "cats", Short: "Inspect spy cats"}
	cats.AddCommand(catsListCmd())
	return cats
}

func catsListCmd() *cobra.Command {
	var opts service.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Services.Cats.List(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Breed", "Years", "Salary"})
				for _, c := range page.Items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Breed, c.YearsOfExperience, fmt.Sprintf("%.2f", c.Salary)})
				}
				tw.AppendFooter(table.Row{"", "", "", "Total", page.Count})
				tw.Render()
				return nil
			})
		},
	}
	addPageFlags(cmd, &opts)
	return cmd
}

func missionsCmd() *cobra.Command {
	missions := &cobra.Command{Use: "missions", Short: "Inspect missions"}
	missions.AddCommand(missionsListCmd())
	missions.AddCommand(missionsShowCmd())
	return missions
}

func missionsListCmd() *cobra.Command {
	var opts service.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Services.Missions.List(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Cat", "Complete"})
				for _, m := range page.Items {
					cat := ""
					if m.CatID != nil {
						cat = m.CatID.String()
					}
					tw.AppendRow(table.Row{m.ID, m.Name, cat, m.Complete})
				}
				tw.AppendFooter(table.Row{"", "", "Total", page.Count})
				tw.Render()
				return nil
			})
		},
	}
	addPageFlags(cmd, &opts)
	return cmd
}

func missionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission and its targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid mission id %q: %w", args[0], err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Services.Missions.Get(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m.Detail())
				}
				cat := "-"
				if m.CatID != nil {
					cat = m.CatID.String()
				}
				fmt.Printf("%s  %s\ncat: %s  complete: %v\n", m.ID, m.Name, cat, m.Complete)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Target", "Country", "Complete", "Notes"})
				for i, t := range m.Targets {
					tw.AppendRow(table.Row{i + 1, t.Name, t.Country, t.Complete, t.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load cats and missions from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			fixtures, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := seed.Apply(ctx, a.Services, fixtures)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Seeded %d cat(s), %d mission(s), %d target(s)\n", res.Cats, res.Missions, res.Targets)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The record of every change: cats hired and removed, missions created, assigned and completed, target updates.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w := events.Writer{DB: a.DB, Dialect: a.Dialect}
				evts, err := w.Latest(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS.Format(time.RFC3339), e.Type, e.EntityKind + ":" + e.EntityID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- helpers ---

func addPageFlags(cmd *cobra.Command, opts *service.ListOptions) {
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 10, "items per page")
}

func loadConfig() (config.Config, error) {
	v, err := config.New(viper.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
