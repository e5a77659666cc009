package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cyclescope/internal/app"
	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/engine"
	"cyclescope/internal/repo"
	"cyclescope/internal/server"
)

const cliActor = "cli"

var rootCmd = &cobra.Command{
	Use:   "cyc",
	Short: "Cyclescope CLI",
	Long: `Cyclescope pulls roadmap bets and work items from Jira and turns them into a cycle plan.
Core concepts:
- Snapshot: one normalized picture of cycles, bets, work items, areas, teams and stages.
- Adapter: how tickets become a snapshot (default, org or fake); set in cyclescope.yml.
- Run: one ingestion attempt; successful runs store their snapshot in the workspace cache.
- Validations: warnings and errors found while extracting, recorded per run.
- Projection: a snapshot filtered by area, objective, stage, assignee and cycle.
- Event log: diary of runs and key changes, view with 'cyc events'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CYCLESCOPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (defaults to <workspace>/cyclescope.yml)")
	flags.String("adapter", "", "adapter override (default, org or fake)")
	flags.String("base-url", "", "Jira base URL override")
	flags.String("email", "", "Jira account email")
	flags.String("token", "", "Jira API token")
	flags.String("jwt-secret", "", "HS256 secret for API bearer tokens")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (auto, text or json)")
	for _, name := range []string{"workspace", "config", "adapter", "base-url", "email", "token", "jwt-secret", "json", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(betsCmd())
	rootCmd.AddCommand(areasCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(validationsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch and inspect snapshots",
	}
	snap.AddCommand(snapshotFetchCmd())
	snap.AddCommand(snapshotShowCmd())
	return snap
}

func snapshotFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a fresh snapshot from the tracker and cache it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, _, err := e.Refresh(ctx, cliActor)
				if err != nil {
					if run.ID != "" {
						return fmt.Errorf("run %s: %w", run.ID, err)
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				printRuns([]domain.Run{run})
				return nil
			})
		},
	}
}

func snapshotShowCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the cached snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := engine.ParseSource(source)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stored, err := e.Snapshot(ctx, src)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stored)
				}
				s := stored.Snapshot
				counts := s.CountDiagnostics()
				tw := newTable()
				tw.AppendHeader(table.Row{"Run", "Adapter", "Created", "Cycles", "Bets", "Items", "Areas", "Warnings", "Errors"})
				tw.AppendRow(table.Row{stored.RunID, stored.Adapter, stored.CreatedAt, len(s.Cycles), len(s.RoadmapBets), len(s.WorkItems), len(s.Areas), counts.Warnings, counts.Errors})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "cache", "snapshot source (auto, cache or live)")
	return cmd
}

// criteriaFlags are the projection filters shared by bets and areas.
type criteriaFlags struct {
	area       string
	objectives []string
	stages     []string
	assignees  []string
	cycle      string
	source     string
}

func (f *criteriaFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.area, "area", "", "area id")
	cmd.Flags().StringSliceVar(&f.objectives, "objective", nil, "objective ids")
	cmd.Flags().StringSliceVar(&f.stages, "stage", nil, "stage ids")
	cmd.Flags().StringSliceVar(&f.assignees, "assignee", nil, "assignee ids")
	cmd.Flags().StringVar(&f.cycle, "cycle", "", "cycle id, or current")
	cmd.Flags().StringVar(&f.source, "source", "auto", "snapshot source (auto, cache or live)")
}

func (f *criteriaFlags) criteria() (domain.FilterCriteria, engine.Source, error) {
	src, err := engine.ParseSource(f.source)
	if err != nil {
		return domain.FilterCriteria{}, "", err
	}
	return domain.FilterCriteria{
		Area:         f.area,
		ObjectiveIDs: f.objectives,
		StageIDs:     f.stages,
		AssigneeIDs:  f.assignees,
		Cycle:        f.cycle,
	}, src, nil
}

func betsCmd() *cobra.Command {
	var f criteriaFlags
	cmd := &cobra.Command{
		Use:   "bets",
		Short: "List roadmap bets matching the filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, src, err := f.criteria()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Project(ctx, c, src)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				if p.Cycle != nil {
					fmt.Printf("Cycle: %s (%s to %s, %s)\n", p.Cycle.Name, p.Cycle.StartDate, p.Cycle.EndDate, p.Cycle.State)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Ticket", "Name", "Area", "Team", "Items", "Done", "Effort"})
				for _, b := range p.RoadmapBets {
					tw.AppendRow(table.Row{b.TicketID, b.Name, b.Area, b.Team, len(b.WorkItems), b.Effort.DoneItems, fmt.Sprintf("%g/%g", b.Effort.Done, b.Effort.Total)})
				}
				tw.AppendFooter(table.Row{"", "", "", "", p.Summary.Items, p.Summary.DoneItems, fmt.Sprintf("%.1f%% done", p.Summary.PercentDone)})
				tw.Render()
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func areasCmd() *cobra.Command {
	var f criteriaFlags
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "Summarize the projection per area",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, src, err := f.criteria()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slices, err := e.Areas(ctx, c, src)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(slices)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Area", "Name", "Bets", "Items", "Effort", "Done %", "In progress %"})
				for _, s := range slices {
					sum := s.Projection.Summary
					tw.AppendRow(table.Row{s.AreaID, s.Name, sum.Bets, sum.Items, sum.TotalEffort, sum.PercentDone, sum.PercentInProgress})
				}
				tw.Render()
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func cycleCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Report on the selected cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := engine.ParseSource(source)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.SelectedCycle(ctx, src)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				cal := report.Calendar
				fmt.Printf("%s [%s] %s to %s\n", report.Cycle.Name, report.Cycle.State, cal.StartDate, cal.EndDate)
				fmt.Printf("Day %d of %d (%d weeks left), %.1f%% elapsed\n", cal.ElapsedDays, cal.TotalDays, cal.RemainingWeeks, cal.PercentElapsed)
				tw := newTable()
				tw.AppendHeader(table.Row{"Area", "Bets", "Items", "Effort", "Done %", "In progress %"})
				for _, a := range report.Areas {
					tw.AppendRow(table.Row{a.Name, a.Summary.Bets, a.Summary.Items, a.Summary.TotalEffort, a.Summary.PercentDone, a.Summary.PercentInProgress})
				}
				tw.AppendFooter(table.Row{"total", report.Summary.Bets, report.Summary.Items, report.Summary.TotalEffort, report.Summary.PercentDone, report.Summary.PercentInProgress})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "auto", "snapshot source (auto, cache or live)")
	return cmd
}

func validationsCmd() *cobra.Command {
	var q engine.ValidationQuery
	cmd := &cobra.Command{
		Use:   "validations",
		Short: "List diagnostics recorded for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Validations(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Severity", "Code", "Subject", "Description"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.Severity, d.Code, d.SubjectID, d.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.RunID, "run", "", "run id (defaults to the cached snapshot's run)")
	cmd.Flags().StringVar(&q.Severity, "severity", "", "warning or error")
	cmd.Flags().StringVar(&q.Code, "code", "", "diagnostic code")
	cmd.Flags().StringVar(&q.SubjectID, "subject", "", "bet or work item id")
	cmd.Flags().IntVar(&q.Limit, "limit", 200, "max rows")
	return cmd
}

func runsCmd() *cobra.Command {
	var f repo.RunFilters
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				runs, err := e.Runs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				printRuns(runs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Adapter, "adapter-filter", "", "adapter filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "max rows")
	cmd.AddCommand(runShowCmd())
	return cmd
}

func runShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := e.Run(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				printRuns([]domain.Run{run})
				if run.Error != "" {
					fmt.Println("error:", run.Error)
				}
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	var n int
	var cursor int64
	var evtType string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, n, cursor, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&cursor, "before", 0, "only events with a smaller id")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP API",
	}
	keys.AddCommand(apiKeyCreateCmd())
	keys.AddCommand(apiKeyListCmd())
	keys.AddCommand(apiKeyRevokeCmd())
	return keys
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, key, err := e.CreateAPIKey(ctx, actor, name, cliActor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "created_at": key.CreatedAt, "key": plain})
				}
				fmt.Printf("API key %s for %s\n%s\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = ""
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, args[0], cliActor); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Issue bearer tokens for the HTTP API",
	}
	auth.AddCommand(authTokenCmd())
	return auth
}

func authTokenCmd() *cobra.Command {
	var actor string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return errors.New("CYCLESCOPE_JWT_SECRET (or --jwt-secret) is required")
			}
			token, err := server.SignToken(secret, actor, roles, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"actor_id": actor, "roles": roles, "token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "local-user", "actor id (token subject)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to grant, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage cyclescope.yml",
		Long:  "Config selects the adapter, the Jira connection and queries, the org mappings and the API server settings. Values from flags and CYCLESCOPE_* env vars override the file.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cyclescope.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(options(nil))
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.Tracker.Token != "" {
				redacted.Tracker.Token = "********"
			}
			if viper.GetBool("json") {
				return printJSON(redacted)
			}
			out, err := redacted.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.LoadConfig(options(nil))
			if viper.GetBool("json") {
				if err != nil {
					return printJSON(map[string]any{"ok": false, "error": err.Error()})
				}
				return printJSON(map[string]any{"ok": true})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server with the scheduled refresher and webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			env, err := app.Open(cmd.Context(), options(logger))
			if err != nil {
				return err
			}
			defer env.Close()

			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), AllowAnonymous: allowAnonymous, Logger: logger}
			if authCfg.JWTSecret == "" && !allowAnonymous {
				return errors.New("CYCLESCOPE_JWT_SECRET is required for bearer auth (or pass --allow-anonymous)")
			}
			if !cmd.Flags().Changed("addr") && env.Config.Server.Addr != "" {
				addr = env.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && env.Config.Server.BasePath != "" {
				basePath = env.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: env.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			background := make(chan struct{})
			go func() {
				defer close(background)
				server.RunBackground(ctx, env.Engine, logger)
			}()

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelShutdown()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown", "err", err)
				}
			}()
			fmt.Printf("Serving Cyclescope API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			err = srv.ListenAndServe()
			cancel()
			<-background
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "treat unauthenticated requests as an admin (local use only)")
	return cmd
}

// --- helpers ---

func options(logger *slog.Logger) app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Adapter:    viper.GetString("adapter"),
		BaseURL:    viper.GetString("base-url"),
		Email:      viper.GetString("email"),
		Token:      viper.GetString("token"),
		Logger:     logger,
	}
}

func newLogger() (*slog.Logger, error) {
	return app.NewLogger(os.Stderr, viper.GetString("log-level"), viper.GetString("log-format"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	env, err := app.Open(ctx, options(logger))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env.Engine)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printRuns(runs []domain.Run) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Adapter", "Status", "Started", "Bets", "Items", "Warnings", "Errors"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, r.Adapter, r.Status, r.StartedAt, r.Bets, r.Items, r.Warnings, r.Errors})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
