package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/planengine/internal/config"
	"github.com/ehr/planengine/internal/domain/guide"
	"github.com/ehr/planengine/internal/domain/plandefinition"
	"github.com/ehr/planengine/internal/domain/resource"
	"github.com/ehr/planengine/internal/domain/terminology"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/ingest"
	"github.com/ehr/planengine/internal/platform/mcptools"
	"github.com/ehr/planengine/internal/platform/middleware"
	"github.com/ehr/planengine/internal/platform/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "planengine",
		Short:        "PlanDefinition engine over an in-memory FHIR store",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("package-url", "", "FHIR package (.tgz) to ingest at startup (overrides PACKAGE_URL)")
	root.PersistentFlags().String("resource-dir", "", "Directory of FHIR JSON files to load after the package (overrides RESOURCE_DIR)")
	root.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(ingestCmd())
	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load resources and serve the FHIR REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg, os.Stdout))
		},
	}
	cmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Load resources and serve MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the MCP protocol.
			logger := newLogger(cfg, os.Stderr)
			a := bootstrap(cmd.Context(), cfg, logger)
			return mcptools.New(a.deps(), Version, logger).ServeStdio()
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run the startup ingestion once and print the reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			reports, err := ingestAll(cmd.Context(), store.New(), cfg, logger)
			if werr := writeReports(cmd.OutOrStdout(), reports); werr != nil {
				return werr
			}
			return err
		},
	}
}

// loadConfig reads env configuration and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"package-url":  &cfg.PackageURL,
		"resource-dir": &cfg.ResourceDir,
		"log-level":    &cfg.LogLevel,
		"port":         &cfg.Port,
	}
	for name, target := range overrides {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			*target = f.Value.String()
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

// app holds the services sharing the one store instance.
type app struct {
	store       *store.Store
	applier     *plandefinition.Applier
	terminology *terminology.Service
	guide       *guide.Context
}

func (a *app) deps() mcptools.Deps {
	return mcptools.Deps{
		Store:       a.store,
		Applier:     a.applier,
		Terminology: a.terminology,
		Guide:       a.guide,
	}
}

// bootstrap builds the store, runs startup ingestion and wires the
// services. Ingestion failures degrade the store but never stop startup.
func bootstrap(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *app {
	st := store.New()
	reports, err := ingestAll(ctx, st, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup ingestion incomplete, continuing with partial store")
	}
	guides := guide.NewContext(st)
	registerPackages(guides, reports)
	stats := store.GetStats(st)
	logger.Info().
		Int("documents", stats.Documents).
		Int("creation_events", stats.CreationEvents).
		Interface("type_counts", stats.Types).
		Msg("store ready")

	return &app{
		store:       st,
		applier:     plandefinition.NewApplier(st),
		terminology: terminology.NewService(st),
		guide:       guides,
	}
}

// registerPackages makes every ingested package selectable as guide context.
func registerPackages(guides *guide.Context, reports []*ingest.Report) {
	for _, r := range reports {
		if r.Package == nil {
			continue
		}
		guides.RegisterPackage(guide.Package{
			Name:      r.Package.Name,
			Version:   r.Package.Version,
			Canonical: r.Package.Canonical,
			Title:     r.Package.Title,
		})
	}
}

// ingestAll runs the package ingester, then the directory loader. An open
// failure of one step does not skip the next; the errors are joined.
func ingestAll(ctx context.Context, st *store.Store, cfg *config.Config, logger zerolog.Logger) ([]*ingest.Report, error) {
	opts := []ingest.Option{
		ingest.WithTimeout(cfg.PackageFetchTimeout),
		ingest.WithMaxErrorDetails(cfg.MaxErrorDetails),
		ingest.WithMaxEntrySize(cfg.MaxEntrySize),
	}

	var reports []*ingest.Report
	var errs []error
	if cfg.PackageURL != "" {
		report, err := ingest.NewPackageIngester(st, logger, opts...).Ingest(ctx, cfg.PackageURL)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.ResourceDir != "" {
		report, err := ingest.NewDirectoryLoader(st, logger, opts...).Load(ctx, cfg.ResourceDir)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

func writeReports(w io.Writer, reports []*ingest.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if reports == nil {
		reports = []*ingest.Report{}
	}
	return enc.Encode(reports)
}

func newServer(cfg *config.Config, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhirErrorHandler

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(middleware.ParseSize(cfg.BodyLimit)))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", store.HealthHandler(a.store))

	api := e.Group("/api")
	guide.NewHandler(a.guide).RegisterRoutes(api)

	fhirGroup := e.Group("/fhir")
	plandefinition.NewHandler(a.store, a.applier).RegisterRoutes(fhirGroup)
	terminology.NewHandler(a.terminology).RegisterRoutes(fhirGroup)
	resource.NewHandler(a.store).RegisterRoutes(fhirGroup)

	return e
}

// fhirErrorHandler renders echo errors (unknown routes, oversized bodies)
// as OperationOutcome.
func fhirErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	issue := fhir.IssueTypeException
	switch code {
	case http.StatusNotFound:
		issue = fhir.IssueTypeNotFound
	case http.StatusMethodNotAllowed:
		issue = fhir.IssueTypeNotSupported
	case http.StatusRequestEntityTooLarge:
		issue = fhir.IssueTypeTooCostly
	}
	if code < 500 {
		_ = c.JSON(code, fhir.NewOperationOutcome(fhir.IssueSeverityError, issue, msg))
		return
	}
	_ = c.JSON(code, fhir.NewOperationOutcome(fhir.IssueSeverityError, issue, "internal server error"))
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := bootstrap(ctx, cfg, logger)
	e := newServer(cfg, a, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
