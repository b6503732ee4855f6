package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joneldiablo/adba/pkg/config"
	"github.com/joneldiablo/adba/pkg/controller"
	mw "github.com/joneldiablo/adba/pkg/httputil/middleware"
	"github.com/joneldiablo/adba/pkg/metrics"
	"github.com/joneldiablo/adba/pkg/pgx"
	"github.com/joneldiablo/adba/pkg/pgx/schema"
	"github.com/joneldiablo/adba/pkg/rest"
	"github.com/joneldiablo/adba/pkg/routes"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the REST API server",
	Long:    `Connects to PostgreSQL, derives routes from the introspected tables and serves them. Routes are re-derived on NOTIFY adba, 'reload schema'`,
	PreRunE: setup,
	RunE:    runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
	f.StringP("rest.listenAddr", "l", "", "REST server listen address")
	f.String("rest.baseURL", "", "Base URL for API endpoints")
	f.String("rest.routesFile", "", "Route configuration file (YAML or JSON)")
	f.StringSlice("rest.schemas", nil, "Schemas to expose")
	f.Bool("metrics.enabled", false, "Serve prometheus metrics")
	f.String("metrics.addr", "", "Metrics server listen address")
}

// app is everything serve, routes and models share once connected.
type app struct {
	db      *pgx.Handle
	store   *pgx.Store
	rf      *config.RoutesFile
	deriver *routes.Deriver
	env     controller.Env
}

func connect(ctx context.Context) (*app, error) {
	if cfg.REST.PG.ConnString == "" {
		return nil, errors.New("PostgreSQL connection string required (rest.pg.connString or ADBA_REST_PG_CONNSTRING)")
	}
	rf, err := config.LoadRoutes(cfg.REST.RoutesFile)
	if err != nil {
		return nil, err
	}
	d, err := rf.Deriver(logger)
	if err != nil {
		return nil, err
	}

	db, err := pgx.Connect(ctx, cfg.REST.PG, logger)
	if err != nil {
		return nil, err
	}
	store := pgx.NewStore(db.Pool, pgx.WithLogger(logger))
	env, err := rf.Env(store, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{db: db, store: store, rf: rf, deriver: d, env: env}, nil
}

func (a *app) derive(tables map[string]schema.Table) (routes.Table, error) {
	return a.deriver.Derive(schema.Models(tables), controller.Registry{}, a.rf.Routes)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.db.Close()

	cache, err := schema.NewCache(ctx, a.db.Pool, schema.WithSchemas(cfg.REST.Schemas...), schema.WithLogger(logger))
	if err != nil {
		return err
	}
	defer cache.Close()
	if err := cache.Init(ctx); err != nil {
		return err
	}

	table, err := a.derive(cache.Snapshot())
	if err != nil {
		return fmt.Errorf("derive routes: %w", err)
	}

	middleware := []func(http.Handler) http.Handler{
		mw.RequestID,
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}),
		mw.Recoverer,
		mw.CORSWithOptions(&mw.CORSOptions{
			AllowedOrigins:   cfg.REST.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", mw.RequestIDHeader},
			AllowCredentials: true,
		}),
	}
	if cfg.Metrics.Enabled {
		middleware = append(middleware, mw.Metrics)
	}
	opts := []rest.Option{
		rest.WithBaseURL(cfg.REST.BaseURL),
		rest.WithLogger(logger),
		rest.WithSchemaHandler(cache),
		rest.WithOpenAPIInfo(routes.OpenAPIInfo{Title: "adba", Version: Version}),
	}
	for _, m := range middleware {
		opts = append(opts, rest.WithMiddleware(m))
	}
	srv, err := rest.NewServer(table, a.env, opts...)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.Addr, Logger: logger})
	}

	// the first snapshot is the one already bound
	<-cache.Watch()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tables := <-cache.Watch():
				t, err := a.derive(tables)
				if err == nil {
					err = srv.Reload(t)
				}
				if err != nil {
					logger.Error("reload routes", zap.Error(err))
				}
			}
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(cfg.REST.ListenAddr) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()
	logger.Info("server gracefully stopped")
	return nil
}
