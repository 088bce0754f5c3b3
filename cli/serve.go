package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/controllers"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/routes"

	"github.com/spf13/cobra"
)

type ServeOptions struct {
	*RootOptions
	Migrate bool
	NoSweep bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overdue sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply schema migrations before serving")
	cmd.Flags().BoolVar(&opts.NoSweep, "no-sweep", false, "do not run the scheduled overdue sweep")
	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	log := opts.logger(os.Stdout)
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.LoadConfig()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Migrate {
		if err := db.Migrate(a.DB); err != nil {
			return err
		}
	}

	routes.RegisterRoutes(a.Router, controllers.GetSrv(a))
	if !opts.NoSweep {
		go a.Sweeper.Start(ctx, cfg.SweepInterval)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: a.Router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
