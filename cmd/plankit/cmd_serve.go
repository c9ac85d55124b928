package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/auth"
	"github.com/doujins-org/plankit/reportmanager"
	"github.com/doujins-org/plankit/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the menu, report manager and export folder over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8000", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, dbcfg, pool, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	server := &web.Server{
		Menu:         newMenu(settings),
		Principals:   auth.NewStore(pool),
		Reports:      reportmanager.NewStore(pool),
		Runner:       reportmanager.NewExecutor(pool, reportmanager.DefaultRowLimit),
		UploadFolder: dbcfg.FileUploadFolder,
		Logger:       logger,
	}
	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", serveAddr), zap.String("database", database))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
