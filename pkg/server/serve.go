package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Serve runs the HTTP server and background tasks until ctx is cancelled,
// then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Hub.Run(bgCtx)
	}()

	wg.Add(1)
	go a.RunRegeneration(bgCtx, &wg)

	wg.Add(1)
	go RunBadgerGC(bgCtx, a.Repo, a.Logger.Named("gc"), &wg)

	srv := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      a.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		a.Logger.Error("server failed", zap.Error(serveErr))
	}

	// Stop background tasks before draining connections
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("server shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.Logger.Info("background tasks stopped")
	case <-time.After(5 * time.Second):
		a.Logger.Warn("background tasks did not stop in time")
	}

	return serveErr
}
