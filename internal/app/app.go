// Package app wires the storefront core and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sgandhi15/ecommerce-api/internal/config"

	"go.uber.org/zap"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	container, err := NewContainer(appCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	app := &Application{
		ctx:       appCtx,
		cancel:    cancel,
		container: container,
	}
	app.container.Logger().Info("Application initialized successfully")
	return app, nil
}

// Container exposes the wired components.
func (app *Application) Container() *Container {
	return app.container
}

// Run serves the ops endpoints until the context is canceled.
func (app *Application) Run() error {
	srv := app.container.OpsServer()
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return app.serve(ln)
}

func (app *Application) serve(ln net.Listener) error {
	srv := app.container.OpsServer()
	logger := app.container.Logger()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Ops server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-app.ctx.Done():
		logger.Info("Shutdown signal received")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
