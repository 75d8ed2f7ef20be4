package root

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/cmd/thermgovd/logger"
	"github.com/wrale/thermal-governor/cmd/thermgovd/options"
)

// shutdownTimeout bounds how long a SIGINT/SIGTERM waits for the graceful
// shutdown sequence before giving up.
const shutdownTimeout = 5 * time.Second

// runDaemon constructs and runs the thermgovd server until it is
// interrupted, performing the signal handling and bounded graceful
// shutdown.
func runDaemon(cmd *cobra.Command, cfg *options.Config) error {
	srv, log, err := options.NewServer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if serr := logger.Sync(log); serr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "logger sync warning: %v\n", serr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case err := <-errCh:
		// The server failed (or finished) before any signal arrived.
		return err
	case <-ctx.Done():
	}
	log.Info("received shutdown signal")

	select {
	case err := <-errCh:
		return err
	case <-time.After(shutdownTimeout):
		log.Warn("graceful shutdown timed out", zap.Duration("timeout", shutdownTimeout))
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}
}
