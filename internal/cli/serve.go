package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/biomni/internal/config"
	"github.com/harun/biomni/pkg/plugin"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a host plugin over stdio",
	Long: `Run the plugin server. The host launches this command and talks to it
over the go-plugin handshake on stdout, so all logs go to stderr. The config
file is watched and reloaded on change.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	zl := a.log.GetZerolog()

	// SIGINT belongs to the host, which forwards Ctrl-C to its whole group;
	// go-plugin ignores it in the plugin.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr); err != nil {
				zl.Error().Err(err).Str("addr", addr).Msg("Metrics endpoint stopped")
			}
		}()
		zl.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	}

	if a.loader.GetConfigPath() != "" {
		w, err := config.NewWatcher(config.WatcherConfig{
			Loader:    a.loader,
			OnReload:  a.reload,
			AfterLoad: applyFlags,
			Logger:    zl,
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	zl.Info().
		Str("model", a.cfg.Model).
		Str("agent_import", a.cfg.AgentImport).
		Dur("timeout", a.cfg.Timeout()).
		Msg("Serving biomni plugin")

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	served := make(chan struct{})
	go func() {
		select {
		case <-served:
			return
		case <-ctx.Done():
		}
		select {
		case <-served:
			return
		default:
		}
		zl.Info().Msg("Termination requested, stopping in-flight invocations")
		cancelServe()
		a.drain()
		_ = a.Close()
		os.Exit(0)
	}()

	// Canceling serveCtx cancels every served call, which reaps its agent group.
	plugin.Serve(serveCtx, a.provider, a.log.HCLog("plugin"))
	close(served)
	cancelServe()
	a.drain()
	return nil
}

// drain waits for canceled invocations to reap their processes
func (a *app) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.KillGrace()+5*time.Second)
	defer cancel()
	if err := a.provider.Drain(ctx); err != nil {
		zl := a.log.GetZerolog()
		zl.Warn().Err(err).Msg("In-flight invocations did not finish")
	}
}
