// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/steadyhand/internal/actions"
	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/backends"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
	"github.com/xkilldash9x/steadyhand/internal/browser/session"
	"github.com/xkilldash9x/steadyhand/internal/config"
	"github.com/xkilldash9x/steadyhand/internal/logpipe"
	"github.com/xkilldash9x/steadyhand/internal/netcapture"
	"github.com/xkilldash9x/steadyhand/internal/observability"
	"github.com/xkilldash9x/steadyhand/internal/report"
	"github.com/xkilldash9x/steadyhand/internal/scenario"
)

// launcherFunc builds the session launcher for a run.
type launcherFunc func(logger *zap.Logger, driverLog string) session.Launcher

func defaultLauncher(logger *zap.Logger, driverLog string) session.Launcher {
	return backends.New(logger, driverLog)
}

// runDeps is everything runSmoke needs that is not configuration.
type runDeps struct {
	launcher session.Launcher
	env      capabilities.Environment
	sink     report.Sink
	buffer   *logpipe.Buffer
	logger   *zap.Logger
	out      io.Writer
}

func newRunCmd(newLauncher launcherFunc) *cobra.Command {
	if newLauncher == nil {
		newLauncher = defaultLauncher
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the smoke scenario in parallel browser sessions",
		Long: `Opens one browser session per worker, navigates to the configured URL,
hovers the page body through the action engine and polls the browser console.
Failed workers leave a screenshot and the correlated log in the report directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := appFrom(ctx)
			if err != nil {
				return err
			}

			sink, closeSink, err := buildSink(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeSink()

			return runSmoke(ctx, a.cfg, runDeps{
				launcher: newLauncher(a.logger, a.cfg.Logs.DriverLogFile),
				env:      capabilities.EnvironmentFromConfig(a.cfg),
				sink:     sink,
				buffer:   a.buffer,
				logger:   a.logger,
				out:      cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringP("browser", "b", "chrome", "browser kind: chrome, firefox or edge")
	cmd.Flags().String("remote-url", "", "remote endpoint; switches to remote execution")
	cmd.Flags().IntP("workers", "w", 1, "number of parallel browser sessions")
	cmd.Flags().String("url", "about:blank", "page the smoke scenario opens")
	cmd.Flags().Bool("capture-network", false, "record traffic through a local proxy and attach it on failure")
	return cmd
}

// buildSink writes attachments under the report directory and, when a
// database is configured, to Postgres as well.
func buildSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (report.Sink, func(), error) {
	dir, err := report.NewDirSink(cfg.Report.Directory, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Report.DatabaseURL == "" {
		return dir, func() {}, nil
	}

	pg, closePool, err := report.ConnectPostgres(ctx, cfg.Report.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return report.MultiSink{dir, pg}, closePool, nil
}

// startCapture puts a recording proxy in front of the configured upstream and
// points env at it.
func startCapture(ctx context.Context, cfg *config.Config, env *capabilities.Environment, logger *zap.Logger) (*netcapture.Proxy, error) {
	p, err := netcapture.New(cfg.Proxy.Address(), logger)
	if err != nil {
		return nil, err
	}
	addr, err := p.Start(ctx, "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("unexpected capture address %q: %w", addr, err)
	}
	env.ProxyHost, env.ProxyPort = host, port
	return p, nil
}

func runSmoke(ctx context.Context, cfg *config.Config, deps runDeps) error {
	logger := deps.logger.Named("run")
	kind, err := browser.ParseKind(cfg.Browser.Kind)
	if err != nil {
		return err
	}

	if path := cfg.Logs.DriverLogFile; path != "" {
		stop, err := logpipe.TailDriverLog(ctx, path, deps.logger, logpipe.TailOptions{})
		if err != nil {
			logger.Warn("Driver log will not be captured.", zap.String("path", path), zap.Error(err))
		} else {
			defer stop()
		}
	}

	opts := scenario.Options{
		Kind:          kind,
		RemoteURL:     cfg.Browser.RemoteURL,
		ScreenshotDir: cfg.Report.ScreenshotDir,
	}
	env := deps.env
	if cfg.Proxy.Capture {
		p, err := startCapture(ctx, cfg, &env, deps.logger)
		if err != nil {
			return fmt.Errorf("failed to start network capture: %w", err)
		}
		defer p.Close()
		opts.Network = p
	}

	pipeline := logpipe.New(deps.logger, deps.buffer, deps.sink, cfg.Logs.ConsoleAllowList)
	manager := session.NewManager(deps.launcher, env, pipeline, deps.logger)
	defer manager.Shutdown(context.WithoutCancel(ctx))

	logger.Info("Running smoke scenario.",
		zap.String("browser", kind.String()),
		zap.Int("workers", cfg.Run.Workers),
		zap.String("url", cfg.Run.URL),
	)

	var (
		mu       sync.Mutex
		failures []error
		g        errgroup.Group
	)
	for i := range cfg.Run.Workers {
		name := fmt.Sprintf("smoke-%d", i+1)
		g.Go(func() error {
			h := scenario.New(manager.NewWorker(), pipeline, deps.sink, deps.logger, opts)
			defer h.AfterAll(context.WithoutCancel(ctx))

			if err := smokeScenario(ctx, h, name, cfg); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				fmt.Fprintf(deps.out, "FAIL %s: %v\n", name, err)
				return nil
			}
			fmt.Fprintf(deps.out, "ok   %s\n", name)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}

// smokeScenario opens the session, loads the page, exercises one resilient
// action and polls the console. A failure leaves artifacts through After.
func smokeScenario(ctx context.Context, h *scenario.Harness, name string, cfg *config.Config) (err error) {
	ctx, span := observability.StartSpan(ctx, "scenario.smoke", attribute.String("scenario", name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := h.Before(ctx, name); err != nil {
		return err
	}
	defer func() { h.After(context.WithoutCancel(ctx), err != nil) }()

	if err := h.RobustGet(ctx, cfg.Run.URL); err != nil {
		return err
	}

	engine := h.Actions()
	body, err := engine.Driver().Find(ctx, "body")
	if err != nil {
		return fmt.Errorf("page has no body: %w", err)
	}
	if !engine.Hover(ctx, body, actions.Always(), cfg.Run.ActionTimeout) {
		return errors.New("hover over the page body did not converge")
	}

	if ua, err := h.UserAgent(ctx); err == nil {
		observability.GetLogger().Debug("Browser identified.", zap.String("scenario", name), zap.String("user_agent", ua))
	}
	h.PrintBrowserLogs(ctx)
	return nil
}
