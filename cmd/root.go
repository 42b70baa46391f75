// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/config"
	"github.com/xkilldash9x/steadyhand/internal/logpipe"
	"github.com/xkilldash9x/steadyhand/internal/observability"
)

type contextKey string

const appKey contextKey = "app"

const envPrefix = "STEADYHAND"

// flagKeys maps subcommand flags onto the config keys they override.
var flagKeys = map[string]string{
	"browser":         "browser.kind",
	"remote-url":      "browser.remote_url",
	"workers":         "run.workers",
	"url":             "run.url",
	"capture-network": "proxy.capture",
}

// app is the state PersistentPreRunE hands down to subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	// buffer is teed into the global logger and feeds the correlation pipeline.
	buffer *logpipe.Buffer
	tracer *observability.TracerProvider
}

func appFrom(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("configuration not initialized")
	}
	return a, nil
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state so tests and repeated invocations do not leak into each other.
func NewRootCommand() *cobra.Command {
	var cfgFile, envFile string

	cmd := &cobra.Command{
		Use:           "steadyhand",
		Short:         "steadyhand drives end-to-end UI scenarios against real browsers.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(envFile); err != nil {
				return err
			}

			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "steadyhand"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			buffer := logpipe.NewBuffer(observability.ParseLevel(cfg.Logs.BufferLevel))
			observability.InitializeLogger(cfg.Logger, buffer)
			logger := observability.GetLogger()

			tp, err := observability.NewTracerProvider(cfg.Tracing, cfg.Logger.ServiceName, Version)
			if err != nil {
				return err
			}

			logger.Info("Starting steadyhand.", zap.String("version", Version), zap.String("command", cmd.Name()))
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &app{cfg: cfg, logger: logger, buffer: buffer, tracer: tp}))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return nil
			}
			if err := a.tracer.Shutdown(context.WithoutCancel(cmd.Context())); err != nil {
				a.logger.Warn("Failed to flush traces.", zap.Error(err))
			}
			if err := observability.WriteMetricsTextfile(a.cfg.Metrics.Textfile); err != nil {
				a.logger.Warn("Failed to write metrics textfile.", zap.String("path", a.cfg.Metrics.Textfile), zap.Error(err))
			}
			observability.Sync()
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./steadyhand.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the environment is read (default is ./.env)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(newRunCmd(nil))
	cmd.AddCommand(newCapsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		}
		return err
	}
	return nil
}

// loadDotEnv reads path (or ./.env) into the process environment without
// overriding variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// initializeConfig reads the config file, the environment and any bound
// flags into v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("steadyhand")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}
