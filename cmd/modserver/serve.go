package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/skekre98/modserver/actuator"
	"github.com/skekre98/modserver/cache"
	"github.com/skekre98/modserver/config"
	"github.com/skekre98/modserver/config/source"
	"github.com/skekre98/modserver/core"
	"github.com/skekre98/modserver/logging"
	"github.com/skekre98/modserver/web"
)

const defaultConfigPath = "configs/application.yaml"

type serveFlags struct {
	configPath string
	profile    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		// dotted config overrides are read by the CLI config source
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, os.Args[1:])
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			logger = logger.With(slog.String("app", cfg.App.Name), slog.String("version", cfg.App.Version))

			st, err := buildStack(cfg, logger)
			if err != nil {
				return err
			}
			return st.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", defaultConfigPath, "path to the YAML config file")
	cmd.Flags().StringVar(&flags.profile, "profile", os.Getenv("MODSERVER_PROFILE"), "config profile overlay, e.g. prod")
	return cmd
}

// loadConfig layers defaults, the config file, the environment and dotted
// command-line flags, in that order.
func loadConfig(flags serveFlags, args []string) (config.Root, error) {
	var cfg config.Root
	_, err := config.NewManager(&cfg, config.Options{},
		&config.DefaultsSource{},
		&source.FileSource{
			Path:     flags.configPath,
			Profile:  flags.profile,
			Optional: flags.configPath == defaultConfigPath,
		},
		&source.EnvSource{},
		&source.CLISource{Args: args},
	)
	if err != nil {
		return config.Root{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

type stack struct {
	app        *core.App
	registry   *core.Registry
	cache      *cache.FileCache
	dispatcher *web.Dispatcher
	server     *web.Server
	actuator   *actuator.Actuator
}

// buildStack registers every module and wires their dependencies
// explicitly; nothing is initialized until App.Run.
func buildStack(cfg config.Root, logger *slog.Logger) (*stack, error) {
	st := &stack{registry: core.NewRegistry(logger)}

	st.cache = cache.New(cache.Options{
		Root:      cfg.Cache.Root,
		Capacity:  cfg.Cache.Capacity,
		IOWorkers: cfg.Cache.IOWorkers,
		Warm:      []string{web.ErrorNotFoundPath, web.AttentionPath},
		Logger:    logger,
	})
	st.dispatcher = web.NewDispatcher(
		web.WithLogger(logger),
		web.WithFileCache(st.cache),
		web.WithStaticFiles(),
	)
	st.server = web.NewServer(st.dispatcher, web.ServerOptions{
		Address: cfg.Server.Address,
		Port:    cfg.Server.Port,
		Mode:    web.Mode(cfg.Server.Mode),
		Workers: cfg.Server.Workers,
		Session: web.SessionOptions{
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
		},
		Logger: logger,
	})
	st.actuator = actuator.New(actuator.Options{
		Addr:       cfg.Actuator.Addr,
		BasePath:   cfg.Actuator.BasePath,
		Metrics:    cfg.Observability.Metrics.Enabled,
		AppName:    cfg.App.Name,
		AppVersion: cfg.App.Version,
		Registry:   st.registry,
		Cache:      st.cache,
		Logger:     logger,
	})
	st.actuator.SetEnabled(cfg.Actuator.Enabled)

	for _, m := range []core.Module{st.cache, st.dispatcher, st.server, st.actuator} {
		if _, err := core.Register(st.registry, m); err != nil {
			return nil, err
		}
	}
	st.app = core.NewApp(logger, st.registry, core.WithIngress(st.server, st.actuator))
	return st, nil
}

// run starts the stack and blocks until ctx is done.
func (s *stack) run(ctx context.Context) error { return s.app.Run(ctx) }
