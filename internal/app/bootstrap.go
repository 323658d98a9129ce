package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ephemcp/internal/config"
	"ephemcp/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs ephemcp.
//
// Example usage:
//
//	cfg := app.NewConfig(true, "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication configures logging, loads and validates the configuration
// and initializes all services. It fails early when the cluster is
// unreachable or the namespace does not exist.
func NewApplication(cfg *Config) (*Application, error) {
	if err := InitLogging(cfg, os.Stderr); err != nil {
		return nil, err
	}

	settings, err := LoadSettings(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration")
		return nil, err
	}
	cfg.Settings = &settings

	ctx, cancel := context.WithTimeout(context.Background(), settings.Lifecycle.CreateTimeout)
	defer cancel()

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// NewApplicationWithServices wraps already initialized services.
func NewApplicationWithServices(cfg *Config, services *Services) *Application {
	return &Application{config: cfg, services: services}
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run executes the application until ctx is cancelled or the process
// receives SIGINT or SIGTERM.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runServer(ctx, a.services)
}

// InitLogging installs the process logger according to cfg.
func InitLogging(cfg *Config, output io.Writer) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	if cfg.Silent {
		output = io.Discard
	}

	format := logging.Format(cfg.LogFormat)
	switch format {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	logging.Init(level, format, output)
	return nil
}

// LoadSettings reads config.yaml from cfg.ConfigPath (or the default
// directory), applies the overrides and validates the result.
func LoadSettings(cfg *Config) (config.Config, error) {
	path := cfg.ConfigPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}

	settings, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	cfg.Overrides.Apply(&settings)
	if errs := config.Validate(settings); errs.HasErrors() {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", errs)
	}
	return settings, nil
}
