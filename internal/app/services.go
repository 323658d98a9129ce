package app

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"ephemcp/internal/cluster"
	"ephemcp/internal/config"
	"ephemcp/internal/events"
	"ephemcp/internal/lifecycle"
	"ephemcp/internal/metrics"
	"ephemcp/internal/presets"
	"ephemcp/internal/resolver"
	"ephemcp/internal/server"
	"ephemcp/internal/workload"
	"ephemcp/pkg/logging"
)

// Services holds all initialized components used by the application.
type Services struct {
	// Settings is the effective configuration.
	Settings config.Config

	// Cluster is the orchestrator client the manager drives.
	Cluster cluster.Client

	// Manager owns the server registry and state machine.
	Manager *lifecycle.Manager

	Presets *presets.Catalog
	Metrics *metrics.Prometheus

	// Events fans state changes out to the configured publishers.
	Events *events.Bus

	// Server is the MCP front end.
	Server *server.Server
}

// Dependencies are the cluster-facing parts of the service graph.
type Dependencies struct {
	Cluster cluster.Client

	// KubeClient backs the Kubernetes event recorder. When nil, Kubernetes
	// events are not recorded even if enabled in the configuration.
	KubeClient client.Client
}

// InitializeServices connects to the cluster described by cfg.Settings,
// verifies the namespace and wires every component.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	settings := *cfg.Settings

	restConfig, err := cluster.LoadRESTConfig(settings.Kubeconfig, settings.KubeContext)
	if err != nil {
		return nil, err
	}
	kube, err := cluster.NewKubernetesClient(restConfig, settings.Namespace)
	if err != nil {
		return nil, err
	}
	if err := kube.CheckNamespace(ctx); err != nil {
		return nil, err
	}
	logging.Info("Bootstrap", "Connected to cluster %s, namespace %s", restConfig.Host, settings.Namespace)

	return NewServices(cfg, Dependencies{Cluster: kube, KubeClient: kube.Client()})
}

// NewServices wires the components on top of the given cluster dependencies.
func NewServices(cfg *Config, deps Dependencies) (*Services, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	if deps.Cluster == nil {
		return nil, fmt.Errorf("cluster client is required")
	}
	settings := *cfg.Settings

	translator := workload.NewTranslator(workload.OptionsFromConfig(settings), workload.DefaultNamer{})
	res, err := resolver.New(settings.Resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	catalog, err := presets.NewCatalog(settings.Presets.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}

	publisher, err := newPublisher(settings, deps, translator.Namer())
	if err != nil {
		return nil, err
	}
	bus := events.NewBus(publisher, settings.Events.BufferSize)

	prom := metrics.NewPrometheus()
	manager, err := lifecycle.NewManager(deps.Cluster, lifecycle.Options{
		Translator: translator,
		Resolver:   res,
		Config:     settings.Lifecycle,
		Metrics:    prom,
		Events:     bus,
	})
	if err != nil {
		_ = bus.Close(context.Background())
		return nil, fmt.Errorf("failed to create lifecycle manager: %w", err)
	}

	srv, err := server.New(server.Options{
		Config:    settings.Server,
		Lifecycle: manager,
		Presets:   catalog,
		Metrics:   prom.Handler(),
		Version:   cfg.Version,
	})
	if err != nil {
		_ = bus.Close(context.Background())
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}

	return &Services{
		Settings: settings,
		Cluster:  deps.Cluster,
		Manager:  manager,
		Presets:  catalog,
		Metrics:  prom,
		Events:   bus,
		Server:   srv,
	}, nil
}

func newPublisher(settings config.Config, deps Dependencies, namer workload.Namer) (events.Publisher, error) {
	var publishers []events.Publisher

	if settings.Events.NATSURL != "" {
		nats, err := events.NewNATSPublisher(settings.Events.NATSURL, settings.Events.Subject)
		if err != nil {
			return nil, err
		}
		logging.Info("Bootstrap", "Publishing lifecycle events to NATS subject %s.*", settings.Events.Subject)
		publishers = append(publishers, nats)
	}

	if settings.Events.Kubernetes {
		if deps.KubeClient == nil {
			logging.Warn("Bootstrap", "Kubernetes events enabled but no Kubernetes client available")
		} else {
			publishers = append(publishers, events.NewKubernetesRecorder(deps.KubeClient, settings.Namespace, namer))
		}
	}

	return events.Multi(publishers...), nil
}
