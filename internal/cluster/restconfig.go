package cluster

import (
	"fmt"
	"time"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const restTimeout = 30 * time.Second

// LoadRESTConfig resolves cluster credentials the way kubectl does: an explicit
// kubeconfig path, then $KUBECONFIG and ~/.kube/config, then the in-cluster
// service account. An empty kubeContext selects the current context.
func LoadRESTConfig(kubeconfig, kubeContext string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	cfg.Timeout = restTimeout
	return cfg, nil
}
