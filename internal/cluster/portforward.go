package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"ephemcp/pkg/logging"
)

// PortForwarder opens local tunnels to the pod behind a server's Service.
type PortForwarder struct {
	clientset kubernetes.Interface
	config    *rest.Config
	namespace string
}

// NewPortForwarder creates a PortForwarder from a REST config.
func NewPortForwarder(config *rest.Config, namespace string) (*PortForwarder, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	return &PortForwarder{clientset: clientset, config: config, namespace: namespace}, nil
}

// ForwardSession is an active tunnel. Close stops it.
type ForwardSession struct {
	LocalPort uint16
	PodName   string

	stopCh chan struct{}
	once   sync.Once
	done   chan error
}

// Close stops forwarding and waits for the forwarder to exit.
func (s *ForwardSession) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return <-s.done
}

// Forward picks a ready pod selected by serviceName and forwards a random
// local port on 127.0.0.1 to remotePort. It returns once the tunnel is ready.
func (p *PortForwarder) Forward(ctx context.Context, serviceName string, remotePort int32) (*ForwardSession, error) {
	podName, err := p.readyPod(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	reqURL := p.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(p.namespace).
		Name(podName).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(p.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPDY round tripper: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	session := &ForwardSession{
		PodName: podName,
		stopCh:  make(chan struct{}),
		done:    make(chan error, 1),
	}
	readyCh := make(chan struct{})

	fw, err := portforward.NewOnAddresses(dialer, []string{"127.0.0.1"}, []string{fmt.Sprintf("0:%d", remotePort)}, session.stopCh, readyCh, io.Discard, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("failed to create port forwarder: %w", err)
	}

	go func() {
		session.done <- fw.ForwardPorts()
	}()

	select {
	case <-readyCh:
	case err := <-session.done:
		session.done <- err
		return nil, fmt.Errorf("port-forward to %s/%s failed: %w", p.namespace, podName, err)
	case <-ctx.Done():
		_ = session.Close()
		return nil, ctx.Err()
	}

	ports, err := fw.GetPorts()
	if err != nil || len(ports) == 0 {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get forwarded port: %w", err)
	}
	session.LocalPort = ports[0].Local

	logging.Info(subsystem, "Forwarding 127.0.0.1:%d -> %s/%s:%d", session.LocalPort, p.namespace, podName, remotePort)
	return session, nil
}

// readyPod resolves a Service to the name of a running, ready pod behind it.
func (p *PortForwarder) readyPod(ctx context.Context, serviceName string) (string, error) {
	svc, err := p.clientset.CoreV1().Services(p.namespace).Get(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		return "", Classify(err, "failed to get service %s/%s", p.namespace, serviceName)
	}
	if len(svc.Spec.Selector) == 0 {
		return "", fmt.Errorf("service %s/%s has no selector, cannot find backing pods", p.namespace, serviceName)
	}

	selector := labels.SelectorFromSet(svc.Spec.Selector)
	pods, err := p.clientset.CoreV1().Pods(p.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return "", Classify(err, "failed to list pods for service %s/%s", p.namespace, serviceName)
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Status.Phase != corev1.PodRunning || pod.DeletionTimestamp != nil {
			continue
		}
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
				return pod.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no ready pod found for service %s/%s with selector %s", p.namespace, serviceName, selector.String())
}
