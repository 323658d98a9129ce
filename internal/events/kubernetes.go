package events

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"ephemcp/internal/api"
	"ephemcp/internal/workload"
)

// KubernetesRecorder records state changes as core/v1 Events on the Job that
// backs the server, so `kubectl describe job` shows the lifecycle.
type KubernetesRecorder struct {
	client    client.Client
	namespace string
	namer     workload.Namer
	templates *MessageTemplateEngine
	now       func() time.Time
}

// NewKubernetesRecorder creates a recorder writing to namespace.
func NewKubernetesRecorder(c client.Client, namespace string, namer workload.Namer) *KubernetesRecorder {
	if namer == nil {
		namer = workload.DefaultNamer{}
	}
	return &KubernetesRecorder{
		client:    c,
		namespace: namespace,
		namer:     namer,
		templates: NewMessageTemplateEngine(),
		now:       time.Now,
	}
}

// Templates exposes the message templates for customization.
func (r *KubernetesRecorder) Templates() *MessageTemplateEngine {
	return r.templates
}

func (r *KubernetesRecorder) Publish(ctx context.Context, ev api.StateChangeEvent) error {
	reason := ReasonFor(ev.To)
	name := r.namer.ComputeUnitName(ev.ServerID)
	now := metav1.NewTime(r.now())

	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: name + "-",
			Namespace:    r.namespace,
			Labels:       map[string]string{workload.LabelManagedBy: workload.ManagedByValue},
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: "batch/v1",
			Kind:       "Job",
			Name:       name,
			Namespace:  r.namespace,
		},
		Reason:         string(reason),
		Message:        r.templates.Render(reason, DataFrom(ev, r.namespace)),
		Type:           string(TypeFor(reason)),
		Source:         corev1.EventSource{Component: workload.ManagedByValue},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}

	if err := r.client.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event for job %s/%s: %w", r.namespace, name, err)
	}
	return nil
}

func (r *KubernetesRecorder) Close() error { return nil }
