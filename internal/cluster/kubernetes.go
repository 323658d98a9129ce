package cluster

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"ephemcp/internal/workload"
	"ephemcp/pkg/logging"
)

const subsystem = "Cluster"

// fatalWaitingReasons are container waiting reasons the kubelet will not
// recover from without a spec change.
var fatalWaitingReasons = map[string]bool{
	"InvalidImageName":           true,
	"ErrImageNeverPull":          true,
	"CreateContainerConfigError": true,
	"CreateContainerError":       true,
}

// KubernetesClient implements Client on top of a controller-runtime client
// scoped to a single namespace.
type KubernetesClient struct {
	client    client.Client
	namespace string
}

// NewScheme returns a scheme with the built-in Kubernetes types registered.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	return scheme
}

// NewKubernetesClient creates a client for namespace from a REST config.
//
// Args:
//   - config: Kubernetes REST configuration, see LoadRESTConfig
//   - namespace: namespace all Jobs and Services live in
//
// Returns:
//   - *KubernetesClient: the adapter
//   - error: if the controller-runtime client cannot be constructed
func NewKubernetesClient(config *rest.Config, namespace string) (*KubernetesClient, error) {
	c, err := client.New(config, client.Options{Scheme: NewScheme()})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return NewKubernetesClientFrom(c, namespace), nil
}

// NewKubernetesClientFrom wraps an existing controller-runtime client.
func NewKubernetesClientFrom(c client.Client, namespace string) *KubernetesClient {
	return &KubernetesClient{client: c, namespace: namespace}
}

// Namespace returns the namespace the client operates in.
func (k *KubernetesClient) Namespace() string { return k.namespace }

// Client returns the underlying controller-runtime client.
func (k *KubernetesClient) Client() client.Client { return k.client }

// CheckNamespace verifies that the configured namespace exists.
func (k *KubernetesClient) CheckNamespace(ctx context.Context) error {
	ns := &corev1.Namespace{}
	if err := k.client.Get(ctx, client.ObjectKey{Name: k.namespace}, ns); err != nil {
		return Classify(err, "failed to get namespace %s", k.namespace)
	}
	return nil
}

// CreateComputeUnit creates the Job. An existing Job with the same name counts as success.
func (k *KubernetesClient) CreateComputeUnit(ctx context.Context, job *batchv1.Job) error {
	job = job.DeepCopy()
	job.Namespace = k.namespace
	if err := k.client.Create(ctx, job); err != nil {
		if apierrors.IsAlreadyExists(err) {
			logging.Debug(subsystem, "Job %s/%s already exists", k.namespace, job.Name)
			return nil
		}
		return Classify(err, "failed to create job %s/%s", k.namespace, job.Name)
	}
	logging.Debug(subsystem, "Created job %s/%s", k.namespace, job.Name)
	return nil
}

// CreateEndpoint creates the Service. An existing Service with the same name counts as success.
func (k *KubernetesClient) CreateEndpoint(ctx context.Context, svc *corev1.Service) error {
	svc = svc.DeepCopy()
	svc.Namespace = k.namespace
	if err := k.client.Create(ctx, svc); err != nil {
		if apierrors.IsAlreadyExists(err) {
			logging.Debug(subsystem, "Service %s/%s already exists", k.namespace, svc.Name)
			return nil
		}
		return Classify(err, "failed to create service %s/%s", k.namespace, svc.Name)
	}
	logging.Debug(subsystem, "Created service %s/%s", k.namespace, svc.Name)
	return nil
}

// GetComputeUnitStatus reads the Job and, while it is active, its pods.
func (k *KubernetesClient) GetComputeUnitStatus(ctx context.Context, name string) (ComputeUnitStatus, error) {
	job := &batchv1.Job{}
	if err := k.client.Get(ctx, client.ObjectKey{Namespace: k.namespace, Name: name}, job); err != nil {
		return ComputeUnitStatus{}, Classify(err, "failed to get job %s/%s", k.namespace, name)
	}

	status := ComputeUnitStatus{
		Name:      name,
		CreatedAt: job.CreationTimestamp.Time,
	}

	if phase, msg, done := jobPhase(job); done {
		status.Phase = phase
		status.Message = msg
		return status, nil
	}

	selector := job.Spec.Template.Labels
	if id := selector[workload.LabelServerID]; id != "" {
		selector = workload.Selector(id)
	}

	pods := &corev1.PodList{}
	if err := k.client.List(ctx, pods, client.InNamespace(k.namespace), client.MatchingLabels(selector)); err != nil {
		return ComputeUnitStatus{}, Classify(err, "failed to list pods of job %s/%s", k.namespace, name)
	}

	status.Phase = PhasePending
	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.DeletionTimestamp != nil {
			continue
		}
		phase, msg := podPhase(pod)
		if phase.rank() > status.Phase.rank() {
			status.Phase = phase
			status.PodName = pod.Name
			status.Message = msg
		}
	}
	return status, nil
}

// GetEndpointAddress reads the Service.
func (k *KubernetesClient) GetEndpointAddress(ctx context.Context, name string) (EndpointAddress, error) {
	svc := &corev1.Service{}
	if err := k.client.Get(ctx, client.ObjectKey{Namespace: k.namespace, Name: name}, svc); err != nil {
		return EndpointAddress{}, Classify(err, "failed to get service %s/%s", k.namespace, name)
	}

	addr := EndpointAddress{
		Name:      svc.Name,
		Namespace: svc.Namespace,
		ClusterIP: svc.Spec.ClusterIP,
	}
	if len(svc.Spec.Ports) > 0 {
		addr.Port = svc.Spec.Ports[0].Port
	}
	return addr, nil
}

// DeleteComputeUnit deletes the Job and, in the background, its pods.
func (k *KubernetesClient) DeleteComputeUnit(ctx context.Context, name string) error {
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Namespace: k.namespace, Name: name}}
	return k.delete(ctx, job, "job", name, client.PropagationPolicy(metav1.DeletePropagationBackground))
}

// DeleteEndpoint deletes the Service.
func (k *KubernetesClient) DeleteEndpoint(ctx context.Context, name string) error {
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Namespace: k.namespace, Name: name}}
	return k.delete(ctx, svc, "service", name)
}

func (k *KubernetesClient) delete(ctx context.Context, obj client.Object, kind, name string, opts ...client.DeleteOption) error {
	if err := k.client.Delete(ctx, obj, opts...); err != nil {
		if apierrors.IsNotFound(err) {
			logging.Debug(subsystem, "%s %s/%s already gone", kind, k.namespace, name)
			return nil
		}
		return Classify(err, "failed to delete %s %s/%s", kind, k.namespace, name)
	}
	logging.Debug(subsystem, "Deleted %s %s/%s", kind, k.namespace, name)
	return nil
}

// ListComputeUnits lists Jobs carrying the ephemcp managed-by label. Foreign
// Jobs in the same namespace are never returned.
func (k *KubernetesClient) ListComputeUnits(ctx context.Context) ([]ComputeUnitInfo, error) {
	jobs := &batchv1.JobList{}
	if err := k.client.List(ctx, jobs, client.InNamespace(k.namespace), client.MatchingLabels(workload.ManagedSelector())); err != nil {
		return nil, Classify(err, "failed to list jobs in %s", k.namespace)
	}

	infos := make([]ComputeUnitInfo, 0, len(jobs.Items))
	for i := range jobs.Items {
		job := &jobs.Items[i]
		id := job.Labels[workload.LabelServerID]
		if id == "" {
			continue
		}

		info := ComputeUnitInfo{
			Name:        job.Name,
			ServerID:    id,
			Labels:      job.Labels,
			Annotations: job.Annotations,
			CreatedAt:   job.CreationTimestamp.Time,
			Phase:       PhasePending,
		}
		if containers := job.Spec.Template.Spec.Containers; len(containers) > 0 {
			info.Image = containers[0].Image
		}
		if phase, _, done := jobPhase(job); done {
			info.Phase = phase
		} else if job.Status.Ready != nil && *job.Status.Ready > 0 {
			info.Phase = PhaseReady
		} else if job.Status.Active > 0 {
			info.Phase = PhaseRunning
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func jobPhase(job *batchv1.Job) (ComputeUnitPhase, string, bool) {
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobFailed:
			return PhaseFailed, conditionMessage(cond.Reason, cond.Message), true
		case batchv1.JobComplete:
			return PhaseSucceeded, "server exited", true
		}
	}
	if job.Status.Failed > 0 {
		return PhaseFailed, fmt.Sprintf("%d pod(s) failed", job.Status.Failed), true
	}
	if job.Status.Succeeded > 0 {
		return PhaseSucceeded, "server exited", true
	}
	return "", "", false
}

func podPhase(pod *corev1.Pod) (ComputeUnitPhase, string) {
	switch pod.Status.Phase {
	case corev1.PodFailed:
		return PhaseFailed, conditionMessage(pod.Status.Reason, pod.Status.Message)
	case corev1.PodSucceeded:
		return PhaseSucceeded, "server exited"
	}

	for _, cs := range pod.Status.ContainerStatuses {
		if w := cs.State.Waiting; w != nil && fatalWaitingReasons[w.Reason] {
			return PhaseFailed, conditionMessage(w.Reason, w.Message)
		}
		if t := cs.State.Terminated; t != nil && t.ExitCode != 0 {
			return PhaseFailed, conditionMessage(t.Reason, fmt.Sprintf("exit code %d", t.ExitCode))
		}
	}

	if pod.Status.Phase != corev1.PodRunning {
		return PhasePending, ""
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return PhaseReady, ""
		}
	}
	return PhaseRunning, ""
}

func conditionMessage(reason, message string) string {
	switch {
	case reason != "" && message != "":
		return reason + ": " + message
	case reason != "":
		return reason
	default:
		return message
	}
}

// rank orders phases so a terminal pod wins over a running one.
func (p ComputeUnitPhase) rank() int {
	switch p {
	case PhasePending:
		return 0
	case PhaseRunning:
		return 1
	case PhaseReady:
		return 2
	case PhaseSucceeded:
		return 3
	case PhaseFailed:
		return 4
	default:
		return -1
	}
}
