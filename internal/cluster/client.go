package cluster

import (
	"context"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// ComputeUnitPhase is the coarse status of a Job and its pod.
type ComputeUnitPhase string

const (
	// PhasePending means no pod is running yet.
	PhasePending ComputeUnitPhase = "Pending"
	// PhaseRunning means the pod runs but does not pass readiness.
	PhaseRunning ComputeUnitPhase = "Running"
	// PhaseReady means the pod passes its readiness probe.
	PhaseReady ComputeUnitPhase = "Ready"
	// PhaseSucceeded means the server process exited with status 0.
	PhaseSucceeded ComputeUnitPhase = "Succeeded"
	// PhaseFailed means the Job or its pod failed.
	PhaseFailed ComputeUnitPhase = "Failed"
)

// IsTerminal reports whether the workload has stopped for good.
func (p ComputeUnitPhase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// ComputeUnitStatus is a point-in-time observation of a Job.
type ComputeUnitStatus struct {
	Name      string
	Phase     ComputeUnitPhase
	PodName   string
	Message   string
	CreatedAt time.Time
}

// ComputeUnitInfo describes a managed Job found by ListComputeUnits.
type ComputeUnitInfo struct {
	Name        string
	ServerID    string
	Image       string
	Labels      map[string]string
	Annotations map[string]string
	CreatedAt   time.Time
	Phase       ComputeUnitPhase
}

// EndpointAddress is the cluster-side address of a Service.
type EndpointAddress struct {
	Name      string
	Namespace string
	ClusterIP string
	Port      int32
}

// Client is the orchestrator API the lifecycle manager depends on.
type Client interface {
	CreateComputeUnit(ctx context.Context, job *batchv1.Job) error
	CreateEndpoint(ctx context.Context, svc *corev1.Service) error
	GetComputeUnitStatus(ctx context.Context, name string) (ComputeUnitStatus, error)
	GetEndpointAddress(ctx context.Context, name string) (EndpointAddress, error)
	DeleteComputeUnit(ctx context.Context, name string) error
	DeleteEndpoint(ctx context.Context, name string) error
	ListComputeUnits(ctx context.Context) ([]ComputeUnitInfo, error)
}
