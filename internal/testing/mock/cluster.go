package mock

import (
	"context"
	"sync"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"ephemcp/internal/api"
	"ephemcp/internal/cluster"
	"ephemcp/internal/workload"
)

// Op names a cluster.Client operation.
type Op string

const (
	OpCreateComputeUnit Op = "CreateComputeUnit"
	OpCreateEndpoint    Op = "CreateEndpoint"
	OpGetStatus         Op = "GetComputeUnitStatus"
	OpGetEndpoint       Op = "GetEndpointAddress"
	OpDeleteComputeUnit Op = "DeleteComputeUnit"
	OpDeleteEndpoint    Op = "DeleteEndpoint"
	OpList              Op = "ListComputeUnits"
)

type fault struct {
	err   error
	apply bool
}

type unit struct {
	job        *batchv1.Job
	phase      cluster.ComputeUnitPhase
	message    string
	readyAfter int
	polls      int
}

// Cluster is an in-memory cluster.Client.
type Cluster struct {
	mu        sync.Mutex
	namespace string
	units     map[string]*unit
	services  map[string]*corev1.Service
	faults    map[Op][]fault
	calls     map[Op]int
	created   map[Op]int
	deleted   map[Op]int
	delay     time.Duration
	now       func() time.Time
}

var _ cluster.Client = (*Cluster)(nil)

// NewCluster returns an empty fake cluster.
func NewCluster() *Cluster {
	return &Cluster{
		namespace: "default",
		units:     map[string]*unit{},
		services:  map[string]*corev1.Service{},
		faults:    map[Op][]fault{},
		calls:     map[Op]int{},
		created:   map[Op]int{},
		deleted:   map[Op]int{},
		now:       time.Now,
	}
}

// SetLatency makes every call sleep for d before doing anything.
func (c *Cluster) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// SetNow overrides the clock used for creation timestamps.
func (c *Cluster) SetNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// FailNext makes the next call of op return err without side effects.
func (c *Cluster) FailNext(op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = append(c.faults[op], fault{err: err})
}

// ApplyThenFail makes the next call of op perform its write and then report a
// Transient error, as when a response is lost after the server committed.
func (c *Cluster) ApplyThenFail(op Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = append(c.faults[op], fault{
		err:   api.NewTransientError(nil, "simulated lost response for %s", op),
		apply: true,
	})
}

// TransientError returns an error the adapter would classify as Transient.
func TransientError() error {
	return api.NewTransientError(nil, "simulated control-plane hiccup")
}

// PermanentError returns an error the adapter would classify as Permanent.
func PermanentError() error {
	return api.NewPermanentError(nil, "simulated rejection")
}

// Calls returns how often op was invoked, failed calls included.
func (c *Cluster) Calls(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Effects returns how many calls of op changed state: objects actually
// created or deleted.
func (c *Cluster) Effects(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created[op] + c.deleted[op]
}

// JobCount returns the number of existing Jobs.
func (c *Cluster) JobCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.units)
}

// ServiceCount returns the number of existing Services.
func (c *Cluster) ServiceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.services)
}

// HasJob reports whether a Job named name exists.
func (c *Cluster) HasJob(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.units[name]
	return ok
}

// HasService reports whether a Service named name exists.
func (c *Cluster) HasService(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.services[name]
	return ok
}

// Job returns a copy of the named Job, or nil.
func (c *Cluster) Job(name string) *batchv1.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.units[name]; ok {
		return u.job.DeepCopy()
	}
	return nil
}

// SetPhase moves the named Job to phase.
func (c *Cluster) SetPhase(name string, phase cluster.ComputeUnitPhase, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.units[name]; ok {
		u.phase = phase
		u.message = message
	}
}

// MarkReady simulates the pod passing its readiness probe.
func (c *Cluster) MarkReady(name string) {
	c.SetPhase(name, cluster.PhaseReady, "")
}

// Fail simulates the Job failing.
func (c *Cluster) Fail(name, message string) {
	c.SetPhase(name, cluster.PhaseFailed, message)
}

// ReadyAfterPolls makes the named Job report Running for n status polls and
// Ready afterwards. It applies to Jobs created later as well.
func (c *Cluster) ReadyAfterPolls(name string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.units[name]
	if !ok {
		u = &unit{phase: cluster.PhasePending}
		c.units[name] = u
	}
	u.readyAfter = n
	u.polls = 0
}

// AddForeignJob inserts a Job the fake does not own, as seen by ListComputeUnits.
func (c *Cluster) AddForeignJob(job *batchv1.Job, phase cluster.ComputeUnitPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[job.Name] = &unit{job: job.DeepCopy(), phase: phase}
}

// takeFault pops the next fault for op. Callers hold c.mu.
func (c *Cluster) takeFault(op Op) (fault, bool) {
	c.calls[op]++
	queue := c.faults[op]
	if len(queue) == 0 {
		return fault{}, false
	}
	c.faults[op] = queue[1:]
	return queue[0], true
}

func (c *Cluster) begin(ctx context.Context, op Op) (fault, bool, error) {
	c.mu.Lock()
	delay := c.delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fault{}, false, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return fault{}, false, err
	}

	c.mu.Lock()
	f, ok := c.takeFault(op)
	c.mu.Unlock()
	return f, ok, nil
}

func (c *Cluster) CreateComputeUnit(ctx context.Context, job *batchv1.Job) error {
	f, faulted, err := c.begin(ctx, OpCreateComputeUnit)
	if err != nil {
		return err
	}
	if faulted && !f.apply {
		return f.err
	}

	c.mu.Lock()
	u, ok := c.units[job.Name]
	switch {
	case !ok:
		c.units[job.Name] = &unit{job: c.stamp(job), phase: cluster.PhasePending}
		c.created[OpCreateComputeUnit]++
	case u.job == nil:
		// ReadyAfterPolls was configured before the Job existed.
		u.job = c.stamp(job)
		c.created[OpCreateComputeUnit]++
	}
	c.mu.Unlock()

	if faulted {
		return f.err
	}
	return nil
}

func (c *Cluster) CreateEndpoint(ctx context.Context, svc *corev1.Service) error {
	f, faulted, err := c.begin(ctx, OpCreateEndpoint)
	if err != nil {
		return err
	}
	if faulted && !f.apply {
		return f.err
	}

	c.mu.Lock()
	if _, ok := c.services[svc.Name]; !ok {
		cp := svc.DeepCopy()
		cp.Namespace = c.namespace
		cp.Spec.ClusterIP = "10.96.0.10"
		c.services[svc.Name] = cp
		c.created[OpCreateEndpoint]++
	}
	c.mu.Unlock()

	if faulted {
		return f.err
	}
	return nil
}

func (c *Cluster) GetComputeUnitStatus(ctx context.Context, name string) (cluster.ComputeUnitStatus, error) {
	f, faulted, err := c.begin(ctx, OpGetStatus)
	if err != nil {
		return cluster.ComputeUnitStatus{}, err
	}
	if faulted {
		return cluster.ComputeUnitStatus{}, f.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.units[name]
	if !ok || u.job == nil {
		return cluster.ComputeUnitStatus{}, api.NewNotFoundError("job", name)
	}

	if u.readyAfter > 0 && !u.phase.IsTerminal() {
		u.polls++
		if u.polls >= u.readyAfter {
			u.phase = cluster.PhaseReady
		} else {
			u.phase = cluster.PhaseRunning
		}
	}

	status := cluster.ComputeUnitStatus{
		Name:      name,
		Phase:     u.phase,
		Message:   u.message,
		CreatedAt: u.job.CreationTimestamp.Time,
	}
	if u.phase != cluster.PhasePending {
		status.PodName = name + "-pod"
	}
	return status, nil
}

func (c *Cluster) GetEndpointAddress(ctx context.Context, name string) (cluster.EndpointAddress, error) {
	f, faulted, err := c.begin(ctx, OpGetEndpoint)
	if err != nil {
		return cluster.EndpointAddress{}, err
	}
	if faulted {
		return cluster.EndpointAddress{}, f.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.services[name]
	if !ok {
		return cluster.EndpointAddress{}, api.NewNotFoundError("service", name)
	}
	addr := cluster.EndpointAddress{Name: svc.Name, Namespace: svc.Namespace, ClusterIP: svc.Spec.ClusterIP}
	if len(svc.Spec.Ports) > 0 {
		addr.Port = svc.Spec.Ports[0].Port
	}
	return addr, nil
}

func (c *Cluster) DeleteComputeUnit(ctx context.Context, name string) error {
	f, faulted, err := c.begin(ctx, OpDeleteComputeUnit)
	if err != nil {
		return err
	}
	if faulted && !f.apply {
		return f.err
	}

	c.mu.Lock()
	if u, ok := c.units[name]; ok && u.job != nil {
		delete(c.units, name)
		c.deleted[OpDeleteComputeUnit]++
	}
	c.mu.Unlock()

	if faulted {
		return f.err
	}
	return nil
}

func (c *Cluster) DeleteEndpoint(ctx context.Context, name string) error {
	f, faulted, err := c.begin(ctx, OpDeleteEndpoint)
	if err != nil {
		return err
	}
	if faulted && !f.apply {
		return f.err
	}

	c.mu.Lock()
	if _, ok := c.services[name]; ok {
		delete(c.services, name)
		c.deleted[OpDeleteEndpoint]++
	}
	c.mu.Unlock()

	if faulted {
		return f.err
	}
	return nil
}

func (c *Cluster) ListComputeUnits(ctx context.Context) ([]cluster.ComputeUnitInfo, error) {
	f, faulted, err := c.begin(ctx, OpList)
	if err != nil {
		return nil, err
	}
	if faulted {
		return nil, f.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var infos []cluster.ComputeUnitInfo
	for name, u := range c.units {
		if u.job == nil || u.job.Labels[workload.LabelManagedBy] != workload.ManagedByValue {
			continue
		}
		info := cluster.ComputeUnitInfo{
			Name:        name,
			ServerID:    u.job.Labels[workload.LabelServerID],
			Labels:      u.job.Labels,
			Annotations: u.job.Annotations,
			CreatedAt:   u.job.CreationTimestamp.Time,
			Phase:       u.phase,
		}
		if containers := u.job.Spec.Template.Spec.Containers; len(containers) > 0 {
			info.Image = containers[0].Image
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *Cluster) stamp(job *batchv1.Job) *batchv1.Job {
	cp := job.DeepCopy()
	cp.Namespace = c.namespace
	if cp.CreationTimestamp.IsZero() {
		cp.CreationTimestamp.Time = c.now()
	}
	return cp
}
