package workload

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/utils/ptr"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
)

const (
	containerName = "mcp-server"
	portName      = "mcp"

	// DefaultPort is used when a spec leaves the port unset.
	DefaultPort int32 = 8080

	// lifetimeGrace pads activeDeadlineSeconds so the reaper, not the Job
	// controller, normally ends a server that hit its max lifetime.
	lifetimeGrace = time.Minute
)

// ProbeOptions configures the TCP readiness probe.
type ProbeOptions struct {
	InitialDelay     time.Duration
	Period           time.Duration
	Timeout          time.Duration
	SuccessThreshold int32
	FailureThreshold int32
}

// Options are the cluster-side defaults applied to every translated spec.
type Options struct {
	Namespace          string
	ProxyImage         string
	ProxyCommand       []string
	ProxyHost          string
	ProxyPort          int32
	ImagePullPolicy    corev1.PullPolicy
	ServiceAccountName string
	DefaultResources   api.Resources
	Probe              ProbeOptions
	TTLAfterFinished   *time.Duration
}

// OptionsFromConfig builds translator options from the loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	w := cfg.Workload
	return Options{
		Namespace:          cfg.Namespace,
		ProxyImage:         w.ProxyImage,
		ProxyCommand:       w.ProxyCommand,
		ProxyHost:          w.ProxyHost,
		ProxyPort:          w.ProxyPort,
		ImagePullPolicy:    corev1.PullPolicy(w.ImagePullPolicy),
		ServiceAccountName: w.ServiceAccountName,
		DefaultResources: api.Resources{
			Requests: w.Resources.Requests,
			Limits:   w.Resources.Limits,
		},
		Probe: ProbeOptions{
			InitialDelay:     w.ReadinessProbe.InitialDelay,
			Period:           w.ReadinessProbe.Period,
			Timeout:          w.ReadinessProbe.Timeout,
			SuccessThreshold: w.ReadinessProbe.SuccessThreshold,
			FailureThreshold: w.ReadinessProbe.FailureThreshold,
		},
		TTLAfterFinished: w.TTLAfterFinished,
	}
}

// Translator builds Jobs and Services from server specs.
type Translator struct {
	opts  Options
	namer Namer
}

// NewTranslator creates a Translator. A nil namer selects DefaultNamer.
func NewTranslator(opts Options, namer Namer) *Translator {
	if namer == nil {
		namer = DefaultNamer{}
	}
	if opts.ProxyPort == 0 {
		opts.ProxyPort = DefaultPort
	}
	return &Translator{opts: opts, namer: namer}
}

// Namer returns the naming scheme in use.
func (t *Translator) Namer() Namer { return t.namer }

// Namespace returns the namespace objects are created in.
func (t *Translator) Namespace() string { return t.opts.Namespace }

// Normalize fills in proxy defaults and the default port. The result is what
// Build actually renders.
func (t *Translator) Normalize(spec api.ServerSpec) api.ServerSpec {
	out := spec
	if spec.IsProxied() {
		if out.Image == "" {
			out.Image = t.opts.ProxyImage
		}
		if out.Port == 0 {
			out.Port = t.opts.ProxyPort
		}
		out.Command = append([]string(nil), t.opts.ProxyCommand...)
		args := []string{
			"--pass-environment",
			fmt.Sprintf("--sse-port=%d", out.Port),
			fmt.Sprintf("--sse-host=%s", t.opts.ProxyHost),
			spec.Runtime.Exec,
			spec.Runtime.Package,
		}
		out.Args = append(args, spec.Args...)
	}
	if out.Port == 0 {
		out.Port = DefaultPort
	}
	return out
}

// Validate reports an InvalidSpec error for malformed specs.
func (t *Translator) Validate(spec api.ServerSpec) error {
	if spec.Runtime != nil {
		if strings.TrimSpace(spec.Runtime.Exec) == "" || strings.TrimSpace(spec.Runtime.Package) == "" {
			return api.NewInvalidSpecError("runtime exec and package must be given together")
		}
	} else {
		if strings.TrimSpace(spec.Image) == "" {
			return api.NewInvalidSpecError("image is required")
		}
		if t.opts.ProxyImage != "" && spec.Image == t.opts.ProxyImage {
			return api.NewInvalidSpecError("image %s is the proxy image and requires a runtime", spec.Image)
		}
	}

	if spec.Port < 0 || spec.Port > 65535 {
		return api.NewInvalidSpecError("port %d out of range", spec.Port)
	}
	if spec.Path != "" && !strings.HasPrefix(spec.Path, "/") {
		return api.NewInvalidSpecError("path %q must start with '/'", spec.Path)
	}
	if spec.MaxLifetime < 0 || spec.IdleTimeout < 0 {
		return api.NewInvalidSpecError("timeouts must not be negative")
	}

	for key := range spec.Env {
		if msgs := validation.IsEnvVarName(key); len(msgs) > 0 {
			return api.NewInvalidSpecError("invalid env var name %q: %s", key, strings.Join(msgs, ", "))
		}
	}

	if spec.Resources != nil {
		if _, err := quantities(spec.Resources.Requests); err != nil {
			return err
		}
		if _, err := quantities(spec.Resources.Limits); err != nil {
			return err
		}
	}
	return nil
}

// Build renders the Job and Service for spec under id.
func (t *Translator) Build(spec api.ServerSpec, id string) (*batchv1.Job, *corev1.Service, error) {
	if err := ValidateID(id); err != nil {
		return nil, nil, err
	}
	if err := t.Validate(spec); err != nil {
		return nil, nil, err
	}
	spec = t.Normalize(spec)
	if spec.Image == "" {
		return nil, nil, api.NewInvalidSpecError("image is required")
	}

	resources, err := t.resources(spec.Resources)
	if err != nil {
		return nil, nil, err
	}

	nameSource := spec.Image
	if spec.IsProxied() {
		nameSource = spec.Runtime.Package
	}
	labels := Labels(id, nameSource)
	annotations := Annotations(spec)

	container := corev1.Container{
		Name:            containerName,
		Image:           spec.Image,
		ImagePullPolicy: t.opts.ImagePullPolicy,
		Command:         spec.Command,
		Args:            spec.Args,
		Env:             envVars(spec.Env),
		Ports: []corev1.ContainerPort{{
			Name:          portName,
			ContainerPort: spec.Port,
			Protocol:      corev1.ProtocolTCP,
		}},
		Resources:      resources,
		ReadinessProbe: t.readinessProbe(spec.Port),
	}

	job := &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        t.namer.ComputeUnitName(id),
			Namespace:   t.opts.Namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: ptr.To[int32](0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: copyMap(labels)},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: t.opts.ServiceAccountName,
					Containers:         []corev1.Container{container},
				},
			},
		},
	}
	if spec.MaxLifetime > 0 {
		job.Spec.ActiveDeadlineSeconds = ptr.To(int64((spec.MaxLifetime + lifetimeGrace).Seconds()))
	}
	if t.opts.TTLAfterFinished != nil {
		job.Spec.TTLSecondsAfterFinished = ptr.To(int32(t.opts.TTLAfterFinished.Seconds()))
	}

	svc := &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        t.namer.EndpointName(id),
			Namespace:   t.opts.Namespace,
			Labels:      copyMap(labels),
			Annotations: copyMap(annotations),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: Selector(id),
			Ports: []corev1.ServicePort{{
				Name:       portName,
				Port:       spec.Port,
				TargetPort: intstr.FromInt32(spec.Port),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}

	return job, svc, nil
}

func (t *Translator) readinessProbe(port int32) *corev1.Probe {
	p := t.opts.Probe
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt32(port)},
		},
		InitialDelaySeconds: int32(p.InitialDelay.Seconds()),
		PeriodSeconds:       int32(p.Period.Seconds()),
		TimeoutSeconds:      int32(p.Timeout.Seconds()),
		SuccessThreshold:    p.SuccessThreshold,
		FailureThreshold:    p.FailureThreshold,
	}
}

// resources merges spec overrides on top of the configured defaults.
func (t *Translator) resources(override *api.Resources) (corev1.ResourceRequirements, error) {
	requests := copyMap(t.opts.DefaultResources.Requests)
	limits := copyMap(t.opts.DefaultResources.Limits)
	if override != nil {
		for k, v := range override.Requests {
			requests[k] = v
		}
		for k, v := range override.Limits {
			limits[k] = v
		}
	}

	req, err := quantities(requests)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	lim, err := quantities(limits)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	return corev1.ResourceRequirements{Requests: req, Limits: lim}, nil
}

func quantities(in map[string]string) (corev1.ResourceList, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := corev1.ResourceList{}
	for name, value := range in {
		q, err := resource.ParseQuantity(value)
		if err != nil {
			return nil, api.NewInvalidSpecError("invalid quantity %q for %s: %v", value, name, err)
		}
		out[corev1.ResourceName(name)] = q
	}
	return out, nil
}

func envVars(env map[string]string) []corev1.EnvVar {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return vars
}

// Annotations records the spec fields that cannot be read back from the pod
// template.
func Annotations(spec api.ServerSpec) map[string]string {
	a := map[string]string{
		AnnotationPort: strconv.Itoa(int(spec.Port)),
	}
	if spec.Path != "" {
		a[AnnotationPath] = spec.Path
	}
	if spec.MaxLifetime > 0 {
		a[AnnotationMaxLifetime] = spec.MaxLifetime.String()
	}
	if spec.IdleTimeout > 0 {
		a[AnnotationIdleTimeout] = spec.IdleTimeout.String()
	}
	if spec.Runtime != nil {
		a[AnnotationRuntime] = spec.Runtime.Exec + " " + spec.Runtime.Package
	}
	return a
}

// SpecFromAnnotations rebuilds the parts of a spec that reconciliation needs
// from a Job's annotations and container image. Unparsable values are skipped.
func SpecFromAnnotations(annotations map[string]string, image string) api.ServerSpec {
	spec := api.ServerSpec{Image: image}
	if v, err := strconv.ParseInt(annotations[AnnotationPort], 10, 32); err == nil {
		spec.Port = int32(v)
	}
	spec.Path = annotations[AnnotationPath]
	if d, err := time.ParseDuration(annotations[AnnotationMaxLifetime]); err == nil {
		spec.MaxLifetime = d
	}
	if d, err := time.ParseDuration(annotations[AnnotationIdleTimeout]); err == nil {
		spec.IdleTimeout = d
	}
	if exec, pkg, ok := strings.Cut(annotations[AnnotationRuntime], " "); ok {
		spec.Runtime = &api.Runtime{Exec: exec, Package: pkg}
	}
	return spec
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
