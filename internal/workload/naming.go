package workload

import (
	"fmt"
	"regexp"
	"strings"

	utilrand "k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/apimachinery/pkg/util/validation"

	"ephemcp/internal/api"
)

const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelName      = "app.kubernetes.io/name"
	LabelComponent = "app.kubernetes.io/component"
	LabelServerID  = "ephemcp.dev/server-id"

	ManagedByValue = "ephemcp"
	ComponentValue = "mcp-server"

	AnnotationPort        = "ephemcp.dev/port"
	AnnotationPath        = "ephemcp.dev/path"
	AnnotationMaxLifetime = "ephemcp.dev/max-lifetime"
	AnnotationIdleTimeout = "ephemcp.dev/idle-timeout"
	AnnotationRuntime     = "ephemcp.dev/runtime"

	idRandomLength = 8
)

// Namer maps a server id to the names of its Job and Service.
type Namer interface {
	ComputeUnitName(id string) string
	EndpointName(id string) string
}

// DefaultNamer uses the id itself for both objects. The Service name is what
// ends up in the resolved host, so ids double as DNS labels.
type DefaultNamer struct{}

func (DefaultNamer) ComputeUnitName(id string) string { return id }
func (DefaultNamer) EndpointName(id string) string    { return id }

// ValidateID checks that id is usable as a DNS-1123 label.
func ValidateID(id string) error {
	if msgs := validation.IsDNS1123Label(id); len(msgs) > 0 {
		return api.NewInvalidSpecError("invalid server id %q: %s", id, strings.Join(msgs, ", "))
	}
	return nil
}

// GenerateID returns prefix-<random>, e.g. "srv-x7k2p9qd".
func GenerateID(prefix string) string {
	if prefix == "" {
		return utilrand.String(idRandomLength)
	}
	return fmt.Sprintf("%s-%s", prefix, utilrand.String(idRandomLength))
}

// Labels returns the labels put on both objects and the pod template.
func Labels(id, image string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelComponent: ComponentValue,
		LabelName:      NameFromImage(image),
		LabelServerID:  id,
	}
}

// Selector matches the pods of exactly one server.
func Selector(id string) map[string]string {
	return map[string]string{LabelServerID: id}
}

// ManagedSelector matches every object created by ephemcp.
func ManagedSelector() map[string]string {
	return map[string]string{LabelManagedBy: ManagedByValue}
}

var invalidLabelChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// NameFromImage derives a label-safe short name from an image reference:
// "ghcr.io/acme/mcp-fetch:1.2" becomes "mcp-fetch".
func NameFromImage(image string) string {
	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, ":@"); i >= 0 {
		name = name[:i]
	}
	name = invalidLabelChars.ReplaceAllString(strings.ToLower(name), "-")
	if len(name) > validation.LabelValueMaxLength {
		name = name[:validation.LabelValueMaxLength]
	}
	name = strings.Trim(name, "-_.")
	if name == "" || len(validation.IsValidLabelValue(name)) > 0 {
		return ComponentValue
	}
	return name
}
