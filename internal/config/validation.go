package config

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks cfg and returns every problem found.
func Validate(cfg Config) ValidationErrors {
	var errs ValidationErrors

	for _, msg := range validation.IsDNS1123Label(cfg.Namespace) {
		errs.Add("namespace", msg, cfg.Namespace)
	}

	if cfg.Lifecycle.IDPrefix != "" {
		for _, msg := range validation.IsDNS1123Label(cfg.Lifecycle.IDPrefix) {
			errs.Add("lifecycle.idPrefix", msg, cfg.Lifecycle.IDPrefix)
		}
	}

	positive := map[string]time.Duration{
		"lifecycle.pollInterval":      cfg.Lifecycle.PollInterval,
		"lifecycle.readyTimeout":      cfg.Lifecycle.ReadyTimeout,
		"lifecycle.createTimeout":     cfg.Lifecycle.CreateTimeout,
		"lifecycle.deleteTimeout":     cfg.Lifecycle.DeleteTimeout,
		"lifecycle.reapInterval":      cfg.Lifecycle.ReapInterval,
		"lifecycle.terminalRetention": cfg.Lifecycle.TerminalRetention,
		"lifecycle.backoff.initial":   cfg.Lifecycle.Backoff.Initial,
	}
	for field, d := range positive {
		if d <= 0 {
			errs.Add(field, "must be a positive duration", d.String())
		}
	}

	if cfg.Lifecycle.Backoff.Steps < 1 {
		errs.Add("lifecycle.backoff.steps", "must be at least 1", cfg.Lifecycle.Backoff.Steps)
	}
	if cfg.Lifecycle.Backoff.Factor < 1 {
		errs.Add("lifecycle.backoff.factor", "must be at least 1.0", cfg.Lifecycle.Backoff.Factor)
	}
	if cfg.Lifecycle.Backoff.Jitter < 0 {
		errs.Add("lifecycle.backoff.jitter", "must not be negative", cfg.Lifecycle.Backoff.Jitter)
	}

	if cfg.Workload.ProxyPort < 1 || cfg.Workload.ProxyPort > 65535 {
		errs.Add("workload.proxyPort", "must be between 1 and 65535", cfg.Workload.ProxyPort)
	}
	if err := ValidateOneOf("workload.imagePullPolicy", cfg.Workload.ImagePullPolicy, []string{"Always", "IfNotPresent", "Never"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	validateQuantities(&errs, "workload.resources.requests", cfg.Workload.Resources.Requests)
	validateQuantities(&errs, "workload.resources.limits", cfg.Workload.Resources.Limits)

	validateTemplate(&errs, "resolver.hostTemplate", cfg.Resolver.HostTemplate, true)
	validateTemplate(&errs, "resolver.pathTemplate", cfg.Resolver.PathTemplate, false)
	if cfg.Resolver.ProxyPath != "" && !strings.HasPrefix(cfg.Resolver.ProxyPath, "/") {
		errs.Add("resolver.proxyPath", "must start with '/'", cfg.Resolver.ProxyPath)
	}

	transports := []string{MCPTransportStreamableHTTP, MCPTransportSSE, MCPTransportStdio}
	if err := ValidateOneOf("server.transport", cfg.Server.Transport, transports); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if cfg.Server.Transport != MCPTransportStdio && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		errs.Add("server.port", "must be between 1 and 65535", cfg.Server.Port)
	}

	if cfg.Events.NATSURL != "" && strings.TrimSpace(cfg.Events.Subject) == "" {
		errs.Add("events.subject", "is required when events.natsURL is set")
	}
	if cfg.Events.BufferSize <= 0 {
		errs.Add("events.bufferSize", "must be positive")
	}

	return errs
}

func validateQuantities(errs *ValidationErrors, field string, quantities map[string]string) {
	for name, value := range quantities {
		if _, err := resource.ParseQuantity(value); err != nil {
			errs.Add(field+"."+name, err.Error(), value)
		}
	}
}

func validateTemplate(errs *ValidationErrors, field, text string, required bool) {
	if strings.TrimSpace(text) == "" {
		if required {
			errs.Add(field, "is required")
		}
		return
	}
	if _, err := template.New(field).Funcs(sprig.TxtFuncMap()).Parse(text); err != nil {
		errs.Add(field, err.Error(), text)
	}
}
