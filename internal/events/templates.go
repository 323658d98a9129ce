package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
)

// MessageTemplateEngine renders event messages from per-reason templates.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
	sources   map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	e := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template),
		sources:   make(map[EventReason]string),
	}
	for reason, src := range defaultTemplates {
		if err := e.SetTemplate(reason, src); err != nil {
			panic(fmt.Sprintf("invalid default template for %s: %v", reason, err))
		}
	}
	return e
}

var defaultTemplates = map[EventReason]string{
	ReasonServerPending:     "MCP server {{.ServerID}} requested in namespace {{.Namespace}}",
	ReasonServerStarting:    "MCP server {{.ServerID}} is starting",
	ReasonServerReady:       "MCP server {{.ServerID}} is ready",
	ReasonServerInUse:       "MCP server {{.ServerID}} endpoint handed out",
	ReasonServerTerminating: "MCP server {{.ServerID}} is terminating{{if .Reason}} ({{.Reason}}){{end}}",
	ReasonServerDeleted:     "MCP server {{.ServerID}} deleted from namespace {{.Namespace}}",
	ReasonServerFailed:      "MCP server {{.ServerID}} failed{{if .Error}}: {{.Error}}{{end}}",
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()
	if !exists {
		return fmt.Sprintf("Event: %s for %s/%s", reason, data.Namespace, data.ServerID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Event: %s for %s/%s", reason, data.Namespace, data.ServerID)
	}
	return buf.String()
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, src string) error {
	tmpl, err := template.New(string(reason)).Parse(src)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	e.sources[reason] = src
	return nil
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.sources[reason]
	return src, ok
}
