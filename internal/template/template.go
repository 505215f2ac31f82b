// Package template renders watcher events with a user supplied Go template.
package template

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/stackvity/vfsim/internal/filesystem"
	"github.com/stackvity/vfsim/internal/notify"
)

// EventData is the context an event template is executed with.
type EventData struct {
	Type    string
	Entry   string
	Path    string
	OldPath string
	Name    string
	Filters string
}

// Executor renders events through a parsed template.
type Executor struct {
	template *template.Template
	filePath string
}

// NewExecutor parses the template file read through fsys. It returns nil, nil
// when templateFilePath is empty; callers then fall back to Event.String.
func NewExecutor(templateFilePath string, fsys filesystem.FileSystem) (*Executor, error) {
	if templateFilePath == "" {
		return nil, nil
	}

	templateContent, err := fsys.ReadFile(templateFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file '%s': %w", templateFilePath, err)
	}
	return Parse(templateFilePath, string(templateContent))
}

// Parse builds an executor from template text. name is used in error messages.
func Parse(name, text string) (*Executor, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template file '%s': %w", name, err)
	}
	return &Executor{template: tmpl, filePath: name}, nil
}

// NewEventData flattens an event for template use.
func NewEventData(ev notify.Event) EventData {
	return EventData{
		Type:    ev.Type.String(),
		Entry:   ev.Entry.String(),
		Path:    ev.Path(),
		OldPath: ev.OldPath(),
		Name:    ev.Name(),
		Filters: ev.Filters.String(),
	}
}

// Execute renders one event.
func (e *Executor) Execute(ev notify.Event) (string, error) {
	var rendered bytes.Buffer
	if err := e.template.Execute(&rendered, NewEventData(ev)); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", e.filePath, err)
	}
	return rendered.String(), nil
}
