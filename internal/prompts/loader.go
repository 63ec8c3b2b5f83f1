// Package prompts provides the embedded prompt catalog for the agents and the
// analysis model. Catalog files are JSON objects mapping a key to a
// text/template body.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed *.json
var catalogFiles embed.FS

var (
	catalogs   = make(map[string]map[string]string)
	templates  = make(map[string]*template.Template)
	catalogsMu sync.RWMutex
)

// Get retrieves the raw prompt body stored under key in file.
func Get(file, key string) (string, error) {
	entries, err := load(file)
	if err != nil {
		return "", err
	}
	body, ok := entries[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, file)
	}
	return body, nil
}

// MustGet is Get for prompts required at package initialization.
func MustGet(file, key string) string {
	body, err := Get(file, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return body
}

// Render executes the prompt stored under key in file with data.
func Render(file, key string, data any) (string, error) {
	tmpl, err := compiled(file, key)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s/%s: %w", file, key, err)
	}
	return sb.String(), nil
}

func compiled(file, key string) (*template.Template, error) {
	name := file + "/" + key

	catalogsMu.RLock()
	tmpl, ok := templates[name]
	catalogsMu.RUnlock()
	if ok {
		return tmpl, nil
	}

	body, err := Get(file, key)
	if err != nil {
		return nil, err
	}
	tmpl, err = template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}

	catalogsMu.Lock()
	templates[name] = tmpl
	catalogsMu.Unlock()
	return tmpl, nil
}

func load(file string) (map[string]string, error) {
	catalogsMu.RLock()
	entries, ok := catalogs[file]
	catalogsMu.RUnlock()
	if ok {
		return entries, nil
	}

	data, err := catalogFiles.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", file, err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", file, err)
	}

	catalogsMu.Lock()
	catalogs[file] = entries
	catalogsMu.Unlock()
	return entries, nil
}
