package component

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ManifestFile is the descriptor every component directory must contain.
const ManifestFile = "manifest.json"

var (
	// ErrNoManifest marks a directory that does not hold a component.
	ErrNoManifest = errors.New("component: manifest.json not found")
	// ErrInvalidManifest marks a manifest that is unreadable or incomplete.
	ErrInvalidManifest = errors.New("component: invalid manifest")
)

// FieldType enumerates the settings field kinds a manifest may declare.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldPassword FieldType = "password"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldArray    FieldType = "array"
	FieldColor    FieldType = "color"
)

// Manifest is the static descriptor of a component.
type Manifest struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Config      *ConfigSchema `json:"config"`
}

// ConfigSchema drives the settings UI for a component.
type ConfigSchema struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// Field describes one setting.
type Field struct {
	Key                    string    `json:"key"`
	Type                   FieldType `json:"type"`
	Label                  string    `json:"label"`
	Description            string    `json:"description"`
	Placeholder            string    `json:"placeholder,omitempty"`
	Default                any       `json:"default,omitempty"`
	Options                []Option  `json:"options,omitempty"`
	ItemSchema             *Field    `json:"itemSchema,omitempty"`
	ItemFields             []Field   `json:"itemFields,omitempty"`
	HiddenWithCustomConfig bool      `json:"hiddenWithCustomConfig,omitempty"`
}

// Option is a choice for select fields.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Validate checks the fields the registry relies on.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidManifest)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required for %s", ErrInvalidManifest, m.ID)
	}
	if m.Config == nil {
		return fmt.Errorf("%w: config is required for %s", ErrInvalidManifest, m.ID)
	}
	return nil
}

// ParseManifest decodes and validates manifest JSON.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	m.Version = strings.TrimSpace(m.Version)
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadManifest reads dir/manifest.json from fsys. It returns an error
// wrapping ErrNoManifest when the file is absent and ErrInvalidManifest when
// it cannot be parsed or lacks id, name or config.
func LoadManifest(fsys fs.FS, dir string) (Manifest, error) {
	p := path.Join(dir, ManifestFile)
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w in %s", ErrNoManifest, dir)
		}
		return Manifest{}, fmt.Errorf("%w: read %s: %v", ErrInvalidManifest, p, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", p, err)
	}
	return m, nil
}
