package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

const manifestPath = packagePrefix + "package.json"

// Manifest is the identity block of an NPM-style FHIR package.json.
type Manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Canonical    string   `json:"canonical,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	URL          string   `json:"url,omitempty"`
	FHIRVersions []string `json:"fhirVersions,omitempty"`
}

// ID returns the package coordinate, "name#version".
func (m *Manifest) ID() string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + "#" + m.Version
}

func parseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("package manifest: %w", err)
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return nil, fmt.Errorf("package manifest: name is required")
	}
	return &m, nil
}
