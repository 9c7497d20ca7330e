package guide

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

// Sources of a selection.
const (
	SourceResource = "resource"
	SourcePackage  = "package"
)

// Current describes the ImplementationGuide selected as working context.
type Current struct {
	ID        string    `json:"id"`
	URL       string    `json:"url,omitempty"`
	Name      string    `json:"name,omitempty"`
	Title     string    `json:"title,omitempty"`
	Version   string    `json:"version,omitempty"`
	PackageID string    `json:"packageId,omitempty"`
	Source    string    `json:"source"`
	SetAt     time.Time `json:"setAt"`
}

// Package is the identity of an ingested package archive. Package ingestion
// does not keep ImplementationGuide resources, so a package is selectable
// by its name (optionally name#version) or its canonical.
type Package struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Canonical string `json:"canonical,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Context holds the current ImplementationGuide selection for the process.
type Context struct {
	store *store.Store
	now   func() time.Time

	mu       sync.RWMutex
	current  *Current
	packages []Package
}

// NewContext creates an empty guide context resolving guides from st.
func NewContext(st *store.Store) *Context {
	return &Context{store: st, now: time.Now}
}

// Set selects the stored ImplementationGuide with the given id, or failing
// that the one with the given canonical url. When no stored guide matches,
// a registered package with that name or canonical is selected instead.
// Both empty clears the context and returns nil.
func (g *Context) Set(ctx context.Context, id, url string) (*Current, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = fhir.StripTypePrefix(id, fhirmodels.TypeImplementationGuide)
	url = strings.TrimSpace(url)
	if id == "" && url == "" {
		g.Clear()
		return nil, nil
	}

	cur, err := g.resource(id, url)
	if errors.Is(err, fhir.ErrNotFound) {
		if pkg, ok := g.FindPackage(id, url); ok {
			cur, err = &Current{
				ID:        pkg.Name,
				URL:       pkg.Canonical,
				Name:      pkg.Name,
				Title:     pkg.Title,
				Version:   pkg.Version,
				PackageID: pkg.Name,
				Source:    SourcePackage,
			}, nil
		}
	}
	if err != nil {
		return nil, err
	}
	cur.SetAt = g.now().UTC()

	g.mu.Lock()
	g.current = cur
	g.mu.Unlock()

	out := *cur
	return &out, nil
}

func (g *Context) resource(id, url string) (*Current, error) {
	var doc fhir.Document
	if id != "" {
		d, err := g.store.Get(fhirmodels.TypeImplementationGuide, id)
		if err != nil {
			return nil, err
		}
		doc = d
	} else {
		matches := g.store.Search(fhirmodels.TypeImplementationGuide, store.FieldEquals("url", url))
		if len(matches) == 0 {
			return nil, fhir.NotFound(fhirmodels.TypeImplementationGuide, url)
		}
		doc = matches[0]
	}
	return &Current{
		ID:        doc.ID(),
		URL:       doc.String("url"),
		Name:      doc.String("name"),
		Title:     doc.String("title"),
		Version:   doc.String("version"),
		PackageID: doc.String("packageId"),
		Source:    SourceResource,
	}, nil
}

// FindPackage returns the registered package named id (or id as name#version),
// or when id is empty the one whose canonical is url.
func (g *Context) FindPackage(id, url string) (Package, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.packages {
		switch {
		case id != "" && (id == p.Name || id == p.Name+"#"+p.Version):
			return p, true
		case id == "" && url != "" && url == p.Canonical:
			return p, true
		}
	}
	return Package{}, false
}

// RegisterPackage makes an ingested package selectable. A package with the
// same name replaces the earlier registration.
func (g *Context) RegisterPackage(p Package) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.packages {
		if g.packages[i].Name == p.Name {
			g.packages[i] = p
			return
		}
	}
	g.packages = append(g.packages, p)
}

// Packages returns the registered packages in registration order.
func (g *Context) Packages() []Package {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Package{}, g.packages...)
}

// Get returns a copy of the current selection, or nil when none is set.
func (g *Context) Get() *Current {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.current == nil {
		return nil
	}
	out := *g.current
	return &out
}

// Clear removes the current selection.
func (g *Context) Clear() {
	g.mu.Lock()
	g.current = nil
	g.mu.Unlock()
}
