package wishlist

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed services.yaml
var servicesYAML []byte

// Service is one entry of the services catalog.
type Service struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Category string `yaml:"category" json:"category"`
}

// Catalog resolves service identifiers to their display data.
type Catalog struct {
	services []Service
	byID     map[string]Service
}

// ParseCatalog parses a services catalog in YAML form.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Services []Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse services catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]Service, len(doc.Services))}
	for _, s := range doc.Services {
		if s.ID == "" || s.Title == "" {
			return nil, fmt.Errorf("parse services catalog: entry %+v needs id and title", s)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("parse services catalog: duplicate id %q", s.ID)
		}
		c.byID[s.ID] = s
		c.services = append(c.services, s)
	}
	return c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded services catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(servicesYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Services returns all services in catalog order.
func (c *Catalog) Services() []Service {
	return append([]Service(nil), c.services...)
}

// Lookup returns the service with the given id.
func (c *Catalog) Lookup(id string) (Service, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Title returns the display title for id, or id itself when unknown.
func (c *Catalog) Title(id string) string {
	if s, ok := c.byID[id]; ok {
		return s.Title
	}
	return id
}

// Titles maps ids to display titles, preserving order.
func (c *Catalog) Titles(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Title(id))
	}
	return out
}
