// Package course holds the self-paced learning catalog. The catalog ships
// embedded in the binary so the bot never depends on an external CMS for
// lesson content.
package course

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

const (
	TypeFree    = "free"
	TypePremium = "premium"
)

type Module struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

type Course struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Subtitle    string   `yaml:"subtitle"`
	Duration    string   `yaml:"duration"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	PriceCents  int64    `yaml:"price_cents"`
	Modules     []Module `yaml:"modules"`
}

func (c *Course) Module(id string) *Module {
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return &c.Modules[i]
		}
	}
	return nil
}

type Catalog struct {
	Courses []Course `yaml:"courses"`
	byID    map[string]*Course
}

// Load parses the embedded catalog. It fails loudly on malformed content so a
// bad edit is caught at startup, not mid-conversation.
func Load() (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(catalogYAML, &cat); err != nil {
		return nil, fmt.Errorf("parse course catalog: %w", err)
	}
	if len(cat.Courses) == 0 {
		return nil, fmt.Errorf("course catalog is empty")
	}
	cat.byID = make(map[string]*Course, len(cat.Courses))
	for i := range cat.Courses {
		c := &cat.Courses[i]
		if c.ID == "" || len(c.Modules) == 0 {
			return nil, fmt.Errorf("course %q: missing id or modules", c.Title)
		}
		if _, dup := cat.byID[c.ID]; dup {
			return nil, fmt.Errorf("course %q: duplicate id", c.ID)
		}
		cat.byID[c.ID] = c
	}
	return &cat, nil
}

func (cat *Catalog) Get(id string) *Course {
	return cat.byID[id]
}

// Free returns the free courses in catalog order.
func (cat *Catalog) Free() []Course {
	var out []Course
	for _, c := range cat.Courses {
		if c.Type == TypeFree {
			out = append(out, c)
		}
	}
	return out
}

// FreeIDs lists the enrollable free course ids, sorted for stable output in
// user-facing error messages.
func (cat *Catalog) FreeIDs() []string {
	var ids []string
	for _, c := range cat.Courses {
		if c.Type == TypeFree {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// FindLesson looks a lesson number up across all courses and returns the
// first course that carries it, mirroring how learners reference lessons
// without naming the course.
func (cat *Catalog) FindLesson(lessonID string) (*Course, *Module) {
	for i := range cat.Courses {
		if m := cat.Courses[i].Module(lessonID); m != nil {
			return &cat.Courses[i], m
		}
	}
	return nil, nil
}
