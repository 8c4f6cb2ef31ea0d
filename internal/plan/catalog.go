package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Catalog holds the workflow templates available for enrollment. It is safe for concurrent use and read-only apart
// from [Catalog.Reload].
type Catalog struct {
	logger  *slog.Logger
	dir     string
	reloads singleflight.Group

	mu        sync.RWMutex
	templates map[string]WorkflowTemplate
	// order is the declaration order used when falling back to the first template of a category.
	order []string
}

// NewCatalog creates a catalog of the given templates. Later templates replace earlier ones with the same ID.
func NewCatalog(logger *slog.Logger, templates ...WorkflowTemplate) *Catalog {
	c := &Catalog{
		logger:    logger,
		dir:       "",
		reloads:   singleflight.Group{},
		mu:        sync.RWMutex{},
		templates: nil,
		order:     nil,
	}
	c.templates, c.order = index(templates)
	return c
}

// LoadCatalog creates a catalog of the built-in templates merged with the YAML templates in dir. A template file
// whose ID matches a built-in replaces it. An empty dir loads only built-ins.
func LoadCatalog(ctx context.Context, logger *slog.Logger, dir string) (*Catalog, error) {
	c := NewCatalog(logger, BuiltinTemplates()...)
	c.dir = dir
	if dir == "" {
		return c, nil
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func index(templates []WorkflowTemplate) (map[string]WorkflowTemplate, []string) {
	m := make(map[string]WorkflowTemplate, len(templates))
	order := make([]string, 0, len(templates))
	for _, t := range templates {
		if _, ok := m[t.ID]; !ok {
			order = append(order, t.ID)
		}
		m[t.ID] = t
	}
	return m, order
}

// Reload re-reads the template directory. Concurrent calls share a single read. On failure the current templates
// are kept.
func (c *Catalog) Reload(ctx context.Context) error {
	if c.dir == "" {
		return nil
	}
	_, err, _ := c.reloads.Do("reload", func() (any, error) {
		fromFiles, err := readTemplateDir(c.dir)
		if err != nil {
			return nil, err
		}
		for _, t := range fromFiles {
			for _, warning := range OverlappingRules(t) {
				c.logger.LogAttrs(ctx, slog.LevelWarn, "overlapping progression rules, first match wins",
					slog.String("template_id", t.ID), slog.String("overlap", warning))
			}
		}
		templates, order := index(append(BuiltinTemplates(), fromFiles...))
		c.mu.Lock()
		c.templates, c.order = templates, order
		c.mu.Unlock()
		c.logger.LogAttrs(ctx, slog.LevelInfo, "loaded template catalog",
			slog.String("dir", c.dir), slog.Int("files", len(fromFiles)), slog.Int("templates", len(order)))
		return nil, nil //nolint:nilnil // only the error matters.
	})
	if err != nil {
		return fmt.Errorf("reload templates: %w", err)
	}
	return nil
}

func readTemplateDir(dir string) ([]WorkflowTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}
	var templates []WorkflowTemplate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}
		var data []byte
		if data, err = os.ReadFile(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		var t WorkflowTemplate
		if t, err = DecodeTemplate(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// DecodeTemplate reads a YAML template and validates it.
func DecodeTemplate(r io.Reader) (WorkflowTemplate, error) {
	var t WorkflowTemplate
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return WorkflowTemplate{}, fmt.Errorf("%w: decode yaml: %w", ErrInvalidParameters, err)
	}
	if err := ValidateTemplate(t); err != nil {
		return WorkflowTemplate{}, err
	}
	return t, nil
}

// EncodeTemplate writes t as YAML.
func EncodeTemplate(w io.Writer, t WorkflowTemplate) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) //nolint:mnd // two-space indent
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml encoder: %w", err)
	}
	return nil
}

// ValidateTemplate rejects templates the engine cannot generate from.
func ValidateTemplate(t WorkflowTemplate) error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if t.DurationWeeks < 0 {
		errs = append(errs, fmt.Errorf("negative duration %d", t.DurationWeeks))
	}
	for phase, patterns := range t.Phases {
		for i, p := range patterns {
			if p.IntensityModifier <= 0 {
				errs = append(errs, fmt.Errorf("phase %s pattern %d: intensity modifier must be positive", phase, i))
			}
			for _, wt := range p.Workouts {
				if !wt.IsValid() {
					errs = append(errs, fmt.Errorf("phase %s pattern %d: unknown workout type %q", phase, i, wt))
				}
			}
		}
	}
	for wt, p := range t.BaseParameters {
		if p.TargetWeight < 0 || p.TargetDistance < 0 || p.TargetPace < 0 || p.RestInterval < 0 ||
			p.WarmupDuration < 0 || p.CooldownDuration < 0 {
			errs = append(errs, fmt.Errorf("base parameters for %s: negative value", wt))
		}
		if p.Intensity < 0 || p.Intensity > MaxIntensity {
			errs = append(errs, fmt.Errorf("base parameters for %s: intensity %.2f outside [0, %.1f]",
				wt, p.Intensity, MaxIntensity))
		}
	}
	for i, r := range t.ProgressionRules {
		if r.StartWeek < 1 || r.EndWeek < r.StartWeek {
			errs = append(errs, fmt.Errorf("progression rule %d: invalid week range %d..%d", i, r.StartWeek, r.EndWeek))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: template %q: %w", ErrInvalidParameters, t.ID, errors.Join(errs...))
	}
	return nil
}

// OverlappingRules describes progression rules whose week ranges overlap. Overlaps are allowed and resolved by
// first match, so they are reported rather than rejected.
func OverlappingRules(t WorkflowTemplate) []string {
	var overlaps []string
	for i, a := range t.ProgressionRules {
		for j := i + 1; j < len(t.ProgressionRules); j++ {
			b := t.ProgressionRules[j]
			if a.StartWeek <= b.EndWeek && b.StartWeek <= a.EndWeek {
				overlaps = append(overlaps, fmt.Sprintf("rules %d (%d..%d) and %d (%d..%d)",
					i, a.StartWeek, a.EndWeek, j, b.StartWeek, b.EndWeek))
			}
		}
	}
	return overlaps
}

// SelectTemplate returns the template for a category and difficulty. An exact match wins, then the first template of
// the category, then the built-in default. It never fails.
func (c *Catalog) SelectTemplate(category Category, difficulty Difficulty) WorkflowTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var sameCategory *WorkflowTemplate
	for _, id := range c.order {
		t := c.templates[id]
		if t.Category != category {
			continue
		}
		if t.Difficulty == difficulty {
			return t
		}
		if sameCategory == nil {
			sameCategory = &t
		}
	}
	if sameCategory != nil {
		return *sameCategory
	}
	if t, ok := c.templates[DefaultTemplateID]; ok {
		return t
	}
	return DefaultTemplate()
}

// Template returns the template with the given ID.
func (c *Catalog) Template(id string) (WorkflowTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.templates[id]; ok {
		return t, nil
	}
	if id == DefaultTemplateID {
		return DefaultTemplate(), nil
	}
	return WorkflowTemplate{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

// Templates returns all templates sorted by ID.
func (c *Catalog) Templates() []WorkflowTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]WorkflowTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b WorkflowTemplate) int { return strings.Compare(a.ID, b.ID) })
	return out
}
