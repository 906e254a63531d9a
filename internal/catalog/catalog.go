// Package catalog holds the fixed set of analysis stages and the pipelines
// composed from them. A catalog is read from TOML; a built-in default is
// embedded in the binary.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed default.toml
var defaultCatalog []byte

// Sentinel errors for catalog validation.
var (
	ErrEmptyName      = errors.New("empty name")
	ErrDuplicate      = errors.New("duplicate name")
	ErrUnknownStage   = errors.New("unknown stage")
	ErrNoStages       = errors.New("pipeline has no stages")
	ErrEmptyCatalog   = errors.New("catalog defines no pipelines")
	ErrInvalidStageID = errors.New("stage name may only contain letters, digits, '-' and '_'")
)

// Stage is one named unit of analysis.
type Stage struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
	IncludeCode bool   `toml:"include_code"` // also send the code excerpt to non-first stages
	Chain       bool   `toml:"chain"`        // hint for the suggester; every later stage receives the previous output
}

// Pipeline is an ordered list of stages targeting a vulnerability family.
type Pipeline struct {
	ID          string   `toml:"id"`
	Description string   `toml:"description"`
	Targets     []string `toml:"targets"`
	Stages      []string `toml:"stages"`
}

// ValidationError describes one problem found while loading a catalog.
type ValidationError struct {
	Kind string // "stage" or "pipeline"
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("catalog: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("catalog: %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Catalog is an immutable, validated set of stages and pipelines.
type Catalog struct {
	stages    []Stage
	pipelines []Pipeline
	byStage   map[string]int
	byID      map[string]int
}

type document struct {
	Stages    []Stage    `toml:"stage"`
	Pipelines []Pipeline `toml:"pipeline"`
}

// Parse decodes and validates a TOML catalog. All validation problems are
// joined into the returned error.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	c := &Catalog{
		stages:    doc.Stages,
		pipelines: doc.Pipelines,
		byStage:   make(map[string]int, len(doc.Stages)),
		byID:      make(map[string]int, len(doc.Pipelines)),
	}

	var errs []error
	for i, s := range doc.Stages {
		switch {
		case s.Name == "":
			errs = append(errs, &ValidationError{Kind: "stage", Err: ErrEmptyName})
			continue
		case !validIdent(s.Name):
			errs = append(errs, &ValidationError{Kind: "stage", Name: s.Name, Err: ErrInvalidStageID})
			continue
		}
		if _, dup := c.byStage[s.Name]; dup {
			errs = append(errs, &ValidationError{Kind: "stage", Name: s.Name, Err: ErrDuplicate})
			continue
		}
		c.byStage[s.Name] = i
	}

	if len(doc.Pipelines) == 0 {
		errs = append(errs, &ValidationError{Kind: "pipeline", Err: ErrEmptyCatalog})
	}
	for i, p := range doc.Pipelines {
		if p.ID == "" {
			errs = append(errs, &ValidationError{Kind: "pipeline", Err: ErrEmptyName})
			continue
		}
		if !validIdent(p.ID) {
			errs = append(errs, &ValidationError{Kind: "pipeline", Name: p.ID, Err: ErrInvalidStageID})
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			errs = append(errs, &ValidationError{Kind: "pipeline", Name: p.ID, Err: ErrDuplicate})
			continue
		}
		if len(p.Stages) == 0 {
			errs = append(errs, &ValidationError{Kind: "pipeline", Name: p.ID, Err: ErrNoStages})
		}
		for _, name := range p.Stages {
			if _, ok := c.byStage[name]; !ok {
				errs = append(errs, &ValidationError{
					Kind: "pipeline", Name: p.ID,
					Err: fmt.Errorf("%w %q", ErrUnknownStage, name),
				})
			}
		}
		c.byID[p.ID] = i
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// validIdent reports whether s is safe to embed in an artifact file name.
func validIdent(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return s != ""
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Load reads the catalog at path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// HasStage reports whether name is a known stage.
func (c *Catalog) HasStage(name string) bool {
	_, ok := c.byStage[name]
	return ok
}

// Stage returns the stage called name.
func (c *Catalog) Stage(name string) (Stage, bool) {
	i, ok := c.byStage[name]
	if !ok {
		return Stage{}, false
	}
	return c.stages[i], true
}

// Pipeline returns the pipeline with id.
func (c *Catalog) Pipeline(id string) (Pipeline, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Pipeline{}, false
	}
	p := c.pipelines[i]
	p.Stages = append([]string(nil), p.Stages...)
	return p, true
}

// Stages returns every stage in declaration order.
func (c *Catalog) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// Pipelines returns every pipeline in declaration order.
func (c *Catalog) Pipelines() []Pipeline {
	out := make([]Pipeline, len(c.pipelines))
	for i, p := range c.pipelines {
		p.Stages = append([]string(nil), p.Stages...)
		out[i] = p
	}
	return out
}

// Render lists pipelines and stages as plain text for a collaborator prompt.
func (c *Catalog) Render() string {
	var b strings.Builder
	b.WriteString("Pipelines:\n")
	for _, p := range c.pipelines {
		fmt.Fprintf(&b, "- %s: %s", p.ID, p.Description)
		if len(p.Targets) > 0 {
			fmt.Fprintf(&b, " (targets %s)", strings.Join(p.Targets, ", "))
		}
		fmt.Fprintf(&b, "\n  default stages: %s\n", strings.Join(p.Stages, ", "))
	}
	b.WriteString("Stages:\n")
	for _, s := range c.stages {
		fmt.Fprintf(&b, "- %s: %s", s.Name, s.Description)
		if s.Chain {
			b.WriteString(" (builds on the previous stage)")
		}
		b.WriteString("\n")
	}
	return b.String()
}
