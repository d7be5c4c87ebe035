// Package catalog is the in-memory registry of puzzle definitions. A
// catalog is concurrency-safe via an internal RWMutex, so API handlers
// and sessions can resolve puzzles from multiple goroutines as long as
// all access goes through its methods.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

var (
	ErrPuzzleExists   = errors.New("puzzle already registered")
	ErrPuzzleNotFound = errors.New("puzzle not found")
	ErrPuzzleInvalid  = errors.New("invalid puzzle")
)

// Catalog stores validated puzzle definitions by name. Definitions are
// immutable once registered; callers share them read-only.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*model.PuzzleDefinition
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{defs: make(map[string]*model.PuzzleDefinition)}
}

// Register validates a definition and adds it under its name.
func (c *Catalog) Register(def *model.PuzzleDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrPuzzleInvalid)
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrPuzzleInvalid, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrPuzzleExists, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// Get returns the definition registered under name.
func (c *Catalog) Get(name string) (*model.PuzzleDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPuzzleNotFound, name)
	}
	return def, nil
}

// Names returns the registered puzzle names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.defs))
	for name := range c.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered puzzles.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// standardPuzzles lists the hypercube family registered by default: the
// common cubes, a square for quick tests, and the 2^4 and 3^4 hypercubes.
var standardPuzzles = []struct{ ndim, layers int }{
	{2, 3},
	{3, 2},
	{3, 3},
	{3, 4},
	{3, 5},
	{4, 2},
	{4, 3},
}

// RegisterStandard fills a catalog with the standard hypercube family.
func RegisterStandard(c *Catalog) error {
	for _, p := range standardPuzzles {
		def, err := model.NewHypercube(p.ndim, p.layers)
		if err != nil {
			return fmt.Errorf("catalog: building %d^%d: %w", p.layers, p.ndim, err)
		}
		if err := c.Register(def); err != nil {
			return err
		}
	}
	return nil
}
