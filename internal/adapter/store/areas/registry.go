// Package areas loads named target area definitions from a TOML file.
//
// A registry file lists areas as an array of tables:
//
//	[[area]]
//	id = "japan_1km"
//	description = "Japan, 0.01 degree lon/lat"
//	projection = "+proj=longlat +datum=WGS84 +no_defs"
//	width = 2000
//	height = 2000
//	extent = [122.0, 24.0, 142.0, 44.0]
package areas

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"go.ngs.io/resampler/internal/domain"
)

// Definition is one [[area]] entry.
type Definition struct {
	ID          string    `toml:"id" json:"id"`
	Description string    `toml:"description" json:"description"`
	Projection  string    `toml:"projection" json:"projection"`
	Width       int       `toml:"width" json:"width"`
	Height      int       `toml:"height" json:"height"`
	Extent      []float64 `toml:"extent" json:"extent"`
	Dims        []string  `toml:"dims" json:"dims,omitempty"`
}

type file struct {
	Area []Definition `toml:"area"`
}

// Registry holds validated areas by ID.
type Registry struct {
	defs  map[string]Definition
	areas map[string]*domain.Area
}

// LoadFile reads a registry from a TOML file.
func LoadFile(path string) (*Registry, error) {
	//nolint:gosec // G304: Path comes from configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open area file: %w", err)
	}
	defer func() { _ = f.Close() }()
	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse reads a registry from TOML. Unknown keys are rejected.
func Parse(r io.Reader) (*Registry, error) {
	var f file
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode areas: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in area file: %s", strings.Join(keys, ", "))
	}
	return NewRegistry(f.Area)
}

// NewRegistry validates definitions and builds their areas.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:  make(map[string]Definition, len(defs)),
		areas: make(map[string]*domain.Area, len(defs)),
	}
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("area %d: id is required", i)
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("area %s: defined more than once", d.ID)
		}
		if len(d.Extent) != 4 {
			return nil, fmt.Errorf("area %s: extent needs 4 values, got %d", d.ID, len(d.Extent))
		}
		var opts []domain.GeometryOption
		if d.Dims != nil {
			opts = append(opts, domain.WithDims(d.Dims...))
		}
		a, err := domain.NewArea(d.ID, d.Description, d.Projection, d.Width, d.Height,
			[4]float64{d.Extent[0], d.Extent[1], d.Extent[2], d.Extent[3]}, opts...)
		if err != nil {
			return nil, err
		}
		r.defs[d.ID] = d
		r.areas[d.ID] = a
	}
	return r, nil
}

// Get returns the area with the given ID.
func (r *Registry) Get(id string) (*domain.Area, bool) {
	a, ok := r.areas[id]
	return a, ok
}

// List returns all definitions sorted by ID.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of areas.
func (r *Registry) Len() int { return len(r.defs) }
