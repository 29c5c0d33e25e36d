package areas

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[[area]]
id = "tokyo_bay"
description = "Tokyo Bay, 0.01 degree"
projection = "+proj=longlat +datum=WGS84 +no_defs"
width = 60
height = 40
extent = [139.6, 35.1, 140.2, 35.5]

[[area]]
id = "equator_merc"
projection = "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +ellps=WGS84 +units=m +no_defs"
width = 2
height = 2
extent = [-1000.0, -1000.0, 1000.0, 1000.0]
dims = ["northing", "easting"]
`

func TestParse(t *testing.T) {
	r, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "equator_merc", list[0].ID)
	assert.Equal(t, "tokyo_bay", list[1].ID)

	a, ok := r.Get("tokyo_bay")
	require.True(t, ok)
	assert.Equal(t, []int{40, 60}, a.Shape())
	assert.Equal(t, []string{"y", "x"}, a.Dims())
	assert.Equal(t, "Tokyo Bay, 0.01 degree", a.Description())

	m, ok := r.Get("equator_merc")
	require.True(t, ok)
	assert.Equal(t, []string{"northing", "easting"}, m.Dims())

	_, ok = r.Get("nowhere")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"syntax", "[[area]\n", "failed to decode"},
		{"unknown key", "[[area]]\nid = \"a\"\ncolour = \"red\"\n", "unknown keys"},
		{"missing id", "[[area]]\nwidth = 1\n", "id is required"},
		{"short extent", "[[area]]\nid = \"a\"\nprojection = \"+proj=longlat\"\nwidth = 1\nheight = 1\nextent = [0.0, 0.0]\n", "extent needs 4"},
		{"duplicate", "[[area]]\nid = \"a\"\nprojection = \"+proj=longlat +datum=WGS84\"\nwidth = 1\nheight = 1\nextent = [0.0, 0.0, 1.0, 1.0]\n[[area]]\nid = \"a\"\nprojection = \"+proj=longlat +datum=WGS84\"\nwidth = 1\nheight = 1\nextent = [0.0, 0.0, 1.0, 1.0]\n", "more than once"},
		{"bad extent", "[[area]]\nid = \"a\"\nprojection = \"+proj=longlat +datum=WGS84\"\nwidth = 1\nheight = 1\nextent = [1.0, 0.0, 0.0, 1.0]\n", "extent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to open area file")
}
