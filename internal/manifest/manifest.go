// Package manifest reads the YAML job files accepted by `composer join -f`.
//
//	output: /Users/me/Movies/reel.mov
//	skip_missing_video: true
//	edl:
//	  dir: /Users/me/Movies
//	  frame_rate: 25
//	clips:
//	  - intro.mov
//	  - path: take2.mov
//	    name: Second take
//
// Relative paths are resolved against the directory holding the manifest.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var ErrNoClips = errors.New("manifest lists no clips")

type Manifest struct {
	Output           string `yaml:"output"`
	SkipMissingVideo bool   `yaml:"skip_missing_video"`
	EDL              *EDL   `yaml:"edl,omitempty"`
	Clips            []Clip `yaml:"clips"`
}

// EDL asks for an edit decision list next to the rendered movie.
type EDL struct {
	Dir       string  `yaml:"dir"`
	FrameRate float64 `yaml:"frame_rate,omitempty"`
}

type Clip struct {
	Path string `yaml:"path"`
	Name string `yaml:"name,omitempty"`
}

// UnmarshalYAML accepts either a bare path or a mapping.
func (c *Clip) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Path = node.Value
		return nil
	}
	type plain Clip
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Clip(p)
	return nil
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes data and resolves relative paths against baseDir.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if len(m.Clips) == 0 {
		return nil, ErrNoClips
	}
	if m.Output == "" {
		return nil, fmt.Errorf("manifest has no output")
	}

	m.Output = resolve(baseDir, m.Output)
	for i := range m.Clips {
		if m.Clips[i].Path == "" {
			return nil, fmt.Errorf("clip %d has no path", i)
		}
		m.Clips[i].Path = resolve(baseDir, m.Clips[i].Path)
	}
	if m.EDL != nil {
		if m.EDL.Dir == "" {
			m.EDL.Dir = filepath.Dir(m.Output)
		}
		m.EDL.Dir = resolve(baseDir, m.EDL.Dir)
		if m.EDL.FrameRate < 0 {
			return nil, fmt.Errorf("edl frame_rate must not be negative")
		}
	}
	return &m, nil
}

// Paths returns the clip paths in timeline order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.Clips))
	for i, c := range m.Clips {
		out[i] = c.Path
	}
	return out
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}
