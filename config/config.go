// Package config loads the YAML run configuration of the femodel tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/notargets/femodel/archive"
	"github.com/notargets/femodel/mesher"
	"gopkg.in/yaml.v3"
)

const maxFileSize = 1 << 20

// Mesher kinds.
const (
	MesherVoxel   = "voxel"
	MesherCommand = "command"
)

// Config is the run configuration.
type Config struct {
	LogLevel       string         `yaml:"log_level"`
	MergeTolerance float64        `yaml:"merge_tolerance"` // metres
	Mesher         MesherConfig   `yaml:"mesher"`
	MeshParams     mesher.Params  `yaml:"mesh_params"`
	Archive        archive.Config `yaml:"archive"`
}

// MesherConfig selects the volume mesher. Path and Args are used by the
// command mesher only.
type MesherConfig struct {
	Kind string   `yaml:"kind"`
	Path string   `yaml:"path,omitempty"`
	Args []string `yaml:"args,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		MergeTolerance: 1e-9,
		Mesher:         MesherConfig{Kind: MesherVoxel},
		Archive:        archive.Config{Driver: archive.DriverFilesystem},
	}
}

// Load reads a YAML file over the defaults. The file must have a .yaml or
// .yml extension and be at most 1 MiB.
func Load(path string) (*Config, error) {
	clean := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(clean)); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that the YAML types cannot.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error", "":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.MergeTolerance < 0 {
		return fmt.Errorf("merge_tolerance must be non-negative, got %g", c.MergeTolerance)
	}
	switch c.Mesher.Kind {
	case MesherVoxel, "":
	case MesherCommand:
		if c.Mesher.Path == "" {
			return fmt.Errorf("mesher.path is required for the command mesher")
		}
	default:
		return fmt.Errorf("unknown mesher.kind %q", c.Mesher.Kind)
	}
	p := c.MeshParams
	for name, v := range map[string]*float64{
		"max_edge_size_at_feature_edges":   p.MaxEdgeSizeAtFeatureEdges,
		"min_facet_angle":                  p.MinFacetAngle,
		"max_radius_surface_delaunay_ball": p.MaxRadiusSurfaceDelaunayBall,
		"max_cell_circumradius":            p.MaxCellCircumradius,
		"max_facet_distance":               p.MaxFacetDistance,
		"max_circumradius_edge_ratio":      p.MaxCircumradiusEdgeRatio,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("mesh_params.%s must be positive, got %g", name, *v)
		}
	}
	switch c.Archive.Driver {
	case archive.DriverFilesystem, archive.DriverMemory, "":
	case archive.DriverS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	return nil
}

// NewMesher builds the configured mesher.
func (c *Config) NewMesher() mesher.Mesher {
	if c.Mesher.Kind == MesherCommand {
		return mesher.CommandMesher{Path: c.Mesher.Path, Args: c.Mesher.Args}
	}
	return mesher.VoxelMesher{}
}
