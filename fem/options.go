package fem

import (
	"log"

	"github.com/notargets/femodel/mesher"
)

// DefaultMergeTolerance is the distance in metres under which sensor nodes
// are merged with the mesh node they were placed on.
const DefaultMergeTolerance = 1e-9

// Option configures a Model.
type Option func(*Model)

// WithLogger sends log output to l. Models are silent by default.
func WithLogger(l *log.Logger) Option {
	return func(m *Model) { m.log.out = l }
}

// WithLogLevel sets the minimum level written to the logger.
func WithLogLevel(level Level) Option {
	return func(m *Model) { m.log.level = level }
}

// WithDebug is WithLogLevel(LevelDebug) when on.
func WithDebug(on bool) Option {
	return func(m *Model) {
		if on {
			m.log.level = LevelDebug
		}
	}
}

// WithMesher replaces the built-in voxel mesher.
func WithMesher(g mesher.Mesher) Option {
	return func(m *Model) { m.mesher = g }
}

// WithMergeTolerance sets the duplicate node tolerance used after sensors
// are placed.
func WithMergeTolerance(tol float64) Option {
	return func(m *Model) { m.mergeTol = tol }
}
