package mesher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/notargets/femodel/mesh"
	"github.com/notargets/femodel/nifti"
	"github.com/notargets/femodel/volume"
	"gonum.org/v1/gonum/mat"
)

// Runner executes an external program and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the program with os/exec. The process is killed when ctx
// is cancelled.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandMesher delegates to an external CGAL based mesher. The program is
// called as
//
//	Path Args... [--param=value...] <labels.nii> <out.mesh>
//
// and must write a Medit mesh whose element references are label values.
type CommandMesher struct {
	Path string
	Args []string
	Run  Runner // ExecRunner when nil
}

func (m CommandMesher) Generate(ctx context.Context, labels *volume.Labels, voxelSize [3]float64, params Params) (*mesh.RawMesh, error) {
	if m.Path == "" {
		return nil, fmt.Errorf("mesher command is not set")
	}
	dir, err := os.MkdirTemp("", "femodel-mesher-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	affine := mat.NewDiagDense(4, []float64{voxelSize[0], voxelSize[1], voxelSize[2], 1})
	in := filepath.Join(dir, "labels.nii")
	out := filepath.Join(dir, "init_mesh.mesh")
	if err := nifti.Save(labels.Image(mat.DenseCopyOf(affine)), in); err != nil {
		return nil, err
	}

	args := append(append([]string(nil), m.Args...), params.Flags()...)
	args = append(args, in, out)
	run := m.Run
	if run == nil {
		run = ExecRunner
	}
	if output, err := run(ctx, m.Path, args...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s failed: %w\n%s", m.Path, err, output)
	}
	return mesh.LoadMedit(out)
}
