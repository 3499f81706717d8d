// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz). Voxel data is held in file order: the first axis varies fastest.
package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Datatype codes from the NIfTI-1 header.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

const (
	headerSize = 348
	dataOffset = 352
)

// header is the on-disk NIfTI-1 header; field order and sizes match the
// format exactly so it can go through encoding/binary unchanged.
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Image is a voxel volume with its voxel-to-world affine.
type Image struct {
	Shape    []int      // 3 or 4 entries; the first axis varies fastest in Data
	Data     []float64  // Scaled voxel values
	Affine   *mat.Dense // 4×4 voxel index to world (millimetres)
	Datatype int16      // On-disk datatype used by Save
}

// NewImage allocates a zeroed image of the given shape.
func NewImage(shape []int, affine *mat.Dense, datatype int16) *Image {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Image{
		Shape:    append([]int(nil), shape...),
		Data:     make([]float64, n),
		Affine:   affine,
		Datatype: datatype,
	}
}

// NumVoxels returns the number of spatial voxels (product of the first three
// axes).
func (img *Image) NumVoxels() int {
	n := 1
	for i := 0; i < 3 && i < len(img.Shape); i++ {
		n *= img.Shape[i]
	}
	return n
}

// Load reads a NIfTI-1 file. Paths ending in .gz are decompressed.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("nifti %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	img, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("nifti %s: %w", path, err)
	}
	return img, nil
}

// Read decodes a single-file NIfTI-1 stream.
func Read(r io.Reader) (*Image, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(order.Uint32(raw[:4])) != headerSize {
		order = binary.BigEndian
		if int32(order.Uint32(raw[:4])) != headerSize {
			return nil, fmt.Errorf("not a NIfTI-1 header")
		}
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, err
	}
	if string(hdr.Magic[:3]) != "n+1" {
		return nil, fmt.Errorf("unsupported magic %q, only single-file .nii is supported", hdr.Magic[:3])
	}

	ndim := int(hdr.Dim[0])
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("invalid dimension count %d", ndim)
	}
	shape := make([]int, 0, ndim)
	n := 1
	for i := 1; i <= ndim; i++ {
		d := int(hdr.Dim[i])
		if d < 1 {
			return nil, fmt.Errorf("invalid size %d on axis %d", d, i-1)
		}
		shape = append(shape, d)
		n *= d
	}
	// Trailing singleton axes beyond the fourth carry no data.
	for len(shape) > 3 && shape[len(shape)-1] == 1 {
		shape = shape[:len(shape)-1]
	}
	for len(shape) < 3 {
		shape = append(shape, 1)
	}

	skip := int64(hdr.VoxOffset) - headerSize
	if skip < 0 {
		return nil, fmt.Errorf("invalid vox_offset %v", hdr.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, fmt.Errorf("skipping extensions: %w", err)
	}

	data, err := readData(r, order, hdr.Datatype, n)
	if err != nil {
		return nil, err
	}
	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i := range data {
			data[i] = slope*data[i] + inter
		}
	}

	return &Image{
		Shape:    shape,
		Data:     data,
		Affine:   hdr.affine(),
		Datatype: hdr.Datatype,
	}, nil
}

func readData(r io.Reader, order binary.ByteOrder, datatype int16, n int) ([]float64, error) {
	size := bytesPerVoxel(datatype)
	if size == 0 {
		return nil, fmt.Errorf("unsupported datatype %d", datatype)
	}
	buf := make([]byte, n*size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading voxel data: %w", err)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := buf[i*size : (i+1)*size]
		switch datatype {
		case DTUint8:
			out[i] = float64(b[0])
		case DTInt8:
			out[i] = float64(int8(b[0]))
		case DTInt16:
			out[i] = float64(int16(order.Uint16(b)))
		case DTUint16:
			out[i] = float64(order.Uint16(b))
		case DTInt32:
			out[i] = float64(int32(order.Uint32(b)))
		case DTUint32:
			out[i] = float64(order.Uint32(b))
		case DTFloat32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case DTFloat64:
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out, nil
}

func bytesPerVoxel(datatype int16) int {
	switch datatype {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	default:
		return 0
	}
}

// affine prefers the sform, then the qform, then a pixdim scaling.
func (h *header) affine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	a.Set(3, 3, 1)
	switch {
	case h.SformCode > 0:
		for j := 0; j < 4; j++ {
			a.Set(0, j, float64(h.SrowX[j]))
			a.Set(1, j, float64(h.SrowY[j]))
			a.Set(2, j, float64(h.SrowZ[j]))
		}
	case h.QformCode > 0:
		b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
		aa := 1 - (b*b + c*c + d*d)
		if aa < 1e-7 {
			// Rotation by 180 degrees; normalise (b,c,d).
			norm := math.Sqrt(b*b + c*c + d*d)
			b, c, d = b/norm, c/norm, d/norm
			aa = 0
		}
		q0 := math.Sqrt(aa)
		rot := [3][3]float64{
			{q0*q0 + b*b - c*c - d*d, 2 * (b*c - q0*d), 2 * (b*d + q0*c)},
			{2 * (b*c + q0*d), q0*q0 + c*c - b*b - d*d, 2 * (c*d - q0*b)},
			{2 * (b*d - q0*c), 2 * (c*d + q0*b), q0*q0 + d*d - c*c - b*b},
		}
		qfac := float64(h.Pixdim[0])
		if qfac == 0 {
			qfac = 1
		}
		scale := [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), qfac * float64(h.Pixdim[3])}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a.Set(i, j, rot[i][j]*scale[j])
			}
		}
		a.Set(0, 3, float64(h.QoffsetX))
		a.Set(1, 3, float64(h.QoffsetY))
		a.Set(2, 3, float64(h.QoffsetZ))
	default:
		for i := 0; i < 3; i++ {
			p := float64(h.Pixdim[i+1])
			if p == 0 {
				p = 1
			}
			a.Set(i, i, p)
		}
	}
	return a
}

// Save writes img as a single-file NIfTI-1 volume. Paths ending in .gz are
// compressed.
func Save(img *Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	bw := bufio.NewWriter(w)
	if err := Write(bw, img); err != nil {
		f.Close()
		return fmt.Errorf("nifti %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// Write encodes img as little-endian single-file NIfTI-1.
func Write(w io.Writer, img *Image) error {
	if len(img.Shape) < 3 || len(img.Shape) > 4 {
		return fmt.Errorf("image must be 3D or 4D, got %dD", len(img.Shape))
	}
	n := 1
	for _, s := range img.Shape {
		n *= s
	}
	if n != len(img.Data) {
		return fmt.Errorf("shape %v holds %d voxels, data has %d", img.Shape, n, len(img.Data))
	}
	datatype := img.Datatype
	if datatype == 0 {
		datatype = DTFloat64
	}
	size := bytesPerVoxel(datatype)
	if size == 0 {
		return fmt.Errorf("unsupported datatype %d", datatype)
	}
	affine := img.Affine
	if affine == nil {
		affine = mat.NewDense(4, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	}

	hdr := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  datatype,
		Bitpix:    int16(8 * size),
		VoxOffset: dataOffset,
		XyztUnits: 2 | 8, // mm, seconds
		SformCode: 2,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	hdr.Dim[0] = int16(len(img.Shape))
	for i, s := range img.Shape {
		hdr.Dim[i+1] = int16(s)
	}
	for i := len(img.Shape) + 1; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	hdr.Pixdim[0] = 1
	for j := 0; j < 3; j++ {
		var s float64
		for i := 0; i < 3; i++ {
			s += affine.At(i, j) * affine.At(i, j)
		}
		hdr.Pixdim[j+1] = float32(math.Sqrt(s))
	}
	for i := 4; i < 8; i++ {
		hdr.Pixdim[i] = 1
	}
	for j := 0; j < 4; j++ {
		hdr.SrowX[j] = float32(affine.At(0, j))
		hdr.SrowY[j] = float32(affine.At(1, j))
		hdr.SrowZ[j] = float32(affine.At(2, j))
	}

	order := binary.LittleEndian
	if err := binary.Write(w, order, &hdr); err != nil {
		return err
	}
	// No extensions.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}

	buf := make([]byte, n*size)
	for i, v := range img.Data {
		b := buf[i*size : (i+1)*size]
		switch datatype {
		case DTUint8:
			b[0] = uint8(math.Round(v))
		case DTInt8:
			b[0] = byte(int8(math.Round(v)))
		case DTInt16:
			order.PutUint16(b, uint16(int16(math.Round(v))))
		case DTUint16:
			order.PutUint16(b, uint16(math.Round(v)))
		case DTInt32:
			order.PutUint32(b, uint32(int32(math.Round(v))))
		case DTUint32:
			order.PutUint32(b, uint32(math.Round(v)))
		case DTFloat32:
			order.PutUint32(b, math.Float32bits(float32(v)))
		case DTFloat64:
			order.PutUint64(b, math.Float64bits(v))
		}
	}
	_, err := w.Write(buf)
	return err
}
