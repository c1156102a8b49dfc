package stack

import (
	"strings"

	"github.com/kshedden/gonpy"
	"github.com/pkg/errors"

	"cellmesh/internal/models"
)

// LoadNpy reads a 3D array from a .npy file. Supported element types are
// float64, float32, uint8, uint16, int16, int32 and int64.
func LoadNpy(path string) (*models.Volume, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, errors.Wrap(err, "open npy")
	}
	if len(r.Shape) != 3 {
		return nil, errors.Errorf("npy array has %d dimensions, expected 3", len(r.Shape))
	}

	data, err := readFloat64(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy %s", path)
	}
	rows, cols, depth := r.Shape[0], r.Shape[1], r.Shape[2]
	vol := models.NewVolume(rows, cols, depth, models.Spacing{Row: 1, Col: 1, Depth: 1})
	if len(data) != len(vol.Data) {
		return nil, errors.Errorf("npy holds %d values, shape %v needs %d", len(data), r.Shape, len(vol.Data))
	}

	if !r.ColumnMajor {
		copy(vol.Data, data)
		return vol, nil
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			for k := 0; k < depth; k++ {
				vol.Set(i, j, k, data[i+rows*(j+cols*k)])
			}
		}
	}
	return vol, nil
}

func readFloat64(r *gonpy.NpyReader) ([]float64, error) {
	dtype := strings.TrimLeft(r.Dtype, "<>|=")
	switch dtype {
	case "f8":
		return r.GetFloat64()
	case "f4":
		v, err := r.GetFloat32()
		return widen(v, err)
	case "u1":
		v, err := r.GetUint8()
		return widen(v, err)
	case "u2":
		v, err := r.GetUint16()
		return widen(v, err)
	case "i2":
		v, err := r.GetInt16()
		return widen(v, err)
	case "i4":
		v, err := r.GetInt32()
		return widen(v, err)
	case "i8":
		v, err := r.GetInt64()
		return widen(v, err)
	}
	return nil, errors.Errorf("unsupported npy dtype %q", r.Dtype)
}

type number interface {
	~float32 | ~uint8 | ~uint16 | ~int16 | ~int32 | ~int64
}

func widen[T number](v []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}

func newWriter(path string, shape [3]int) (*gonpy.NpyWriter, error) {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return nil, errors.Wrap(err, "create npy")
	}
	w.Shape = []int{shape[0], shape[1], shape[2]}
	w.Version = 2
	return w, nil
}

// SaveVolumeNpy writes a volume as a float64 array.
func SaveVolumeNpy(path string, vol *models.Volume) error {
	w, err := newWriter(path, vol.Shape())
	if err != nil {
		return err
	}
	return errors.Wrap(w.WriteFloat64(vol.Data), "write npy")
}

// SaveMaskNpy writes a mask as a uint8 array of zeros and ones.
func SaveMaskNpy(path string, mask *models.Mask) error {
	w, err := newWriter(path, mask.Shape())
	if err != nil {
		return err
	}
	bools := mask.Bools()
	data := make([]uint8, len(bools))
	for i, b := range bools {
		if b {
			data[i] = 1
		}
	}
	return errors.Wrap(w.WriteUint8(data), "write npy")
}

// SaveLabelsNpy writes a label volume as an int32 array.
func SaveLabelsNpy(path string, labels *models.LabelVolume) error {
	w, err := newWriter(path, labels.Shape())
	if err != nil {
		return err
	}
	return errors.Wrap(w.WriteInt32(labels.Data), "write npy")
}
