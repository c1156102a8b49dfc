package surface

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/unixpickle/model3d/model3d"
)

// WriteSTL encodes the mesh as binary STL.
func (m *Mesh) WriteSTL(w io.Writer) error {
	return model3d.WriteSTL(w, m.Triangles())
}

// SaveToSTL writes the mesh to a binary STL file
func SaveToSTL(filename string, mesh *Mesh) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %v", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	if err := mesh.WriteSTL(buf); err != nil {
		return fmt.Errorf("failed to write STL data: %v", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write STL data: %v", err)
	}
	return nil
}
