// Package loader reads the simulator's input program: a flat binary
// image with no headers, segments, or relocation, loaded verbatim at
// address 0.
package loader

import (
	"fmt"
	"os"

	"github.com/sarchlab/ox86sim/emu"
)

// LoadFlat reads the file at path in full and returns its bytes, ready
// to hand to emu.Memory.LoadFlat. It is an error for the image to
// exceed emu.MemorySize.
func LoadFlat(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	if len(data) > emu.MemorySize {
		return nil, fmt.Errorf("loader: %s is %d bytes, exceeds memory size %d", path, len(data), emu.MemorySize)
	}
	return data, nil
}
