package fixel

import (
	"encoding/binary"
	"fmt"
	"os"

	"fixelmatch/internal/models"
)

// volumeMagic identifies a serialized scalar volume file.
const volumeMagic = uint32(0x4c4f5646) // "FVOL"

// SaveVolume writes a dense scalar volume (such as the per-voxel
// matching cost) to a single self-describing binary file: magic, three
// uint32 dimensions, then float32 data in x-fastest order.
func SaveVolume(path string, vol *models.Volume) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume file: %w", err)
	}
	defer file.Close()

	header := []uint32{volumeMagic, uint32(vol.Width), uint32(vol.Height), uint32(vol.Depth)}
	if err := binary.Write(file, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write volume header: %w", err)
	}
	data := make([]float32, len(vol.Data))
	for i, v := range vol.Data {
		data[i] = float32(v)
	}
	if err := binary.Write(file, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("failed to write volume data: %w", err)
	}
	return file.Close()
}

// LoadVolume reads a volume file written by SaveVolume.
func LoadVolume(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume file: %w", err)
	}
	defer file.Close()

	header := make([]uint32, 4)
	if err := binary.Read(file, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to read volume header: %w", err)
	}
	if header[0] != volumeMagic {
		return nil, fmt.Errorf("%q is not a volume file", path)
	}
	vol := models.NewVolume(int(header[1]), int(header[2]), int(header[3]))
	data := make([]float32, len(vol.Data))
	if err := binary.Read(file, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("failed to read volume data: %w", err)
	}
	for i, v := range data {
		vol.Data[i] = float64(v)
	}
	return vol, nil
}
