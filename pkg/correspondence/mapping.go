package correspondence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	mappingHeaderFile  = "mapping.yaml"
	mappingEntriesFile = "mapping.bin"
)

// mappingHeader is the self-describing YAML header persisted alongside
// the binary entry data of a saved Mapping.
type mappingHeader struct {
	SourceFixels uint32 `yaml:"sourceFixels"`
	TargetFixels uint32 `yaml:"targetFixels"`
}

// Mapping is the sparse many-to-many correspondence between the fixels
// of a source dataset and the fixels of a target dataset. It holds one
// entry per target fixel, each entry being the (possibly empty) list of
// global source fixel indices assigned to that target fixel.
//
// A Mapping is created once by a matcher run and thereafter treated as
// immutable input by every projection run.
type Mapping struct {
	sourceFixels uint32
	targetFixels uint32
	entries      [][]uint32
}

// NewMapping creates a mapping between the given fixel counts with
// every target entry empty.
func NewMapping(sourceFixels, targetFixels uint32) *Mapping {
	return &Mapping{
		sourceFixels: sourceFixels,
		targetFixels: targetFixels,
		entries:      make([][]uint32, targetFixels),
	}
}

// Len returns the number of target fixels covered by the mapping.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// SourceFixels returns the number of source fixels the mapping indexes into.
func (m *Mapping) SourceFixels() uint32 {
	return m.sourceFixels
}

// Get returns the source fixel indices assigned to one target fixel.
// The returned slice is owned by the mapping and must not be modified.
func (m *Mapping) Get(target uint32) []uint32 {
	return m.entries[target]
}

// Set assigns the list of source fixel indices for one target fixel.
func (m *Mapping) Set(target uint32, sources []uint32) {
	m.entries[target] = sources
}

// Inverse derives the source-to-targets relation: for every source
// fixel, the list of target fixels it feeds. Used to compute the
// implicit projection weights that conserve each source fixel's total
// contribution across the targets it is spread over.
func (m *Mapping) Inverse() [][]uint32 {
	inv := make([][]uint32, m.sourceFixels)
	for target, sources := range m.entries {
		for _, s := range sources {
			inv[s] = append(inv[s], uint32(target))
		}
	}
	return inv
}

// Save writes the mapping to a new directory as a YAML header plus a
// little-endian binary entry stream. It refuses to overwrite an
// existing path: correspondence directories are never partially
// rewritten in place.
func (m *Mapping) Save(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("mapping output %q already exists; erase it manually to recompute", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create mapping directory: %w", err)
	}

	header, err := yaml.Marshal(&mappingHeader{
		SourceFixels: m.sourceFixels,
		TargetFixels: m.targetFixels,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mapping header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, mappingHeaderFile), header, 0644); err != nil {
		return fmt.Errorf("failed to write mapping header: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, mappingEntriesFile))
	if err != nil {
		return fmt.Errorf("failed to create mapping entries file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, sources := range m.entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(sources))); err != nil {
			return fmt.Errorf("failed to write mapping entry: %w", err)
		}
		for _, s := range sources {
			if err := binary.Write(w, binary.LittleEndian, s); err != nil {
				return fmt.Errorf("failed to write mapping entry: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush mapping entries: %w", err)
	}
	return file.Close()
}

// LoadMapping reads a mapping directory written by Save. Any stored
// source index at or beyond the declared source fixel count marks the
// directory as corrupt and fails the load.
func LoadMapping(dir string) (*Mapping, error) {
	raw, err := os.ReadFile(filepath.Join(dir, mappingHeaderFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping header: %w", err)
	}
	var header mappingHeader
	if err := yaml.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to parse mapping header: %w", err)
	}

	file, err := os.Open(filepath.Join(dir, mappingEntriesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping entries file: %w", err)
	}
	defer file.Close()

	m := NewMapping(header.SourceFixels, header.TargetFixels)
	r := bufio.NewReader(file)
	for target := uint32(0); target < header.TargetFixels; target++ {
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, fmt.Errorf("mapping entries truncated at target fixel %d: %w", target, err)
		}
		if count == 0 {
			continue
		}
		sources := make([]uint32, count)
		if err := binary.Read(r, binary.LittleEndian, sources); err != nil {
			return nil, fmt.Errorf("mapping entries truncated at target fixel %d: %w", target, err)
		}
		for _, s := range sources {
			if s >= header.SourceFixels {
				return nil, fmt.Errorf("corrupt mapping: target fixel %d references source fixel %d, but only %d source fixels are declared",
					target, s, header.SourceFixels)
			}
		}
		m.entries[target] = sources
	}
	return m, nil
}
