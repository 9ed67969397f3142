// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package topology

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout accepted by LoadFile.
//
//	cards:
//	  - id: 1
//	    name: dvb-t
//	inputs:
//	  - id: 1
//	    card: 1
//	    source: 1
//	channels:
//	  - ref: das-erste
//	    source: 1
//	    name: Das Erste HD
type File struct {
	Cards    []Card        `yaml:"cards"`
	Inputs   []Input       `yaml:"inputs"`
	Channels []ChannelSpec `yaml:"channels,omitempty"`
}

// ChannelSpec binds a listings channel to the source carrying it.
type ChannelSpec struct {
	Ref      string   `yaml:"ref"`
	SourceID SourceID `yaml:"source"`
	Name     string   `yaml:"name,omitempty"`
}

// LoadFile reads and builds a topology from a YAML file. Unknown keys are rejected.
func LoadFile(path string) (*Topology, error) {
	f, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Build(f.Cards, f.Inputs)
}

// ParseFile decodes the YAML layout without building it.
func ParseFile(path string) (*File, error) {
	// #nosec G304 -- topology file paths are provided by the operator via CLI/config
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML layout with strict field checking.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &File{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}
	return &f, nil
}
