// Package directory provides a static hardware directory loaded from a YAML
// snapshot of a device tree.
package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vrt-bridge/internal/mapping"
)

// ChannelSpec describes one channel in a snapshot.
type ChannelSpec struct {
	ID     string   `yaml:"id"`
	Output bool     `yaml:"output"`
	Attrs  []string `yaml:"attrs"`
}

// DeviceSpec describes one device in a snapshot.
type DeviceSpec struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	Attrs      []string      `yaml:"attrs"`
	DebugAttrs []string      `yaml:"debug_attrs"`
	Channels   []ChannelSpec `yaml:"channels"`
}

type snapshot struct {
	Devices []DeviceSpec `yaml:"devices"`
}

// Directory is an immutable, in-memory device tree. It implements
// mapping.Directory and is safe for concurrent use.
type Directory struct {
	devices []*device
}

// New builds a directory from device specs.
func New(specs ...DeviceSpec) *Directory {
	d := &Directory{devices: make([]*device, 0, len(specs))}
	for _, s := range specs {
		dev := &device{spec: s}
		for _, c := range s.Channels {
			dev.channels = append(dev.channels, &channel{spec: c})
		}
		d.devices = append(d.devices, dev)
	}
	return d
}

// Load reads a YAML snapshot file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML snapshot.
func Parse(data []byte) (*Directory, error) {
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse directory snapshot: %w", err)
	}
	for i, d := range snap.Devices {
		if d.Name == "" && d.ID == "" {
			return nil, fmt.Errorf("device %d: name or id is required", i)
		}
		for j, c := range d.Channels {
			if c.ID == "" {
				return nil, fmt.Errorf("device %q channel %d: id is required", d.Name, j)
			}
		}
	}
	return New(snap.Devices...), nil
}

// FindDevice looks a device up by name first, then by id.
func (d *Directory) FindDevice(name string) (mapping.Device, bool) {
	for _, dev := range d.devices {
		if dev.spec.Name != "" && dev.spec.Name == name {
			return dev, true
		}
	}
	for _, dev := range d.devices {
		if dev.spec.ID != "" && dev.spec.ID == name {
			return dev, true
		}
	}
	return nil, false
}

// Devices returns the device specs in snapshot order.
func (d *Directory) Devices() []DeviceSpec {
	out := make([]DeviceSpec, len(d.devices))
	for i, dev := range d.devices {
		out[i] = dev.spec
	}
	return out
}

type device struct {
	spec     DeviceSpec
	channels []*channel
}

func (d *device) FindChannel(name string, isOutput bool) (mapping.Channel, bool) {
	for _, c := range d.channels {
		if c.spec.ID == name && c.spec.Output == isOutput {
			return c, true
		}
	}
	return nil, false
}

func (d *device) AttributeNames() []string {
	return d.spec.Attrs
}

func (d *device) DebugAttributeNames() []string {
	return d.spec.DebugAttrs
}

type channel struct {
	spec ChannelSpec
}

func (c *channel) AttributeNames() []string {
	return c.spec.Attrs
}
