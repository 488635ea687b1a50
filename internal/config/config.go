// Package config loads the gateway's on-disk settings: the serial port to
// the RAMSES-II dongle, the HTTP introspection address, and per-device
// friendly names, in the style of the teacher's config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's top-level configuration document.
type Config struct {
	mu sync.Mutex

	// Serial is the device path of the HGI80/evofw3 dongle, e.g. "/dev/ttyUSB0".
	Serial string `yaml:"serial"`
	// BaudRate is the dongle's configured speed; 0 selects bridge.DefaultBaudRate.
	BaudRate int `yaml:"baud_rate"`
	// ListenAddr is where the introspection HTTP server binds, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`
	// TCPBridgeAddr, if non-empty, is where the ser2net-style TCP relay
	// binds (e.g. ":8023"). Empty disables the bridge.
	TCPBridgeAddr string `yaml:"tcp_bridge_addr"`
	// HGIAddr, if non-empty, overrides ramses.HGI (this host's gateway
	// device address), e.g. "18:123456".
	HGIAddr string `yaml:"hgi_addr"`
	// Names maps a device address ("01:145038") to a friendly label.
	Names map[string]string `yaml:"names"`

	// raw preserves the on-disk YAML node tree (including comments), so
	// Save only appends newly-discovered names rather than rewriting the
	// whole document.
	raw yaml.Node
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BaudRate:   0,
		ListenAddr: ":8080",
		Names:      map[string]string{},
	}
}

// Load reads and parses the YAML document at fn. A missing file returns the
// underlying os error (os.IsNotExist reports true for it); callers fall back
// to Default() in that case.
func Load(fn string) (*Config, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c.raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", fn, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", fn, err)
	}
	if c.Names == nil {
		c.Names = map[string]string{}
	}
	return c, nil
}

// Seen records addr as known, assigning it a placeholder name if this
// gateway has never reported on it before. Reports whether addr was new.
func (c *Config) Seen(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Names == nil {
		c.Names = map[string]string{}
	}
	if _, ok := c.Names[addr]; ok {
		return false
	}
	c.Names[addr] = ""
	return true
}

// Save writes any names added since Load back to fn, preserving the
// document's existing structure and comments — adapted from the teacher's
// config.write, which does the same for its serial->name mapping.
func (c *Config) Save(fn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	root := &c.raw
	if len(root.Content) == 0 {
		*root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	doc := root
	if root.Kind == yaml.DocumentNode {
		doc = root.Content[0]
	}

	namesNode := findMappingValue(doc, "names")
	if namesNode == nil {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: "names", Tag: "!!str"}
		val := &yaml.Node{Kind: yaml.MappingNode}
		doc.Content = append(doc.Content, key, val)
		namesNode = val
	}

	existing := map[string]bool{}
	for i := 0; i < len(namesNode.Content); i += 2 {
		existing[namesNode.Content[i].Value] = true
	}

	changed := false
	for addr, name := range c.Names {
		if existing[addr] {
			continue
		}
		changed = true
		k := &yaml.Node{Kind: yaml.ScalarNode, Value: addr, Tag: "!!str", Style: yaml.DoubleQuotedStyle}
		v := &yaml.Node{Kind: yaml.ScalarNode, Value: name, Tag: "!!str", Style: yaml.DoubleQuotedStyle}
		namesNode.Content = append(namesNode.Content, k, v)
	}
	if !changed {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(fn), "."+strings.TrimSuffix(filepath.Base(fn), ".yaml")+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fn)
}

// findMappingValue returns the value node for key within a mapping node, or
// nil if absent.
func findMappingValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
