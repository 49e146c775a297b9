package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a named launch preset for terminals. Fields left empty in a
// create request are filled from the profile.
type Profile struct {
	Cwd     string            `yaml:"cwd"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	UseTmux *bool             `yaml:"useTmux"`
}

// Profiles maps profile names to presets.
type Profiles map[string]Profile

type profilesFile struct {
	Profiles Profiles `yaml:"profiles"`
}

// LoadProfiles reads a profiles file. An empty path yields no profiles.
//
//	profiles:
//	  claude:
//	    command: claude
//	    args: [--continue]
//	    useTmux: true
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return Profiles{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes profile YAML and rejects entries without a name.
func ParseProfiles(data []byte) (Profiles, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if f.Profiles == nil {
		return Profiles{}, nil
	}
	for name, p := range f.Profiles {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("parse profiles: profile with empty name")
		}
		if p.Command == "" && len(p.Args) > 0 {
			return nil, fmt.Errorf("parse profiles: profile %q has args but no command", name)
		}
	}
	return f.Profiles, nil
}

// Get returns the named profile.
func (p Profiles) Get(name string) (Profile, bool) {
	prof, ok := p[name]
	return prof, ok
}

// Names returns the profile names in sorted order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
