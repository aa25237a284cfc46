package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a policy overlay read from the packs directory. Its policy body is
// the same shape as a full policy but every section is optional.
type Pack struct {
	Name             string                `yaml:"name"`
	Description      string                `yaml:"description"`
	PackVersion      string                `yaml:"version"`
	Author           string                `yaml:"author"`
	Roles            map[string]RolePolicy `yaml:"roles"`
	ToolRestrictions ToolRestrictions      `yaml:"tool_restrictions"`
	TimeRestrictions *TimeRestrictions     `yaml:"time_restrictions"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	RoleCount   int
	Err         error
}

// LoadPacks reads all .yaml files from packsDir and merges them into a copy
// of base. Role tool lists and restriction lists are unioned, so a pack can
// add roles, tools and forbidden entries; since deny is evaluated before
// allow, a pack deny always takes effect. A pack enabling business hours
// replaces the time window. Files whose name starts with "_" are listed but
// not applied. A pack that fails to parse is reported in its PackInfo and
// skipped.
func LoadPacks(packsDir string, base *Policy) (*Policy, []PackInfo, error) {
	var infos []PackInfo

	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	result := clonePolicy(base)

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			infos = append(infos, PackInfo{Name: baseName, Enabled: enabled, Path: path, Err: err})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			RoleCount:   len(pack.Roles),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if enabled {
			mergePackInto(result, pack)
		}
	}

	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	return &pack, nil
}

func mergePackInto(target *Policy, pack *Pack) {
	if target.Roles == nil {
		target.Roles = map[string]RolePolicy{}
	}
	for name, rp := range pack.Roles {
		existing := target.Roles[name]
		existing.AllowedTools = union(existing.AllowedTools, rp.AllowedTools)
		existing.DeniedTools = union(existing.DeniedTools, rp.DeniedTools)
		if rp.RateLimit != 0 {
			existing.RateLimit = rp.RateLimit
		}
		if rp.MaxConcurrent != 0 {
			existing.MaxConcurrent = rp.MaxConcurrent
		}
		target.Roles[name] = existing
	}

	dst, src := &target.ToolRestrictions, pack.ToolRestrictions
	dst.FileOperations.AllowedExtensions = union(dst.FileOperations.AllowedExtensions, src.FileOperations.AllowedExtensions)
	dst.FileOperations.ForbiddenPaths = union(dst.FileOperations.ForbiddenPaths, src.FileOperations.ForbiddenPaths)
	dst.NetworkOperations.AllowedDomains = union(dst.NetworkOperations.AllowedDomains, src.NetworkOperations.AllowedDomains)
	dst.NetworkOperations.ForbiddenDomains = union(dst.NetworkOperations.ForbiddenDomains, src.NetworkOperations.ForbiddenDomains)
	dst.SystemOperations.ForbiddenCommands = union(dst.SystemOperations.ForbiddenCommands, src.SystemOperations.ForbiddenCommands)

	if tr := pack.TimeRestrictions; tr != nil && tr.BusinessHoursOnly {
		target.TimeRestrictions = TimeRestrictions{
			BusinessHoursOnly: true,
			AllowedHours:      slices.Clone(tr.AllowedHours),
			Timezone:          tr.Timezone,
		}
	}
}

// union appends the entries of add missing from list, keeping order.
func union(list, add []string) []string {
	for _, s := range add {
		if !slices.Contains(list, s) {
			list = append(list, s)
		}
	}
	return list
}

func clonePolicy(p *Policy) *Policy {
	clone := &Policy{
		Roles:       make(map[string]RolePolicy, len(p.Roles)),
		ToolRestrictions: ToolRestrictions{
			FileOperations: FileRestrictions{
				AllowedExtensions: slices.Clone(p.ToolRestrictions.FileOperations.AllowedExtensions),
				ForbiddenPaths:    slices.Clone(p.ToolRestrictions.FileOperations.ForbiddenPaths),
				MaxFileSize:       p.ToolRestrictions.FileOperations.MaxFileSize,
			},
			NetworkOperations: NetworkRestrictions{
				AllowedDomains:   slices.Clone(p.ToolRestrictions.NetworkOperations.AllowedDomains),
				ForbiddenDomains: slices.Clone(p.ToolRestrictions.NetworkOperations.ForbiddenDomains),
				AllowedPorts:     slices.Clone(p.ToolRestrictions.NetworkOperations.AllowedPorts),
			},
			SystemOperations: SystemRestrictions{
				ForbiddenCommands: slices.Clone(p.ToolRestrictions.SystemOperations.ForbiddenCommands),
				MaxExecutionTime:  p.ToolRestrictions.SystemOperations.MaxExecutionTime,
			},
		},
		TimeRestrictions: TimeRestrictions{
			BusinessHoursOnly: p.TimeRestrictions.BusinessHoursOnly,
			AllowedHours:      slices.Clone(p.TimeRestrictions.AllowedHours),
			Timezone:          p.TimeRestrictions.Timezone,
		},
	}

	for name, rp := range p.Roles {
		clone.Roles[name] = RolePolicy{
			AllowedTools:  slices.Clone(rp.AllowedTools),
			DeniedTools:   slices.Clone(rp.DeniedTools),
			RateLimit:     rp.RateLimit,
			MaxConcurrent: rp.MaxConcurrent,
		}
	}
	return clone
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
