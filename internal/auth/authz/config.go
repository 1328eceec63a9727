// Package authz evaluates group and permission grants. Groups, permissions and
// the group-to-permission matrix are static configuration; only user
// memberships are stored.
package authz

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/cases"
)

var (
	ErrUnknownGroup      = errors.New("authz: unknown group")
	ErrUnknownPermission = errors.New("authz: unknown permission")
	ErrInvalidPermission = errors.New("authz: permission must look like scope.action")
	ErrInvalidConfig     = errors.New("authz: invalid configuration")
)

// Group describes a group alias.
type Group struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// Config is the authorization universe, usually loaded from TOML:
//
//	default_group = "user"
//
//	[groups.admin]
//	title = "Admin"
//
//	[permissions]
//	"users.create" = "Can create users"
//
//	[matrix]
//	admin = ["users.*"]
type Config struct {
	DefaultGroup string              `toml:"default_group"`
	Groups       map[string]Group    `toml:"groups"`
	Permissions  map[string]string   `toml:"permissions"`
	Matrix       map[string][]string `toml:"matrix"`
}

// LoadConfig reads and validates a TOML file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode authorization file: %w", err)
	}
	return cfg.normalize()
}

// ParseConfig parses and validates TOML text.
func ParseConfig(data string) (Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode authorization config: %w", err)
	}
	return cfg.normalize()
}

func normalizeName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// normalize lower-cases every alias and checks cross references.
func (c Config) normalize() (Config, error) {
	out := Config{
		DefaultGroup: normalizeName(c.DefaultGroup),
		Groups:       make(map[string]Group, len(c.Groups)),
		Permissions:  make(map[string]string, len(c.Permissions)),
		Matrix:       make(map[string][]string, len(c.Matrix)),
	}
	for name, g := range c.Groups {
		out.Groups[normalizeName(name)] = g
	}
	for name, desc := range c.Permissions {
		name = normalizeName(name)
		if !strings.Contains(name, ".") {
			return Config{}, fmt.Errorf("%w: permission %q has no scope", ErrInvalidConfig, name)
		}
		out.Permissions[name] = desc
	}
	for group, perms := range c.Matrix {
		group = normalizeName(group)
		if _, ok := out.Groups[group]; !ok {
			return Config{}, fmt.Errorf("%w: matrix references unknown group %q", ErrInvalidConfig, group)
		}
		grants := make([]string, 0, len(perms))
		for _, p := range perms {
			p = normalizeName(p)
			if !strings.Contains(p, ".") {
				return Config{}, fmt.Errorf("%w: matrix grant %q for %q has no scope", ErrInvalidConfig, p, group)
			}
			grants = append(grants, p)
		}
		out.Matrix[group] = grants
	}
	if out.DefaultGroup != "" {
		if _, ok := out.Groups[out.DefaultGroup]; !ok {
			return Config{}, fmt.Errorf("%w: default group %q is not defined", ErrInvalidConfig, out.DefaultGroup)
		}
	}
	return out, nil
}

// GroupNames returns the configured group aliases, sorted.
func (c Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) hasGroup(name string) bool {
	_, ok := c.Groups[name]
	return ok
}

func (c Config) hasPermission(name string) bool {
	_, ok := c.Permissions[name]
	return ok
}

// groupGrants reports whether group is granted permission by the matrix,
// either exactly or through a "scope.*" wildcard.
func (c Config) groupGrants(group, permission string) bool {
	grants := c.Matrix[group]
	if slices.Contains(grants, permission) {
		return true
	}
	scope, _, _ := strings.Cut(permission, ".")
	return slices.Contains(grants, scope+".*")
}
