package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/instabids/intentguard/pkg/rbac"
	"github.com/instabids/intentguard/pkg/security"
)

// GuardProfile is the declarative configuration surface of a Guard:
// built-in check knobs plus the role permission table. Supplied once at
// construction, not discovered at runtime.
type GuardProfile struct {
	Name     string                        `yaml:"name" json:"name"`
	Owner    security.OwnerIDConfig        `yaml:"owner" json:"owner"`
	Boundary security.DomainBoundaryConfig `yaml:"boundary" json:"boundary"`
	Roles    []rbac.RolePermission         `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// LoadProfile reads and parses a guard profile YAML file. Missing owner
// configuration falls back to the marketplace defaults.
func LoadProfile(path string) (*GuardProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var profile GuardProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	if len(profile.Owner.OwnedEntities) == 0 && len(profile.Owner.OwnerKeys) == 0 {
		profile.Owner = security.DefaultOwnerIDConfig()
	}
	return &profile, nil
}
