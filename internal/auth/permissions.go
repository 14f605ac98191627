package auth

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Permissions maps role -> []permission
type Permissions map[string][]string

type permissionsFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPermissions loads a permissions.yml file and returns a role->permissions map.
func LoadPermissions(path string) (Permissions, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf permissionsFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, err
	}
	return Permissions(pf.Roles), nil
}

// For returns the permissions granted to a role
func (p Permissions) For(role string) []string {
	if list, ok := p[role]; ok {
		return list
	}
	return p[normalizeRole(role)]
}
