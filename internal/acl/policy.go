// Package acl builds and evaluates the MyOS access-control policy: a
// (role -> [(path-prefix, rights)]) table derived from a project's
// template-derived roles and its ACLs.md file.
package acl

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Palmstroemen/MyOS/internal/mdsection"
	"github.com/Palmstroemen/MyOS/internal/template"
)

// Rule is a single (path-prefix, rights) pair attached to a role.
type Rule struct {
	Path   string
	Rights map[string]bool
}

// Policy is the resolved ACL table for one project.
type Policy struct {
	Roles       map[string]bool
	Permissions map[string][]Rule
	Users       map[string]map[string]bool
}

var folderToken = regexp.MustCompile(`(?i)\{folder\}`)

func normalizeRole(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizePath ensures a leading slash, strips a trailing one, and
// leaves the universal wildcard "/*" untouched.
func normalizePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "/*" {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// BuildFromProject loads ACLs.md (if present) and the given project's
// template directories and returns the resolved policy. A project with
// no ACLs.md produces a policy with no explicit role permissions beyond
// whatever the template-derived Folder defaults grant.
func BuildFromProject(root string, templateNames []string, getenv func(string) string) (*Policy, error) {
	templatesDir := template.ResolveDir(root, getenv)
	templateRoles := rolesFromTemplates(templatesDir, templateNames)

	aclRoles, rolePermissions, folderDefaults, users, err := rolesFromACLs(root)
	if err != nil {
		return nil, err
	}

	roles := map[string]bool{}
	for r := range templateRoles {
		roles[normalizeRole(r)] = true
	}
	for r := range aclRoles {
		roles[normalizeRole(r)] = true
	}

	normalizedTemplateRoles := map[string]bool{}
	for r := range templateRoles {
		normalizedTemplateRoles[normalizeRole(r)] = true
	}
	normalizedRolePermissions := map[string]map[string]map[string]bool{}
	for r, rules := range rolePermissions {
		normalizedRolePermissions[normalizeRole(r)] = rules
	}

	permissions := buildPermissions(roles, normalizedTemplateRoles, normalizedRolePermissions, folderDefaults)

	normalizedUsers := map[string]map[string]bool{}
	for user, userRoles := range users {
		key := strings.ToLower(strings.TrimSpace(user))
		set := map[string]bool{}
		for r := range userRoles {
			if normalizeRole(r) != "" {
				set[normalizeRole(r)] = true
			}
		}
		normalizedUsers[key] = set
	}

	return &Policy{Roles: roles, Permissions: permissions, Users: normalizedUsers}, nil
}

// RolesForUser returns the role set assigned to username, case-insensitive.
func (p *Policy) RolesForUser(username string) map[string]bool {
	return p.Users[strings.ToLower(strings.TrimSpace(username))]
}

// CanAccess reports whether role has right on path: it allows as soon
// as any of the role's rules matches (/*, an exact match, or a proper
// path-prefix match) and grants the right or "*". Rules are not ranked
// by length.
func (p *Policy) CanAccess(role, path, right string) bool {
	roleKey := normalizeRole(role)
	pathKey := normalizePath(path)
	rightKey := strings.ToLower(strings.TrimSpace(right))

	if !p.Roles[roleKey] {
		return false
	}

	for _, rule := range p.Permissions[roleKey] {
		if rule.Path == "/*" || rule.Path == pathKey || strings.HasPrefix(pathKey, rule.Path+"/") {
			if rule.Rights["*"] || rule.Rights[rightKey] {
				return true
			}
		}
	}
	return false
}

func rolesFromTemplates(templatesDir string, names []string) map[string]bool {
	roles := map[string]bool{}
	for _, name := range names {
		dir := filepath.Join(templatesDir, name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				roles[e.Name()] = true
			}
		}
	}
	return roles
}

func rolesFromACLs(root string) (
	roles map[string]bool,
	rolePermissions map[string]map[string]map[string]bool,
	folderDefaults map[string]map[string]bool,
	users map[string]map[string]bool,
	err error,
) {
	roles = map[string]bool{}
	rolePermissions = map[string]map[string]map[string]bool{}
	folderDefaults = map[string]map[string]bool{}
	users = map[string]map[string]bool{}

	data, readErr := os.ReadFile(filepath.Join(root, ".MyOS", "ACLs.md"))
	if readErr != nil {
		return roles, rolePermissions, folderDefaults, users, nil
	}

	doc := mdsection.Parse(string(data))
	for _, name := range doc.Order {
		key := strings.ToLower(strings.TrimSpace(name))
		val := doc.Sections[name]

		switch key {
		case "permissions", "inherit", "roles":
			continue
		case "users":
			if m, ok := val.(map[string]any); ok {
				for user, rolesVal := range m {
					users[user] = toStringSet(rolesVal)
				}
			}
			continue
		}

		m, ok := val.(map[string]any)
		if !ok {
			continue
		}
		ruleDict := normalizeRuleDict(m)

		if key == "folder" {
			folderDefaults = ruleDict
			continue
		}

		roles[name] = true
		rolePermissions[name] = ruleDict
	}

	return roles, rolePermissions, folderDefaults, users, nil
}

func normalizeRuleDict(m map[string]any) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(m))
	for rawKey, rights := range m {
		k := strings.TrimLeft(rawKey, " \t")
		k = strings.TrimPrefix(k, "- ")
		k = strings.TrimPrefix(k, "* ")
		out[normalizePath(k)] = toStringSet(rights)
	}
	return out
}

func toStringSet(v any) map[string]bool {
	set := map[string]bool{}
	switch t := v.(type) {
	case string:
		if s := strings.ToLower(strings.TrimSpace(t)); s != "" {
			set[s] = true
		}
	case []string:
		for _, s := range t {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				set[s] = true
			}
		}
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
					set[s] = true
				}
			}
		}
	}
	return set
}

func buildPermissions(
	roles map[string]bool,
	templateRoles map[string]bool,
	rolePermissions map[string]map[string]map[string]bool,
	folderDefaults map[string]map[string]bool,
) map[string][]Rule {
	permissions := make(map[string][]Rule, len(roles))
	for role := range roles {
		var ruleDict map[string]map[string]bool
		switch {
		case rolePermissions[role] != nil:
			ruleDict = expandRules(role, rolePermissions[role])
		case templateRoles[role]:
			ruleDict = expandRules(role, folderDefaults)
		default:
			ruleDict = map[string]map[string]bool{}
		}

		rules := make([]Rule, 0, len(ruleDict))
		for path, rights := range ruleDict {
			rules = append(rules, Rule{Path: path, Rights: rights})
		}
		permissions[role] = rules
	}
	return permissions
}

// expandRules substitutes the literal {Folder} token with role (any
// case) and re-normalizes paths, unioning rights on collision.
func expandRules(role string, rules map[string]map[string]bool) map[string]map[string]bool {
	expanded := make(map[string]map[string]bool, len(rules))
	for path, rights := range rules {
		p := path
		if folderToken.MatchString(p) {
			p = folderToken.ReplaceAllString(p, role)
		}
		np := normalizePath(p)
		if existing, ok := expanded[np]; ok {
			for r := range rights {
				existing[r] = true
			}
		} else {
			merged := make(map[string]bool, len(rights))
			for r := range rights {
				merged[r] = true
			}
			expanded[np] = merged
		}
	}
	return expanded
}
