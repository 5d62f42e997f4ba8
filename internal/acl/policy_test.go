package acl

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func noEnv(string) string { return "" }

func TestBuildFromProjectNoACLs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Templates", "Standard", "admin"), 0o755); err != nil {
		t.Fatal(err)
	}

	policy, err := BuildFromProject(root, []string{"Standard"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if !policy.Roles["admin"] {
		t.Errorf("expected admin role derived from template folder, got %#v", policy.Roles)
	}
	if policy.CanAccess("admin", "/admin", "read") {
		t.Error("no ACLs.md means no explicit rights even for template-derived roles")
	}
}

func TestBuildFromProjectWithFolderDefaults(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Templates", "Standard", "worker"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, ".MyOS", "ACLs.md"), "# Folder\n- /{Folder}/: read, write\n")

	policy, err := BuildFromProject(root, []string{"Standard"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if !policy.CanAccess("worker", "/worker", "write") {
		t.Error("expected worker to get write via expanded {Folder} default")
	}
	if policy.CanAccess("worker", "/worker", "execute") {
		t.Error("worker should not have execute")
	}
}

func TestBuildFromProjectExplicitRoleOverridesFolder(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Templates", "Standard", "worker"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, ".MyOS", "ACLs.md"),
		"# Folder\n- /{Folder}/: read\n\n# Worker\n- /info/: read, write\n- /*: *\n")

	policy, err := BuildFromProject(root, []string{"Standard"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if !policy.CanAccess("worker", "/anything/at/all", "write") {
		t.Error("expected explicit Worker section's /* rule to grant write anywhere")
	}
}

func TestCanAccessUnknownRoleDenied(t *testing.T) {
	t.Parallel()
	p := &Policy{Roles: map[string]bool{}, Permissions: map[string][]Rule{}}
	if p.CanAccess("ghost", "/x", "read") {
		t.Error("unknown role must be denied")
	}
}

func TestRolesForUserCaseInsensitive(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".MyOS", "ACLs.md"),
		"# Users\nAlice: admin, worker\n")
	policy, err := BuildFromProject(root, nil, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	roles := policy.RolesForUser("ALICE")
	if !roles["admin"] || !roles["worker"] {
		t.Errorf("RolesForUser(ALICE) = %#v", roles)
	}
}

func TestPrefixMatchAllowsDescendants(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".MyOS", "ACLs.md"),
		"# Worker\n- /kommunikation/: read, write\n")
	policy, err := BuildFromProject(root, nil, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if !policy.CanAccess("worker", "/kommunikation/intern", "write") {
		t.Error("expected prefix match to grant write on a descendant path")
	}
	if policy.CanAccess("worker", "/kommunikationother", "write") {
		t.Error("prefix match must require a path separator, not just a string prefix")
	}
}
