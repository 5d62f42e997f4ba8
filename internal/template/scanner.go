// Package template scans configured template directories into the
// embryo tree: a recursive mapping from child directory name to
// subtree, merged across every template in precedence order.
package template

import (
	"log"
	"os"
	"path/filepath"

	"github.com/Palmstroemen/MyOS/internal/fsutil"
)

// Tree is a recursive directory-name mapping. A nil/empty Tree has no
// children.
type Tree map[string]Tree

// ResolveDir returns the templates directory to scan: MYOS_TEMPLATES_DIR
// if set, else <root>/Templates.
func ResolveDir(root string, getenv func(string) string) string {
	if dir := getenv("MYOS_TEMPLATES_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(root, "Templates")
}

// Scan builds the merged embryo tree for the given template names, in
// order. Templates that don't exist on disk are skipped with a
// warning; they never abort the scan.
func Scan(templatesDir string, names []string) Tree {
	combined := Tree{}
	for _, name := range names {
		dir := filepath.Join(templatesDir, name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			log.Printf("template: skipping missing template %q at %s", name, dir)
			continue
		}
		merge(combined, scanDir(dir))
	}
	return combined
}

func scanDir(dir string) Tree {
	tree := Tree{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return tree
	}
	for _, e := range entries {
		if !e.IsDir() || fsutil.IsHidden(e.Name()) {
			continue
		}
		tree[e.Name()] = scanDir(filepath.Join(dir, e.Name()))
	}
	return tree
}

// merge folds new into combined in place: a key absent from combined is
// inserted wholesale; a key present in both is merged recursively so
// that later templates add missing descendants without overriding
// anything the earlier templates already placed there.
func merge(combined, new Tree) {
	for name, subtree := range new {
		existing, ok := combined[name]
		if !ok {
			combined[name] = subtree
			continue
		}
		merge(existing, subtree)
	}
}
