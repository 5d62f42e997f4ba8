package project

import (
	"os"
	"path/filepath"
)

// FindNearest walks upward from start, inclusive, returning the nearest
// ancestor directory whose .MyOS/Project.md marker exists. It stops at
// the filesystem root.
func FindNearest(start string) (string, bool) {
	cur, err := filepath.Abs(start)
	if err != nil {
		cur = filepath.Clean(start)
	}
	for {
		if IsProject(cur) {
			return cur, true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		cur = parent
	}
}

// IsProject reports whether path carries the Project.md marker.
func IsProject(path string) bool {
	info, err := os.Stat(filepath.Join(path, myosDirName, projectMDName))
	return err == nil && !info.IsDir()
}

// findAncestorWithMyOS walks the parents of dir (excluding dir itself)
// looking for the nearest directory that carries a .MyOS/ directory,
// used by Create when bootstrapping a brand new project from its
// closest configured ancestor.
func findAncestorWithMyOS(dir string) (string, bool) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		cur = filepath.Clean(dir)
	}
	cur = filepath.Dir(cur)
	for {
		if info, err := os.Stat(filepath.Join(cur, myosDirName)); err == nil && info.IsDir() {
			return cur, true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		cur = parent
	}
}
