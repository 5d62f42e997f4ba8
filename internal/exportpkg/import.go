package exportpkg

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Palmstroemen/MyOS/internal/fsutil"
)

// ImportResult describes a completed import.
type ImportResult struct {
	ImportRoot  string
	SubtreePath string
}

// ImportOptions configures ImportPackage.
type ImportOptions struct {
	// TargetRoot is required for Mode "adopt", and used as a fallback
	// for "restore" when the package's recorded ReferencePath no
	// longer exists.
	TargetRoot string
	// Mode is "restore" (return to the original project root recorded
	// at export time) or "adopt" (graft into TargetRoot).
	Mode string
	// Conflict is "merge" (keep existing files), "overwrite", or
	// "skip" (identical to merge: never touch an existing file).
	Conflict string
}

var exportMetadataKeys = map[string]bool{
	"ReferencePath": true,
	"Subtree":       true,
	"ExportedAt":    true,
	"Source":        true,
}

// ImportPackage imports an export package (a folder or a .zip archive
// of one) produced by ExportSubtree.
func ImportPackage(packagePath string, opts ImportOptions) (*ImportResult, error) {
	packagePath, err := filepath.Abs(packagePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(packagePath)
	if err != nil {
		return nil, fmt.Errorf("exportpkg: import package not found: %s", packagePath)
	}

	if !info.IsDir() && strings.EqualFold(filepath.Ext(packagePath), ".zip") {
		tmpDir, err := os.MkdirTemp("", "myos-import-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmpDir)

		extracted := filepath.Join(tmpDir, "package")
		if err := os.MkdirAll(extracted, 0o755); err != nil {
			return nil, err
		}
		if err := safeExtractZip(packagePath, extracted); err != nil {
			return nil, err
		}
		return importFromFolder(extracted, opts)
	}

	if info.IsDir() {
		return importFromFolder(packagePath, opts)
	}

	return nil, fmt.Errorf("exportpkg: import package not found: %s", packagePath)
}

func importFromFolder(packageRoot string, opts ImportOptions) (*ImportResult, error) {
	projectMD := filepath.Join(packageRoot, ".MyOS", "Project.md")
	if _, err := os.Stat(projectMD); err != nil {
		return nil, errors.New("exportpkg: invalid package: missing .MyOS/Project.md")
	}

	metadata, err := readExportMetadata(projectMD)
	if err != nil {
		return nil, err
	}
	subtree, ok := metadata["Subtree"]
	if !ok {
		return nil, errors.New("exportpkg: missing Subtree in export metadata")
	}

	subtreeRel, err := validateSubtreePath(subtree)
	if err != nil {
		return nil, err
	}

	sourceSubtree := filepath.Join(packageRoot, subtreeRel)
	if _, err := os.Stat(sourceSubtree); err != nil {
		return nil, fmt.Errorf("exportpkg: subtree not found in package: %s", subtreeRel)
	}

	importRoot, err := resolveImportRoot(metadata, opts)
	if err != nil {
		return nil, err
	}

	destSubtree := filepath.Join(importRoot, subtreeRel)
	if err := copyTreeSecure(sourceSubtree, destSubtree, opts.Conflict); err != nil {
		return nil, err
	}

	return &ImportResult{ImportRoot: importRoot, SubtreePath: subtreeRel}, nil
}

func resolveImportRoot(metadata map[string]string, opts ImportOptions) (string, error) {
	switch opts.Mode {
	case "restore":
		if ref, ok := metadata["ReferencePath"]; ok {
			if info, err := os.Stat(ref); err == nil && info.IsDir() {
				return ref, nil
			}
		}
	case "adopt":
		// falls through to TargetRoot below
	default:
		return "", fmt.Errorf("exportpkg: invalid mode: %s", opts.Mode)
	}

	if opts.TargetRoot == "" {
		return "", errors.New("exportpkg: target root is required for adopt mode or a missing reference path")
	}
	return filepath.Abs(opts.TargetRoot)
}

func readExportMetadata(projectMD string) (map[string]string, error) {
	data, err := os.ReadFile(projectMD)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if exportMetadataKeys[key] {
			metadata[key] = strings.TrimSpace(value)
		}
	}
	return metadata, nil
}

func validateSubtreePath(subtree string) (string, error) {
	s := strings.TrimSpace(subtree)
	s = strings.TrimPrefix(s, "/")
	if filepath.IsAbs(s) {
		return "", errors.New("exportpkg: subtree path must be relative")
	}
	for _, part := range strings.Split(filepath.ToSlash(s), "/") {
		if part == ".." {
			return "", errors.New("exportpkg: subtree path traversal not allowed")
		}
	}
	return filepath.FromSlash(s), nil
}

func copyTreeSecure(src, dst, conflict string) error {
	switch conflict {
	case "merge", "overwrite", "skip":
	default:
		return fmt.Errorf("exportpkg: invalid conflict mode: %s", conflict)
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := dst
		if rel != "." {
			target = filepath.Join(dst, rel)
		}

		lst, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if lst.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("exportpkg: symlinked path not allowed in import: %s", path)
		}

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if _, err := os.Stat(target); err == nil {
			switch conflict {
			case "skip", "merge":
				return nil
			case "overwrite":
				if err := os.Remove(target); err != nil {
					return err
				}
			}
		}
		return fsutil.CopyFile(path, target)
	})
}

// safeExtractZip extracts a zip archive, rejecting any member whose
// path escapes dest (zip-slip) or uses an absolute/drive form.
func safeExtractZip(zipPath, dest string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	destClean := filepath.Clean(dest)
	for _, f := range zr.File {
		name := f.Name
		if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") || strings.Contains(name, ":") {
			return errors.New("exportpkg: unsafe path in zip archive")
		}

		memberPath := filepath.Join(dest, filepath.FromSlash(name))
		if memberPath != destClean && !strings.HasPrefix(memberPath, destClean+string(os.PathSeparator)) {
			return errors.New("exportpkg: zip traversal detected")
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(memberPath, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(memberPath), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, memberPath); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
