// Package exportpkg implements the Exporter/Importer: packaging a
// project subtree with its .MyOS/ state and referenced templates into
// a portable folder or zip, and restoring one back.
package exportpkg

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/Palmstroemen/MyOS/internal/fsutil"
	"github.com/Palmstroemen/MyOS/internal/project"
	"github.com/Palmstroemen/MyOS/internal/template"
)

// Result describes a completed export.
type Result struct {
	PackagePath string
	ExportRoot  string
	SubtreePath string
	ZipPath     string // empty unless Zip was requested
}

// Options configures ExportSubtree.
type Options struct {
	PackageName string
	Zip         bool
	Getenv      func(string) string
}

// ExportSubtree packages the project subtree rooted at sourcePath into
// a new folder under outputDir (or a zip alongside it), including the
// project's .MyOS/ state and the templates it references.
func ExportSubtree(sourcePath, outputDir string, opts Options) (*Result, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	sourcePath, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, err
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}

	exportRoot, ok := project.FindNearest(sourcePath)
	if !ok {
		return nil, fmt.Errorf("exportpkg: no project root found for %s", sourcePath)
	}

	subtreeRel, err := filepath.Rel(exportRoot, sourcePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	packageName := opts.PackageName
	if packageName == "" {
		packageName = fmt.Sprintf("%s_export_%s", filepath.Base(exportRoot), time.Now().UTC().Format("20060102"))
	}
	packagePath := filepath.Join(outputDir, packageName)
	if _, err := os.Stat(packagePath); err == nil {
		return nil, fmt.Errorf("exportpkg: export path already exists: %s", packagePath)
	}

	if err := os.MkdirAll(packagePath, 0o755); err != nil {
		return nil, err
	}

	if err := fsutil.CopyTree(filepath.Join(exportRoot, subtreeRel), filepath.Join(packagePath, subtreeRel), fsutil.SkipSymlinks); err != nil {
		return nil, err
	}
	if err := fsutil.CopyTree(filepath.Join(exportRoot, ".MyOS"), filepath.Join(packagePath, ".MyOS"), fsutil.SkipSymlinks); err != nil {
		return nil, err
	}

	if err := writeExportMetadata(filepath.Join(packagePath, ".MyOS", "Project.md"), exportRoot, subtreeRel); err != nil {
		return nil, err
	}

	copyTemplates(exportRoot, packagePath, getenv)

	result := &Result{
		PackagePath: packagePath,
		ExportRoot:  exportRoot,
		SubtreePath: subtreeRel,
	}

	if opts.Zip {
		zipPath, err := zipFolder(packagePath)
		if err != nil {
			return nil, err
		}
		if err := os.RemoveAll(packagePath); err != nil {
			return nil, err
		}
		result.ZipPath = zipPath
		result.PackagePath = zipPath
	}

	return result, nil
}

func copyTemplates(exportRoot, packagePath string, getenv func(string) string) {
	cfg := project.NewWithEnv(exportRoot, getenv)
	if len(cfg.Templates) == 0 {
		return
	}

	templatesDir := template.ResolveDir(exportRoot, getenv)
	if info, err := os.Stat(templatesDir); err != nil || !info.IsDir() {
		log.Printf("exportpkg: templates directory not found for %s", exportRoot)
		return
	}

	targetRoot := filepath.Join(packagePath, "Templates")
	if err := os.MkdirAll(targetRoot, 0o755); err != nil {
		log.Printf("exportpkg: creating %s: %v", targetRoot, err)
		return
	}

	for _, name := range cfg.Templates {
		src := filepath.Join(templatesDir, name)
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			log.Printf("exportpkg: template %q not found in %s", name, templatesDir)
			continue
		}
		if err := fsutil.CopyTree(src, filepath.Join(targetRoot, name), fsutil.SkipSymlinks); err != nil {
			log.Printf("exportpkg: copying template %q: %v", name, err)
		}
	}
}

func writeExportMetadata(projectMD, referencePath, subtreePath string) error {
	u, err := user.Current()
	username := "user"
	if err == nil {
		username = u.Username
	}
	host, _ := os.Hostname()
	sourceID := fmt.Sprintf("%s@%s", username, host)

	block := "\n# Export\n" +
		fmt.Sprintf("ReferencePath: %s\n", referencePath) +
		fmt.Sprintf("Subtree: /%s\n", filepath.ToSlash(subtreePath)) +
		fmt.Sprintf("ExportedAt: %s\n", time.Now().UTC().Format(time.RFC3339)) +
		fmt.Sprintf("Source: %s\n", sourceID)

	existing, err := os.ReadFile(projectMD)
	if err == nil {
		return os.WriteFile(projectMD, append(existing, []byte(block)...), 0o644)
	}
	if err := os.MkdirAll(filepath.Dir(projectMD), 0o755); err != nil {
		return err
	}
	return os.WriteFile(projectMD, []byte("# MyOS Project\n"+block), 0o644)
}

func zipFolder(folder string) (string, error) {
	zipPath := folder + ".zip"
	out, err := os.Create(zipPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	err = filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}

		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(fw, f)
		return err
	})
	if err != nil {
		return "", err
	}
	return zipPath, nil
}
