// Package clinic implements the Birth Clinic: path validation,
// template-source resolution, and safe materialization of an embryo
// into a physical directory.
package clinic

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Palmstroemen/MyOS/internal/fsutil"
)

// Error kinds surfaced at the overlay boundary (see the error handling
// design: these map to ENOENT/EACCES/EIO at the FUSE layer).
var (
	ErrInvalidPath    = errors.New("clinic: invalid embryo path")
	ErrNoTemplate     = errors.New("clinic: no template provides this path")
	ErrUnsafeTemplate = errors.New("clinic: template contains a symlink")
	ErrIOError        = errors.New("clinic: materialization failed")
)

var winDriveRE = regexp.MustCompile(`^[A-Za-z]:/`)

// Clinic validates and materializes embryos for one project.
type Clinic struct {
	ProjectRoot   string
	TemplatesDir  string
	TemplateNames []string

	group singleflight.Group
}

// New constructs a Clinic. templateNames order is precedence order,
// mirroring the project's configured template list.
func New(projectRoot, templatesDir string, templateNames []string) *Clinic {
	return &Clinic{
		ProjectRoot:   projectRoot,
		TemplatesDir:  templatesDir,
		TemplateNames: templateNames,
	}
}

// FindTemplateSource validates embryoPath and locates the first
// configured template that provides it, without touching the
// filesystem beyond existence checks.
func (c *Clinic) FindTemplateSource(embryoPath string) (string, error) {
	parts, err := validatePath(embryoPath)
	if err != nil {
		return "", err
	}
	return c.findTemplateSourceParts(parts)
}

// Birth validates, safety-checks and materializes the embryo at
// embryoPath, returning its new physical location. Concurrent births
// targeting the same embryo prefix are serialized; once one succeeds,
// later callers observe the already-physical directory and return
// immediately without copying again.
func (c *Clinic) Birth(embryoPath string) (string, error) {
	parts, err := validatePath(embryoPath)
	if err != nil {
		return "", err
	}

	rel := filepath.Join(parts...)
	target := filepath.Join(c.ProjectRoot, rel)

	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		return target, nil
	}

	v, err, _ := c.group.Do(rel, func() (any, error) {
		return c.birthLocked(parts, target)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Clinic) birthLocked(parts []string, target string) (string, error) {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target, nil
	}

	source, err := c.findTemplateSourceParts(parts)
	if err != nil {
		return "", err
	}
	if err := fsutil.ValidateNoSymlinks(source); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeTemplate, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIOError, err)
	}
	if err := fsutil.CopyTree(source, target, fsutil.SkipSymlinks); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIOError, err)
	}
	return target, nil
}

func (c *Clinic) findTemplateSourceParts(parts []string) (string, error) {
	for _, name := range c.TemplateNames {
		candidate := filepath.Join(append([]string{c.TemplatesDir, name}, parts...)...)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", ErrNoTemplate
}

// validatePath decodes and validates a project-relative embryo path,
// rejecting traversal, absolute forms, and hidden segments, and
// returns its clean path components.
func validatePath(embryoPath string) ([]string, error) {
	if embryoPath == "" {
		return nil, ErrInvalidPath
	}

	decoded, err := decodePercent(embryoPath)
	if err != nil {
		return nil, ErrInvalidPath
	}
	decoded = strings.ReplaceAll(decoded, "\\", "/")

	if strings.HasPrefix(decoded, "/") || winDriveRE.MatchString(decoded) {
		return nil, ErrInvalidPath
	}

	rawParts := strings.Split(decoded, "/")
	parts := make([]string, 0, len(rawParts))
	for _, p := range rawParts {
		if p == "" {
			continue
		}
		if p == ".." {
			return nil, ErrInvalidPath
		}
		if strings.HasPrefix(p, ".") {
			return nil, ErrInvalidPath
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return nil, ErrInvalidPath
	}
	return parts, nil
}

// decodePercent resolves the percent-encoded separator forms an
// attacker might use to smuggle a traversal sequence past a naive
// check, then performs a general percent-decode pass.
func decodePercent(s string) (string, error) {
	replacer := strings.NewReplacer(
		"%2f", "/", "%2F", "/",
		"%5c", "\\", "%5C", "\\",
		"%2e", ".", "%2E", ".",
	)
	s = replacer.Replace(s)
	return url.PathUnescape(s)
}
