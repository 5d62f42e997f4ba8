// Package project implements MyOS's project configuration layer: the
// .MyOS/ section files that describe a project's templates, manifest
// metadata, free-form config sections, and their inheritance from a
// parent project.
package project

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Palmstroemen/MyOS/internal/fsutil"
	"github.com/Palmstroemen/MyOS/internal/mdsection"
)

const (
	myosDirName   = ".MyOS"
	projectMDName = "Project.md"
	templatesMD   = "Templates.md"
	manifestMD    = "Manifest.md"
	configMD      = "Config.md"

	// DefaultVersion is used when neither the environment nor an
	// existing manifest supplies one.
	DefaultVersion = "MyOS v0.1"
)

// Config is a single project's .MyOS/ state.
type Config struct {
	Root        string
	Templates   []string
	Version     string
	Metadata    map[string]string
	ConfigData  map[string]any
	ConfigOrder []string

	getenv func(string) string
}

// New opens a project rooted at root and loads it eagerly if valid.
// Parse failures never surface here; they degrade to empty sections
// and are logged, matching the rest of the config layer's failure
// policy.
func New(root string) *Config {
	return NewWithEnv(root, os.Getenv)
}

// NewWithEnv is New with an injectable environment lookup, for
// deterministic tests.
func NewWithEnv(root string, getenv func(string) string) *Config {
	c := &Config{
		Root:       root,
		Metadata:   map[string]string{},
		ConfigData: map[string]any{},
		getenv:     getenv,
	}
	if c.IsValid() {
		if err := c.Load(); err != nil {
			log.Printf("project: load %s: %v", root, err)
		}
	}
	return c
}

func (c *Config) myosDir() string        { return filepath.Join(c.Root, myosDirName) }
func (c *Config) projectMDPath() string  { return filepath.Join(c.myosDir(), projectMDName) }
func (c *Config) templatesPath() string  { return filepath.Join(c.myosDir(), templatesMD) }
func (c *Config) manifestPath() string   { return filepath.Join(c.myosDir(), manifestMD) }
func (c *Config) configDataPath() string { return filepath.Join(c.myosDir(), configMD) }

// IsValid reports whether Project.md exists under this root.
func (c *Config) IsValid() bool {
	info, err := os.Stat(c.projectMDPath())
	return err == nil && !info.IsDir()
}

// Load fills Templates, Metadata, Version and ConfigData from the
// project's section files. Missing files are treated as empty, not as
// errors.
func (c *Config) Load() error {
	if data, err := os.ReadFile(c.templatesPath()); err == nil {
		doc := mdsection.Parse(string(data))
		if sec, ok := doc.Section("Templates"); ok {
			c.Templates = toStringList(sec)
		}
	}

	c.Version = ""
	c.Metadata = map[string]string{}
	if data, err := os.ReadFile(c.manifestPath()); err == nil {
		doc := mdsection.Parse(string(data))
		if sec, ok := doc.Section("Project"); ok {
			if m, ok := sec.(map[string]any); ok {
				for k, v := range m {
					lk := strings.ToLower(k)
					val := stringifyVal(v)
					if lk == "version" {
						c.Version = val
						continue
					}
					c.Metadata[lk] = val
				}
			}
		}
	}
	if c.Version == "" {
		c.Version = c.getenv("MYOS_VERSION")
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}

	c.ConfigData = map[string]any{}
	c.ConfigOrder = nil
	if data, err := os.ReadFile(c.configDataPath()); err == nil {
		doc := mdsection.Parse(string(data))
		c.ConfigData = doc.Sections
		c.ConfigOrder = doc.Order
	}

	return nil
}

// SaveOptions carries the optional arguments to Save. A nil Templates
// preserves the current template list; a non-nil (possibly empty)
// slice replaces it. A nil Version preserves the current version.
type SaveOptions struct {
	Templates []string
	Version   *string
}

// Save writes Project.md (only if absent), Templates.md and
// Manifest.md. An empty resulting template list removes Templates.md
// entirely rather than writing an empty section.
func (c *Config) Save(opts SaveOptions) error {
	if opts.Templates != nil {
		c.Templates = opts.Templates
	}
	if opts.Version != nil {
		c.Version = *opts.Version
	}

	if err := os.MkdirAll(c.myosDir(), 0o755); err != nil {
		return err
	}

	if _, err := os.Stat(c.projectMDPath()); os.IsNotExist(err) {
		if err := os.WriteFile(c.projectMDPath(), []byte("# Project\n"), 0o644); err != nil {
			return err
		}
	}

	if len(c.Templates) == 0 {
		if err := removeIfExists(c.templatesPath()); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		b.WriteString("# Templates\n")
		for _, t := range c.Templates {
			b.WriteString(t)
			b.WriteString("\n")
		}
		if err := os.WriteFile(c.templatesPath(), []byte(b.String()), 0o644); err != nil {
			return err
		}
	}

	version := c.Version
	if version == "" {
		version = DefaultVersion
	}
	var mb strings.Builder
	mb.WriteString("# Project\n")
	mb.WriteString(fmt.Sprintf("Version: %s\n", version))
	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		mb.WriteString(fmt.Sprintf("%s: %s\n", k, c.Metadata[k]))
	}
	return os.WriteFile(c.manifestPath(), []byte(mb.String()), 0o644)
}

// GetInheritStatus returns the section's inherit property, defaulting
// to "dynamic" when absent or invalid.
func (c *Config) GetInheritStatus(sectionName string) string {
	const def = "dynamic"
	val, ok := c.ConfigData[sectionName]
	if !ok {
		return def
	}
	status, ok := mdsection.FindInherit(val)
	if !ok {
		return def
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "fix", "dynamic", "not":
		return status
	default:
		log.Printf("project: section %q has invalid inherit %q, defaulting to dynamic", sectionName, status)
		return def
	}
}

// Parent returns the nearest ancestor project above this one, if any.
func (c *Config) Parent() (*Config, bool) {
	root, ok := FindNearest(filepath.Dir(filepath.Clean(c.Root)))
	if !ok {
		return nil, false
	}
	return NewWithEnv(root, c.getenv), true
}

// ChildProjects returns the direct (one level deep) child projects
// under this root.
func (c *Config) ChildProjects() ([]*Config, error) {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		return nil, err
	}
	var children []*Config
	for _, e := range entries {
		if !e.IsDir() || fsutil.IsHidden(e.Name()) {
			continue
		}
		child := NewWithEnv(filepath.Join(c.Root, e.Name()), c.getenv)
		if child.IsValid() {
			children = append(children, child)
		}
	}
	return children, nil
}

// PropagateConfig pushes this project's section down to every direct
// child, unless the child has pinned it with "inherit: fix". Returns a
// per-child-root status map ("skipped_fix" or "updated").
func (c *Config) PropagateConfig(section string, dryRun bool) (map[string]string, error) {
	children, err := c.ChildProjects()
	if err != nil {
		return nil, err
	}

	parentVal, hasParentVal := c.ConfigData[section]
	result := make(map[string]string, len(children))
	for _, child := range children {
		if child.GetInheritStatus(section) == "fix" {
			result[child.Root] = "skipped_fix"
			continue
		}
		if !hasParentVal {
			continue
		}
		if !dryRun {
			if child.ConfigData == nil {
				child.ConfigData = map[string]any{}
			}
			if _, existed := child.ConfigData[section]; !existed {
				child.ConfigOrder = append(child.ConfigOrder, section)
			}
			child.ConfigData[section] = parentVal
			if err := child.saveConfigData(); err != nil {
				return result, err
			}
		}
		result[child.Root] = "updated"
	}
	return result, nil
}

func (c *Config) saveConfigData() error {
	path := c.configDataPath()
	if len(c.ConfigData) == 0 {
		return removeIfExists(path)
	}

	seen := make(map[string]bool, len(c.ConfigOrder))
	order := append([]string(nil), c.ConfigOrder...)
	for _, n := range order {
		seen[n] = true
	}
	for n := range c.ConfigData {
		if !seen[n] {
			order = append(order, n)
			seen[n] = true
		}
	}

	var b strings.Builder
	for i, name := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("# " + name + "\n")
		for _, line := range renderSectionBody(c.ConfigData[name]) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Create bootstraps dir as a new project by copying the nearest
// ancestor's .MyOS/ directory into dir/.MyOS, without following
// symlinks, then deleting every copied section file other than
// Project.md whose own section (named after the file's stem, e.g.
// "Templates" in Templates.md) has inherit status "not".
func Create(dir string) error {
	parent, ok := findAncestorWithMyOS(dir)
	if !ok {
		return fmt.Errorf("project: no parent .MyOS found above %s", dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	src := filepath.Join(parent, myosDirName)
	dst := filepath.Join(dir, myosDirName)
	if err := fsutil.CopyTree(src, dst, fsutil.SkipSymlinks); err != nil {
		return err
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == projectMDName {
			continue
		}
		path := filepath.Join(dst, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		doc := mdsection.Parse(string(data))
		stem := strings.TrimSuffix(e.Name(), ".md")
		if sec, ok := doc.Sections[stem]; ok {
			if status, ok := mdsection.FindInherit(sec); ok && strings.EqualFold(status, "not") {
				if err := os.Remove(path); err != nil {
					log.Printf("project: removing inherit:not section file %s: %v", path, err)
				}
			}
		}
	}
	return nil
}

// MakeProject creates dir (if needed) as a new project and, when no
// template list was inherited from the parent, seeds it with template.
func MakeProject(dir, template string) (bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	if err := Create(dir); err != nil {
		return false, err
	}
	c := New(dir)
	if template != "" && len(c.Templates) == 0 {
		if err := c.Save(SaveOptions{Templates: []string{template}}); err != nil {
			return false, err
		}
	}
	return c.IsValid(), nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			switch e := it.(type) {
			case string:
				out = append(out, e)
			case map[string]any:
				if items, ok := e["items"]; ok {
					out = append(out, toStringList(items)...)
				}
			}
		}
		return out
	case map[string]any:
		if items, ok := t["items"]; ok {
			return toStringList(items)
		}
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	}
	return nil
}

func stringifyVal(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func renderSectionBody(value any) []string {
	var lines []string
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s", k, stringifyVal(v[k])))
		}
	case []any:
		for _, item := range v {
			switch it := item.(type) {
			case string:
				lines = append(lines, "* "+it)
			case map[string]any:
				keys := make([]string, 0, len(it))
				for k := range it {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					lines = append(lines, fmt.Sprintf("%s: %s", k, stringifyVal(it[k])))
				}
			}
		}
	case string:
		lines = append(lines, "* "+v)
	}
	return lines
}
