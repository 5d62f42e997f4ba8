// Package mdsection implements the line-oriented parser for MyOS's
// section-based Markdown configuration files (Project.md, Templates.md,
// Manifest.md, Config.md, ACLs.md, Info.md).
//
// A document is a sequence of sections. Each section is introduced by a
// top-level header line ("# Name") and ends at the next header, a blank
// line, or the first line that cannot be parsed as section content.
package mdsection

import (
	"bufio"
	"fmt"
	"strings"
)

// state is the parser's two-state machine: sleeping between sections,
// parsing while inside one.
type state int

const (
	sleeping state = iota
	parsing
)

// Document holds the sections parsed from a single file, in the order
// their headers appeared. Section values are one of:
//
//	map[string]any  - a dict (key -> string or []string); also an empty
//	                  section
//	[]any           - a flattened list of strings and/or dicts; a section
//	                  with a single bare/bullet item is a one-element list
type Document struct {
	Order    []string
	Sections map[string]any
}

// Section looks up a section by name, case-sensitive (headers are used
// verbatim as section names throughout MyOS).
func (d *Document) Section(name string) (any, bool) {
	v, ok := d.Sections[name]
	return v, ok
}

func newDocument() *Document {
	return &Document{Sections: make(map[string]any)}
}

type parser struct {
	doc          *Document
	state        state
	sectionName  string
	items        []any
}

// Parse reads a full document from s.
func Parse(s string) *Document {
	p := &parser{doc: newDocument()}
	scanner := bufio.NewScanner(strings.NewReader(s))
	// Config.md bodies can legitimately contain very long comma lists;
	// grow the scanner buffer well past the default 64KiB.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		p.feed(strings.TrimRight(scanner.Text(), "\r"))
	}
	p.finalizeIfParsing()
	return p.doc
}

func (p *parser) feed(line string) {
	if text, isHeader := splitHeader(line); isHeader {
		if p.state == parsing && isInlineProperty(text) {
			// Inline property line: re-parse its text as ordinary
			// section content rather than opening a new section.
			p.parseContentLine(text)
			return
		}
		p.finalizeIfParsing()
		p.sectionName = text
		p.items = nil
		p.state = parsing
		return
	}

	if strings.TrimSpace(line) == "" {
		p.finalizeIfParsing()
		return
	}

	if p.state != parsing {
		return
	}

	if !p.parseContentLine(line) {
		p.finalizeIfParsing()
	}
}

func (p *parser) finalizeIfParsing() {
	if p.state != parsing {
		return
	}
	p.doc.Order = append(p.doc.Order, p.sectionName)
	p.doc.Sections[p.sectionName] = finalizeItems(p.items)
	p.state = sleeping
	p.items = nil
	p.sectionName = ""
}

// splitHeader reports whether line is a "#+ text" header and returns its
// trimmed text.
func splitHeader(line string) (text string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 {
		return "", false
	}
	return strings.TrimSpace(line[i:]), true
}

// isInlineProperty reports whether a header's text is itself a "key:
// value" property line rather than a new section title, e.g. the
// "inherit: dynamic" property attached to a Config.md section.
func isInlineProperty(text string) bool {
	idx := strings.Index(text, ":")
	if idx <= 0 {
		return false
	}
	key := text[:idx]
	if strings.ContainsAny(key, " \t") {
		return false
	}
	return true
}

// parseContentLine parses one non-empty line of section content per the
// five content rules, appending the result to p.items. It returns false
// if the line is not valid content, in which case the caller finalizes
// the section without consuming the line into it.
func (p *parser) parseContentLine(line string) bool {
	content := stripInlineComment(line)
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	if idx := strings.Index(content, ":"); idx >= 0 {
		key := strings.TrimSpace(content[:idx])
		valRaw := strings.TrimSpace(content[idx+1:])
		if key == "" {
			return false
		}
		var val any
		if valRaw == "" {
			val = ""
		} else {
			parts := splitCommaList(valRaw)
			if len(parts) == 1 {
				val = parts[0]
			} else {
				val = parts
			}
		}
		p.items = append(p.items, map[string]any{key: val})
		return true
	}

	if strings.HasPrefix(content, "* ") {
		p.items = append(p.items, strings.TrimSpace(content[2:]))
		return true
	}

	if strings.Contains(content, ",") {
		parts := splitCommaList(content)
		if len(parts) == 1 {
			p.items = append(p.items, parts[0])
		} else {
			p.items = append(p.items, parts)
		}
		return true
	}

	if !strings.ContainsAny(content, " \t") {
		p.items = append(p.items, content)
		return true
	}

	return false
}

func stripInlineComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func splitCommaList(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

// finalizeItems implements the section-level merge/flatten rule: if
// every accumulated item is a dict, the dicts are merged into one; if
// any item is a string or a list, everything is flattened into a single
// ordered list of strings and dicts.
func finalizeItems(items []any) any {
	if len(items) == 0 {
		return map[string]any{}
	}

	allDicts := true
	for _, it := range items {
		if _, ok := it.(map[string]any); !ok {
			allDicts = false
			break
		}
	}

	if allDicts {
		merged := make(map[string]any, len(items))
		for _, it := range items {
			for k, v := range it.(map[string]any) {
				merged[k] = v
			}
		}
		return merged
	}

	flat := make([]any, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case []string:
			for _, s := range v {
				flat = append(flat, s)
			}
		default:
			flat = append(flat, v)
		}
	}
	return flat
}

// FindInherit extracts the "inherit" property from a parsed section,
// whether the section finalized as a dict or as a mixed list containing
// a dict entry. The default MyOS inherit status is "dynamic"; callers
// that need the default should fall back to it themselves.
func FindInherit(section any) (string, bool) {
	switch v := section.(type) {
	case map[string]any:
		if raw, ok := v["inherit"]; ok {
			return stringify(raw), true
		}
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if raw, ok := m["inherit"]; ok {
					return stringify(raw), true
				}
			}
		}
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) > 0 {
			return t[0]
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}
