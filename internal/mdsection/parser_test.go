package mdsection

import (
	"reflect"
	"testing"
)

func TestParseDictSection(t *testing.T) {
	t.Parallel()
	doc := Parse("# Project\nName: Haus\nOwner: alice\n")

	got, ok := doc.Section("Project")
	if !ok {
		t.Fatal("expected section Project")
	}
	want := map[string]any{"Name": "Haus", "Owner": "alice"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Section(Project) = %#v, want %#v", got, want)
	}
}

func TestParseBulletSection(t *testing.T) {
	t.Parallel()
	doc := Parse("# Templates\n* Standard\n* Extra\n")

	got, _ := doc.Section("Templates")
	want := []any{"Standard", "Extra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Section(Templates) = %#v, want %#v", got, want)
	}
}

func TestParseCommaList(t *testing.T) {
	t.Parallel()
	doc := Parse("# Templates\nStandard, Extra, Legacy\n")

	got, _ := doc.Section("Templates")
	want := []any{"Standard", "Extra", "Legacy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Section(Templates) = %#v, want %#v", got, want)
	}
}

func TestParseCommaValueCollapsesSingle(t *testing.T) {
	t.Parallel()
	doc := Parse("# Project\nName: Haus\n")
	got, _ := doc.Section("Project")
	m := got.(map[string]any)
	if m["Name"] != "Haus" {
		t.Errorf("Name = %#v, want %q", m["Name"], "Haus")
	}
}

func TestParseCommaValueBecomesList(t *testing.T) {
	t.Parallel()
	doc := Parse("# Manifest\nRoles: admin, worker\n")
	got, _ := doc.Section("Manifest")
	m := got.(map[string]any)
	want := []string{"admin", "worker"}
	if !reflect.DeepEqual(m["Roles"], want) {
		t.Errorf("Roles = %#v, want %#v", m["Roles"], want)
	}
}

func TestBlankLineEndsSection(t *testing.T) {
	t.Parallel()
	doc := Parse("# A\nfoo: bar\n\n# B\nbaz: qux\n")
	if len(doc.Order) != 2 {
		t.Fatalf("expected 2 sections, got %d: %v", len(doc.Order), doc.Order)
	}
}

func TestInvalidLineEndsSection(t *testing.T) {
	t.Parallel()
	// "this has many bare words" matches none of the five content rules.
	doc := Parse("# A\nfoo: bar\nthis has many bare words\nbaz: qux\n")
	got, _ := doc.Section("A")
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Section(A) = %#v, want dict", got)
	}
	if _, exists := m["baz"]; exists {
		t.Errorf("baz should not have been parsed: section was finalized by the invalid line")
	}
	if m["foo"] != "bar" {
		t.Errorf("foo = %#v, want bar", m["foo"])
	}
}

func TestInlineComment(t *testing.T) {
	t.Parallel()
	doc := Parse("# A\nfoo: bar # a trailing note\n")
	got, _ := doc.Section("A")
	m := got.(map[string]any)
	if m["foo"] != "bar" {
		t.Errorf("foo = %#v, want bar", m["foo"])
	}
}

func TestInlinePropertyAttachesToSection(t *testing.T) {
	t.Parallel()
	doc := Parse("# Templates\n## inherit: fix\n* Standard\n")
	got, _ := doc.Section("Templates")
	inherit, ok := FindInherit(got)
	if !ok || inherit != "fix" {
		t.Errorf("FindInherit = %q, %v, want \"fix\", true", inherit, ok)
	}
	// The bullet item should still be present alongside the property.
	list, ok := got.([]any)
	if !ok {
		t.Fatalf("Section(Templates) = %#v, want list", got)
	}
	found := false
	for _, item := range list {
		if item == "Standard" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Standard in %#v", list)
	}
}

func TestFindInheritDefaultMissing(t *testing.T) {
	t.Parallel()
	doc := Parse("# Templates\n* Standard\n")
	got, _ := doc.Section("Templates")
	if _, ok := FindInherit(got); ok {
		t.Errorf("expected no inherit property")
	}
}

func TestParserHaltsOnFiniteInput(t *testing.T) {
	t.Parallel()
	// Parser totality: malformed input never panics or hangs, and
	// degrades to an empty/partial document.
	inputs := []string{
		"",
		"###",
		"# \n\n\n",
		"not a header at all",
		"# A\n: missing key\n",
	}
	for _, in := range inputs {
		doc := Parse(in)
		if doc == nil {
			t.Errorf("Parse(%q) returned nil document", in)
		}
	}
}
