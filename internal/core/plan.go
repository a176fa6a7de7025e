package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RenderPlan writes a human-readable description of cs to w. Updates are
// followed by a line diff of the stored and declared specs.
func RenderPlan(w io.Writer, cs Changeset) error {
	if cs.IsEmpty() {
		_, err := fmt.Fprintln(w, NoChangesMessage)
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for project %s:\n", cs.Project)
	for _, e := range cs.ToCreate {
		fmt.Fprintf(&b, "  + create %s %s\n", e.Category.DisplayName(), e.Name)
	}
	for _, u := range cs.ToUpdate {
		if u.Before.Name != u.After.Name {
			fmt.Fprintf(&b, "  ~ update %s %s (was %s)\n", u.After.Category.DisplayName(), u.After.Name, u.Before.Name)
		} else {
			fmt.Fprintf(&b, "  ~ update %s %s\n", u.After.Category.DisplayName(), u.After.Name)
		}
		for _, line := range SpecDiff(u.Before.Spec, u.After.Spec) {
			fmt.Fprintf(&b, "      %s\n", line)
		}
	}
	for _, e := range cs.ToDelete {
		fmt.Fprintf(&b, "  - delete %s %s\n", e.Category.DisplayName(), e.Name)
	}
	fmt.Fprintf(&b, "%d to create, %d to update, %d to delete.\n", len(cs.ToCreate), len(cs.ToUpdate), len(cs.ToDelete))
	_, err := io.WriteString(w, b.String())
	return err
}

// SpecDiff returns the changed lines between two JSON specs, prefixed with
// "-" or "+". Specs are indented first so the diff is line oriented.
func SpecDiff(before, after json.RawMessage) []string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(indentJSON(before), indentJSON(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	var out []string
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, prefix+line)
		}
	}
	return out
}

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw) + "\n"
	}
	buf.WriteByte('\n')
	return buf.String()
}
