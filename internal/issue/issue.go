package issue

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is the canonical, platform-agnostic representation of one work item.
// It is built once from a raw batch record layered over the batch defaults,
// and is immutable once tag resolution and stub composition have run.
type Issue struct {
	Summary  string
	Body     string
	Assignee string
	Version  string
	Type     string
	Stub     bool

	// Tags holds the resolved tag set, sorted. Empty until ResolveTags runs.
	Tags []string

	// rawTags holds unresolved tag directives with prefixes preserved,
	// defaults' directives first. ownStart marks where the record's own
	// directives begin; removal semantics only apply to those.
	rawTags  []string
	ownStart int
	resolved bool
}

// ValidationError reports which canonical field made a record unusable.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record is missing required field %q", e.Field)
}

// New normalizes a raw batch record into a canonical issue. A bare string is
// a summary-only record; a map carries any of the canonical fields. Every
// field falls back to the batch defaults. Tag directives are NOT resolved
// here: defaults' directives are concatenated ahead of the record's own into
// one unresolved list, because resolution depends on whether the record
// carries a regular directive of its own.
func New(raw any, defaults map[string]any) *Issue {
	rec := map[string]any{}
	switch v := raw.(type) {
	case string:
		rec["summary"] = v
	case map[string]any:
		rec = v
	case map[any]any:
		// yaml.v2-era decoders hand back interface keys
		for k, val := range v {
			if ks, ok := k.(string); ok {
				rec[ks] = val
			}
		}
	}

	iss := &Issue{
		Summary:  stringField(rec, defaults, "summary"),
		Body:     bodyField(rec, defaults),
		Assignee: stringField(rec, defaults, "assignee"),
		Version:  stringField(rec, defaults, "version"),
		Type:     stringField(rec, defaults, "type"),
		Stub:     stubFlag(rec, defaults),
	}

	iss.rawTags = append(iss.rawTags, tagList(defaults["tags"])...)
	iss.ownStart = len(iss.rawTags)
	iss.rawTags = append(iss.rawTags, tagList(rec["tags"])...)

	return iss
}

// Valid reports whether the record can be submitted. The only hard
// requirement is a non-empty summary after trimming.
func (i *Issue) Valid() bool {
	return i.Validate() == nil
}

// Validate returns a ValidationError naming the missing field, or nil.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Summary) == "" {
		return &ValidationError{Field: "summary"}
	}
	return nil
}

// ResolveTags turns the unresolved directive list into the final tag set.
//
// Directives partition by prefix: "+" appends unconditionally, "-" removes
// (issue scope only), no prefix is a regular tag. The final set is the union
// of all append tags (issue, defaults, batch) with the issue's own regular
// tags — or, when the issue declares none, the batch-default and defaults'
// regular tags — minus the issue's own remove set. Removal never touches
// tags contributed by defaults or the batch level.
//
// Resolution runs at most once; later calls are no-ops.
func (i *Issue) ResolveTags(batchAppend, batchDefault []string) {
	if i.resolved {
		return
	}

	var dAppend, dRegular []string
	for _, t := range i.rawTags[:i.ownStart] {
		switch {
		case strings.HasPrefix(t, "+"):
			dAppend = append(dAppend, strings.TrimPrefix(t, "+"))
		case strings.HasPrefix(t, "-"):
			// removal directives are issue-scoped; ignore in defaults
		default:
			dRegular = append(dRegular, t)
		}
	}

	var oAppend, oRemove, oRegular []string
	for _, t := range i.rawTags[i.ownStart:] {
		switch {
		case strings.HasPrefix(t, "+"):
			oAppend = append(oAppend, strings.TrimPrefix(t, "+"))
		case strings.HasPrefix(t, "-"):
			oRemove = append(oRemove, strings.TrimPrefix(t, "-"))
		default:
			oRegular = append(oRegular, t)
		}
	}

	own := map[string]bool{}
	for _, t := range oAppend {
		own[t] = true
	}
	if len(oRegular) > 0 {
		for _, t := range oRegular {
			own[t] = true
		}
	}
	for _, t := range oRemove {
		delete(own, t)
	}

	final := map[string]bool{}
	for t := range own {
		final[t] = true
	}
	for _, t := range dAppend {
		final[t] = true
	}
	for _, t := range batchAppend {
		final[t] = true
	}
	if len(oRegular) == 0 {
		for _, t := range batchDefault {
			final[t] = true
		}
		for _, t := range dRegular {
			final[t] = true
		}
	}

	tags := make([]string, 0, len(final))
	for t := range final {
		if t != "" {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)

	i.Tags = tags
	i.resolved = true
}

// Resolved reports whether tag resolution has already run.
func (i *Issue) Resolved() bool {
	return i.resolved
}

// ComposeStub assembles the body from the defaults' head/body/tail fragments
// when the stub flag is set. The issue's own body takes the middle slot; the
// defaults' body fills in only when the issue body is empty. Fragments are
// trimmed and empty ones dropped before joining with newlines. When the stub
// flag is off the body is left untouched.
func (i *Issue) ComposeStub(defaults map[string]any) {
	if !i.Stub {
		return
	}

	body := i.Body
	if strings.TrimSpace(body) == "" {
		body, _ = defaults["body"].(string)
	}

	var parts []string
	head, _ := defaults["head"].(string)
	tail, _ := defaults["tail"].(string)
	for _, p := range []string{head, body, tail} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	i.Body = strings.Join(parts, "\n")
}

// RawTags exposes the unresolved directive list for display/debugging.
func (i *Issue) RawTags() []string {
	out := make([]string, len(i.rawTags))
	copy(out, i.rawTags)
	return out
}

func stringField(rec, defaults map[string]any, key string) string {
	if v, ok := rec[key].(string); ok && v != "" {
		return v
	}
	if v, ok := defaults[key].(string); ok {
		return v
	}
	return ""
}

// bodyField prefers "body" but accepts the legacy "description" field name
// carried over from older batch files. Dropping the alias would silently
// change behavior for existing batches.
func bodyField(rec, defaults map[string]any) string {
	for _, m := range []map[string]any{rec, defaults} {
		if v, ok := m["body"].(string); ok && v != "" {
			return v
		}
		if v, ok := m["description"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// stubFlag resolves the stub setting: the record wins, absence falls back to
// defaults. Boolean true and the strings "true"/"yes"/"1" all count.
func stubFlag(rec, defaults map[string]any) bool {
	if v, ok := rec["stub"]; ok {
		return truthy(v)
	}
	if v, ok := defaults["stub"]; ok {
		return truthy(v)
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// tagList coerces a YAML-decoded tags value into a []string of directives.
func tagList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
