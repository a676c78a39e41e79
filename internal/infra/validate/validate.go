// Package validate implements C7's schema-validation step (§4.7 step
// 3): checking a raw args map against a declarative domain.ParamSchema
// and reporting every violation as a "path: message" line, mirroring
// the teacher's catalog_validator.ValidateServerSpec idiom of
// accumulating []string issues rather than stopping at the first one.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

// Args validates raw against schema, returning one "path: message"
// string per violation found, with an object's fields visited in name
// order. A nil schema means "no constraints"; a nil raw is checked as
// an empty object (required fields are reported missing); neither
// panics. Validation is pure and idempotent (P9): re-running it on the
// same args yields the same issue list.
func Args(schema *domain.ParamSchema, raw map[string]any) []string {
	if schema == nil {
		return nil
	}
	var issues []string
	validateObject("", schema, raw, &issues)
	return issues
}

func validateObject(path string, schema *domain.ParamSchema, raw map[string]any, issues *[]string) {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := schema.Properties[name]
		fieldPath := joinPath(path, name)
		val, present := raw[name]
		if !present || val == nil {
			if field.Required {
				*issues = append(*issues, fmt.Sprintf("%s: is required", fieldPath))
			}
			continue
		}
		validateValue(fieldPath, field, val, issues)
	}
}

func validateValue(path string, schema *domain.ParamSchema, val any, issues *[]string) {
	switch schema.Kind {
	case domain.ParamString:
		validateString(path, schema, val, issues)
	case domain.ParamInteger:
		validateNumber(path, schema, val, issues, true)
	case domain.ParamNumber:
		validateNumber(path, schema, val, issues, false)
	case domain.ParamBoolean:
		if _, ok := val.(bool); !ok {
			*issues = append(*issues, fmt.Sprintf("%s: must be a boolean", path))
		}
	case domain.ParamArray:
		validateArray(path, schema, val, issues)
	case domain.ParamObject:
		obj, ok := val.(map[string]any)
		if !ok {
			*issues = append(*issues, fmt.Sprintf("%s: must be an object", path))
			return
		}
		validateObject(path, schema, obj, issues)
	default:
		*issues = append(*issues, fmt.Sprintf("%s: unknown parameter type %q", path, schema.Kind))
	}
}

func validateString(path string, schema *domain.ParamSchema, val any, issues *[]string) {
	s, ok := val.(string)
	if !ok {
		*issues = append(*issues, fmt.Sprintf("%s: must be a string", path))
		return
	}
	if schema.MinLength != nil && len(s) < *schema.MinLength {
		*issues = append(*issues, fmt.Sprintf("%s: must be at least %d characters", path, *schema.MinLength))
	}
	if schema.MaxLength != nil && len(s) > *schema.MaxLength {
		*issues = append(*issues, fmt.Sprintf("%s: must be at most %d characters", path, *schema.MaxLength))
	}
	if schema.Pattern != "" {
		if re, err := regexp.Compile(schema.Pattern); err == nil && !re.MatchString(s) {
			*issues = append(*issues, fmt.Sprintf("%s: must match pattern %s", path, schema.Pattern))
		}
	}
	if schema.Format == domain.FormatURL && strings.TrimSpace(s) != "" {
		if u, err := url.ParseRequestURI(s); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			*issues = append(*issues, fmt.Sprintf("%s: must be a valid http(s) URL", path))
		}
	}
}

func validateNumber(path string, schema *domain.ParamSchema, val any, issues *[]string, integer bool) {
	f, ok := asFloat(val)
	if !ok {
		kind := "number"
		if integer {
			kind = "integer"
		}
		*issues = append(*issues, fmt.Sprintf("%s: must be a %s", path, kind))
		return
	}
	if integer && f != float64(int64(f)) {
		*issues = append(*issues, fmt.Sprintf("%s: must be an integer", path))
	}
	if schema.Positive && f <= 0 {
		*issues = append(*issues, fmt.Sprintf("%s: must be positive", path))
	}
	if schema.Minimum != nil && f < *schema.Minimum {
		*issues = append(*issues, fmt.Sprintf("%s: must be >= %v", path, *schema.Minimum))
	}
	if schema.Maximum != nil && f > *schema.Maximum {
		*issues = append(*issues, fmt.Sprintf("%s: must be <= %v", path, *schema.Maximum))
	}
}

func validateArray(path string, schema *domain.ParamSchema, val any, issues *[]string) {
	arr, ok := val.([]any)
	if !ok {
		*issues = append(*issues, fmt.Sprintf("%s: must be an array", path))
		return
	}
	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		*issues = append(*issues, fmt.Sprintf("%s: must have at least %d items", path, *schema.MinItems))
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		*issues = append(*issues, fmt.Sprintf("%s: must have at most %d items", path, *schema.MaxItems))
	}
	if schema.Items == nil {
		return
	}
	for i, item := range arr {
		validateValue(fmt.Sprintf("%s[%d]", path, i), schema.Items, item, issues)
	}
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// StringSlice extracts a required []string field from args, the
// common shape every handler's batch input (keywords, urls, queries)
// takes once schema validation has already guaranteed it is an array
// of strings.
func StringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IntOr extracts an integer field from args, defaulting when absent
// or of the wrong shape (schema validation has already rejected the
// wrong shape by the time handlers see args; this is a defensive
// second line, per §4.6 step 1).
func IntOr(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	f, ok := asFloat(v)
	if !ok {
		return def
	}
	return int(f)
}

// StringOr extracts a string field from args, defaulting when absent.
func StringOr(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return def
}

// ObjectSlice extracts a required array-of-objects field from args,
// the shape of deep_research's "questions" input (each element a
// {question, content} pair) and llm_extraction's "items" input (each
// element an {instruction, content} pair).
func ObjectSlice(args map[string]any, key string) []map[string]any {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
