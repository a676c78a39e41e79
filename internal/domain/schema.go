package domain

import (
	"context"
	"strings"
)

// ParamKind is the closed set of parameter constraint kinds the
// declarative schema supports (§3, §9 "keep the schema-to-validator
// mapping closed over a finite set of constraint kinds").
type ParamKind string

const (
	ParamString  ParamKind = "string"
	ParamInteger ParamKind = "integer"
	ParamNumber  ParamKind = "number"
	ParamBoolean ParamKind = "boolean"
	ParamArray   ParamKind = "array"
	ParamObject  ParamKind = "object"
)

// ParamFormat is a format hint layered on top of ParamString.
type ParamFormat string

const (
	FormatNone ParamFormat = ""
	FormatURL  ParamFormat = "url"
)

// ParamSchema is one node of the declarative parameter schema. Scalar,
// array and nested-object shapes are all expressed with the same
// struct; Items/Properties are only consulted for the matching Kind.
type ParamSchema struct {
	Kind        ParamKind
	Description string
	Required    bool

	// string constraints
	MinLength *int
	MaxLength *int
	Pattern   string
	Format    ParamFormat

	// integer/number constraints
	Minimum  *float64
	Maximum  *float64
	Positive bool

	// array constraints
	Items    *ParamSchema
	MinItems *int
	MaxItems *int

	// object constraints
	Properties map[string]*ParamSchema
}

// ResponseShape optionally marks a textual handler result as an error
// based on a sentinel substring (§3, §9 "sentinel-based error
// detection"). The dispatcher — not the handler — owns the decision;
// this keeps handler formatting independent of dispatch concerns.
type ResponseShape struct {
	ErrorSentinel string
}

// IsError reports whether body should be treated as an error result.
func (r *ResponseShape) IsError(body string) bool {
	if r == nil || r.ErrorSentinel == "" {
		return false
	}
	return strings.Contains(body, r.ErrorSentinel)
}

// Capability names a required external service credential. The
// dispatcher gates tool invocation on its presence (§4.7 step 2).
type Capability string

const (
	CapabilitySearch        Capability = "search"
	CapabilityReddit        Capability = "reddit"
	CapabilityScraping      Capability = "scraping"
	CapabilityDeepResearch  Capability = "deep_research"
	CapabilityLLMExtraction Capability = "llm_extraction"
)

// Capabilities is the process-wide immutable map computed once at
// startup from environment variables (§6).
type Capabilities map[Capability]bool

// Enabled reports whether cap is present and true. An empty/unset
// capability (zero value, "") is always enabled — tools without a
// capability requirement never get gated.
func (c Capabilities) Enabled(cap Capability) bool {
	if cap == "" {
		return true
	}
	return c[cap]
}

// HandlerFunc is the pure, dispatchable operation a ToolDescriptor
// points to. It receives already-schema-validated arguments and
// returns the Markdown body plus is-error flag directly — never an
// exception (§9 "never throw" discipline).
type HandlerFunc func(ctx context.Context, args map[string]any) (ToolResult, error)

// ToolResult is the tool-protocol response shape (§6): a text body and
// an error flag.
type ToolResult struct {
	Text    string
	IsError bool
}

// ToolDescriptor is an immutable record created at process start
// (§3). Its schema and handler never change for the process lifetime.
type ToolDescriptor struct {
	Name          string
	Description   string
	Capability    Capability
	Schema        *ParamSchema
	Handler       HandlerFunc
	ResponseShape *ResponseShape
	// PostValidate is an optional hook for cross-field checks the
	// declarative schema cannot express (§4.7 step 4).
	PostValidate func(args map[string]any) error
}
