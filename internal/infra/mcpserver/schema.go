package mcpserver

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

// toJSONSchema converts a declarative domain.ParamSchema (§6's
// tool-file schema) into the *jsonschema.Schema the MCP protocol
// advertises as a tool's input schema. A nil schema becomes a bare
// "any object" schema rather than a nil InputSchema, so clients always
// see a well-formed JSON Schema object.
func toJSONSchema(s *domain.ParamSchema) *jsonschema.Schema {
	if s == nil {
		return &jsonschema.Schema{Type: "object"}
	}

	out := &jsonschema.Schema{
		Type:        string(s.Kind),
		Description: s.Description,
	}

	switch s.Kind {
	case domain.ParamString:
		out.MinLength = s.MinLength
		out.MaxLength = s.MaxLength
		out.Pattern = s.Pattern
		if s.Format == domain.FormatURL {
			out.Format = string(domain.FormatURL)
		}
	case domain.ParamInteger, domain.ParamNumber:
		out.Minimum = s.Minimum
		out.Maximum = s.Maximum
		if s.Positive {
			zero := 0.0
			out.Minimum = &zero
		}
	case domain.ParamArray:
		out.MinItems = s.MinItems
		out.MaxItems = s.MaxItems
		if s.Items != nil {
			out.Items = toJSONSchema(s.Items)
		}
	case domain.ParamObject:
		if len(s.Properties) > 0 {
			out.Properties = make(map[string]*jsonschema.Schema, len(s.Properties))
			for name, prop := range s.Properties {
				out.Properties[name] = toJSONSchema(prop)
				if prop.Required {
					out.Required = append(out.Required, name)
				}
			}
		}
	}

	return out
}
