// Package toolconfig implements C7's external collaborator (§6
// "Declarative tool file"): a YAML-described tool table loaded once
// at startup with github.com/spf13/viper, modeled on the teacher's
// internal/infra/catalog/loader.Loader (read file, decode, normalize
// into domain types, accumulate every validation issue instead of
// stopping at the first).
package toolconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

// ToolSpec is the declarative half of a domain.ToolDescriptor: every
// field the tool file can express. The Handler is wired in by main,
// since a Go closure cannot come from YAML.
type ToolSpec struct {
	Name          string
	Description   string
	Capability    domain.Capability
	Schema        *domain.ParamSchema
	ResponseShape *domain.ResponseShape
}

type rawFile struct {
	Tools []rawTool `mapstructure:"tools"`
}

type rawTool struct {
	Name          string     `mapstructure:"name"`
	Capability    string     `mapstructure:"capability"`
	Description   string     `mapstructure:"description"`
	Schema        *rawSchema `mapstructure:"schema"`
	ErrorSentinel string     `mapstructure:"error_sentinel"`
}

type rawSchema struct {
	Type        string                `mapstructure:"type"`
	Description string                `mapstructure:"description"`
	Required    bool                  `mapstructure:"required"`
	MinLength   *int                  `mapstructure:"min_length"`
	MaxLength   *int                  `mapstructure:"max_length"`
	Pattern     string                `mapstructure:"pattern"`
	Format      string                `mapstructure:"format"`
	Minimum     *float64              `mapstructure:"minimum"`
	Maximum     *float64              `mapstructure:"maximum"`
	Positive    bool                  `mapstructure:"positive"`
	MinItems    *int                  `mapstructure:"min_items"`
	MaxItems    *int                  `mapstructure:"max_items"`
	Items       *rawSchema            `mapstructure:"items"`
	Properties  map[string]*rawSchema `mapstructure:"properties"`
}

// knownParamKinds is the closed set §6 allows; anything else is a
// startup-time fatal error ("unknown parameter types are a
// startup-time fatal error").
var knownParamKinds = map[string]domain.ParamKind{
	"string":  domain.ParamString,
	"integer": domain.ParamInteger,
	"number":  domain.ParamNumber,
	"boolean": domain.ParamBoolean,
	"array":   domain.ParamArray,
	"object":  domain.ParamObject,
}

// Load reads and decodes the tool file at path, returning one ToolSpec
// per declared tool in file order. Unknown top-level keys are ignored
// (viper's default unmarshal behavior); an unknown parameter `type`
// anywhere in the schema tree is reported as an error, matching §6's
// "startup-time fatal error" requirement — the caller is expected to
// treat a non-nil error as fatal.
func Load(path string, logger *zap.Logger) ([]ToolSpec, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("toolconfig")

	if path == "" {
		return nil, fmt.Errorf("tool file path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tool file: %w", err)
	}

	var raw rawFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode tool file: %w", err)
	}

	specs := make([]ToolSpec, 0, len(raw.Tools))
	seen := make(map[string]struct{}, len(raw.Tools))
	var errs []string
	for i, t := range raw.Tools {
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("tools[%d]: name is required", i))
			continue
		}
		if _, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Sprintf("tools[%d]: duplicate tool name %q", i, t.Name))
			continue
		}
		seen[t.Name] = struct{}{}

		schema, schemaErrs := decodeSchema(fmt.Sprintf("tools[%d].schema", i), t.Schema)
		if len(schemaErrs) > 0 {
			errs = append(errs, schemaErrs...)
			continue
		}

		spec := ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Capability:  domain.Capability(t.Capability),
			Schema:      schema,
		}
		if t.ErrorSentinel != "" {
			spec.ResponseShape = &domain.ResponseShape{ErrorSentinel: t.ErrorSentinel}
		}
		specs = append(specs, spec)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid tool file: %s", strings.Join(errs, "; "))
	}

	logger.Info("tool file loaded", zap.String("path", path), zap.Int("tools", len(specs)))
	return specs, nil
}

func decodeSchema(path string, r *rawSchema) (*domain.ParamSchema, []string) {
	if r == nil {
		return nil, nil
	}
	kind, ok := knownParamKinds[r.Type]
	if !ok {
		return nil, []string{fmt.Sprintf("%s: unknown parameter type %q", path, r.Type)}
	}

	schema := &domain.ParamSchema{
		Kind:        kind,
		Description: r.Description,
		Required:    r.Required,
		MinLength:   r.MinLength,
		MaxLength:   r.MaxLength,
		Pattern:     r.Pattern,
		Minimum:     r.Minimum,
		Maximum:     r.Maximum,
		Positive:    r.Positive,
		MinItems:    r.MinItems,
		MaxItems:    r.MaxItems,
	}
	if r.Format == string(domain.FormatURL) {
		schema.Format = domain.FormatURL
	}

	var errs []string
	if r.Items != nil {
		items, itemErrs := decodeSchema(path+".items", r.Items)
		errs = append(errs, itemErrs...)
		schema.Items = items
	}
	if len(r.Properties) > 0 {
		schema.Properties = make(map[string]*domain.ParamSchema, len(r.Properties))
		for name, prop := range r.Properties {
			decoded, propErrs := decodeSchema(fmt.Sprintf("%s.properties.%s", path, name), prop)
			errs = append(errs, propErrs...)
			schema.Properties[name] = decoded
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return schema, nil
}

// EnvironmentOverrides holds the optional environment-derived defaults
// §6 names: RESEARCH_MODEL, LLM_EXTRACTION_MODEL, OPENROUTER_BASE_URL.
type EnvironmentOverrides struct {
	ResearchModel      string
	LLMExtractionModel string
	OpenRouterBaseURL  string
}

// LoadEnvironmentOverrides reads the three optional override variables
// directly from the process environment, mirroring the teacher's
// env.go style of reading os.LookupEnv without an intervening config
// framework for process-identity concerns.
func LoadEnvironmentOverrides() EnvironmentOverrides {
	return EnvironmentOverrides{
		ResearchModel:      os.Getenv("RESEARCH_MODEL"),
		LLMExtractionModel: os.Getenv("LLM_EXTRACTION_MODEL"),
		OpenRouterBaseURL:  os.Getenv("OPENROUTER_BASE_URL"),
	}
}

// Capabilities computes the process-wide immutable capability map from
// the environment (§6): SEARCH_API_KEY -> search, REDDIT_CLIENT_ID and
// REDDIT_CLIENT_SECRET (both) -> reddit, SCRAPER_API_KEY -> scraping,
// LLM_API_KEY -> deep_research and llm_extraction.
func Capabilities() domain.Capabilities {
	caps := domain.Capabilities{
		domain.CapabilitySearch:        os.Getenv("SEARCH_API_KEY") != "",
		domain.CapabilityReddit:        os.Getenv("REDDIT_CLIENT_ID") != "" && os.Getenv("REDDIT_CLIENT_SECRET") != "",
		domain.CapabilityScraping:      os.Getenv("SCRAPER_API_KEY") != "",
		domain.CapabilityDeepResearch:  os.Getenv("LLM_API_KEY") != "",
		domain.CapabilityLLMExtraction: os.Getenv("LLM_API_KEY") != "",
	}
	return caps
}
