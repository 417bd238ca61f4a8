package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

// VerifyAgainstEmbeddedSchema checks the config against required properties of the embedded JSON schema
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	return verifyAgainstSchema(cfg, []byte(embeddedSchema))
}

func verifyAgainstSchema(cfg *Config, schemaData []byte) error {
	var schema map[string]any
	if err := json.Unmarshal(schemaData, &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	// convert config to JSON for validation
	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	defs, _ := schema["$defs"].(map[string]any)
	if errs := checkRequired(schema, configMap, defs, ""); len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// checkRequired walks object schemas and reports required properties with empty values
func checkRequired(node map[string]any, value any, defs map[string]any, path string) []string {
	node = resolveRef(node, defs)
	var errs []string

	switch v := value.(type) {
	case map[string]any:
		if req, ok := node["required"].([]any); ok {
			for _, r := range req {
				name, _ := r.(string)
				if isEmpty(v[name]) {
					errs = append(errs, joinPath(path, name)+" is required")
				}
			}
		}
		props, _ := node["properties"].(map[string]any)
		for name, p := range props {
			ps, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if sub, ok := v[name]; ok {
				errs = append(errs, checkRequired(ps, sub, defs, joinPath(path, name))...)
			}
		}
	case []any:
		items, ok := node["items"].(map[string]any)
		if !ok {
			return nil
		}
		for i, el := range v {
			errs = append(errs, checkRequired(items, el, defs, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}
	return errs
}

func resolveRef(node map[string]any, defs map[string]any) map[string]any {
	ref, ok := node["$ref"].(string)
	if !ok {
		return node
	}
	def, ok := defs[strings.TrimPrefix(ref, "#/$defs/")].(map[string]any)
	if !ok {
		return node
	}
	return def
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// GenerateSchema generates a JSON schema for the Config struct, only fields tagged required are required
func GenerateSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{RequiredFromJSONSchemaTags: true}
	return r.Reflect(&Config{})
}
