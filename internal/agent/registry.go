package agent

import (
	"reflect"
	"sync"

	"github.com/nexusrun/agentrt/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry holds the ToolDefinitions available to a Client, keyed by
// name. Registration is thread-safe; a registry may be shared across
// concurrent sessions the way a teacher-style registry would be (§5 "Shared
// resources").
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]models.ToolDefinition
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]models.ToolDefinition)}
}

// Register adds or replaces a tool definition. Re-registration under the
// same name replaces the prior definition (§4.2).
func (r *ToolRegistry) Register(tool models.ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get looks up a tool by name. It returns a *ToolError of kind
// ToolErrNotFound, carrying the tool name, when absent.
func (r *ToolRegistry) Get(name string) (models.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return models.ToolDefinition{}, NewToolNotFoundError(name)
	}
	return t, nil
}

// Definitions returns every registered tool, used when building a provider
// request.
func (r *ToolRegistry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Validate checks a tool call's input against its registered JSON Schema.
// A tool with no schema (nil InputSchema) always validates.
func (r *ToolRegistry) Validate(name string, input map[string]any) error {
	t, err := r.Get(name)
	if err != nil {
		return err
	}
	if len(t.InputSchema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	raw, err := schemaToResource(t.InputSchema)
	if err != nil {
		return NewToolValidationError(name, err.Error())
	}
	if err := compiler.AddResource(name+"#", raw); err != nil {
		return NewToolValidationError(name, err.Error())
	}
	schema, err := compiler.Compile(name + "#")
	if err != nil {
		return NewToolValidationError(name, err.Error())
	}
	if err := schema.ValidateInterface(toInterfaceMap(input)); err != nil {
		return NewToolValidationError(name, err.Error())
	}
	return nil
}

func toInterfaceMap(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func schemaToResource(schema map[string]any) (any, error) {
	return toInterfaceMap(schema), nil
}

// InferSchema derives a JSON Schema object from a callable's parameter
// struct, following the mapping table in §4.2: string→string, int→integer,
// float→number, bool→boolean, slice-of-T→array, pointer-to-T→same as T with
// the field made non-required, unknown→string. paramsType must be a struct
// type or a pointer to one (pointers are dereferenced); every exported field
// becomes a schema property named by its `json` tag (or, if absent, the
// field name with its first letter lowercased).
func InferSchema(paramsType reflect.Type) map[string]any {
	for paramsType.Kind() == reflect.Ptr {
		paramsType = paramsType.Elem()
	}
	properties := map[string]any{}
	var required []string

	for i := 0; i < paramsType.NumField(); i++ {
		field := paramsType.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omit := jsonFieldName(field)
		if omit {
			continue
		}
		fieldType := field.Type
		optional := fieldType.Kind() == reflect.Ptr
		if optional {
			fieldType = fieldType.Elem()
		}
		properties[name] = schemaForType(fieldType)
		if !optional {
			required = append(required, name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func schemaForType(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": schemaForType(t.Elem())}
	default:
		return map[string]any{"type": "string"}
	}
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if tag == "" {
		return lowerFirst(field.Name), false
	}
	name := tag
	for i, c := range tag {
		if c == ',' {
			name = tag[:i]
			break
		}
	}
	if name == "" {
		return lowerFirst(field.Name), false
	}
	return name, false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
