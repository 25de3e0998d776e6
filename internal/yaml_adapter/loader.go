// Package yaml_adapter loads convention specs written as YAML or JSON.
//
// The document is walked as a yaml.Node tree so that attributes, records
// and enums keep the order in which they were written.
package yaml_adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vk/stdattr/internal/config"
	"github.com/vk/stdattr/internal/ctxlog"
)

// Meta keys are written as dunder names.
const (
	keyName        = "__name__"
	keyContact     = "__contact__"
	keyInstitution = "__institution__"
	keyDecoders    = "__decoders__"
)

var attributeKeys = map[string]bool{
	"validator":                      true,
	"description":                    true,
	"target_method":                  true,
	"default_value":                  true,
	"requirements":                   true,
	"position":                       true,
	"alternative_standard_attribute": true,
}

// Loader implements config.Loader for YAML and JSON.
type Loader struct{}

// NewLoader creates a YAML/JSON spec loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".yaml", ".yml", ".json"}
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*config.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file %s: %w", path, err)
	}
	return l.Parse(ctx, path, data)
}

// Parse implements config.Loader.
func (l *Loader) Parse(ctx context.Context, source string, src []byte) (*config.Spec, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "source", source, "bytes", len(src))

	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s: spec is empty", source)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: line %d: spec must be a mapping", source, root.Line)
	}

	spec := &config.Spec{Source: source, Raw: append([]byte(nil), src...)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, val := root.Content[i], root.Content[i+1]
		key := keyNode.Value

		var err error
		switch {
		case strings.HasPrefix(key, "__") && strings.HasSuffix(key, "__"):
			err = decodeMeta(&spec.Meta, key, val)
		case strings.HasPrefix(key, config.TypePrefix):
			err = decodeType(spec, strings.TrimPrefix(key, config.TypePrefix), val)
		default:
			var entry *config.AttributeEntry
			entry, err = decodeAttribute(key, val)
			if err == nil {
				spec.Attributes = append(spec.Attributes, entry)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: '%s': %w", source, keyNode.Line, key, err)
		}
	}

	logger.Debug("YAML loading complete.", "source", source, "attributes", len(spec.Attributes), "records", len(spec.Records), "enums", len(spec.Enums))
	return spec, nil
}

func decodeMeta(meta *config.Meta, key string, val *yaml.Node) error {
	switch key {
	case keyName:
		return val.Decode(&meta.Name)
	case keyContact:
		return val.Decode(&meta.Contact)
	case keyInstitution:
		return val.Decode(&meta.Institution)
	case keyDecoders:
		list, err := stringList(val)
		if err != nil {
			return err
		}
		meta.Decoders = list
		return nil
	default:
		return errors.New("unknown meta key")
	}
}

func decodeType(spec *config.Spec, name string, val *yaml.Node) error {
	if name == "" {
		return errors.New("type entry requires a name")
	}
	switch val.Kind {
	case yaml.SequenceNode:
		values, err := stringList(val)
		if err != nil {
			return err
		}
		spec.Enums = append(spec.Enums, &config.EnumEntry{Name: name, Values: values})
		return nil
	case yaml.MappingNode:
		rec := &config.RecordEntry{Name: name}
		for i := 0; i+1 < len(val.Content); i += 2 {
			fieldName, fieldType := val.Content[i].Value, val.Content[i+1]
			if fieldType.Kind != yaml.ScalarNode {
				return fmt.Errorf("field '%s': type must be a string", fieldName)
			}
			field := &config.FieldEntry{Name: fieldName, Type: fieldType.Value}
			if n, ok := strings.CutSuffix(fieldName, "?"); ok {
				field.Name, field.Optional = n, true
			}
			rec.Fields = append(rec.Fields, field)
		}
		spec.Records = append(spec.Records, rec)
		return nil
	default:
		return errors.New("type entry must be a list (enum) or a mapping (record)")
	}
}

type rawAttribute struct {
	Validator    string            `yaml:"validator"`
	Description  string            `yaml:"description"`
	TargetMethod string            `yaml:"target_method"`
	Default      yaml.Node         `yaml:"default_value"`
	Requirements yaml.Node         `yaml:"requirements"`
	Position     map[string]string `yaml:"position"`
	Alternative  string            `yaml:"alternative_standard_attribute"`
}

func decodeAttribute(name string, val *yaml.Node) (*config.AttributeEntry, error) {
	if val.Kind != yaml.MappingNode {
		return nil, errors.New("attribute must be a mapping")
	}
	for i := 0; i < len(val.Content); i += 2 {
		if k := val.Content[i].Value; !attributeKeys[k] {
			return nil, fmt.Errorf("unknown attribute key '%s'", k)
		}
	}

	var raw rawAttribute
	if err := val.Decode(&raw); err != nil {
		return nil, err
	}

	entry := &config.AttributeEntry{
		Name:         name,
		Validator:    raw.Validator,
		Description:  raw.Description,
		TargetMethod: raw.TargetMethod,
		Alternative:  raw.Alternative,
	}
	if raw.Default.Kind != 0 {
		if err := raw.Default.Decode(&entry.Default); err != nil {
			return nil, fmt.Errorf("default_value: %w", err)
		}
		entry.HasDefault = true
	}
	if raw.Requirements.Kind != 0 {
		reqs, err := stringList(&raw.Requirements)
		if err != nil {
			return nil, fmt.Errorf("requirements: %w", err)
		}
		entry.Requirements = reqs
	}
	for k, v := range raw.Position {
		switch k {
		case "before":
			entry.Position.Before = v
		case "after":
			entry.Position.After = v
		default:
			return nil, fmt.Errorf("position: unknown key '%s', expected 'before' or 'after'", k)
		}
	}
	if entry.Position.Before != "" && entry.Position.After != "" {
		return nil, errors.New("position: only one of 'before' and 'after' may be set")
	}
	return entry, nil
}

// stringList accepts a sequence of strings or a single string.
func stringList(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errors.New("expected a list of strings")
	}
}
