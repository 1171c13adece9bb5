package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a schema written as
//
//	properties:
//	  num_images: {type: integer, default: 1}
//	required: [num_images]
//
// keeping the declaration order of properties.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: schema must be a mapping", node.Line)
	}
	out := New()
	var required []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "properties":
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: properties must be a mapping", val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				name := val.Content[j].Value
				var f Field
				if err := val.Content[j+1].Decode(&f); err != nil {
					return fmt.Errorf("field %s: %w", name, err)
				}
				out.Set(name, f)
			}
		case "required":
			if err := val.Decode(&required); err != nil {
				return fmt.Errorf("required: %w", err)
			}
		case "type":
		default:
			return fmt.Errorf("line %d: unknown schema key %q", key.Line, key.Value)
		}
	}
	for _, n := range required {
		f, ok := out.fields[n]
		if !ok {
			return fmt.Errorf("required field %s is not declared", n)
		}
		f.Required = true
	}
	*s = *out
	return nil
}

// MarshalYAML encodes the schema in the form UnmarshalYAML reads.
func (s *Schema) MarshalYAML() (any, error) {
	props := &yaml.Node{Kind: yaml.MappingNode}
	for _, n := range s.names {
		var val yaml.Node
		if err := val.Encode(s.fields[n]); err != nil {
			return nil, fmt.Errorf("field %s: %w", n, err)
		}
		props.Content = append(props.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: n},
			&val,
		)
	}
	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "properties"},
		props,
	)
	if req := s.Required(); len(req) > 0 {
		var reqNode yaml.Node
		if err := reqNode.Encode(req); err != nil {
			return nil, err
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "required"},
			&reqNode,
		)
	}
	return root, nil
}
