// Package protoschema loads a flat, YAML-described prototype for the
// cmd/ tools. The engine itself takes a *proto.Tree built however the
// caller likes (§6 "Collaborator interfaces consumed" treats the XML
// section reader as an external stand-in); this package is that stand-in
// for e57inspect/e57batch, not a general E57 XML parser.
package protoschema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/e57io/e57cv/e57err"
	"github.com/e57io/e57cv/proto"
)

// FieldSpec describes one terminal leaf, always a direct child of the
// implicit root structure. Nested structures/vectors are out of scope for
// this loader; the engine's CheckBuffers only cares about path resolution,
// and a flat schema covers every codec path the cmd/ tools need to drive.
type FieldSpec struct {
	Path   string  `yaml:"path"`
	Kind   string  `yaml:"kind"` // signed, unsigned, scaled, float32, float64, string, bool
	Min    int64   `yaml:"min"`
	Max    int64   `yaml:"max"`
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

// Schema is the on-disk description of a prototype.
type Schema struct {
	Fields []FieldSpec `yaml:"fields"`
}

// Load reads a Schema from a YAML file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	if len(s.Fields) == 0 {
		return nil, e57err.BadApiArgument("schema", path, "schema declares no fields")
	}
	return &s, nil
}

// Build constructs the proto.Tree this Schema describes: one root
// structure with every field as a direct, ordered child, so bytestream
// numbering falls out of field declaration order (§3 "bytestream
// numbering is a deterministic function of the prototype tree").
func (s *Schema) Build() (*proto.Tree, error) {
	b := proto.NewBuilder()
	root := b.Root()
	for _, f := range s.Fields {
		switch f.Kind {
		case "signed":
			b.AddSignedInteger(root, f.Path, f.Min, f.Max)
		case "unsigned":
			b.AddUnsignedInteger(root, f.Path, f.Min, f.Max)
		case "scaled":
			b.AddScaledInteger(root, f.Path, f.Min, f.Max, f.Scale, f.Offset)
		case "float32":
			b.AddFloat32(root, f.Path)
		case "float64":
			b.AddFloat64(root, f.Path)
		case "string":
			b.AddString(root, f.Path)
		case "bool":
			b.AddBoolean(root, f.Path)
		default:
			return nil, e57err.BadApiArgument("kind", f.Kind, "unrecognized field kind")
		}
	}
	return b.Build()
}
