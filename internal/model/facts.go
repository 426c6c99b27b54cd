// facts.go tensor fact descriptors and datum type parsing
package model

import (
	"strings"

	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/errors"
)

// DatumType identifies the element type of a tensor.
type DatumType string

const (
	DatumF32  DatumType = "f32"
	DatumF64  DatumType = "f64"
	DatumI8   DatumType = "i8"
	DatumI16  DatumType = "i16"
	DatumI32  DatumType = "i32"
	DatumI64  DatumType = "i64"
	DatumU8   DatumType = "u8"
	DatumU16  DatumType = "u16"
	DatumU32  DatumType = "u32"
	DatumU64  DatumType = "u64"
	DatumBool DatumType = "bool"
)

var datumTypes = map[string]DatumType{
	"f32":  DatumF32,
	"f64":  DatumF64,
	"i8":   DatumI8,
	"i16":  DatumI16,
	"i32":  DatumI32,
	"i64":  DatumI64,
	"u8":   DatumU8,
	"u16":  DatumU16,
	"u32":  DatumU32,
	"u64":  DatumU64,
	"bool": DatumBool,
}

// ParseDatumType parses a datum type string such as "f32" or "I64".
// Matching is case-insensitive.
func ParseDatumType(s string) (DatumType, error) {
	dt, ok := datumTypes[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", errors.Newf("unknown datum type %q", s).
			Component("model").
			Category(errors.CategoryModelLoad).
			Build()
	}
	return dt, nil
}

// TensorFact describes the declared shape and type of one input or output
// tensor of a model.
type TensorFact struct {
	DatumType *DatumType `json:"datum_type,omitempty"`
	Dims      []int      `json:"dims"`
	Index     *int       `json:"index,omitempty"`
	IndexName *string    `json:"index_name,omitempty"`
}

// TranslateFacts converts configuration fact descriptors into tensor facts,
// parsing any declared datum type strings.
func TranslateFacts(facts []conf.ModelFactConfig) ([]TensorFact, error) {
	out := make([]TensorFact, 0, len(facts))
	for i := range facts {
		fact := &facts[i]
		tf := TensorFact{
			Dims:      fact.Dims,
			Index:     fact.Index,
			IndexName: fact.IndexName,
		}
		if fact.DatumType != nil {
			dt, err := ParseDatumType(*fact.DatumType)
			if err != nil {
				return nil, err
			}
			tf.DatumType = &dt
		}
		out = append(out, tf)
	}
	return out, nil
}
