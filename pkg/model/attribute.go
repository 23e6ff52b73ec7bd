// Package model defines the shared domain types for the attribute platform:
// attributes, schema rules, classifications, document attributes, index
// entries and the query criteria evaluated against the secondary index.
package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DataType is the declared type of a registered attribute.
type DataType string

const (
	DataTypeString    DataType = "STRING"
	DataTypeNumber    DataType = "NUMBER"
	DataTypeBoolean   DataType = "BOOLEAN"
	DataTypeKeyOnly   DataType = "KEY_ONLY"
	DataTypeWatermark DataType = "WATERMARK"
)

// IsValid checks if the data type is a known valid type.
func (d DataType) IsValid() bool {
	switch d {
	case DataTypeString, DataTypeNumber, DataTypeBoolean, DataTypeKeyOnly, DataTypeWatermark:
		return true
	}
	return false
}

// ValueType is the storage shape of a document attribute value.
type ValueType string

const (
	ValueTypeString         ValueType = "STRING"
	ValueTypeStrings        ValueType = "STRINGS"
	ValueTypeNumber         ValueType = "NUMBER"
	ValueTypeNumbers        ValueType = "NUMBERS"
	ValueTypeBoolean        ValueType = "BOOLEAN"
	ValueTypeKeyOnly        ValueType = "KEY_ONLY"
	ValueTypeWatermark      ValueType = "WATERMARK"
	ValueTypeComposite      ValueType = "COMPOSITE_STRING"
	ValueTypeClassification ValueType = "CLASSIFICATION"
)

// ValueType returns the value type derived from the data type for a
// scalar value.
func (d DataType) ValueType() ValueType {
	switch d {
	case DataTypeNumber:
		return ValueTypeNumber
	case DataTypeBoolean:
		return ValueTypeBoolean
	case DataTypeKeyOnly:
		return ValueTypeKeyOnly
	case DataTypeWatermark:
		return ValueTypeWatermark
	default:
		return ValueTypeString
	}
}

// CompositeKeySeparator joins attribute keys and component values when a
// composite-key attribute is derived from schema rules.
const CompositeKeySeparator = "::"

// ClassificationAttributeKey is the reserved synthetic attribute injected
// whenever a document declares a classification. It sorts before every
// other attribute in normalized output.
const ClassificationAttributeKey = "Classification"

// Attribute is a tenant-scoped attribute definition from the registry.
type Attribute struct {
	ID        string    `json:"id" bson:"_id"`
	TenantID  string    `json:"tenantId" bson:"tenant_id"`
	Key       string    `json:"key" bson:"key"`
	DataType  DataType  `json:"dataType" bson:"data_type"`
	ValueType ValueType `json:"valueType" bson:"value_type"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// DocumentAttribute is a single attribute value attached to a document.
// Exactly one of the value fields is set, selected by ValueType.
type DocumentAttribute struct {
	DocumentID   string    `json:"documentId"`
	Key          string    `json:"key"`
	ValueType    ValueType `json:"valueType"`
	StringValue  string    `json:"stringValue,omitempty"`
	StringValues []string  `json:"stringValues,omitempty"`
	NumberValue  *float64  `json:"numberValue,omitempty"`
	NumberValues []float64 `json:"numberValues,omitempty"`
	BooleanValue *bool     `json:"booleanValue,omitempty"`
	InsertedDate time.Time `json:"insertedDate"`
	UserID       string    `json:"userId,omitempty"`
}

// IsComposite reports whether the attribute is a derived composite-key
// attribute.
func (a DocumentAttribute) IsComposite() bool {
	return a.ValueType == ValueTypeComposite
}

// ScalarString returns the canonical string representation of the
// attribute's scalar value, used for composite-key derivation and for
// index sort values. Multi-valued attributes return their first value.
func (a DocumentAttribute) ScalarString() string {
	switch a.ValueType {
	case ValueTypeNumber:
		if a.NumberValue != nil {
			return FormatNumber(*a.NumberValue)
		}
	case ValueTypeNumbers:
		if len(a.NumberValues) > 0 {
			return FormatNumber(a.NumberValues[0])
		}
	case ValueTypeBoolean:
		if a.BooleanValue != nil {
			return strconv.FormatBool(*a.BooleanValue)
		}
	case ValueTypeStrings:
		if len(a.StringValues) > 0 {
			return a.StringValues[0]
		}
	default:
		return a.StringValue
	}
	return a.StringValue
}

// IndexValues returns every string the attribute should be indexed under.
// Multi-valued attributes produce one index row per value.
func (a DocumentAttribute) IndexValues() []string {
	switch a.ValueType {
	case ValueTypeStrings:
		return a.StringValues
	case ValueTypeNumbers:
		vals := make([]string, len(a.NumberValues))
		for i, n := range a.NumberValues {
			vals[i] = FormatNumber(n)
		}
		return vals
	case ValueTypeKeyOnly:
		return []string{""}
	default:
		return []string{a.ScalarString()}
	}
}

// FormatNumber renders a number the way it is joined into composite keys
// and sort values: shortest decimal representation, no exponent.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SortAttributes orders attributes lexicographically by key, with the
// synthetic Classification attribute always first.
func SortAttributes(attrs []DocumentAttribute) {
	sort.SliceStable(attrs, func(i, j int) bool {
		if attrs[i].Key == ClassificationAttributeKey {
			return attrs[j].Key != ClassificationAttributeKey
		}
		if attrs[j].Key == ClassificationAttributeKey {
			return false
		}
		return attrs[i].Key < attrs[j].Key
	})
}

// ValidAttributeKey reports whether key is usable as an attribute key.
// The separators used by composite keys and index sort keys are reserved.
func ValidAttributeKey(key string) bool {
	if key == "" || key == ClassificationAttributeKey {
		return false
	}
	return !strings.ContainsAny(key, "/#") && !strings.Contains(key, CompositeKeySeparator)
}
