package model

import (
	"fmt"
	"time"
)

// AttributeRule constrains a single attribute inside a rule set. A rule may
// carry a scalar default, a list default, and a closed set of allowed values.
type AttributeRule struct {
	AttributeKey  string   `json:"attributeKey" yaml:"attributeKey"`
	DefaultValue  string   `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	DefaultValues []string `json:"defaultValues,omitempty" yaml:"defaultValues,omitempty"`
	AllowedValues []string `json:"allowedValues,omitempty" yaml:"allowedValues,omitempty"`
}

// HasDefault reports whether the rule configures a default value.
func (r AttributeRule) HasDefault() bool {
	return r.DefaultValue != "" || len(r.DefaultValues) > 0
}

// CompositeKey is an ordered list of attribute keys joined into a derived
// attribute.
type CompositeKey struct {
	AttributeKeys []string `json:"attributeKeys" yaml:"attributeKeys"`
}

// SchemaRules is a reusable rule set evaluated against a document's
// attributes. It serves both as the site-wide schema and as the rules of a
// classification.
type SchemaRules struct {
	Required                  []AttributeRule `json:"required" yaml:"required"`
	Optional                  []AttributeRule `json:"optional" yaml:"optional"`
	CompositeKeys             []CompositeKey  `json:"compositeKeys,omitempty" yaml:"compositeKeys,omitempty"`
	AllowAdditionalAttributes bool            `json:"allowAdditionalAttributes" yaml:"allowAdditionalAttributes"`
}

// Lists reports whether key appears in the rule set's required or optional
// entries.
func (s SchemaRules) Lists(key string) bool {
	return s.find(key) != nil
}

// Rule returns the required or optional rule for key, or nil.
func (s SchemaRules) Rule(key string) *AttributeRule {
	return s.find(key)
}

func (s SchemaRules) find(key string) *AttributeRule {
	for i := range s.Required {
		if s.Required[i].AttributeKey == key {
			return &s.Required[i]
		}
	}
	for i := range s.Optional {
		if s.Optional[i].AttributeKey == key {
			return &s.Optional[i]
		}
	}
	return nil
}

// Validate checks the structural invariants of the rule set. lookup resolves
// an attribute key to its registered definition, returning nil when unknown.
// Violations are collected, not fail-fast.
func (s SchemaRules) Validate(lookup func(key string) *Attribute) ValidationError {
	var verr ValidationError

	seen := make(map[string]string, len(s.Required)+len(s.Optional))
	check := func(rules []AttributeRule, section string) {
		for _, r := range rules {
			if prev, ok := seen[r.AttributeKey]; ok {
				verr = verr.Append(r.AttributeKey,
					fmt.Sprintf("attribute '%s' listed in both %s and %s attributes", r.AttributeKey, prev, section))
				continue
			}
			seen[r.AttributeKey] = section

			attr := lookup(r.AttributeKey)
			if attr == nil {
				verr = verr.Append(r.AttributeKey,
					fmt.Sprintf("attribute '%s' not found", r.AttributeKey))
				continue
			}
			if attr.DataType == DataTypeKeyOnly && (r.HasDefault() || len(r.AllowedValues) > 0) {
				verr = verr.Append(r.AttributeKey,
					fmt.Sprintf("attribute '%s' is KEY_ONLY and cannot have allowed or default values", r.AttributeKey))
			}
		}
	}
	check(s.Required, "required")
	check(s.Optional, "optional")

	for _, ck := range s.CompositeKeys {
		if len(ck.AttributeKeys) < 2 {
			verr = verr.Append("compositeKeys", "composite key requires at least 2 attribute keys")
			continue
		}
		for _, key := range ck.AttributeKeys {
			if _, ok := seen[key]; !ok {
				verr = verr.Append(key,
					fmt.Sprintf("attribute '%s' not listed in required/optional attributes", key))
			}
		}
	}

	return verr
}

// Schema is the tenant-wide rule set applied to every document.
type Schema struct {
	TenantID  string      `json:"tenantId" bson:"tenant_id"`
	Name      string      `json:"name" bson:"name"`
	Rules     SchemaRules `json:"rules" bson:"rules"`
	UpdatedAt time.Time   `json:"updatedAt" bson:"updated_at"`
}

// Classification is a named rule set a document can opt into by id.
type Classification struct {
	ID        string      `json:"id" bson:"_id"`
	TenantID  string      `json:"tenantId" bson:"tenant_id"`
	Name      string      `json:"name" bson:"name"`
	Rules     SchemaRules `json:"rules" bson:"rules"`
	CreatedAt time.Time   `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time   `json:"updatedAt" bson:"updated_at"`
}
