// Package validator evaluates a document's proposed attribute set against
// the attribute registry, the site schema and, when the document declares
// one, its classification's rules. The output is a normalized attribute set
// with defaults injected and composite-key attributes derived, or a
// structured list of every violation found.
package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"attrix/internal/catalog"
	"attrix/internal/registry"
	"attrix/pkg/model"
)

// Validator evaluates documents against the applicable rule sets.
type Validator struct {
	registry registry.Registry
	catalog  catalog.Catalog
}

// New creates a validator.
func New(reg registry.Registry, cat catalog.Catalog) *Validator {
	return &Validator{registry: reg, catalog: cat}
}

// Validate normalizes proposed against the tenant's rules. Violations are
// collected across all steps and returned together as a ValidationError;
// the normalized set is only returned when there are none. Returned
// attributes are sorted lexicographically by key with the synthetic
// Classification attribute first.
func (v *Validator) Validate(ctx context.Context, tenant string, proposed []model.DocumentAttribute, classificationID string) ([]model.DocumentAttribute, error) {
	var verr model.ValidationError

	// Step 1: every proposed key must be registered.
	defs := make(map[string]*model.Attribute, len(proposed))
	for _, attr := range proposed {
		if _, ok := defs[attr.Key]; ok {
			continue
		}
		def, err := v.registry.Get(ctx, tenant, attr.Key)
		if err != nil {
			if model.WrapError(err) == model.ErrCanceled {
				return nil, err
			}
			verr = verr.Append(attr.Key, fmt.Sprintf("attribute '%s' not found", attr.Key))
			continue
		}
		defs[attr.Key] = def
	}

	// Step 2: resolve the applicable rule sets, site schema first.
	schema, err := v.catalog.SiteSchema(ctx, tenant)
	if err != nil {
		return nil, err
	}
	ruleSets := []model.SchemaRules{schema.Rules}

	var synthetic []model.DocumentAttribute
	if classificationID != "" {
		class, err := v.catalog.Classification(ctx, tenant, classificationID)
		if err != nil {
			return nil, err
		}
		ruleSets = append(ruleSets, class.Rules)
		synthetic = append(synthetic, model.DocumentAttribute{
			Key:         model.ClassificationAttributeKey,
			ValueType:   model.ValueTypeClassification,
			StringValue: class.ID,
		})
	}

	// Working set: last writer wins per key.
	working := make(map[string]model.DocumentAttribute, len(proposed))
	for _, attr := range proposed {
		if def, ok := defs[attr.Key]; ok {
			attr = coerce(attr, def)
		}
		working[attr.Key] = attr
	}

	// Step 3: required entries per rule set: default injection and
	// allowed-value checks. Allowed values also bind optional entries.
	for _, rules := range ruleSets {
		for _, rule := range rules.Required {
			attr, present := working[rule.AttributeKey]
			if !present {
				if !rule.HasDefault() {
					verr = verr.Append(rule.AttributeKey,
						fmt.Sprintf("missing required attribute '%s'", rule.AttributeKey))
					continue
				}
				// Injected attributes were not proposed, so their
				// definition is not in defs yet. Resolve it here or the
				// default would be typed as a plain string.
				def := defs[rule.AttributeKey]
				if def == nil {
					d, err := v.registry.Get(ctx, tenant, rule.AttributeKey)
					if err != nil {
						if model.WrapError(err) == model.ErrCanceled {
							return nil, err
						}
					} else {
						defs[rule.AttributeKey] = d
						def = d
					}
				}
				working[rule.AttributeKey] = defaulted(rule, def)
				continue
			}
			verr = verr.Merge(checkAllowed(rule, attr))
		}
		for _, rule := range rules.Optional {
			if attr, present := working[rule.AttributeKey]; present {
				verr = verr.Merge(checkAllowed(rule, attr))
			}
		}
	}

	// Step 4: attributes present but listed nowhere are rejected unless
	// every applicable rule set allows additional attributes.
	allowAdditional := true
	for _, rules := range ruleSets {
		if !rules.AllowAdditionalAttributes {
			allowAdditional = false
		}
	}
	if !allowAdditional {
		for _, attr := range proposed {
			if _, registered := defs[attr.Key]; !registered {
				continue
			}
			listed := false
			for _, rules := range ruleSets {
				if rules.Lists(attr.Key) {
					listed = true
					break
				}
			}
			if !listed {
				verr = verr.Append(attr.Key,
					fmt.Sprintf("attribute '%s' is not listed as a required or optional attribute", attr.Key))
			}
		}
	}

	// Step 5: derive composite-key attributes whose components all resolved.
	composites := DeriveComposites(ruleSets, working)

	if !verr.Empty() {
		return nil, verr
	}

	normalized := make([]model.DocumentAttribute, 0, len(working)+len(synthetic)+len(composites))
	normalized = append(normalized, synthetic...)
	for _, attr := range working {
		normalized = append(normalized, attr)
	}
	normalized = append(normalized, composites...)
	model.SortAttributes(normalized)
	return normalized, nil
}

// DeriveComposites synthesizes composite-key attributes for every composite
// definition whose components are all present in resolved. Key and value are
// the ordered "::"-joins of component keys and scalar values. Derivation is
// deterministic: it depends only on the rule sets and the resolved values.
func DeriveComposites(ruleSets []model.SchemaRules, resolved map[string]model.DocumentAttribute) []model.DocumentAttribute {
	var composites []model.DocumentAttribute
	seen := make(map[string]bool)

	for _, rules := range ruleSets {
		for _, ck := range rules.CompositeKeys {
			key := strings.Join(ck.AttributeKeys, model.CompositeKeySeparator)
			if seen[key] {
				continue
			}

			values := make([]string, 0, len(ck.AttributeKeys))
			complete := true
			for _, componentKey := range ck.AttributeKeys {
				attr, ok := resolved[componentKey]
				if !ok {
					complete = false
					break
				}
				values = append(values, attr.ScalarString())
			}
			if !complete {
				continue
			}

			seen[key] = true
			composites = append(composites, model.DocumentAttribute{
				Key:         key,
				ValueType:   model.ValueTypeComposite,
				StringValue: strings.Join(values, model.CompositeKeySeparator),
			})
		}
	}
	return composites
}

// checkAllowed validates an attribute against the rule's allowed-value list.
// Matching is exact and case-sensitive across every indexed value.
func checkAllowed(rule model.AttributeRule, attr model.DocumentAttribute) model.ValidationError {
	if len(rule.AllowedValues) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(rule.AllowedValues))
	for _, v := range rule.AllowedValues {
		allowed[v] = true
	}
	for _, value := range attr.IndexValues() {
		if !allowed[value] {
			return model.Validation(rule.AttributeKey,
				"invalid attribute value '%s', only allowed values are %s",
				rule.AttributeKey, strings.Join(rule.AllowedValues, ","))
		}
	}
	return nil
}

// defaulted builds the attribute injected for an absent required entry, as
// if the caller had supplied the configured default.
func defaulted(rule model.AttributeRule, def *model.Attribute) model.DocumentAttribute {
	attr := model.DocumentAttribute{Key: rule.AttributeKey, ValueType: model.ValueTypeString}
	if def != nil {
		attr.ValueType = def.ValueType
	}

	if len(rule.DefaultValues) > 0 {
		switch attr.ValueType {
		case model.ValueTypeNumber, model.ValueTypeNumbers:
			attr.ValueType = model.ValueTypeNumbers
			for _, v := range rule.DefaultValues {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					attr.NumberValues = append(attr.NumberValues, n)
				}
			}
		default:
			attr.ValueType = model.ValueTypeStrings
			attr.StringValues = rule.DefaultValues
		}
		return attr
	}

	switch attr.ValueType {
	case model.ValueTypeNumber:
		if n, err := strconv.ParseFloat(rule.DefaultValue, 64); err == nil {
			attr.NumberValue = &n
		}
	case model.ValueTypeBoolean:
		b := rule.DefaultValue == "true"
		attr.BooleanValue = &b
	default:
		attr.StringValue = rule.DefaultValue
	}
	return attr
}

// coerce aligns a proposed attribute with its registered definition so that
// the value type stored and indexed is the registry's, not the caller's.
func coerce(attr model.DocumentAttribute, def *model.Attribute) model.DocumentAttribute {
	switch def.DataType {
	case model.DataTypeKeyOnly:
		return model.DocumentAttribute{Key: attr.Key, ValueType: model.ValueTypeKeyOnly,
			InsertedDate: attr.InsertedDate, UserID: attr.UserID}
	case model.DataTypeNumber:
		if len(attr.NumberValues) > 0 {
			attr.ValueType = model.ValueTypeNumbers
		} else {
			attr.ValueType = model.ValueTypeNumber
		}
	case model.DataTypeBoolean:
		attr.ValueType = model.ValueTypeBoolean
	case model.DataTypeWatermark:
		attr.ValueType = model.ValueTypeWatermark
	default:
		if len(attr.StringValues) > 0 {
			attr.ValueType = model.ValueTypeStrings
		} else {
			attr.ValueType = model.ValueTypeString
		}
	}
	return attr
}
