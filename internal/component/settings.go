package component

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Problem is a single settings validation finding.
type Problem struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Key, p.Message)
}

// Defaults returns the declared default value of every field that has one.
func (s *ConfigSchema) Defaults() Settings {
	out := Settings{}
	if s == nil {
		return out
	}
	for _, f := range s.Fields {
		if f.Key == "" || f.Default == nil {
			continue
		}
		out[f.Key] = f.Default
	}
	return out
}

// ValidateSettings checks settings against the schema's field types. Keys
// the schema does not declare are ignored and absent keys are allowed.
func ValidateSettings(schema *ConfigSchema, settings Settings) []Problem {
	if schema == nil {
		return nil
	}
	var problems []Problem
	for _, f := range schema.Fields {
		value, ok := settings[f.Key]
		if !ok || value == nil {
			continue
		}
		problems = append(problems, validateField(f.Key, f, value)...)
	}
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].Key < problems[j].Key })
	return problems
}

func validateField(key string, f Field, value any) []Problem {
	switch f.Type {
	case FieldNumber:
		if !isNumber(value) {
			return []Problem{{Key: key, Message: "must be a number"}}
		}
	case FieldSelect:
		s, ok := value.(string)
		if !ok {
			return []Problem{{Key: key, Message: "must be a string"}}
		}
		if len(f.Options) > 0 && !hasOption(f.Options, s) {
			return []Problem{{Key: key, Message: fmt.Sprintf("%q is not an allowed option", s)}}
		}
	case FieldText, FieldPassword, FieldColor:
		if _, ok := value.(string); !ok {
			return []Problem{{Key: key, Message: "must be a string"}}
		}
	case FieldArray:
		items, ok := value.([]any)
		if !ok {
			return []Problem{{Key: key, Message: "must be an array"}}
		}
		var problems []Problem
		for idx, item := range items {
			itemKey := fmt.Sprintf("%s[%d]", key, idx)
			switch {
			case len(f.ItemFields) > 0:
				obj, ok := item.(map[string]any)
				if !ok {
					problems = append(problems, Problem{Key: itemKey, Message: "must be an object"})
					continue
				}
				for _, sub := range f.ItemFields {
					v, ok := obj[sub.Key]
					if !ok || v == nil {
						continue
					}
					problems = append(problems, validateField(itemKey+"."+sub.Key, sub, v)...)
				}
			case f.ItemSchema != nil:
				problems = append(problems, validateField(itemKey, *f.ItemSchema, item)...)
			}
		}
		return problems
	}
	return nil
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

func hasOption(options []Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
