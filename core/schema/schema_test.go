package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addressSchema = `{
	"$id": "https://example.com/address.json",
	"type": "object",
	"properties": {
		"street": {"type": "string"},
		"city": {"type": "string"}
	},
	"required": ["city"]
}`

var personSchema = `{
	"$id": "https://example.com/person.json",
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"address": {"$ref": "https://example.com/address.json"}
	},
	"required": ["name"]
}`

func TestValidator(t *testing.T) {
	validator, err := NewValidator([]string{personSchema}, []string{addressSchema})
	require.NoError(t, err)

	assert.True(t, validator.HasSchema("https://example.com/person.json"))
	assert.False(t, validator.HasSchema("https://example.com/address.json"), "refs are not top-level schemas")
	assert.False(t, validator.HasSchema("https://example.com/unknown.json"))

	err = validator.ValidateStruct(map[string]interface{}{
		"name":    "Alice",
		"address": map[string]interface{}{"city": "Berlin"},
	}, "https://example.com/person.json")
	assert.NoError(t, err)

	err = validator.ValidateStruct(map[string]interface{}{
		"address": map[string]interface{}{"city": "Berlin"},
	}, "https://example.com/person.json")
	assert.Error(t, err, "name is required")

	err = validator.ValidateStruct(map[string]interface{}{
		"name":    "Alice",
		"address": map[string]interface{}{"street": "Main"},
	}, "https://example.com/person.json")
	assert.Error(t, err, "the city of the referenced address schema is required")

	err = validator.ValidateStruct(map[string]interface{}{"name": 42},
		"https://example.com/person.json")
	assert.Error(t, err)
}

func TestValidatorRejectsSchemaWithoutID(t *testing.T) {
	_, err := NewValidator([]string{`{"type": "object"}`}, nil)
	require.Error(t, err)
}

func TestValidatorUnknownSchema(t *testing.T) {
	validator, err := NewValidator(nil, nil)
	require.NoError(t, err)
	err = validator.ValidateStruct(map[string]interface{}{}, "https://example.com/unknown.json")
	assert.Error(t, err)
}
