package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// uploadedSchema constrains the wallpaper.uploaded payload shape before it
// leaves the process, so a code regression can never publish a malformed
// event onto the shared bus (spec §4.D "schema-validated").
const uploadedSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["wallpaperId", "userId", "storageKey", "mimeType", "width", "height", "contentHash"],
	"properties": {
		"wallpaperId": {"type": "string", "minLength": 1},
		"userId": {"type": "string", "minLength": 1},
		"storageKey": {"type": "string", "minLength": 1},
		"mimeType": {"type": "string", "minLength": 1},
		"width": {"type": "integer", "minimum": 1},
		"height": {"type": "integer", "minimum": 1},
		"contentHash": {"type": "string", "minLength": 1}
	}
}`

// variantAvailableSchema mirrors the shape this service expects from the
// upstream processing pipeline when it consumes wallpaper.variant.available.
const variantAvailableSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["wallpaperId", "variantKind", "storageKey"],
	"properties": {
		"wallpaperId": {"type": "string", "minLength": 1},
		"variantKind": {"type": "string", "minLength": 1},
		"storageKey": {"type": "string", "minLength": 1}
	}
}`

var (
	uploadedSchemaLoader        = gojsonschema.NewStringLoader(uploadedSchema)
	variantAvailableSchemaLoader = gojsonschema.NewStringLoader(variantAvailableSchema)
)

func validateAgainst(loader gojsonschema.JSONLoader, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for validation: %w", err)
	}

	result, err := gojsonschema.Validate(loader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("payload violates schema: %v", result.Errors())
	}
	return nil
}

func ValidateUploaded(p UploadedPayload) error {
	return validateAgainst(uploadedSchemaLoader, p)
}

func ValidateVariantAvailable(p VariantAvailablePayload) error {
	return validateAgainst(variantAvailableSchemaLoader, p)
}
