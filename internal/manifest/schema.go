package manifest

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sources", "compiler", "compilerSettings", "verificationDate"],
  "properties": {
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url", "filename"],
        "properties": {
          "url": {"type": "string", "minLength": 1},
          "filename": {"type": "string", "minLength": 1},
          "isEntrypoint": {"type": ["boolean", "null"]}
        }
      }
    },
    "compiler": {"type": "string", "enum": ["func", "tact", "fift"]},
    "compilerSettings": {"type": "object"},
    "verificationDate": {"type": ["string", "number"]}
  }
}`

var compiledSchema = mustCompile(manifestSchema)

func mustCompile(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("manifest: compiling schema: %v", err))
	}
	return s
}

// validateShape checks a manifest document against the schema and joins
// every violation into one ErrManifest.
func validateShape(data []byte) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	for _, e := range result.Errors() {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.String())
	}
	return fmt.Errorf("%w: %s", ErrManifest, b.String())
}
