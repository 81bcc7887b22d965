package module

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedMajor is the only descriptor format major version understood.
const SupportedMajor = "v1"

const schemaURL = "schema://module-descriptor.json"

// descriptorSchema describes the on-disk shape of a Descriptor.
const descriptorSchema = `{
  "type": "object",
  "required": ["moduleId", "sectionKind", "totalQuestions", "components"],
  "properties": {
    "formatVersion": {"type": "string"},
    "moduleId": {"type": "string", "minLength": 1},
    "moduleName": {"type": "string"},
    "sectionKind": {"enum": ["reading", "listening", "writing", "speaking"]},
    "totalQuestions": {"type": "integer", "minimum": 0},
    "timeLimitSeconds": {"type": ["integer", "null"], "minimum": 0},
    "components": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type", "setId", "questionsPerSet"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "setId": {"type": "integer"},
          "questionsPerSet": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(descriptorSchema))
		if err != nil {
			compileErr = fmt.Errorf("parse descriptor schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// LoadFile reads a descriptor from a .json, .yaml or .yml file.
func LoadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseYAML converts a YAML document to JSON and parses it.
func ParseYAML(data []byte) (*Descriptor, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return ParseJSON(raw)
}

// ParseJSON validates data against the descriptor schema and decodes it.
// Structural validation (Validate) is applied; the question-count invariant
// is left to the caller.
func ParseJSON(data []byte) (*Descriptor, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func checkFormatVersion(v string) error {
	if v == "" {
		return nil
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedFormat, v)
	}
	if semver.Major(v) != SupportedMajor {
		return fmt.Errorf("%w: %s (want %s.x)", ErrUnsupportedFormat, v, SupportedMajor)
	}
	return nil
}
