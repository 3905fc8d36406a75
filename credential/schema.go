package credential

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const credentialSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["@context", "type", "issuer", "issuanceDate", "credentialSubject", "proof"],
  "properties": {
    "@context": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "type": {"type": "array", "contains": {"const": "VerifiableCredential"}},
    "issuer": {"type": "string", "minLength": 1},
    "issuanceDate": {"type": "string", "minLength": 1},
    "credentialSubject": {
      "type": "object",
      "required": ["id", "domain", "nonce"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "domain": {"type": "string"},
        "nonce": {"type": "string", "minLength": 1}
      }
    },
    "proof": {"$ref": "#/definitions/proof"}
  },
  "definitions": {
    "proof": {
      "type": "object",
      "required": ["type", "created", "verificationMethod", "proofPurpose", "signatureValue"],
      "properties": {
        "signatureValue": {"type": "string", "minLength": 1}
      }
    }
  }
}`

const presentationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["@context", "type", "holder", "domain", "nonce", "verifiableCredential", "proof"],
  "properties": {
    "@context": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "type": {"type": "array", "contains": {"const": "VerifiablePresentation"}},
    "holder": {"type": "string", "minLength": 1},
    "nonce": {"type": "string", "minLength": 1},
    "verifiableCredential": {"type": "array", "minItems": 1, "items": {"type": "object"}},
    "proof": {
      "type": "object",
      "required": ["type", "created", "verificationMethod", "proofPurpose", "signatureValue"]
    }
  }
}`

var (
	schemaOnce         sync.Once
	vcSchema, vpSchema *gojsonschema.Schema
	schemaErr          error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		vcSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(credentialSchema))
		if schemaErr != nil {
			return
		}
		vpSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(presentationSchema))
	})
	return schemaErr
}

// ValidateCredential checks the shape of a signed credential
func ValidateCredential(d Document) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("failed to load credential schema: %w", err)
	}
	return validate(vcSchema, d, "credential")
}

// ValidatePresentation checks the shape of a signed presentation
func ValidatePresentation(d Document) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("failed to load presentation schema: %w", err)
	}
	return validate(vpSchema, d, "presentation")
}

func validate(schema *gojsonschema.Schema, d Document, kind string) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(d)))
	if err != nil {
		return fmt.Errorf("failed to validate %s: %w", kind, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s is invalid: %s", kind, strings.Join(msgs, "; "))
	}
	return nil
}
