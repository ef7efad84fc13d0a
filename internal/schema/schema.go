// Package schema holds the JSON schemas for provider vendorData blobs and the
// payment callback body.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type Schema struct {
	name string
	s    *gojsonschema.Schema
}

type ValidationError struct {
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

func MustCompile(name, src string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return &Schema{name: name, s: s}
}

func (s *Schema) Name() string { return s.name }

// Validate checks doc against the schema. A body that is not JSON at all is
// reported as a single problem.
func (s *Schema) Validate(doc []byte) error {
	if len(doc) == 0 {
		return &ValidationError{Schema: s.name, Problems: []string{"empty document"}}
	}
	res, err := s.s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ValidationError{Schema: s.name, Problems: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Schema: s.name, Problems: problems}
}

var CreditGuardVendorData = MustCompile("creditguard vendorData", `{
	"type": "object",
	"required": ["username", "password", "mid"],
	"properties": {
		"username": {"type": "string", "minLength": 1},
		"password": {"type": "string", "minLength": 1},
		"mid": {"type": ["string", "integer"]}
	}
}`)

var PayPlusVendorData = MustCompile("payplus vendorData", `{
	"type": "object",
	"required": ["api_key", "secret_key"],
	"properties": {
		"api_key": {"type": "string", "minLength": 1},
		"secret_key": {"type": "string", "minLength": 1}
	}
}`)

var DorixVendorData = MustCompile("dorix vendorData", `{
	"type": "object",
	"required": ["branchId"],
	"properties": {
		"branchId": {"type": "string", "minLength": 1}
	}
}`)

var PaymentCallback = MustCompile("payment callback", `{
	"type": "object",
	"required": ["transaction"],
	"properties": {
		"transaction": {
			"type": "object",
			"required": ["status_code", "uid"],
			"properties": {
				"status_code": {"type": "string"},
				"uid": {"type": "string", "minLength": 1},
				"more_info": {"type": "string"},
				"more_info_1": {"type": "string"},
				"userData1": {"type": "string"}
			},
			"anyOf": [
				{"required": ["more_info"]},
				{"required": ["userData1"]}
			]
		}
	}
}`)
