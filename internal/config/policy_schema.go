package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const policySchemaURL = "policy.schema.json"

var (
	policySchemaOnce sync.Once
	policySchema     *jsonschemav5.Schema
	policySchemaErr  error
)

// PolicySchema returns the JSON schema generated from Policy
func PolicySchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		Anonymous:                  true,
	}
	return reflector.Reflect(&Policy{})
}

// PolicySchemaJSON returns the indented JSON rendering of PolicySchema
func PolicySchemaJSON() ([]byte, error) {
	return json.MarshalIndent(PolicySchema(), "", "  ")
}

func compiledPolicySchema() (*jsonschemav5.Schema, error) {
	policySchemaOnce.Do(func() {
		raw, err := PolicySchemaJSON()
		if err != nil {
			policySchemaErr = fmt.Errorf("failed to render policy schema: %w", err)
			return
		}
		compiler := jsonschemav5.NewCompiler()
		if err := compiler.AddResource(policySchemaURL, bytes.NewReader(raw)); err != nil {
			policySchemaErr = fmt.Errorf("failed to load policy schema: %w", err)
			return
		}
		policySchema, policySchemaErr = compiler.Compile(policySchemaURL)
	})
	return policySchema, policySchemaErr
}

// ValidatePolicyDocument checks a YAML policy document against the policy schema
func ValidatePolicyDocument(data []byte) error {
	schema, err := compiledPolicySchema()
	if err != nil {
		return err
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	// the validator expects encoding/json shaped values
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert policy: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(asJSON, &normalized); err != nil {
		return fmt.Errorf("failed to convert policy: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
