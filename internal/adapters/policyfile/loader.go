// Package policyfile builds the audit policy registry from configuration.
// A compiled-in default covers the stock entity set; an operator-supplied
// YAML file replaces it wholesale. The file is validated against an embedded
// JSON Schema before the registry is constructed, so a malformed policy
// fails at startup instead of silently mis-auditing.
package policyfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/atviraknyga/bookapi/internal/core/domain"
)

//go:embed schema.json
var schemaJSON []byte

type fileConfig struct {
	Entities map[string]entityConfig `yaml:"entities" json:"entities"`
}

type entityConfig struct {
	Track   bool     `yaml:"track" json:"track"`
	Exclude []string `yaml:"exclude" json:"exclude,omitempty"`
	Redact  []string `yaml:"redact" json:"redact,omitempty"`
}

// Default returns the compiled-in policy set: books are tracked with noisy
// timestamp fields excluded and internal notes redacted; users are tracked
// for login entries only.
func Default() domain.PolicyRegistry {
	registry, err := domain.NewPolicyRegistry(map[string]domain.TrackingPolicy{
		"book": {
			Track:   true,
			Exclude: domain.FieldSet("createdAt", "updatedAt"),
			Redact:  domain.FieldSet("internalNotes"),
		},
		"user": {
			Track: true,
		},
	})
	if err != nil {
		// The default policy is a constant; failing to build it is a bug.
		panic(err)
	}
	return registry
}

// Load reads, validates, and compiles the policy file at path.
func Load(path string) (domain.PolicyRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PolicyRegistry{}, fmt.Errorf("read policy config: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from raw YAML policy config.
func Parse(raw []byte) (domain.PolicyRegistry, error) {
	var loose any
	if err := yaml.Unmarshal(raw, &loose); err != nil {
		return domain.PolicyRegistry{}, fmt.Errorf("parse policy yaml: %w", err)
	}

	// Round-trip through JSON so the schema validator sees canonical types.
	jsonRaw, err := json.Marshal(loose)
	if err != nil {
		return domain.PolicyRegistry{}, fmt.Errorf("normalize policy config: %w", err)
	}
	if err := validateAgainstSchema(jsonRaw); err != nil {
		return domain.PolicyRegistry{}, fmt.Errorf("invalid policy config: %w", err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(jsonRaw, &cfg); err != nil {
		return domain.PolicyRegistry{}, fmt.Errorf("decode policy config: %w", err)
	}

	policies := make(map[string]domain.TrackingPolicy, len(cfg.Entities))
	for name, entity := range cfg.Entities {
		policies[name] = domain.TrackingPolicy{
			Track:   entity.Track,
			Exclude: domain.FieldSet(entity.Exclude...),
			Redact:  domain.FieldSet(entity.Redact...),
		}
	}

	registry, err := domain.NewPolicyRegistry(policies)
	if err != nil {
		return domain.PolicyRegistry{}, fmt.Errorf("invalid policy config: %w", err)
	}
	return registry, nil
}

func validateAgainstSchema(jsonRaw []byte) error {
	compiler := santhosh.NewCompiler()
	if err := compiler.AddResource("policy.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("policy.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var value any
	if err := json.Unmarshal(jsonRaw, &value); err != nil {
		return err
	}
	return schema.Validate(value)
}
