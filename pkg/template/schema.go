package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/logger"
)

var schemaLog = logger.New("template:schema")

// schemaCache compiles each artifact contract's schema once and reuses it
// across every artifact validated against that contract, keeping compiled
// schemas in a mutex-guarded map keyed by contract id (spec §4.2 rule 2 supports a JSON-schema subset: type, required,
// properties, additionalProperties, const, enum, and pattern restricted to
// anchored literal alternations — santhosh-tekuri/jsonschema/v6 validates a
// strict superset of that subset correctly, so no hand-rolled subset
// validator is needed).
type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) compile(contractID string, schemaDoc any) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.compiled[contractID]; ok {
		return s, nil
	}

	schemaLog.Printf("compiling artifact contract schema for %q", contractID)

	url := "mem://vizier/artifact-contracts/" + contractID
	loader := jsonschema.NewCompiler()
	if err := loader.AddResource(url, schemaDoc); err != nil {
		return nil, fmt.Errorf("artifact contract %q: failed to register schema: %w", contractID, err)
	}
	schema, err := loader.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("artifact contract %q: failed to compile schema: %w", contractID, err)
	}

	c.compiled[contractID] = schema
	return schema, nil
}

// ValidateArtifact validates an artifact's canonical payload against the
// contract's declared schema, if any. A contract with no schema accepts any
// payload shape (spec §4.2 rule 2).
func (c *schemaCache) ValidateArtifact(contract ArtifactContract, a artifact.Artifact) error {
	if contract.Schema == nil {
		return nil
	}

	schema, err := c.compile(contract.ID, contract.Schema)
	if err != nil {
		return err
	}

	// jsonschema validates decoded JSON values (map[string]any etc), so we
	// round-trip the payload through JSON rather than handing it the Go map
	// directly, to normalize numeric and nested types the same way a real
	// wire payload would arrive.
	raw, err := json.Marshal(a.Payload())
	if err != nil {
		return fmt.Errorf("artifact %s: failed to marshal payload: %w", a.Canonical(), err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("artifact %s: failed to decode payload: %w", a.Canonical(), err)
	}

	if err := schema.Validate(decoded); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("artifact %s does not conform to contract %q:\n%s", a.Canonical(), contract.ID, formatValidationError(ve))
		}
		return fmt.Errorf("artifact %s failed contract %q validation: %w", a.Canonical(), contract.ID, err)
	}
	return nil
}

func formatValidationError(ve *jsonschema.ValidationError) string {
	var b strings.Builder
	b.WriteString("  - ")
	b.WriteString(ve.Error())
	for _, cause := range ve.Causes {
		b.WriteString("\n    - ")
		b.WriteString(cause.Error())
	}
	return b.String()
}
