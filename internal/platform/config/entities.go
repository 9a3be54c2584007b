package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"entitycache/internal/core"
	"entitycache/pkg/domain"
)

// EntityConfig describes one schemaless entity type.
type EntityConfig struct {
	Name    string `yaml:"name"`
	IDField string `yaml:"idField,omitempty"`
	// FilterFields are matched case-insensitively by filtered selectors.
	// Defaults to ["name"].
	FilterFields []string `yaml:"filterFields,omitempty"`
}

// EntitiesFile is the YAML document listing entity types.
type EntitiesFile struct {
	Entities []EntityConfig `yaml:"entities"`
}

// LoadEntities reads and validates the entity metadata file at path.
func LoadEntities(path string) ([]EntityConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities file: %w", err)
	}
	return ParseEntities(raw)
}

// ParseEntities decodes an entity metadata document. Unknown keys are
// rejected.
func ParseEntities(raw []byte) ([]EntityConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var file EntitiesFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode entities file: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, errors.New("entities file lists no entity types")
	}
	seen := make(map[string]bool, len(file.Entities))
	for i, e := range file.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("entity %d: name required", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("entity %s listed twice", e.Name)
		}
		seen[e.Name] = true
	}
	return file.Entities, nil
}

// Record builds the record definition for e.
func (e EntityConfig) Record() *core.Definition[domain.Record] {
	var opts []core.DefinitionOption[domain.Record]
	if len(e.FilterFields) > 0 {
		opts = append(opts, core.WithFilter(core.RecordPropsFilter(e.FilterFields...)))
	}
	return core.DefineRecord(e.Name, e.IDField, opts...)
}

// Definitions builds record definitions for entities in order.
func Definitions(entities []EntityConfig) []*core.Definition[domain.Record] {
	defs := make([]*core.Definition[domain.Record], 0, len(entities))
	for _, e := range entities {
		defs = append(defs, e.Record())
	}
	return defs
}
