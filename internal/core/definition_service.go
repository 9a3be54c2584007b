package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"entitycache/pkg/domain"
)

var (
	// ErrEmptyEntityName is returned when registering a definition without a name.
	ErrEmptyEntityName = errors.New("entity definition has no name")
	// ErrDuplicateDefinition is returned when a name is registered twice.
	ErrDuplicateDefinition = errors.New("entity definition already registered")
)

// DefinitionService is the metadata registry consulted by the reducer
// registry, the collection creator and the snapshot codecs.
type DefinitionService struct {
	mu   sync.RWMutex
	defs map[string]EntityDefinition
}

// NewDefinitionService registers defs in a new service.
func NewDefinitionService(defs ...EntityDefinition) (*DefinitionService, error) {
	s := &DefinitionService{defs: make(map[string]EntityDefinition, len(defs))}
	if err := s.Register(defs...); err != nil {
		return nil, err
	}
	return s, nil
}

// MustDefinitionService is NewDefinitionService for static definitions.
func MustDefinitionService(defs ...EntityDefinition) *DefinitionService {
	s, err := NewDefinitionService(defs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Register adds definitions. Either all of defs are registered or none are.
func (s *DefinitionService) Register(defs ...EntityDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		name := def.EntityName()
		if name == "" {
			return ErrEmptyEntityName
		}
		if _, ok := s.defs[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDefinition, name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDefinition, name)
		}
		seen[name] = struct{}{}
	}
	for _, def := range defs {
		s.defs[def.EntityName()] = def
	}
	return nil
}

// Definition returns the metadata registered for name.
func (s *DefinitionService) Definition(name string) (EntityDefinition, error) {
	s.mu.RLock()
	def, ok := s.defs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.UnknownEntityTypeError{EntityName: name}
	}
	return def, nil
}

// Names lists the registered entity types, sorted.
func (s *DefinitionService) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollectionCreator builds empty collections for registered entity types.
type CollectionCreator struct {
	definitions *DefinitionService
}

// NewCollectionCreator returns a creator backed by definitions.
func NewCollectionCreator(definitions *DefinitionService) *CollectionCreator {
	return &CollectionCreator{definitions: definitions}
}

// Create returns a fresh empty collection for name. Every call yields a new
// value of the same shape.
func (c *CollectionCreator) Create(name string) (domain.Collection, error) {
	def, err := c.definitions.Definition(name)
	if err != nil {
		return nil, err
	}
	return def.NewCollection(), nil
}
