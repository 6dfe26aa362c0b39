package data

import (
	"fmt"
	"os"

	"github.com/polyengine/polyengine/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

// EntityDef describes Count identical entities built from the named
// attribute types, in order.
type EntityDef struct {
	Attributes []string `yaml:"attributes"`
	Count      int      `yaml:"count"`
}

// WorldDef describes one world and its initial entities.
type WorldDef struct {
	Name     string       `yaml:"name"`
	Active   bool         `yaml:"active"`
	Entities []EntityDef `yaml:"entities"`
}

// Blueprint is the initial population of an engine.
type Blueprint struct {
	Worlds []WorldDef `yaml:"worlds"`
}

// LoadBlueprint loads a blueprint yaml file.
func LoadBlueprint(path string) (*Blueprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blueprint: %w", err)
	}
	return ParseBlueprint(raw)
}

func ParseBlueprint(raw []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := yaml.Unmarshal(raw, &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	for i := range bp.Worlds {
		for j := range bp.Worlds[i].Entities {
			es := &bp.Worlds[i].Entities[j]
			switch {
			case es.Count < 0:
				return nil, fmt.Errorf("blueprint world %d entity %d: negative count %d", i, j, es.Count)
			case es.Count == 0:
				es.Count = 1
			}
		}
	}
	return &bp, nil
}

// EntityCount returns the number of entities the blueprint creates.
func (bp *Blueprint) EntityCount() int {
	n := 0
	for _, w := range bp.Worlds {
		for _, es := range w.Entities {
			n += es.Count
		}
	}
	return n
}

// Spawn creates the blueprint's worlds and entities on e. Every attribute
// name is resolved through reg before anything is created, so an unknown
// name leaves the engine untouched.
func (bp *Blueprint) Spawn(e *ecs.Engine, reg *ecs.Registry) ([]*ecs.World, error) {
	resolved := make([][][]ecs.AttributeType, len(bp.Worlds))
	for i, ws := range bp.Worlds {
		resolved[i] = make([][]ecs.AttributeType, len(ws.Entities))
		for j, es := range ws.Entities {
			types, err := reg.Attributes(es.Attributes...)
			if err != nil {
				return nil, fmt.Errorf("blueprint world %d (%s): %w", i, ws.Name, err)
			}
			resolved[i][j] = types
		}
	}

	worlds := make([]*ecs.World, 0, len(bp.Worlds))
	for i, ws := range bp.Worlds {
		w, err := e.AddWorld()
		if err != nil {
			return worlds, fmt.Errorf("spawn world %d (%s): %w", i, ws.Name, err)
		}
		worlds = append(worlds, w)
		for j, es := range ws.Entities {
			for k := 0; k < es.Count; k++ {
				if _, err := w.AddEntity(resolved[i][j]...); err != nil {
					return worlds, fmt.Errorf("spawn world %d (%s) entity %d: %w", i, ws.Name, j, err)
				}
			}
		}
		if ws.Active {
			if err := w.Activate(); err != nil {
				return worlds, fmt.Errorf("activate world %d (%s): %w", i, ws.Name, err)
			}
		}
	}
	return worlds, nil
}
