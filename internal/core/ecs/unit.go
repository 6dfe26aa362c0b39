package ecs

import (
	"errors"
	"reflect"
)

// Attribute is a behavior unit owned by exactly one entity. Init runs when
// the entity's create event is handled, Term when its destroy event is.
type Attribute interface {
	Init() error
	Term() error
}

// Extension is a behavior unit owned by the engine. It may also implement
// EntityListener and/or WorldListener to receive lifecycle notifications.
type Extension interface {
	Init() error
	Term() error
}

// AttributeBase carries an attribute's owners. Concrete attributes embed it
// to get the accessors and no-op hooks; the factory hands it to the
// constructor already bound, so an attribute is never observable unbound.
type AttributeBase struct {
	engine *Engine
	world  *World
	entity *Entity
}

func (b AttributeBase) Engine() *Engine { return b.engine }
func (b AttributeBase) World() *World   { return b.world }
func (b AttributeBase) Entity() *Entity { return b.entity }
func (AttributeBase) Init() error       { return nil }
func (AttributeBase) Term() error       { return nil }

// ExtensionBase carries an extension's engine, see AttributeBase.
type ExtensionBase struct {
	engine *Engine
}

func (b ExtensionBase) Engine() *Engine { return b.engine }
func (ExtensionBase) Init() error       { return nil }
func (ExtensionBase) Term() error       { return nil }

// AttributeType describes how to build one kind of attribute.
type AttributeType struct {
	Name string
	New  func(base AttributeBase) (Attribute, error)
}

// ExtensionType describes how to build one kind of extension.
type ExtensionType struct {
	Name string
	New  func(base ExtensionBase) (Extension, error)
}

// AttributeOf builds an AttributeType from an infallible constructor.
func AttributeOf[T Attribute](name string, ctor func(AttributeBase) T) AttributeType {
	return AttributeType{
		Name: name,
		New: func(base AttributeBase) (Attribute, error) {
			return ctor(base), nil
		},
	}
}

// ExtensionOf builds an ExtensionType from an infallible constructor.
func ExtensionOf[T Extension](name string, ctor func(ExtensionBase) T) ExtensionType {
	return ExtensionType{
		Name: name,
		New: func(base ExtensionBase) (Extension, error) {
			return ctor(base), nil
		},
	}
}

func newAttribute(t AttributeType, base AttributeBase) (Attribute, error) {
	if t.New == nil {
		return nil, &ConstructionError{Unit: "attribute", Type: t.Name, Kind: ErrNotInstantiable}
	}
	a, err := t.New(base)
	if err != nil {
		return nil, constructionFailure("attribute", t.Name, err)
	}
	if isNil(a) {
		return nil, &ConstructionError{Unit: "attribute", Type: t.Name, Kind: ErrNotInstantiable}
	}
	return a, nil
}

func newExtension(t ExtensionType, base ExtensionBase) (Extension, error) {
	if t.New == nil {
		return nil, &ConstructionError{Unit: "extension", Type: t.Name, Kind: ErrNotInstantiable}
	}
	x, err := t.New(base)
	if err != nil {
		return nil, constructionFailure("extension", t.Name, err)
	}
	if isNil(x) {
		return nil, &ConstructionError{Unit: "extension", Type: t.Name, Kind: ErrNotInstantiable}
	}
	return x, nil
}

// constructionFailure keeps a constructor's own ConstructionError and
// classifies any other error as ErrNotInstantiable unless it already
// wraps ErrInaccessible.
func constructionFailure(unit, name string, err error) error {
	var ce *ConstructionError
	if errors.As(err, &ce) {
		return err
	}
	kind := ErrNotInstantiable
	if errors.Is(err, ErrInaccessible) {
		kind = ErrInaccessible
	}
	return &ConstructionError{Unit: unit, Type: name, Kind: kind, Err: err}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
