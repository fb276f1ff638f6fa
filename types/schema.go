package types

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// TypeSchema is the portable schema carried by a stream; one Property per
// source field.
type TypeSchema struct {
	Properties sync.Map
}

func NewTypeSchema() *TypeSchema {
	return &TypeSchema{
		Properties: sync.Map{},
	}
}

// MarshalJSON custom marshaller to handle sync.Map encoding
func (t *TypeSchema) MarshalJSON() ([]byte, error) {
	propertiesMap := make(map[string]*Property)
	t.Properties.Range(func(key, value interface{}) bool {
		strKey, ok := key.(string)
		if !ok {
			return false
		}
		prop, ok := value.(*Property)
		if !ok {
			return false
		}
		propertiesMap[strKey] = prop
		return true
	})

	return json.Marshal(&struct {
		Type                 string               `json:"type"`
		AdditionalProperties bool                 `json:"additionalProperties"`
		Properties           map[string]*Property `json:"properties,omitempty"`
	}{
		Type:                 "object",
		AdditionalProperties: false,
		Properties:           propertiesMap,
	})
}

// UnmarshalJSON custom unmarshaller to handle sync.Map decoding
func (t *TypeSchema) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Properties map[string]*Property `json:"properties,omitempty"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	for key, value := range aux.Properties {
		t.Properties.Store(key, value)
	}
	return nil
}

func (t *TypeSchema) GetProperty(column string) (*Property, error) {
	p, found := t.Properties.Load(column)
	if !found {
		return nil, fmt.Errorf("column [%s] missing from type schema", column)
	}
	return p.(*Property), nil
}

func (t *TypeSchema) AddProperty(column string, property *Property) {
	t.Properties.Store(column, property)
}

func (t *TypeSchema) AddTypes(column string, types ...DataType) {
	p, found := t.Properties.Load(column)
	if !found {
		t.Properties.Store(column, &Property{
			Type: NewSet(types...),
		})
		return
	}
	p.(*Property).Type.Insert(types...)
}

// Property describes one field of a stream schema. A nil/empty Type set
// means the source reported a loose ("any") type: no type constraint at all.
type Property struct {
	Type       *Set[DataType]       `json:"type,omitempty"`
	Format     string               `json:"format,omitempty"`
	Properties map[string]*Property `json:"properties,omitempty"`
}

func (p *Property) DataType() DataType {
	if p.Type == nil {
		return ""
	}
	for _, typ := range p.Type.Array() {
		if typ != Null {
			return typ
		}
	}
	return Null
}

func (p *Property) HasType(typ DataType) bool {
	return p.Type.Exists(typ)
}

func (p *Property) Nullable() bool {
	return p.Type.Exists(Null)
}

// Untyped reports whether the property carries no type constraint.
func (p *Property) Untyped() bool {
	return p.Type.Len() == 0
}
