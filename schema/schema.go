/*
 * Hyperstore
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package schema contains the schema model of the store.

A schema describes the shape of a domain graph: which entities exist, which
relationships can connect them, which properties they carry and which
constraints must hold. Schema elements are interned in a Registry which
supports lookup by full id and by unqualified name.

Schemas can be built programmatically through the Element and Relationship
types or declaratively through the Define / DefineYAML functions.
*/
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema kinds
// ============

/*
KindEntity is the kind flag for entity schemas.
*/
const KindEntity = 0x01

/*
KindRelationship is the kind flag for relationship schemas.
*/
const KindRelationship = 0x02

/*
KindValueObject is the kind flag for value object schemas.
*/
const KindValueObject = 0x04

/*
KindPrimitive is the kind flag for primitive schemas.
*/
const KindPrimitive = 0x08

/*
kindNames maps schema kinds to their string representation.
*/
var kindNames = map[int]string{
	KindEntity:       "entity",
	KindRelationship: "relationship",
	KindValueObject:  "value object",
	KindPrimitive:    "primitive",
}

// Cardinalities
// =============

/*
Cardinality values of relationship schemas. The first position describes the
start side, the second position the end side.
*/
const (
	OneToOne   = 0x01
	OneToMany  = 0x02
	ManyToOne  = 0x04
	ManyToMany = 0x08
)

/*
cardinalityNames maps cardinality values to their string representation.
*/
var cardinalityNames = map[int]string{
	OneToOne:   "1..1",
	OneToMany:  "1..*",
	ManyToOne:  "*..1",
	ManyToMany: "*..*",
}

// Property kinds
// ==============

/*
PropertyNormal is the kind of a stored property.
*/
const PropertyNormal = 0x01

/*
PropertyCalculated is the kind of a property which is computed from its
owner on every read and never stored.
*/
const PropertyCalculated = 0x02

// Schema types
// ============

/*
Info is the identity of a schema element. Ids have the form
<schemaName>:<localName> - primitives use their bare name as id.
*/
type Info struct {
	ID   string // Full id of the schema element
	Name string // Unqualified name
	Kind int    // Kind of the schema element
}

/*
String returns a string representation of this schema info.
*/
func (i *Info) String() string {
	return fmt.Sprintf("Schema %v (%v)", i.ID, kindNames[i.Kind])
}

/*
Property describes a single property of a schema element.
*/
type Property struct {
	Name         string                              // Name of the property
	TypeID       string                              // Id of the value object or primitive schema
	Kind         int                                 // Kind of the property
	DefaultValue interface{}                         // Default value for unwritten properties
	DefaultFunc  func() interface{}                  // Default thunk (invoked per read)
	Calculate    func(owner interface{}) interface{} // Calculation function (calculated properties)
	Serialize    func(v interface{}) interface{}     // Value serializer for storage and export
	Deserialize  func(v interface{}) interface{}     // Value deserializer
	Constraints  []*Constraint                       // Property level constraints
}

/*
SerializeValue runs a value through the serializer of this property.
*/
func (p *Property) SerializeValue(v interface{}) interface{} {
	if p != nil && p.Serialize != nil {
		return p.Serialize(v)
	}

	return v
}

/*
DeserializeValue runs a value through the deserializer of this property.
*/
func (p *Property) DeserializeValue(v interface{}) interface{} {
	if p != nil && p.Deserialize != nil {
		return p.Deserialize(v)
	}

	return v
}

/*
Default materializes the default value of this property. A default thunk is
invoked on every call.
*/
func (p *Property) Default() interface{} {
	if p.DefaultFunc != nil {
		return p.DefaultFunc()
	}

	return p.DefaultValue
}

/*
Reference describes a traversal from a schema element to the opposite end
of a relationship. References are attached to schema elements when a
relationship declares a start or end property name.
*/
type Reference struct {
	Name         string        // Name under which the reference is reachable
	Opposite     bool          // Flag if the traversal runs from end to start
	Relationship *Relationship // The traversed relationship schema
	IsCollection bool          // Flag if the reachable side is a collection
}

/*
Element is a schema element with properties, references, constraints and an
optional base element (single inheritance).
*/
type Element struct {
	Info
	Base        *Element              // Base schema element or nil
	properties  map[string]*Property  // Own properties by name
	references  map[string]*Reference // Own references by name
	constraints []*Constraint         // Own constraints
}

/*
NewEntity creates a new entity schema element.
*/
func NewEntity(id string, name string) *Element {
	return newElement(id, name, KindEntity)
}

/*
NewValueObject creates a new value object schema element.
*/
func NewValueObject(id string, name string) *Element {
	return newElement(id, name, KindValueObject)
}

/*
NewPrimitive creates a new primitive schema element. Primitives use their
name as id.
*/
func NewPrimitive(name string) *Element {
	return newElement(name, name, KindPrimitive)
}

/*
newElement creates a new schema element of a given kind.
*/
func newElement(id string, name string, kind int) *Element {
	return &Element{
		Info:       Info{ID: id, Name: name, Kind: kind},
		properties: make(map[string]*Property),
		references: make(map[string]*Reference),
	}
}

/*
Relationship is a schema element which describes edges between two other
schema elements.
*/
type Relationship struct {
	Element
	StartSchemaID     string // Schema id of the start side
	EndSchemaID       string // Schema id of the end side
	Cardinality       int    // Cardinality of the relationship
	Embedded          bool   // Flag if the end is owned by the start
	StartPropertyName string // Reference name on the start schema (optional)
	EndPropertyName   string // Reference name on the end schema (optional)
}

/*
NewRelationship creates a new relationship schema element.
*/
func NewRelationship(id string, name string, startSchemaID string,
	endSchemaID string, cardinality int, embedded bool) *Relationship {

	rel := &Relationship{
		Element:       *newElement(id, name, KindRelationship),
		StartSchemaID: startSchemaID,
		EndSchemaID:   endSchemaID,
		Cardinality:   cardinality,
		Embedded:      embedded,
	}

	return rel
}

/*
String returns a string representation of this relationship schema.
*/
func (r *Relationship) String() string {
	return fmt.Sprintf("Schema %v (relationship %v %v -> %v)", r.ID,
		cardinalityNames[r.Cardinality], r.StartSchemaID, r.EndSchemaID)
}

// Element operations
// ==================

/*
IsA returns if this schema element is or inherits from a schema with a
given id. The comparison is case-insensitive.
*/
func (e *Element) IsA(schemaID string) bool {
	for cur := e; cur != nil; cur = cur.Base {
		if strings.EqualFold(cur.ID, schemaID) {
			return true
		}
	}

	return false
}

/*
AddProperty attaches a property to this schema element.
*/
func (e *Element) AddProperty(prop *Property) *Element {
	e.properties[prop.Name] = prop

	return e
}

/*
GetProperty looks up a property by name. With recurse the base chain is
searched bottom-up.
*/
func (e *Element) GetProperty(name string, recurse bool) *Property {
	for cur := e; cur != nil; cur = cur.Base {

		if prop, ok := cur.properties[name]; ok {
			return prop
		}

		if !recurse {
			break
		}
	}

	return nil
}

/*
GetProperties returns the properties of this schema element in sorted name
order. With includeInherited the properties of the base chain are included -
own properties shadow inherited ones of the same name.
*/
func (e *Element) GetProperties(includeInherited bool) []*Property {
	byName := make(map[string]*Property)

	for cur := e; cur != nil; cur = cur.Base {

		for name, prop := range cur.properties {
			if _, ok := byName[name]; !ok {
				byName[name] = prop
			}
		}

		if !includeInherited {
			break
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}

	sort.StringSlice(names).Sort()

	ret := make([]*Property, 0, len(names))
	for _, name := range names {
		ret = append(ret, byName[name])
	}

	return ret
}

/*
addReference attaches a reference to this schema element.
*/
func (e *Element) addReference(ref *Reference) {
	e.references[ref.Name] = ref
}

/*
GetReference looks up a reference by name. With recurse the base chain is
searched bottom-up.
*/
func (e *Element) GetReference(name string, recurse bool) *Reference {
	for cur := e; cur != nil; cur = cur.Base {

		if ref, ok := cur.references[name]; ok {
			return ref
		}

		if !recurse {
			break
		}
	}

	return nil
}

/*
GetReferences returns the references of this schema element in sorted name
order including inherited ones.
*/
func (e *Element) GetReferences() []*Reference {
	byName := make(map[string]*Reference)

	for cur := e; cur != nil; cur = cur.Base {
		for name, ref := range cur.references {
			if _, ok := byName[name]; !ok {
				byName[name] = ref
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}

	sort.StringSlice(names).Sort()

	ret := make([]*Reference, 0, len(names))
	for _, name := range names {
		ret = append(ret, byName[name])
	}

	return ret
}

/*
AddConstraint attaches a constraint to this schema element.
*/
func (e *Element) AddConstraint(c *Constraint) *Element {
	e.constraints = append(e.constraints, c)

	return e
}

/*
GetConstraints returns all constraints of this schema element including the
constraints of the base chain and of all properties.
*/
func (e *Element) GetConstraints() []*Constraint {
	var ret []*Constraint

	for cur := e; cur != nil; cur = cur.Base {
		ret = append(ret, cur.constraints...)

		for _, prop := range cur.properties {
			for _, c := range prop.Constraints {

				if c.PropertyName == "" {
					c.PropertyName = prop.Name
				}

				ret = append(ret, c)
			}
		}
	}

	return ret
}
