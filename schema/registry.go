/*
 * Hyperstore
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package schema

import (
	"fmt"
	"strings"

	"devt.de/krotik/hyperstore/graph/util"
)

/*
ambiguous is the sentinel entry for poisoned simple name lookups. Once two
schema elements share a simple name the name can no longer be used for
lookup.
*/
var ambiguous = &registryEntry{}

/*
registryEntry holds a registered schema element. Relationship schemas keep
their concrete type next to the embedded element.
*/
type registryEntry struct {
	element      *Element
	relationship *Relationship
}

/*
Registry interns schema elements by id and by unqualified name. All lookups
are case-insensitive.
*/
type Registry struct {
	byID        map[string]*registryEntry   // Entries by lowercase full id
	byName      map[string]*registryEntry   // Entries by lowercase simple name
	relsByStart map[string][]*Relationship  // Relationships by start schema id
	relsByEnd   map[string][]*Relationship  // Relationships by end schema id
}

/*
NewRegistry creates a new schema registry. The standard primitive schemas
string, number, boolean, date and object are preregistered.
*/
func NewRegistry() *Registry {
	reg := &Registry{
		byID:        make(map[string]*registryEntry),
		byName:      make(map[string]*registryEntry),
		relsByStart: make(map[string][]*Relationship),
		relsByEnd:   make(map[string][]*Relationship),
	}

	for _, name := range []string{"string", "number", "boolean", "date", "object"} {
		reg.AddElement(NewPrimitive(name))
	}

	return reg
}

/*
AddElement registers a schema element. Registering an id twice fails with
a duplicate schema error. Use AddRelationship for relationship schemas.
*/
func (reg *Registry) AddElement(el *Element) error {
	return reg.add(&registryEntry{element: el})
}

/*
AddRelationship registers a relationship schema. If the relationship
declares a start or end property name a reference descriptor is attached to
the corresponding endpoint schema - the endpoint must be registered.
*/
func (reg *Registry) AddRelationship(rel *Relationship) error {

	if err := reg.add(&registryEntry{element: &rel.Element, relationship: rel}); err != nil {
		return err
	}

	reg.relsByStart[strings.ToLower(rel.StartSchemaID)] = append(
		reg.relsByStart[strings.ToLower(rel.StartSchemaID)], rel)
	reg.relsByEnd[strings.ToLower(rel.EndSchemaID)] = append(
		reg.relsByEnd[strings.ToLower(rel.EndSchemaID)], rel)

	if rel.StartPropertyName != "" {
		start, err := reg.GetElement(rel.StartSchemaID)
		if err != nil {
			return err
		}

		start.addReference(&Reference{
			Name:         rel.StartPropertyName,
			Opposite:     false,
			Relationship: rel,
			IsCollection: rel.Cardinality == OneToMany || rel.Cardinality == ManyToMany,
		})
	}

	if rel.EndPropertyName != "" {
		end, err := reg.GetElement(rel.EndSchemaID)
		if err != nil {
			return err
		}

		end.addReference(&Reference{
			Name:         rel.EndPropertyName,
			Opposite:     true,
			Relationship: rel,
			IsCollection: rel.Cardinality == ManyToOne || rel.Cardinality == ManyToMany,
		})
	}

	return nil
}

/*
add interns a registry entry by id and simple name.
*/
func (reg *Registry) add(entry *registryEntry) error {
	el := entry.element

	if el.ID == "" || el.Name == "" {
		return &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: "Schema element is missing an id or name value",
		}
	}

	id := strings.ToLower(el.ID)

	if _, ok := reg.byID[id]; ok {
		return &util.StoreError{
			Type:   util.ErrDuplicateSchema,
			Detail: fmt.Sprintf("Schema %v is already registered", el.ID),
		}
	}

	reg.byID[id] = entry

	name := strings.ToLower(el.Name)

	if _, ok := reg.byName[name]; ok {

		// Name collision - poison the simple name lookup

		reg.byName[name] = ambiguous

	} else {
		reg.byName[name] = entry
	}

	return nil
}

/*
lookup resolves a schema by full id or simple name.
*/
func (reg *Registry) lookup(name string) (*registryEntry, error) {
	key := strings.ToLower(name)

	if entry, ok := reg.byID[key]; ok {
		return entry, nil
	}

	entry, ok := reg.byName[key]

	if entry == ambiguous {
		return nil, &util.StoreError{
			Type:   util.ErrAmbiguousSchema,
			Detail: fmt.Sprintf("Name %v matches more than one schema", name),
		}
	}

	if !ok {
		return nil, &util.StoreError{
			Type:   util.ErrUnknownSchema,
			Detail: fmt.Sprintf("Schema %v is not registered", name),
		}
	}

	return entry, nil
}

/*
GetInfo looks up the schema info of a given id or simple name. Without
throwing an unknown schema yields a nil result instead of an error.
*/
func (reg *Registry) GetInfo(name string, throwing bool) (*Info, error) {
	entry, err := reg.lookup(name)

	if err != nil {
		if serr, ok := err.(*util.StoreError); !throwing && ok &&
			serr.Type == util.ErrUnknownSchema {
			err = nil
		}

		return nil, err
	}

	return &entry.element.Info, nil
}

/*
GetElement looks up a schema element by id or simple name.
*/
func (reg *Registry) GetElement(name string) (*Element, error) {
	entry, err := reg.lookup(name)
	if err != nil {
		return nil, err
	}

	return entry.element, nil
}

/*
GetEntity looks up an entity schema by id or simple name.
*/
func (reg *Registry) GetEntity(name string) (*Element, error) {
	entry, err := reg.lookup(name)
	if err != nil {
		return nil, err
	}

	if entry.element.Kind != KindEntity {
		return nil, &util.StoreError{
			Type:   util.ErrUnknownSchema,
			Detail: fmt.Sprintf("Schema %v is not an entity schema", name),
		}
	}

	return entry.element, nil
}

/*
GetRelationship looks up a relationship schema by id or simple name.
*/
func (reg *Registry) GetRelationship(name string) (*Relationship, error) {
	entry, err := reg.lookup(name)
	if err != nil {
		return nil, err
	}

	if entry.relationship == nil {
		return nil, &util.StoreError{
			Type:   util.ErrUnknownSchema,
			Detail: fmt.Sprintf("Schema %v is not a relationship schema", name),
		}
	}

	return entry.relationship, nil
}

/*
GetRelationships returns all relationship schemas matching a given start
and end schema id. Empty arguments match any schema.
*/
func (reg *Registry) GetRelationships(startID string, endID string) []*Relationship {
	var ret []*Relationship

	appendMatching := func(rels []*Relationship) {
		for _, rel := range rels {
			if endID == "" || strings.EqualFold(rel.EndSchemaID, endID) {
				ret = append(ret, rel)
			}
		}
	}

	if startID != "" {
		appendMatching(reg.relsByStart[strings.ToLower(startID)])

	} else if endID != "" {

		for _, rel := range reg.relsByEnd[strings.ToLower(endID)] {
			ret = append(ret, rel)
		}

	} else {

		for _, entry := range reg.byID {
			if entry.relationship != nil {
				ret = append(ret, entry.relationship)
			}
		}
	}

	return ret
}
