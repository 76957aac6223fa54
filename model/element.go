/*
 * Hyperstore
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"devt.de/krotik/hyperstore/schema"
)

/*
PropertyValue is the result of a property access.
*/
type PropertyValue struct {
	Value    interface{} // Current value of the property
	OldValue interface{} // Previous value (after a write)
	Version  int64       // Version stamp of the last write (0 for defaults)
}

/*
Element is a materialized entity or relationship of a domain graph. Model
elements are created on demand from graph nodes and cached by their
domain. An element whose node is removed is disposed - a disposed element
must not be used any more.
*/
type Element struct {
	domain        *Domain         // Owning domain
	id            string          // Full id of the element
	schemaID      string          // Schema id of the underlying node
	schemaElement *schema.Element // Resolved schema element (may be nil)
	isEdge        bool            // Flag if this element is a relationship
	startID       string          // Start element id (relationships)
	startSchemaID string          // Start schema id (relationships)
	endID         string          // End element id (relationships)
	endSchemaID   string          // End schema id (relationships)
	disposed      bool            // Flag if this element was disposed
}

/*
ID returns the full id of this element.
*/
func (el *Element) ID() string {
	return el.id
}

/*
SchemaID returns the schema id of this element.
*/
func (el *Element) SchemaID() string {
	return el.schemaID
}

/*
Schema returns the resolved schema element of this element. Returns nil if
the schema is not registered.
*/
func (el *Element) Schema() *schema.Element {
	return el.schemaElement
}

/*
Domain returns the domain which owns this element.
*/
func (el *Element) Domain() *Domain {
	return el.domain
}

/*
IsRelationship returns if this element is a relationship.
*/
func (el *Element) IsRelationship() bool {
	return el.isEdge
}

/*
IsDisposed returns if this element was disposed.
*/
func (el *Element) IsDisposed() bool {
	return el.disposed
}

/*
Start returns the start element of a relationship.
*/
func (el *Element) Start() (*Element, error) {
	if el.disposed {
		return nil, errDisposed()
	}

	return resolveElement(el.domain.store, el.startID)
}

/*
End returns the end element of a relationship. Returns nil if the end
lives in an unknown domain.
*/
func (el *Element) End() (*Element, error) {
	if el.disposed {
		return nil, errDisposed()
	}

	return resolveElement(el.domain.store, el.endID)
}

/*
GetPropertyValue reads a property of this element.
*/
func (el *Element) GetPropertyValue(name string) (*PropertyValue, error) {
	if el.disposed {
		return nil, errDisposed()
	}

	return el.domain.GetPropertyValue(el.id, name)
}

/*
SetPropertyValue writes a property of this element.
*/
func (el *Element) SetPropertyValue(name string, value interface{}) (*PropertyValue, error) {
	if el.disposed {
		return nil, errDisposed()
	}

	return el.domain.SetPropertyValue(el.id, name, value, 0)
}

/*
Remove removes this element from its domain.
*/
func (el *Element) Remove() error {
	if el.disposed {
		return errDisposed()
	}

	return el.domain.Remove(el.id, 0)
}

/*
String returns a string representation of this element.
*/
func (el *Element) String() string {
	if el.isEdge {
		return fmt.Sprintf("Element %v (%v) %v -> %v", el.id, el.schemaID,
			el.startID, el.endID)
	}

	return fmt.Sprintf("Element %v (%v)", el.id, el.schemaID)
}

/*
resolveElement resolves a full id through the owning domain encoded in its
qualifier. Returns nil if the domain is unknown.
*/
func resolveElement(store *Store, id string) (*Element, error) {
	idx := strings.Index(id, ":")
	if idx < 0 {
		return nil, nil
	}

	domain := store.Domain(id[:idx])
	if domain == nil {
		return nil, nil
	}

	return domain.Get(id)
}

// Element serialization
// =====================

/*
Stringify serializes this element and its reachable neighborhood to JSON.
Property values are written through their schema serializers, references
become nested objects or arrays depending on their cardinality. Elements
which are reachable more than once are tagged with $id on first emission
and referenced with $ref afterwards, which also terminates cycles.
*/
func (el *Element) Stringify() (string, error) {
	if el.disposed {
		return "", errDisposed()
	}

	counts := make(map[string]int)
	el.countVisits(counts)

	state := &stringifyState{
		counts:  counts,
		emitted: make(map[string]string),
	}

	obj := el.pocoValue(state)

	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

/*
stringifyState tracks shared elements during serialization.
*/
type stringifyState struct {
	counts  map[string]int    // Reachability count per element id
	emitted map[string]string // Assigned $id tag per emitted element
	seq     int               // Sequence for $id tags
}

/*
countVisits counts how often each element is reachable from this element.
*/
func (el *Element) countVisits(counts map[string]int) {
	counts[el.id]++

	if counts[el.id] > 1 {
		return
	}

	if el.schemaElement == nil {
		return
	}

	for _, ref := range el.schemaElement.GetReferences() {
		for _, target := range el.refTargets(ref) {
			target.countVisits(counts)
		}
	}
}

/*
pocoValue builds the serializable form of this element.
*/
func (el *Element) pocoValue(state *stringifyState) map[string]interface{} {

	if tag, ok := state.emitted[el.id]; ok {
		return map[string]interface{}{"$ref": tag}
	}

	obj := make(map[string]interface{})

	if state.counts[el.id] > 1 {
		state.seq++
		tag := fmt.Sprint(state.seq)

		state.emitted[el.id] = tag
		obj["$id"] = tag
	}

	obj["$schema"] = el.schemaID

	for _, name := range el.domain.hg.PropertyNames(el.id) {
		if propNode := el.domain.hg.GetProperty(el.id, name); propNode != nil {
			obj[name] = propNode.Value
		}
	}

	if el.schemaElement != nil {

		for _, ref := range el.schemaElement.GetReferences() {
			targets := el.refTargets(ref)

			if ref.IsCollection {
				items := make([]interface{}, 0, len(targets))

				for _, target := range targets {
					items = append(items, target.pocoValue(state))
				}

				obj[ref.Name] = items

			} else if len(targets) > 0 {
				obj[ref.Name] = targets[0].pocoValue(state)
			}
		}
	}

	return obj
}

/*
refTargets returns the elements reachable from this element through a
given reference in stable id order.
*/
func (el *Element) refTargets(ref *schema.Reference) []*Element {
	node := el.domain.hg.GetNode(el.id)
	if node == nil {
		return nil
	}

	infos := node.Outgoings
	if ref.Opposite {
		infos = node.Incomings
	}

	ids := make([]string, 0, len(infos))
	for id := range infos {
		ids = append(ids, id)
	}

	sort.StringSlice(ids).Sort()

	var ret []*Element

	for _, id := range ids {
		info := infos[id]

		if !el.domain.schemaIsA(info.SchemaID, ref.Relationship.ID) {
			continue
		}

		if target, _ := resolveElement(el.domain.store, info.EndID); target != nil {
			ret = append(ret, target)
		}
	}

	return ret
}

/*
schemaIsA returns if a schema id is or inherits from a target schema.
Unregistered schemas fall back to direct id comparison.
*/
func (d *Domain) schemaIsA(schemaID string, targetID string) bool {
	if element, err := d.store.registry.GetElement(schemaID); err == nil {
		return element.IsA(targetID)
	}

	return strings.EqualFold(schemaID, targetID)
}
