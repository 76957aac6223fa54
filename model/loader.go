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
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"devt.de/krotik/common/timeutil"
	"github.com/vmihailenco/msgpack/v5"

	"devt.de/krotik/hyperstore/events"
	"devt.de/krotik/hyperstore/graph"
	"devt.de/krotik/hyperstore/graph/util"
	"devt.de/krotik/hyperstore/schema"
)

// Loading
// =======

/*
LoadFromJSON loads serialized elements into this domain. The data may be an
envelope with entities, relationships and a schema table or a plain object
graph with $id / $ref back-references. Loading runs in a session in loading
mode so that the changes are not recorded for undo.
*/
func (d *Domain) LoadFromJSON(data []byte) error {
	if d.disposed {
		return errDisposed()
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}

	if err := dec.Decode(&raw); err != nil {
		return &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: err.Error(),
		}
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: "Loadable data must be a JSON object",
		}
	}

	return d.store.RunInSession(ModeLoading, func() error {
		if _, isEnvelope := obj["entities"]; isEnvelope {
			return d.loadEnvelope(obj)
		}

		_, err := d.loadPocoObject(obj, make(map[string]*Element))

		return err
	})
}

/*
loadEnvelope loads an envelope object into this domain. Entities are loaded
before relationships so that start elements exist when their relationships
arrive.
*/
func (d *Domain) loadEnvelope(obj map[string]interface{}) error {
	table := schemaTable(obj["schemas"])

	for _, item := range itemList(obj["entities"]) {
		if err := d.loadEntity(item, table); err != nil {
			return err
		}
	}

	for _, item := range itemList(obj["relationships"]) {
		if err := d.loadRelationship(item, table); err != nil {
			return err
		}
	}

	return nil
}

/*
loadEntity loads a single envelope entity. A state of "D" removes the
element instead.
*/
func (d *Domain) loadEntity(item map[string]interface{}, table []string) error {
	id := asString(item["id"])
	version, _ := toInt64(item["v"])

	if asString(item["state"]) == "D" {
		return d.Remove(id, version)
	}

	fullID := d.CreateID(id)
	schemaID := resolveSchemaRef(table, item["schema"])

	node, err := d.hg.AddNode(fullID, schemaID, version)
	if err != nil {
		return err
	}

	if err := d.store.current.appendEvent(&events.Event{
		Kind:     events.EventAddEntity,
		Domain:   d.name,
		ID:       node.ID,
		SchemaID: node.SchemaID,
		Version:  node.Version,
		TopLevel: true,
	}); err != nil {
		return err
	}

	return d.loadProperties(node, item["properties"])
}

/*
loadRelationship loads a single envelope relationship. A state of "D"
removes the element instead.
*/
func (d *Domain) loadRelationship(item map[string]interface{}, table []string) error {
	id := asString(item["id"])
	version, _ := toInt64(item["v"])

	if asString(item["state"]) == "D" {
		return d.Remove(id, version)
	}

	fullID := d.CreateID(id)
	schemaID := resolveSchemaRef(table, item["schema"])

	fullStart := d.fullID(asString(item["startId"]))
	fullEnd := d.fullID(asString(item["endId"]))
	endSchemaID := asString(item["endSchemaId"])

	start := d.hg.GetNode(fullStart)
	if start == nil {
		return &util.StoreError{
			Type: util.ErrInvalidElement,
			Detail: fmt.Sprintf("Start element %v of relationship %v is not in domain %v",
				asString(item["startId"]), id, d.name),
		}
	}

	embedded := false
	if relSchema, err := d.store.registry.GetRelationship(schemaID); err == nil {
		embedded = relSchema.Embedded
	}

	node, err := d.hg.AddRelationship(fullID, schemaID, fullStart,
		start.SchemaID, fullEnd, endSchemaID, embedded, version)
	if err != nil {
		return err
	}

	if err := d.store.current.appendEvent(&events.Event{
		Kind:          events.EventAddRelationship,
		Domain:        d.name,
		ID:            node.ID,
		SchemaID:      node.SchemaID,
		StartID:       node.StartID,
		StartSchemaID: node.StartSchemaID,
		EndID:         node.EndID,
		EndSchemaID:   node.EndSchemaID,
		Embedded:      node.Embedded,
		Version:       node.Version,
		TopLevel:      true,
	}); err != nil {
		return err
	}

	return d.loadProperties(node, item["properties"])
}

/*
loadProperties loads the property list of an envelope element. Values are
stored as they are - the envelope carries them in serialized form already.
*/
func (d *Domain) loadProperties(node *graph.Node, props interface{}) error {
	for _, item := range itemList(props) {
		name := asString(item["name"])
		if name == "" {
			continue
		}

		var typeID string

		if schemaElement, err := d.store.registry.GetElement(node.SchemaID); err == nil {
			if prop := schemaElement.GetProperty(name, true); prop != nil {
				typeID = prop.TypeID
			}
		}

		oldValue, version, err := d.hg.SetProperty(node.ID, name, typeID,
			item["value"], 0)
		if err != nil {
			return err
		}

		if err := d.store.current.appendEvent(&events.Event{
			Kind:         events.EventChangeProperty,
			Domain:       d.name,
			ID:           node.ID,
			SchemaID:     node.SchemaID,
			PropertyName: name,
			Value:        item["value"],
			OldValue:     oldValue,
			Version:      version,
			TopLevel:     true,
		}); err != nil {
			return err
		}
	}

	return nil
}

/*
loadPocoObject loads a plain object and its nested references. Objects
tagged with $id register in the reference map, {$ref:"k"} objects resolve
through it. Nested objects under reference names become connected elements.
*/
func (d *Domain) loadPocoObject(obj map[string]interface{},
	refs map[string]*Element) (*Element, error) {

	if tag, ok := obj["$ref"]; ok {
		element, found := refs[asString(tag)]
		if !found {
			return nil, &util.StoreError{
				Type:   util.ErrInvalidArgument,
				Detail: fmt.Sprintf("Unknown back-reference %v", tag),
			}
		}

		return element, nil
	}

	schemaName := asString(obj["$schema"])
	if schemaName == "" {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: "Object has no $schema",
		}
	}

	element, err := d.CreateEntity(schemaName, "", 0)
	if err != nil {
		return nil, err
	}

	if tag, ok := obj["$id"]; ok {
		refs[asString(tag)] = element
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		if !strings.HasPrefix(key, "$") {
			keys = append(keys, key)
		}
	}

	sort.StringSlice(keys).Sort()

	for _, key := range keys {
		value := obj[key]

		var ref *schema.Reference

		if element.schemaElement != nil {
			ref = element.schemaElement.GetReference(key, true)
		}

		if ref == nil {
			if _, err := element.SetPropertyValue(key, value); err != nil {
				return nil, err
			}

			continue
		}

		if err := d.loadPocoReference(element, ref, value, refs); err != nil {
			return nil, err
		}
	}

	return element, nil
}

/*
loadPocoReference loads the value under a reference name and connects the
resulting elements.
*/
func (d *Domain) loadPocoReference(element *Element, ref *schema.Reference,
	value interface{}, refs map[string]*Element) error {

	items, isList := value.([]interface{})

	if isList && !ref.IsCollection {
		return &util.StoreError{
			Type:   util.ErrTypeMismatch,
			Detail: fmt.Sprintf("Reference %v of %v is no collection", ref.Name, element.id),
		}
	}

	if !isList {
		items = []interface{}{value}
	}

	for _, item := range items {
		childObj, ok := item.(map[string]interface{})
		if !ok {
			return &util.StoreError{
				Type:   util.ErrTypeMismatch,
				Detail: fmt.Sprintf("Reference %v of %v holds no object", ref.Name, element.id),
			}
		}

		child, err := d.loadPocoObject(childObj, refs)
		if err != nil {
			return err
		}

		startID, endID := element.id, child.id
		if ref.Opposite {
			startID, endID = child.id, element.id
		}

		if _, err := d.CreateRelationship(ref.Relationship.ID, startID,
			endID, "", 0); err != nil {
			return err
		}
	}

	return nil
}

// Saving
// ======

/*
SaveToJSON serializes all elements of this domain into an envelope. Ids of
this domain are written as local parts, schema ids become indexes into the
schema table and property values stay in their serialized form.
*/
func (d *Domain) SaveToJSON() ([]byte, error) {
	if d.disposed {
		return nil, errDisposed()
	}

	return json.Marshal(d.envelope())
}

/*
envelope builds the envelope object of this domain.
*/
func (d *Domain) envelope() map[string]interface{} {
	builder := newSchemaTableBuilder()

	entities := make([]interface{}, 0)

	nodes := d.hg.GetNodes(graph.KindNode, "")
	for nodes.HasNext() {
		node := nodes.Next()
		entities = append(entities, d.envelopeElement(node, builder))
	}

	relationships := make([]interface{}, 0)

	edges := d.hg.GetNodes(graph.KindEdge, "")
	for edges.HasNext() {
		node := edges.Next()

		item := d.envelopeElement(node, builder)
		item["startId"] = d.localPart(node.StartID)
		item["endId"] = d.localPart(node.EndID)
		item["endSchemaId"] = node.EndSchemaID

		relationships = append(relationships, item)
	}

	return map[string]interface{}{
		"timestamp":     timeutil.MakeTimestamp(),
		"schemas":       builder.table(),
		"entities":      entities,
		"relationships": relationships,
	}
}

/*
envelopeElement builds the envelope form of a single node.
*/
func (d *Domain) envelopeElement(node *graph.Node,
	builder *schemaTableBuilder) map[string]interface{} {

	item := map[string]interface{}{
		"id":     d.localPart(node.ID),
		"schema": builder.indexOf(node.SchemaID),
		"v":      node.Version,
	}

	names := d.hg.PropertyNames(node.ID)

	if len(names) > 0 {
		props := make([]interface{}, 0, len(names))

		for _, name := range names {
			if propNode := d.hg.GetProperty(node.ID, name); propNode != nil {
				props = append(props, map[string]interface{}{
					"name":  name,
					"value": propNode.Value,
				})
			}
		}

		item["properties"] = props
	}

	return item
}

// Snapshots
// =========

/*
SaveSnapshot serializes all elements of this domain into a compact binary
snapshot of the envelope.
*/
func (d *Domain) SaveSnapshot() ([]byte, error) {
	if d.disposed {
		return nil, errDisposed()
	}

	return msgpack.Marshal(d.envelope())
}

/*
LoadSnapshot loads a binary snapshot into this domain. Like JSON loading
this runs in a session in loading mode.
*/
func (d *Domain) LoadSnapshot(data []byte) error {
	if d.disposed {
		return errDisposed()
	}

	var obj map[string]interface{}

	if err := msgpack.Unmarshal(data, &obj); err != nil {
		return &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: err.Error(),
		}
	}

	return d.store.RunInSession(ModeLoading, func() error {
		return d.loadEnvelope(obj)
	})
}

// Envelope helpers
// ================

/*
schemaTableBuilder collects schema ids and assigns stable table indexes.
*/
type schemaTableBuilder struct {
	order   []string       // Schema ids in first-seen order
	indexes map[string]int // Assigned index per schema id
}

/*
newSchemaTableBuilder creates an empty schema table builder.
*/
func newSchemaTableBuilder() *schemaTableBuilder {
	return &schemaTableBuilder{
		indexes: make(map[string]int),
	}
}

/*
indexOf returns the table index of a schema id, assigning a new one on
first use.
*/
func (b *schemaTableBuilder) indexOf(schemaID string) int {
	if idx, ok := b.indexes[schemaID]; ok {
		return idx
	}

	idx := len(b.order)

	b.order = append(b.order, schemaID)
	b.indexes[schemaID] = idx

	return idx
}

/*
table builds the envelope schema table. Schema ids with a qualifier group
under their schema name, unqualified ids group under an anonymous entry.
*/
func (b *schemaTableBuilder) table() []interface{} {
	groups := make(map[string][]interface{})
	var groupOrder []string

	for _, schemaID := range b.order {
		name, element := "", schemaID

		if idx := strings.Index(schemaID, ":"); idx >= 0 {
			name, element = schemaID[:idx], schemaID[idx+1:]
		}

		if _, ok := groups[name]; !ok {
			groupOrder = append(groupOrder, name)
		}

		groups[name] = append(groups[name], map[string]interface{}{
			"id":   element,
			"name": element,
		})
	}

	table := make([]interface{}, 0, len(groupOrder))

	for _, name := range groupOrder {
		group := map[string]interface{}{
			"elements": groups[name],
		}

		if name != "" {
			group["name"] = name
		}

		table = append(table, group)
	}

	return table
}

/*
schemaTable flattens the schema table of an envelope into resolved schema
ids in index order.
*/
func schemaTable(raw interface{}) []string {
	var table []string

	for _, group := range itemList(raw) {
		name := asString(group["name"])

		elements, _ := group["elements"].([]interface{})

		for _, rawElement := range elements {
			element, ok := rawElement.(map[string]interface{})
			if !ok {
				continue
			}

			part := asString(element["name"])
			if part == "" {
				part = asString(element["id"])
			}

			if name != "" {
				part = name + ":" + part
			}

			table = append(table, part)
		}
	}

	return table
}

/*
resolveSchemaRef resolves a schema reference of an envelope element. A
numeric reference indexes the schema table, anything else is used as the
schema id directly.
*/
func resolveSchemaRef(table []string, ref interface{}) string {
	if idx, ok := toInt64(ref); ok {
		if idx >= 0 && int(idx) < len(table) {
			return table[idx]
		}

		return ""
	}

	return asString(ref)
}

/*
itemList converts a raw envelope list into its item objects.
*/
func itemList(raw interface{}) []map[string]interface{} {
	list, _ := raw.([]interface{})

	items := make([]map[string]interface{}, 0, len(list))

	for _, entry := range list {
		if item, ok := entry.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}

	return items
}

/*
asString converts a raw envelope value into a string. Numbers convert to
their decimal form so that numeric ids stay usable.
*/
func asString(v interface{}) string {
	switch s := v.(type) {

	case nil:
		return ""

	case string:
		return s
	}

	return fmt.Sprint(v)
}

/*
toInt64 converts a raw envelope value into an integer. The second return
value is false for non-numeric values.
*/
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {

	case int:
		return int64(n), true

	case int8:
		return int64(n), true

	case int16:
		return int64(n), true

	case int32:
		return int64(n), true

	case int64:
		return n, true

	case uint64:
		return int64(n), true

	case float64:
		return int64(n), true

	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}

	return 0, false
}
