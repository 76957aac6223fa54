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
	"fmt"

	"devt.de/krotik/hyperstore/cursor"
	"devt.de/krotik/hyperstore/events"
	"devt.de/krotik/hyperstore/graph/util"
	"devt.de/krotik/hyperstore/schema"
)

/*
ElementCollection is a live view of the elements connected to a source
element through one relationship schema. The collection populates itself
on creation and then keeps itself up to date by subscribing to session
completion. With the opposite flag the collection follows incoming
relationships and contains their start elements.

A collection holds a subscription and must be disposed when it is no
longer needed.
*/
type ElementCollection struct {
	source    *Element              // Terminal element of the relationships
	relSchema *schema.Relationship  // Traversed relationship schema
	opposite  bool                  // Flag if traversal runs from end to start
	filter    func(*Element) bool   // Optional item filter
	items     []*Element            // Current items of the collection
	cookie    int                   // Session subscription cookie
	disposed  bool                  // Flag if this collection was disposed
}

/*
NewElementCollection creates a live collection of the elements connected
to a source element through a relationship schema.
*/
func NewElementCollection(source *Element, schemaName string, opposite bool,
	filter func(*Element) bool) (*ElementCollection, error) {

	if source.disposed {
		return nil, errDisposed()
	}

	relSchema, err := source.domain.store.registry.GetRelationship(schemaName)
	if err != nil {
		return nil, err
	}

	col := &ElementCollection{
		source:    source,
		relSchema: relSchema,
		opposite:  opposite,
		filter:    filter,
	}

	if err := col.populate(); err != nil {
		return nil, err
	}

	col.cookie = source.domain.store.Subscribe(col.onSessionCompleted)

	return col, nil
}

/*
populate fills the collection from the current relationships of the
source element.
*/
func (col *ElementCollection) populate() error {
	domain := col.source.domain

	startID, endID := col.source.id, ""
	if col.opposite {
		startID, endID = "", col.source.id
	}

	rels, err := domain.FindRelationships(col.relSchema.ID, startID, endID)
	if err != nil {
		return err
	}

	col.items = nil

	for rels.HasNext() {
		rel, ok := rels.Next().(*Element)
		if !ok || rel == nil {
			continue
		}

		item, err := col.itemOf(rel.startID, rel.endID)
		if err != nil {
			return err
		}

		col.insert(item)
	}

	return nil
}

/*
itemOf resolves the collection item of a relationship given its terminal
ids.
*/
func (col *ElementCollection) itemOf(startID string, endID string) (*Element, error) {
	itemID := endID
	if col.opposite {
		itemID = startID
	}

	return resolveElement(col.source.domain.store, itemID)
}

/*
onSessionCompleted applies the relationship events of a completed session
to the collection.
*/
func (col *ElementCollection) onSessionCompleted(info *SessionInfo) {
	if col.disposed || info.Aborted {
		return
	}

	domain := col.source.domain

	for _, ev := range info.Events {

		if ev.Kind != events.EventAddRelationship &&
			ev.Kind != events.EventRemoveRelationship {
			continue
		}

		if ev.Domain != domain.name || !domain.schemaIsA(ev.SchemaID, col.relSchema.ID) {
			continue
		}

		terminalID := ev.StartID
		if col.opposite {
			terminalID = ev.EndID
		}

		if terminalID != col.source.id {
			continue
		}

		if ev.Kind == events.EventRemoveRelationship {
			itemID := ev.EndID
			if col.opposite {
				itemID = ev.StartID
			}

			col.remove(itemID)
			continue
		}

		item, err := col.itemOf(ev.StartID, ev.EndID)
		if err != nil || item == nil {
			continue
		}

		col.insert(item)
	}
}

/*
insert adds an item to the collection unless it is filtered out or
already present.
*/
func (col *ElementCollection) insert(item *Element) {
	if item == nil || (col.filter != nil && !col.filter(item)) {
		return
	}

	for _, existing := range col.items {
		if existing.id == item.id {
			return
		}
	}

	col.items = append(col.items, item)
}

/*
remove drops an item from the collection.
*/
func (col *ElementCollection) remove(id string) {
	for i, existing := range col.items {
		if existing.id == id {
			col.items = append(col.items[:i], col.items[i+1:]...)
			return
		}
	}
}

// Collection operations
// =====================

/*
Add connects a new element to the source through the collection's
relationship. The collection updates itself through the resulting session
events.
*/
func (col *ElementCollection) Add(item *Element) error {
	if col.disposed {
		return errDisposed()
	}

	domain := col.source.domain

	startID, endID := col.source.id, item.id
	if col.opposite {
		startID, endID = item.id, col.source.id
	}

	_, err := domain.CreateRelationship(col.relSchema.ID, startID, endID, "", 0)

	return err
}

/*
Remove disconnects an element from the source by removing the connecting
relationship.
*/
func (col *ElementCollection) Remove(item *Element) error {
	if col.disposed {
		return errDisposed()
	}

	domain := col.source.domain

	startID, endID := col.source.id, item.id
	if col.opposite {
		startID, endID = item.id, col.source.id
	}

	rels, err := domain.FindRelationships(col.relSchema.ID, startID, endID)
	if err != nil {
		return err
	}

	if !rels.HasNext() {
		return &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("No %v relationship between %v and %v",
				col.relSchema.Name, startID, endID),
		}
	}

	rel := rels.Next().(*Element)

	return domain.Remove(rel.id, 0)
}

/*
Count returns the number of items in the collection.
*/
func (col *ElementCollection) Count() int {
	return len(col.items)
}

/*
Items returns a snapshot of the collection items.
*/
func (col *ElementCollection) Items() []interface{} {
	ret := make([]interface{}, 0, len(col.items))
	for _, item := range col.items {
		ret = append(ret, item)
	}

	return ret
}

/*
Elements returns a snapshot of the collection items as model elements.
*/
func (col *ElementCollection) Elements() []*Element {
	ret := make([]*Element, len(col.items))
	copy(ret, col.items)

	return ret
}

/*
Cursor returns a cursor over a snapshot of the collection items.
*/
func (col *ElementCollection) Cursor() cursor.Cursor {
	return cursor.From(col.Items())
}

/*
Dispose releases the session subscription of this collection.
*/
func (col *ElementCollection) Dispose() {
	if col.disposed {
		return
	}

	col.source.domain.store.Unsubscribe(col.cookie)
	col.items = nil
	col.disposed = true
}
