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
Package events contains the change event model of the store.

Every mutation of a domain graph is recorded as an Event value. Events form
a closed sum type discriminated by the Kind attribute. Each event kind has a
deterministic inverse so that applying an event followed by its reverse
event restores the previous state of the affected graph node. Reverse events
are the building blocks for session rollback and undo/redo.
*/
package events

import "fmt"

// Event kinds
// ===========

/*
EventAddEntity is recorded when an entity node is created.
*/
const EventAddEntity = 0x01

/*
EventRemoveEntity is recorded when an entity node is removed.
*/
const EventRemoveEntity = 0x02

/*
EventAddRelationship is recorded when a relationship node is created.
*/
const EventAddRelationship = 0x04

/*
EventRemoveRelationship is recorded when a relationship node is removed.
*/
const EventRemoveRelationship = 0x08

/*
EventChangeProperty is recorded when a property value is set or overwritten.
*/
const EventChangeProperty = 0x10

/*
EventRemoveProperty is recorded when a property node is dropped (only
happens while removing its owner).
*/
const EventRemoveProperty = 0x20

/*
eventNames maps event kinds to their string discriminator.
*/
var eventNames = map[int]string{
	EventAddEntity:          "AddEntityEvent",
	EventRemoveEntity:       "RemoveEntityEvent",
	EventAddRelationship:    "AddRelationshipEvent",
	EventRemoveRelationship: "RemoveRelationshipEvent",
	EventChangeProperty:     "ChangePropertyValueEvent",
	EventRemoveProperty:     "RemovePropertyEvent",
}

/*
Event models a single change of a domain graph. Events are immutable once
they have been appended to a session.
*/
type Event struct {
	Kind          int         // Event kind discriminator
	Domain        string      // Name of the domain which was changed
	ID            string      // ID of the affected node
	SchemaID      string      // Schema of the affected node
	StartID       string      // Start node ID (relationship events)
	StartSchemaID string      // Start node schema (relationship events)
	EndID         string      // End node ID (relationship events)
	EndSchemaID   string      // End node schema (relationship events)
	Embedded      bool        // Embedded flag (relationship events)
	PropertyName  string      // Property name (property events)
	Value         interface{} // New property value (property events)
	OldValue      interface{} // Previous property value (property events)
	Version       int64       // Version stamp of the write
	SessionID     int64       // Session correlation ID
	TopLevel      bool        // Flag if the event was directly requested
}

/*
Name returns the string discriminator of this event.
*/
func (e *Event) Name() string {
	return eventNames[e.Kind]
}

/*
Reverse returns the inverse event of this event. Applying the returned
event undoes the effect of this event. The given session ID is used as the
correlation ID of the reverse event.
*/
func (e *Event) Reverse(sessionID int64) *Event {
	rev := &Event{
		Domain:        e.Domain,
		ID:            e.ID,
		SchemaID:      e.SchemaID,
		StartID:       e.StartID,
		StartSchemaID: e.StartSchemaID,
		EndID:         e.EndID,
		EndSchemaID:   e.EndSchemaID,
		Embedded:      e.Embedded,
		PropertyName:  e.PropertyName,
		Version:       e.Version,
		SessionID:     sessionID,
		TopLevel:      e.TopLevel,
	}

	switch e.Kind {

	case EventAddEntity:
		rev.Kind = EventRemoveEntity

	case EventRemoveEntity:
		rev.Kind = EventAddEntity

	case EventAddRelationship:
		rev.Kind = EventRemoveRelationship

	case EventRemoveRelationship:
		rev.Kind = EventAddRelationship

	case EventChangeProperty:
		rev.Kind = EventChangeProperty
		rev.Value = e.OldValue
		rev.OldValue = e.Value

	case EventRemoveProperty:

		// Removing a property is undone by restoring the old value

		rev.Kind = EventChangeProperty
		rev.Value = e.Value
	}

	return rev
}

/*
String returns a string representation of this event.
*/
func (e *Event) String() string {
	switch e.Kind {

	case EventAddRelationship, EventRemoveRelationship:
		return fmt.Sprintf("%v %v (%v) %v -> %v", e.Name(), e.ID, e.SchemaID,
			e.StartID, e.EndID)

	case EventChangeProperty, EventRemoveProperty:
		return fmt.Sprintf("%v %v.%v = %v (old: %v)", e.Name(), e.ID,
			e.PropertyName, e.Value, e.OldValue)
	}

	return fmt.Sprintf("%v %v (%v)", e.Name(), e.ID, e.SchemaID)
}
