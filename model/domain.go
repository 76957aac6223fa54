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
	"strconv"
	"strings"

	"devt.de/krotik/common/datautil"
	"devt.de/krotik/common/logutil"

	"devt.de/krotik/hyperstore/config"
	"devt.de/krotik/hyperstore/events"
	"devt.de/krotik/hyperstore/graph"
	"devt.de/krotik/hyperstore/graph/util"
	"devt.de/krotik/hyperstore/schema"
)

/*
Adapter is the interface of external collaborators which synchronize a
domain with an outside system. Adapters are attached to a domain and
receive every completed session.
*/
type Adapter interface {

	/*
	   Init is called when the adapter is attached to a domain.
	*/
	Init(domain *Domain)

	/*
	   OnSessionCompleted is called after every session of the store.
	*/
	OnSessionCompleted(info *SessionInfo)

	/*
	   Dispose is called when the owning domain is disposed.
	*/
	Dispose()
}

/*
Domain is a named graph of model elements. All ids minted by a domain have
the form <domain>:<localPart>.
*/
type Domain struct {
	store    *Store             // Owning store
	name     string             // Lowercase name of the domain
	seq      int64              // Sequence counter for minted ids
	hg       *graph.Hypergraph  // Graph storage of this domain
	cache    *datautil.MapCache // Cache of materialized elements
	adapters []Adapter          // Attached adapters
	cookies  []int              // Subscription cookies of the adapters
	disposed bool               // Flag if this domain was disposed
	log      logutil.Logger     // Logger of this domain
}

/*
newDomain creates a new domain attached to a store.
*/
func newDomain(store *Store, name string) *Domain {
	return &Domain{
		store: store,
		name:  name,
		hg:    graph.NewHypergraph(),
		cache: datautil.NewMapCache(uint64(config.Int(config.ElementCacheMaxSize)),
			config.Int(config.ElementCacheMaxAge)),
		log: logutil.GetLogger("hyperstore.domain." + name),
	}
}

/*
Name returns the name of this domain.
*/
func (d *Domain) Name() string {
	return d.name
}

/*
Store returns the store which owns this domain.
*/
func (d *Domain) Store() *Store {
	return d.store
}

/*
Graph returns the graph storage of this domain.
*/
func (d *Domain) Graph() *graph.Hypergraph {
	return d.hg
}

// Id handling
// ===========

/*
CreateID mints a full element id. Without an argument the domain sequence
is advanced; a supplied numeric id raises the sequence so that minted ids
never collide with loaded ones.
*/
func (d *Domain) CreateID(id string) string {
	if id == "" {
		d.seq++

		return fmt.Sprintf("%v:%v", d.name, d.seq)
	}

	local := d.localPart(id)

	if n, err := strconv.ParseInt(local, 10, 64); err == nil && n > d.seq {
		d.seq = n
	}

	return d.name + ":" + local
}

/*
Sequence returns the current id sequence value of this domain.
*/
func (d *Domain) Sequence() int64 {
	return d.seq
}

/*
fullID qualifies an id with the domain name unless it is qualified
already. Ids of other domains are kept as they are.
*/
func (d *Domain) fullID(id string) string {
	if strings.Contains(id, ":") {
		return id
	}

	return d.name + ":" + id
}

/*
localPart strips the domain qualifier from an id of this domain.
*/
func (d *Domain) localPart(id string) string {
	return strings.TrimPrefix(id, d.name+":")
}

// Element creation
// ================

/*
CreateEntity creates a new entity element. An empty id mints one from the
domain sequence; a zero version stamps the write with the current tick.
*/
func (d *Domain) CreateEntity(schemaName string, id string, version int64) (*Element, error) {
	if d.disposed {
		return nil, errDisposed()
	}

	schemaElement, err := d.store.registry.GetEntity(schemaName)
	if err != nil {
		return nil, err
	}

	fullID := d.CreateID(id)

	var element *Element

	err = d.store.RunInSession(ModeNormal, func() error {
		node, err := d.hg.AddNode(fullID, schemaElement.ID, version)
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

		element = d.materialize(node)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return element, nil
}

/*
CreateRelationship creates a new relationship element between a start and
an end element. The start must be a live element of this domain whose
schema matches the start side of the relationship schema. The end may live
in another domain.
*/
func (d *Domain) CreateRelationship(schemaName string, startID string,
	endID string, id string, version int64) (*Element, error) {

	if d.disposed {
		return nil, errDisposed()
	}

	relSchema, err := d.store.registry.GetRelationship(schemaName)
	if err != nil {
		return nil, err
	}

	fullStart := d.fullID(startID)
	fullEnd := d.fullID(endID)

	start := d.hg.GetNode(fullStart)
	if start == nil {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("Start element %v is not in domain %v", startID, d.name),
		}
	}

	if startSchema, serr := d.store.registry.GetElement(start.SchemaID); serr == nil {
		if !startSchema.IsA(relSchema.StartSchemaID) {
			return nil, &util.StoreError{
				Type:   util.ErrTypeMismatch,
				Detail: fmt.Sprintf("Start element %v is no %v", startID,
					relSchema.StartSchemaID),
			}
		}
	}

	endSchemaID := relSchema.EndSchemaID
	if end := d.hg.GetNode(fullEnd); end != nil {
		endSchemaID = end.SchemaID
	}

	fullID := d.CreateID(id)

	var element *Element

	err = d.store.RunInSession(ModeNormal, func() error {
		node, err := d.hg.AddRelationship(fullID, relSchema.ID, fullStart,
			start.SchemaID, fullEnd, endSchemaID, relSchema.Embedded, version)
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

		element = d.materialize(node)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return element, nil
}

// Element removal
// ===============

/*
Remove removes an element and everything reachable through the removal
cascade. Every removal is recorded as an individual event in the active
session.
*/
func (d *Domain) Remove(id string, version int64) error {
	if d.disposed {
		return errDisposed()
	}

	fullID := d.fullID(id)

	return d.store.RunInSession(ModeNormal, func() error {
		sess := d.store.current

		suppressCascade := sess.Mode()&(ModeRollback|ModeUndoOrRedo) != 0

		evs, err := d.hg.RemoveNode(fullID, version, suppressCascade)
		if err != nil {
			return err
		}

		for _, ev := range evs {
			ev.Domain = d.name

			if err := sess.appendEvent(ev); err != nil {
				return err
			}

			if ev.Kind == events.EventRemoveEntity ||
				ev.Kind == events.EventRemoveRelationship {
				d.disposeCached(ev.ID)
			}
		}

		return nil
	})
}

// Element access
// ==============

/*
Get returns the materialized element of a given id. Returns nil if the id
is not live in this domain.
*/
func (d *Domain) Get(id string) (*Element, error) {
	if d.disposed {
		return nil, errDisposed()
	}

	node := d.hg.GetNode(d.fullID(id))
	if node == nil {
		return nil, nil
	}

	return d.materialize(node), nil
}

/*
ElementExists returns if a given id is live in this domain.
*/
func (d *Domain) ElementExists(id string) bool {
	if d.disposed {
		return false
	}

	return d.hg.HasNode(d.fullID(id))
}

/*
materialize returns the cached model element of a node or creates and
caches a new one.
*/
func (d *Domain) materialize(node *graph.Node) *Element {

	if cached, ok := d.cache.Get(node.ID); ok {
		element := cached.(*Element)

		if !element.disposed {
			return element
		}
	}

	schemaElement, err := d.store.registry.GetElement(node.SchemaID)
	if err != nil {
		d.log.Warning("Element ", node.ID, " has an unregistered schema: ", node.SchemaID)
	}

	element := &Element{
		domain:        d,
		id:            node.ID,
		schemaID:      node.SchemaID,
		schemaElement: schemaElement,
		isEdge:        node.IsEdge(),
		startID:       node.StartID,
		startSchemaID: node.StartSchemaID,
		endID:         node.EndID,
		endSchemaID:   node.EndSchemaID,
	}

	d.cache.Put(node.ID, element)

	return element
}

/*
disposeCached disposes the cached model element of a removed node.
*/
func (d *Domain) disposeCached(id string) {
	if cached, ok := d.cache.Get(id); ok {
		cached.(*Element).disposed = true
		d.cache.Remove(id)
	}
}

// Property values
// ===============

/*
GetPropertyValue reads a property of an element. An unwritten property
with a schema default materializes the default - a default thunk is
invoked on every read - with version 0 so that write-on-first-read stays
sound. Calculated properties are computed from the owner on every read.
*/
func (d *Domain) GetPropertyValue(ownerID string, name string) (*PropertyValue, error) {
	if d.disposed {
		return nil, errDisposed()
	}

	fullOwner := d.fullID(ownerID)

	node := d.hg.GetNode(fullOwner)
	if node == nil {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("Element %v is not in domain %v", ownerID, d.name),
		}
	}

	var prop *schema.Property

	if schemaElement, err := d.store.registry.GetElement(node.SchemaID); err == nil {
		prop = schemaElement.GetProperty(name, true)
	}

	if prop != nil && prop.Kind == schema.PropertyCalculated {
		return &PropertyValue{Value: prop.Calculate(d.materialize(node))}, nil
	}

	if propNode := d.hg.GetProperty(fullOwner, name); propNode != nil {
		return &PropertyValue{
			Value:   prop.DeserializeValue(propNode.Value),
			Version: propNode.Version,
		}, nil
	}

	if prop != nil {
		return &PropertyValue{Value: prop.Default()}, nil
	}

	return &PropertyValue{}, nil
}

/*
SetPropertyValue writes a property of an element. The value is run through
the serializer of the schema property. Check constraints of the property
run immediately when enabled - a violation aborts the session.
*/
func (d *Domain) SetPropertyValue(ownerID string, name string, value interface{},
	version int64) (*PropertyValue, error) {

	if d.disposed {
		return nil, errDisposed()
	}

	fullOwner := d.fullID(ownerID)

	node := d.hg.GetNode(fullOwner)
	if node == nil {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("Element %v is not in domain %v", ownerID, d.name),
		}
	}

	var prop *schema.Property
	var schemaElement *schema.Element

	if schemaElement, _ = d.store.registry.GetElement(node.SchemaID); schemaElement != nil {
		prop = schemaElement.GetProperty(name, true)
	}

	if prop != nil && prop.Kind == schema.PropertyCalculated {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: fmt.Sprintf("Property %v of %v is calculated", name, ownerID),
		}
	}

	serialized := prop.SerializeValue(value)

	var typeID string
	if prop != nil {
		typeID = prop.TypeID
	}

	var ret *PropertyValue

	err := d.store.RunInSession(ModeNormal, func() error {
		sess := d.store.current

		oldValue, newVersion, err := d.hg.SetProperty(fullOwner, name, typeID,
			serialized, version)
		if err != nil {
			return err
		}

		if err := sess.appendEvent(&events.Event{
			Kind:         events.EventChangeProperty,
			Domain:       d.name,
			ID:           fullOwner,
			SchemaID:     node.SchemaID,
			PropertyName: name,
			Value:        serialized,
			OldValue:     oldValue,
			Version:      newVersion,
			TopLevel:     true,
		}); err != nil {
			return err
		}

		if schemaElement != nil && prop != nil && len(prop.Constraints) > 0 &&
			config.Bool(config.ValidateOnPropertyWrite) {

			if err := schema.RunConstraints(schema.ConstraintCheck, schemaElement,
				d.materialize(node), name, sess.diags); err != nil {
				return err
			}
		}

		ret = &PropertyValue{
			Value:    value,
			OldValue: oldValue,
			Version:  newVersion,
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return ret, nil
}

// Event replay
// ============

/*
ApplyEvent applies a change event to this domain inside the active session
and records it. Undo managers use this to replay reverse event streams.
*/
func (d *Domain) ApplyEvent(ev *events.Event) error {
	if d.disposed {
		return errDisposed()
	}

	return d.store.RunInSession(ModeNormal, func() error {
		if err := d.replayEvent(ev); err != nil {
			return err
		}

		return d.store.current.appendEvent(ev)
	})
}

/*
replayEvent mutates the graph according to a single event. Cascading
removal is always suppressed - a replayed stream carries the individual
removals itself.
*/
func (d *Domain) replayEvent(ev *events.Event) error {
	var err error

	switch ev.Kind {

	case events.EventAddEntity:
		_, err = d.hg.AddNode(ev.ID, ev.SchemaID, ev.Version)

	case events.EventAddRelationship:
		_, err = d.hg.AddRelationship(ev.ID, ev.SchemaID, ev.StartID,
			ev.StartSchemaID, ev.EndID, ev.EndSchemaID, ev.Embedded, ev.Version)

	case events.EventRemoveEntity, events.EventRemoveRelationship:
		_, err = d.hg.RemoveNode(ev.ID, ev.Version, true)
		d.disposeCached(ev.ID)

	case events.EventChangeProperty:
		if ev.Value == nil {
			// Restoring a never-written state drops the property node so
			// that the schema default shows through again
			d.hg.RemoveProperty(ev.ID, ev.PropertyName)
		} else {
			_, _, err = d.hg.SetProperty(ev.ID, ev.PropertyName, "", ev.Value, ev.Version)
		}

	case events.EventRemoveProperty:
		d.hg.RemoveProperty(ev.ID, ev.PropertyName)
	}

	return err
}

// Adapters and disposal
// =====================

/*
AddAdapter attaches an adapter to this domain. The adapter is initialized
and subscribed to session completion.
*/
func (d *Domain) AddAdapter(a Adapter) {
	a.Init(d)

	d.adapters = append(d.adapters, a)
	d.cookies = append(d.cookies, d.store.Subscribe(a.OnSessionCompleted))
}

/*
Dispose detaches this domain from its store. All adapters are disposed and
the element cache is cleared. Further operations fail with a disposed
element error.
*/
func (d *Domain) Dispose() {
	if d.disposed {
		return
	}

	for i, a := range d.adapters {
		d.store.Unsubscribe(d.cookies[i])
		a.Dispose()
	}

	d.adapters = nil
	d.cookies = nil
	d.cache = datautil.NewMapCache(1, 0)
	d.disposed = true

	delete(d.store.domains, d.name)

	d.log.Info("Disposed domain ", d.name)
}

/*
errDisposed returns the error for operations on disposed objects.
*/
func errDisposed() error {
	return &util.StoreError{
		Type: util.ErrDisposedElement,
	}
}
