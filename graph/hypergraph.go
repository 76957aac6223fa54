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
Package graph contains the hypergraph data structure of the store.

A Hypergraph stores entity nodes, relationship nodes and property nodes of
a single domain. Relationships are nodes themselves - they have ids, schemas
and property values and can participate in further relationships.

Entity and relationship nodes live in an ordered sequence of slots; a key
to index mapping provides O(1) lookup. Removed nodes leave a tombstone in
the key mapping until a compaction threshold is reached and the sequence is
rebuilt. Property nodes live in a separate dictionary keyed by owner id and
property name.

Removing a node is a cascading operation: all incident edges are removed
with it and embedded relationships also take their end node. The remove
operation returns the resulting change events in replay order: property
removals, then relationship removals, then entity removals.
*/
package graph

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"devt.de/krotik/common/stringutil"
	"devt.de/krotik/hyperstore/config"
	"devt.de/krotik/hyperstore/events"
	"devt.de/krotik/hyperstore/graph/util"
)

/*
tombstoneSlot is the sentinel slot index for removed nodes.
*/
const tombstoneSlot = -1

/*
Hypergraph is the adjacency storage for the nodes of one domain.
*/
type Hypergraph struct {
	nodes      []*Node                     // Ordered sequence of node slots
	index      map[string]int              // Node ID to slot mapping
	props      map[string]map[string]*Node // Property nodes by owner and name
	tombstones int                         // Number of tombstoned slots
	threshold  int                         // Tombstone count which triggers compaction
	nodeCount  int                         // Number of live entity nodes
	edgeCount  int                         // Number of live relationship nodes
}

/*
NewHypergraph creates a new empty Hypergraph.
*/
func NewHypergraph() *Hypergraph {
	return &Hypergraph{
		nodes:     make([]*Node, 0),
		index:     make(map[string]int),
		props:     make(map[string]map[string]*Node),
		threshold: int(config.Int(config.CompactionThreshold)),
	}
}

// Version ticks
// =============

var tickLock = &sync.Mutex{}
var lastTick int64

/*
NewVersion returns a new version stamp. Version stamps are derived from the
wall clock and are strictly monotonic within the process.
*/
func NewVersion() int64 {
	tickLock.Lock()
	defer tickLock.Unlock()

	tick := time.Now().UnixNano() / int64(time.Millisecond)

	if tick <= lastTick {
		tick = lastTick + 1
	}

	lastTick = tick

	return tick
}

// Node lookup
// ===========

/*
GetNode fetches a single node. Returns nil if the node is unknown or
removed.
*/
func (hg *Hypergraph) GetNode(id string) *Node {
	if slot, ok := hg.index[id]; ok && slot != tombstoneSlot {
		return hg.nodes[slot]
	}

	return nil
}

/*
HasNode returns if a given node is live in this graph.
*/
func (hg *Hypergraph) HasNode(id string) bool {
	return hg.GetNode(id) != nil
}

/*
NodeCount returns the number of live nodes matching a given kind mask.
*/
func (hg *Hypergraph) NodeCount(kindMask int) int {
	var count int

	if kindMask&KindNode != 0 {
		count += hg.nodeCount
	}

	if kindMask&KindEdge != 0 {
		count += hg.edgeCount
	}

	return count
}

// Node insertion
// ==============

/*
AddNode inserts a new entity node into the graph.
*/
func (hg *Hypergraph) AddNode(id string, schemaID string, version int64) (*Node, error) {

	if err := hg.checkNewNode(id, schemaID); err != nil {
		return nil, err
	}

	if version == 0 {
		version = NewVersion()
	}

	node := NewNode(id, schemaID, version)

	hg.insert(node)
	hg.nodeCount++

	return node, nil
}

/*
AddRelationship inserts a new relationship node into the graph. The start
node must be live in this graph. An unknown end is allowed - the end may
live in another domain - in which case no incoming entry is recorded. A self
referencing relationship is recorded as a single entry with direction both.
*/
func (hg *Hypergraph) AddRelationship(id string, schemaID string, startID string,
	startSchemaID string, endID string, endSchemaID string, embedded bool,
	version int64) (*Node, error) {

	if err := hg.checkNewNode(id, schemaID); err != nil {
		return nil, err
	}

	start := hg.GetNode(startID)
	if start == nil {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("Start node %v is not in the graph", startID),
		}
	}

	if version == 0 {
		version = NewVersion()
	}

	node := NewEdgeNode(id, schemaID, startID, startSchemaID, endID,
		endSchemaID, embedded, version)

	hg.insert(node)
	hg.edgeCount++

	if startID == endID {

		// Self referencing edge - one entry with direction both

		start.Outgoings[id] = &EdgeInfo{id, schemaID, endID, endSchemaID, DirectionBoth}

	} else {

		start.Outgoings[id] = &EdgeInfo{id, schemaID, endID, endSchemaID, DirectionOutgoing}

		if end := hg.GetNode(endID); end != nil {
			end.Incomings[id] = &EdgeInfo{id, schemaID, startID, startSchemaID, DirectionIncoming}
		}
	}

	return node, nil
}

/*
checkNewNode checks if a node with a given id can be inserted.
*/
func (hg *Hypergraph) checkNewNode(id string, schemaID string) error {

	if id == "" || schemaID == "" {
		return &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: "Node is missing an id or schema value",
		}
	}

	if hg.HasNode(id) {
		return &util.StoreError{
			Type:   util.ErrDuplicateElement,
			Detail: fmt.Sprintf("Node %v already exists", id),
		}
	}

	return nil
}

/*
insert stores a node in the next free slot.
*/
func (hg *Hypergraph) insert(node *Node) {
	hg.nodes = append(hg.nodes, node)
	hg.index[node.ID] = len(hg.nodes) - 1
}

// Property nodes
// ==============

/*
GetProperty fetches a property node of a given owner. Returns nil if the
property was never written.
*/
func (hg *Hypergraph) GetProperty(ownerID string, name string) *Node {
	if byName, ok := hg.props[ownerID]; ok {
		return byName[name]
	}

	return nil
}

/*
SetProperty allocates or overwrites a property node. The owner must be live
in this graph. Returns the previous value of the property. The version of a
property write never decreases.
*/
func (hg *Hypergraph) SetProperty(ownerID string, name string, schemaID string,
	value interface{}, version int64) (interface{}, int64, error) {

	if !hg.HasNode(ownerID) {
		return nil, 0, &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("Property owner %v is not in the graph", ownerID),
		}
	}

	if name == "" {
		return nil, 0, &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: "Property name must not be empty",
		}
	}

	if version == 0 {
		version = NewVersion()
	}

	byName, ok := hg.props[ownerID]
	if !ok {
		byName = make(map[string]*Node)
		hg.props[ownerID] = byName
	}

	if prop, ok := byName[name]; ok {
		oldValue := prop.Value

		if version < prop.Version {
			version = prop.Version
		}

		prop.Value = value
		prop.Version = version

		return oldValue, version, nil
	}

	byName[name] = NewPropertyNode(ownerID, name, schemaID, value, version)

	return nil, version, nil
}

/*
RemoveProperty drops a property node. Returns the removed node or nil if
the property was never written.
*/
func (hg *Hypergraph) RemoveProperty(ownerID string, name string) *Node {
	byName, ok := hg.props[ownerID]
	if !ok {
		return nil
	}

	prop, ok := byName[name]
	if !ok {
		return nil
	}

	delete(byName, name)

	if len(byName) == 0 {
		delete(hg.props, ownerID)
	}

	return prop
}

/*
PropertyNames returns the sorted property names of a given owner.
*/
func (hg *Hypergraph) PropertyNames(ownerID string) []string {
	byName, ok := hg.props[ownerID]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}

	sort.StringSlice(names).Sort()

	return names
}

// Node removal
// ============

/*
RemoveNode removes a node and everything which is reachable through the
removal cascade: all incident edges of a removed node are removed with it
and an embedded relationship also takes its end node. With the cascade
suppressed (rollback and undo/redo replay) only the given node is removed -
the replayed event stream already carries the individual removals.

Returns the resulting events in replay order: property removals, then
relationship removals, then entity removals. Within the relationship and
entity groups events are ordered leaves first so that a reverse replay
recreates a node before its edges and its edges before its properties.
*/
func (hg *Hypergraph) RemoveNode(id string, version int64, suppressCascade bool) ([]*events.Event, error) {

	if !hg.HasNode(id) {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidElement,
			Detail: fmt.Sprintf("Node %v is not in the graph", id),
		}
	}

	if version == 0 {
		version = NewVersion()
	}

	// Collect all affected nodes with a breadth-first traversal

	order := []string{}
	seen := map[string]bool{id: true}
	queue := []string{id}

	for len(queue) > 0 {
		nid := queue[0]
		queue = queue[1:]

		node := hg.GetNode(nid)
		if node == nil {
			continue
		}

		order = append(order, nid)

		if suppressCascade {
			continue
		}

		enqueue := func(next string) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}

		for eid := range node.Outgoings {
			enqueue(eid)
		}

		for eid := range node.Incomings {
			enqueue(eid)
		}

		if node.IsEdge() && node.Embedded {
			enqueue(node.EndID)
		}
	}

	// Unlink the collected nodes and record the events

	var propEvents, relEvents, entEvents []*events.Event

	for _, nid := range order {
		node := hg.GetNode(nid)

		for _, name := range hg.PropertyNames(nid) {
			prop := hg.RemoveProperty(nid, name)

			propEvents = append(propEvents, &events.Event{
				Kind:         events.EventRemoveProperty,
				ID:           nid,
				SchemaID:     node.SchemaID,
				PropertyName: name,
				Value:        prop.Value,
				Version:      version,
			})
		}

		if node.IsEdge() {
			hg.unlinkEdge(node)
			hg.edgeCount--

			relEvents = append(relEvents, &events.Event{
				Kind:          events.EventRemoveRelationship,
				ID:            nid,
				SchemaID:      node.SchemaID,
				StartID:       node.StartID,
				StartSchemaID: node.StartSchemaID,
				EndID:         node.EndID,
				EndSchemaID:   node.EndSchemaID,
				Embedded:      node.Embedded,
				Version:       version,
				TopLevel:      nid == id,
			})

		} else {
			hg.nodeCount--

			entEvents = append(entEvents, &events.Event{
				Kind:     events.EventRemoveEntity,
				ID:       nid,
				SchemaID: node.SchemaID,
				Version:  version,
				TopLevel: nid == id,
			})
		}

		hg.index[nid] = tombstoneSlot
		hg.tombstones++
	}

	// Tombstone the slots themselves

	for slot, node := range hg.nodes {
		if node != nil && hg.index[node.ID] == tombstoneSlot {
			hg.nodes[slot] = nil
		}
	}

	if hg.tombstones > hg.threshold {
		hg.compact()
	}

	// Combine the events in replay order - leaves first within each group

	reverse(relEvents)
	reverse(entEvents)

	ret := make([]*events.Event, 0, len(propEvents)+len(relEvents)+len(entEvents))
	ret = append(ret, propEvents...)
	ret = append(ret, relEvents...)
	ret = append(ret, entEvents...)

	return ret, nil
}

/*
unlinkEdge removes an edge from the incident maps of its endpoints.
*/
func (hg *Hypergraph) unlinkEdge(edge *Node) {

	if start := hg.GetNode(edge.StartID); start != nil {
		delete(start.Outgoings, edge.ID)
	}

	if edge.EndID != edge.StartID {
		if end := hg.GetNode(edge.EndID); end != nil {
			delete(end.Incomings, edge.ID)
		}
	}
}

/*
reverse reverses a list of events in place.
*/
func reverse(evs []*events.Event) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}

// Compaction
// ==========

/*
compact rebuilds the node sequence without tombstoned slots.
*/
func (hg *Hypergraph) compact() {
	nodes := make([]*Node, 0, len(hg.nodes)-hg.tombstones)
	index := make(map[string]int)

	for _, node := range hg.nodes {
		if node == nil {
			continue
		}

		nodes = append(nodes, node)
		index[node.ID] = len(nodes) - 1
	}

	hg.nodes = nodes
	hg.index = index
	hg.tombstones = 0
}

// Debug output
// ============

/*
String returns a string representation of this graph.
*/
func (hg *Hypergraph) String() string {
	var buf bytes.Buffer

	ids := make([]string, 0, len(hg.index))
	for id, slot := range hg.index {
		if slot != tombstoneSlot {
			ids = append(ids, id)
		}
	}

	sort.StringSlice(ids).Sort()

	buf.WriteString(fmt.Sprintf("Hypergraph: %v node%v, %v edge%v\n",
		hg.nodeCount, stringutil.Plural(hg.nodeCount),
		hg.edgeCount, stringutil.Plural(hg.edgeCount)))

	for _, id := range ids {
		buf.WriteString(hg.GetNode(id).String())
		buf.WriteString("\n")

		for _, name := range hg.PropertyNames(id) {
			buf.WriteString("    ")
			buf.WriteString(hg.GetProperty(id, name).String())
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
