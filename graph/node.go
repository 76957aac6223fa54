/*
 * Hyperstore
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"bytes"
	"fmt"
	"sort"
)

// Node kinds
// ==========

/*
KindNode is the kind flag for entity nodes.
*/
const KindNode = 0x01

/*
KindEdge is the kind flag for relationship nodes. Relationships are nodes
themselves and can carry properties and participate in further relationships.
*/
const KindEdge = 0x02

/*
KindProperty is the kind flag for property nodes.
*/
const KindProperty = 0x04

// Edge directions
// ===============

/*
DirectionOutgoing marks an edge info entry pointing away from its owner.
*/
const DirectionOutgoing = 0x01

/*
DirectionIncoming marks an edge info entry pointing towards its owner.
*/
const DirectionIncoming = 0x02

/*
DirectionBoth marks an edge info entry of a self referencing edge.
*/
const DirectionBoth = DirectionOutgoing | DirectionIncoming

/*
EdgeInfo is a lightweight entry in the incident edge maps of a node. It
records enough information to traverse to the other end of an edge without
fetching the edge node itself.
*/
type EdgeInfo struct {
	ID          string // ID of the edge node
	SchemaID    string // Schema of the edge node
	EndID       string // ID of the node on the other side
	EndSchemaID string // Schema of the node on the other side
	Direction   int    // Direction of the edge as seen from the owner
}

/*
Node is a single item of a hypergraph. Depending on the kind a node models
an entity, a relationship or a property value.
*/
type Node struct {
	ID            string               // Unique ID of the node within its domain
	SchemaID      string               // Schema of the node
	Kind          int                  // Kind of the node (entity, edge or property)
	Version       int64                // Version stamp of the last write
	StartID       string               // ID of the start node (edge nodes)
	StartSchemaID string               // Schema of the start node (edge nodes)
	EndID         string               // ID of the end node (edge nodes)
	EndSchemaID   string               // Schema of the end node (edge nodes)
	Embedded      bool                 // Flag if the end is owned by the start (edge nodes)
	PropertyName  string               // Name of the property (property nodes)
	Value         interface{}          // Value of the property (property nodes)
	Outgoings     map[string]*EdgeInfo // Edges which start at this node
	Incomings     map[string]*EdgeInfo // Edges which end at this node
}

/*
NewNode creates a new entity node.
*/
func NewNode(id string, schemaID string, version int64) *Node {
	return &Node{
		ID:        id,
		SchemaID:  schemaID,
		Kind:      KindNode,
		Version:   version,
		Outgoings: make(map[string]*EdgeInfo),
		Incomings: make(map[string]*EdgeInfo),
	}
}

/*
NewEdgeNode creates a new relationship node.
*/
func NewEdgeNode(id string, schemaID string, startID string, startSchemaID string,
	endID string, endSchemaID string, embedded bool, version int64) *Node {

	node := NewNode(id, schemaID, version)

	node.Kind = KindEdge
	node.StartID = startID
	node.StartSchemaID = startSchemaID
	node.EndID = endID
	node.EndSchemaID = endSchemaID
	node.Embedded = embedded

	return node
}

/*
NewPropertyNode creates a new property node.
*/
func NewPropertyNode(ownerID string, name string, schemaID string,
	value interface{}, version int64) *Node {

	return &Node{
		ID:           ownerID,
		SchemaID:     schemaID,
		Kind:         KindProperty,
		Version:      version,
		PropertyName: name,
		Value:        value,
	}
}

/*
IsEdge returns if this node is a relationship node.
*/
func (n *Node) IsEdge() bool {
	return n.Kind == KindEdge
}

/*
String returns a string representation of this node.
*/
func (n *Node) String() string {
	var buf bytes.Buffer

	switch n.Kind {

	case KindEdge:
		buf.WriteString(fmt.Sprintf("Edge %v (%v) %v -> %v",
			n.ID, n.SchemaID, n.StartID, n.EndID))

	case KindProperty:
		return fmt.Sprintf("Property %v.%v = %v", n.ID, n.PropertyName, n.Value)

	default:
		buf.WriteString(fmt.Sprintf("Node %v (%v)", n.ID, n.SchemaID))
	}

	// List incident edges in a stable order

	appendInfos := func(label string, infos map[string]*EdgeInfo) {
		ids := make([]string, 0, len(infos))
		for id := range infos {
			ids = append(ids, id)
		}

		sort.StringSlice(ids).Sort()

		for _, id := range ids {
			buf.WriteString(fmt.Sprintf("\n    %v %v -> %v", label, id, infos[id].EndID))
		}
	}

	appendInfos("out", n.Outgoings)
	appendInfos("in", n.Incomings)

	return buf.String()
}
