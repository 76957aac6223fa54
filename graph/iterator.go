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

/*
NodeCursor is a lazy cursor over the nodes of a Hypergraph. The cursor
skips removed slots and filters by node kind and optionally by schema.
A cursor does not observe insertions which happen after its creation.
*/
type NodeCursor struct {
	hg       *Hypergraph
	kindMask int
	schemaID string
	limit    int
	pos      int
	current  *Node
	hasItem  bool
}

/*
GetNodes returns a cursor over all live nodes matching a given kind mask.
If schemaID is not empty only nodes with exactly that schema are returned.
*/
func (hg *Hypergraph) GetNodes(kindMask int, schemaID string) *NodeCursor {
	return &NodeCursor{
		hg:       hg,
		kindMask: kindMask,
		schemaID: schemaID,
		limit:    len(hg.nodes),
	}
}

/*
HasNext returns if there is a next node. The call advances the cursor to
the next matching node and caches it for Next.
*/
func (nc *NodeCursor) HasNext() bool {
	if nc.hasItem {
		return true
	}

	for nc.pos < nc.limit && nc.pos < len(nc.hg.nodes) {
		node := nc.hg.nodes[nc.pos]
		nc.pos++

		if node == nil || node.Kind&nc.kindMask == 0 {
			continue
		}

		if nc.schemaID != "" && node.SchemaID != nc.schemaID {
			continue
		}

		nc.current = node
		nc.hasItem = true

		return true
	}

	return false
}

/*
Next returns the next node. Returns nil if the cursor is exhausted. Calling
Next without a prior HasNext advances the cursor.
*/
func (nc *NodeCursor) Next() *Node {
	if !nc.HasNext() {
		return nil
	}

	nc.hasItem = false

	return nc.current
}

/*
Reset rewinds the cursor to the beginning.
*/
func (nc *NodeCursor) Reset() {
	nc.pos = 0
	nc.current = nil
	nc.hasItem = false
}
