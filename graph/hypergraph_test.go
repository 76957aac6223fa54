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
	"fmt"
	"testing"

	"devt.de/krotik/hyperstore/events"
	"devt.de/krotik/hyperstore/graph/util"
)

func TestNodeInsertAndLookup(t *testing.T) {
	hg := NewHypergraph()

	if _, err := hg.AddNode("", "main:book", 0); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidArgument {
		t.Error("Unexpected result:", err)
		return
	}

	node, err := hg.AddNode("main:1", "main:book", 0)
	if err != nil {
		t.Error(err)
		return
	}

	if node.Version == 0 {
		t.Error("Node should have been stamped with a version")
		return
	}

	if _, err := hg.AddNode("main:1", "main:book", 0); err == nil ||
		err.(*util.StoreError).Type != util.ErrDuplicateElement {
		t.Error("Unexpected result:", err)
		return
	}

	if res := hg.GetNode("main:1"); res != node {
		t.Error("Unexpected result:", res)
		return
	}

	if !hg.HasNode("main:1") || hg.HasNode("main:2") {
		t.Error("Unexpected lookup result")
		return
	}

	if res := hg.NodeCount(KindNode | KindEdge); res != 1 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestRelationshipInsert(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:1", "main:library", 0)
	hg.AddNode("main:2", "main:book", 0)

	if _, err := hg.AddRelationship("main:3", "main:rel", "main:99", "main:library",
		"main:2", "main:book", false, 0); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidElement {
		t.Error("Unexpected result:", err)
		return
	}

	edge, err := hg.AddRelationship("main:3", "main:rel", "main:1", "main:library",
		"main:2", "main:book", false, 0)
	if err != nil {
		t.Error(err)
		return
	}

	if !edge.IsEdge() {
		t.Error("Unexpected node kind")
		return
	}

	start := hg.GetNode("main:1")
	end := hg.GetNode("main:2")

	if info := start.Outgoings["main:3"]; info == nil || info.EndID != "main:2" ||
		info.Direction != DirectionOutgoing {
		t.Error("Unexpected result:", info)
		return
	}

	if info := end.Incomings["main:3"]; info == nil || info.EndID != "main:1" ||
		info.Direction != DirectionIncoming {
		t.Error("Unexpected result:", info)
		return
	}

	// An end in another domain is allowed and records no incoming entry

	if _, err := hg.AddRelationship("main:4", "main:rel", "main:1", "main:library",
		"other:1", "other:thing", false, 0); err != nil {
		t.Error(err)
		return
	}

	// A self referencing edge records a single entry with direction both

	if _, err := hg.AddRelationship("main:5", "main:rel", "main:2", "main:book",
		"main:2", "main:book", false, 0); err != nil {
		t.Error(err)
		return
	}

	if info := end.Outgoings["main:5"]; info == nil || info.Direction != DirectionBoth {
		t.Error("Unexpected result:", info)
		return
	}

	if info := end.Incomings["main:5"]; info != nil {
		t.Error("Unexpected result:", info)
		return
	}
}

func TestPropertyNodes(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:1", "main:book", 0)

	if _, _, err := hg.SetProperty("main:99", "title", "string", "test", 0); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidElement {
		t.Error("Unexpected result:", err)
		return
	}

	if _, _, err := hg.SetProperty("main:1", "", "string", "test", 0); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidArgument {
		t.Error("Unexpected result:", err)
		return
	}

	old, v1, err := hg.SetProperty("main:1", "title", "string", "test", 0)
	if err != nil || old != nil || v1 == 0 {
		t.Error("Unexpected result:", old, v1, err)
		return
	}

	old, v2, err := hg.SetProperty("main:1", "title", "string", "test2", 0)
	if err != nil || old != "test" {
		t.Error("Unexpected result:", old, err)
		return
	}

	if v2 <= v1 {
		t.Error("Version should have increased:", v1, v2)
		return
	}

	// A write with an outdated version keeps the newer stamp

	if _, v3, _ := hg.SetProperty("main:1", "title", "string", "test3", 1); v3 < v2 {
		t.Error("Version should never decrease:", v2, v3)
		return
	}

	hg.SetProperty("main:1", "author", "string", "someone", 0)

	if res := fmt.Sprint(hg.PropertyNames("main:1")); res != "[author title]" {
		t.Error("Unexpected result:", res)
		return
	}

	if prop := hg.RemoveProperty("main:1", "title"); prop == nil || prop.Value != "test3" {
		t.Error("Unexpected result:", prop)
		return
	}

	if prop := hg.RemoveProperty("main:1", "title"); prop != nil {
		t.Error("Unexpected result:", prop)
		return
	}

	if prop := hg.GetProperty("main:1", "title"); prop != nil {
		t.Error("Unexpected result:", prop)
		return
	}
}

func TestRemoveCascade(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:1", "main:library", 0)
	hg.AddNode("main:2", "main:book", 0)
	hg.AddRelationship("main:3", "main:rel", "main:1", "main:library",
		"main:2", "main:book", true, 0)
	hg.SetProperty("main:2", "title", "string", "test", 0)

	evs, err := hg.RemoveNode("main:1", 0, false)
	if err != nil {
		t.Error(err)
		return
	}

	// Removing the library takes the embedded relationship and its end with
	// it - property removals come first, then the relationship, then the
	// entities leaves first

	if len(evs) != 4 {
		t.Error("Unexpected result:", evs)
		return
	}

	if evs[0].Kind != events.EventRemoveProperty || evs[0].ID != "main:2" ||
		evs[0].PropertyName != "title" {
		t.Error("Unexpected result:", evs[0])
		return
	}

	if evs[1].Kind != events.EventRemoveRelationship || evs[1].ID != "main:3" {
		t.Error("Unexpected result:", evs[1])
		return
	}

	if evs[2].Kind != events.EventRemoveEntity || evs[2].ID != "main:2" ||
		evs[2].TopLevel {
		t.Error("Unexpected result:", evs[2])
		return
	}

	if evs[3].Kind != events.EventRemoveEntity || evs[3].ID != "main:1" ||
		!evs[3].TopLevel {
		t.Error("Unexpected result:", evs[3])
		return
	}

	if hg.NodeCount(KindNode|KindEdge) != 0 {
		t.Error("Graph should be empty")
		return
	}

	if _, err := hg.RemoveNode("main:1", 0, false); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidElement {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestRemoveNonEmbedded(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:a", "main:thing", 0)
	hg.AddNode("main:b", "main:thing", 0)
	hg.AddRelationship("main:r", "main:rel", "main:a", "main:thing",
		"main:b", "main:thing", false, 0)

	evs, err := hg.RemoveNode("main:a", 0, false)
	if err != nil {
		t.Error(err)
		return
	}

	// The relationship goes with its start but the end survives

	if len(evs) != 2 {
		t.Error("Unexpected result:", evs)
		return
	}

	if !hg.HasNode("main:b") || hg.HasNode("main:r") || hg.HasNode("main:a") {
		t.Error("Unexpected graph state")
		return
	}

	if info := hg.GetNode("main:b").Incomings["main:r"]; info != nil {
		t.Error("Unexpected result:", info)
		return
	}
}

func TestRemoveSuppressedCascade(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:a", "main:thing", 0)
	hg.AddNode("main:b", "main:thing", 0)
	hg.AddRelationship("main:r", "main:rel", "main:a", "main:thing",
		"main:b", "main:thing", true, 0)

	evs, err := hg.RemoveNode("main:r", 0, true)
	if err != nil {
		t.Error(err)
		return
	}

	// With the cascade suppressed only the given node goes

	if len(evs) != 1 || evs[0].Kind != events.EventRemoveRelationship {
		t.Error("Unexpected result:", evs)
		return
	}

	if !hg.HasNode("main:a") || !hg.HasNode("main:b") {
		t.Error("Unexpected graph state")
		return
	}
}

func TestCompaction(t *testing.T) {
	hg := NewHypergraph()
	hg.threshold = 2

	for i := 1; i <= 5; i++ {
		hg.AddNode(fmt.Sprintf("main:%v", i), "main:thing", 0)
	}

	hg.RemoveNode("main:2", 0, false)
	hg.RemoveNode("main:4", 0, false)

	if hg.tombstones != 2 {
		t.Error("Unexpected result:", hg.tombstones)
		return
	}

	hg.RemoveNode("main:1", 0, false)

	// The third removal crosses the threshold and rebuilds the sequence

	if hg.tombstones != 0 || len(hg.nodes) != 2 {
		t.Error("Unexpected result:", hg.tombstones, len(hg.nodes))
		return
	}

	// Insertion order survives the compaction

	cur := hg.GetNodes(KindNode, "")

	var ids []string
	for cur.HasNext() {
		ids = append(ids, cur.Next().ID)
	}

	if res := fmt.Sprint(ids); res != "[main:3 main:5]" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestNodeCursor(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:1", "main:book", 0)
	hg.AddNode("main:2", "main:library", 0)
	hg.AddRelationship("main:3", "main:rel", "main:2", "main:library",
		"main:1", "main:book", false, 0)

	cur := hg.GetNodes(KindNode, "main:book")

	if !cur.HasNext() || !cur.HasNext() {
		t.Error("HasNext should be idempotent")
		return
	}

	if res := cur.Next(); res.ID != "main:1" {
		t.Error("Unexpected result:", res)
		return
	}

	if cur.HasNext() {
		t.Error("Cursor should be exhausted")
		return
	}

	if res := cur.Next(); res != nil {
		t.Error("Unexpected result:", res)
		return
	}

	cur.Reset()

	if !cur.HasNext() {
		t.Error("Cursor should have been rewound")
		return
	}

	// A cursor does not observe later insertions

	all := hg.GetNodes(KindNode|KindEdge, "")
	hg.AddNode("main:4", "main:book", 0)

	var count int
	for all.HasNext() {
		all.Next()
		count++
	}

	if count != 3 {
		t.Error("Unexpected result:", count)
		return
	}

	if res := NewVersion(); res <= 0 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestGraphString(t *testing.T) {
	hg := NewHypergraph()

	hg.AddNode("main:1", "main:book", 1)
	hg.SetProperty("main:1", "title", "string", "test", 2)

	if res := hg.String(); res != "Hypergraph: 1 node, 0 edges\n"+
		"Node main:1 (main:book)\n"+
		"    Property main:1.title = test\n" {
		t.Error("Unexpected result:", res)
		return
	}
}
