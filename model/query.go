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
	"reflect"
	"regexp"
	"sort"
	"strings"

	"devt.de/krotik/hyperstore/cursor"
	"devt.de/krotik/hyperstore/graph"
	"devt.de/krotik/hyperstore/schema"
)

// Relationship traversal
// ======================

/*
FindRelationships returns a cursor over relationship elements. A given
schema restricts the result to relationships of that schema or a subtype.
A given start or end id restricts the result to the incident edges of that
element - this is a map lookup, not a scan.
*/
func (d *Domain) FindRelationships(schemaName string, startID string,
	endID string) (cursor.Cursor, error) {

	if d.disposed {
		return nil, errDisposed()
	}

	var relSchema *schema.Relationship

	if schemaName != "" {
		var err error

		if relSchema, err = d.store.registry.GetRelationship(schemaName); err != nil {
			return nil, err
		}
	}

	materialize := func(item interface{}) interface{} {
		element, _ := d.Get(item.(string))

		return element
	}

	if startID != "" {
		fullStart := d.fullID(startID)

		node := d.hg.GetNode(fullStart)
		if node == nil {
			return &cursor.EmptyCursor{}, nil
		}

		var fullEnd string
		if endID != "" {
			fullEnd = d.fullID(endID)
		}

		ids := incidentEdgeIDs(d, node.Outgoings, relSchema, fullEnd)

		return &cursor.MapCursor{
			Source: cursor.NewArrayCursor(ids),
			Mapper: materialize,
		}, nil
	}

	if endID != "" {
		node := d.hg.GetNode(d.fullID(endID))
		if node == nil {
			return &cursor.EmptyCursor{}, nil
		}

		ids := incidentEdgeIDs(d, node.Incomings, relSchema, "")

		return &cursor.MapCursor{
			Source: cursor.NewArrayCursor(ids),
			Mapper: materialize,
		}, nil
	}

	// No terminal given - scan all edge nodes, re-resolving the schema of
	// every node so subtypes are preserved

	edges := &nodeElementCursor{d, d.hg.GetNodes(graph.KindEdge, "")}

	if relSchema == nil {
		return edges, nil
	}

	return &cursor.FilterCursor{
		Source: edges,
		Pred: func(item interface{}) bool {
			return d.schemaIsA(item.(*Element).schemaID, relSchema.ID)
		},
	}, nil
}

/*
incidentEdgeIDs returns the matching edge ids of an incident edge map in
stable order.
*/
func incidentEdgeIDs(d *Domain, infos map[string]*graph.EdgeInfo,
	relSchema *schema.Relationship, otherID string) []interface{} {

	ids := make([]string, 0, len(infos))
	for id := range infos {
		ids = append(ids, id)
	}

	sort.StringSlice(ids).Sort()

	ret := make([]interface{}, 0, len(ids))

	for _, id := range ids {
		info := infos[id]

		if otherID != "" && info.EndID != otherID {
			continue
		}

		if relSchema != nil && !d.schemaIsA(info.SchemaID, relSchema.ID) {
			continue
		}

		ret = append(ret, id)
	}

	return ret
}

/*
nodeElementCursor adapts a graph node cursor to a cursor over materialized
model elements.
*/
type nodeElementCursor struct {
	domain *Domain
	nodes  *graph.NodeCursor
}

/*
HasNext returns if there is a next element.
*/
func (nc *nodeElementCursor) HasNext() bool {
	return nc.nodes.HasNext()
}

/*
Next returns the next element.
*/
func (nc *nodeElementCursor) Next() interface{} {
	node := nc.nodes.Next()
	if node == nil {
		return nil
	}

	return nc.domain.materialize(node)
}

/*
Reset rewinds the cursor.
*/
func (nc *nodeElementCursor) Reset() {
	nc.nodes.Reset()
}

// Query engine
// ============

/*
Query pump states.
*/
const (
	queryStateSeekRoot = iota // Looking for the next matching root element
	queryStateIterSubs        // Stepping to the next sub query of the root
	queryStatePumpSub         // Draining the current sub query
	queryStateDone            // Cursor exhausted
)

/*
Query is a lazy cursor over the elements matching a filter configuration.
Configuration keys are property names (matched by equality, regular
expression or an operator object), reference names (introducing a nested
sub query over the reachable elements) or one of the control keys:

  _id      element id match
  $schema  schema id match
  $filter  custom predicate func(*Element) bool
  $or      nested configuration combined by or
  $skip    number of matching roots to skip
  $take    maximum number of matching roots
  $select  force emission of roots even when sub queries exist

For each matching root the query first yields the root - unless sub
queries exist and $select is absent - and then the flattened streams of
all sub queries.
*/
type Query struct {
	domain  *Domain                // Domain the query runs against
	source  cursor.Cursor          // Source of candidate root elements
	cfg     map[string]interface{} // Filter configuration
	skip    int                    // Matching roots to skip
	take    int                    // Maximum matching roots (-1 for no limit)
	state   int                    // Pump state
	skipped int                    // Roots skipped so far
	taken   int                    // Roots accepted so far
	root    *Element               // Current root element
	subKeys []string               // Sub query keys of the current root
	subIdx  int                    // Index of the next sub query
	subCur  cursor.Cursor          // Currently drained sub query
	current interface{}            // Cached item for Next
	hasItem bool                   // Flag if an item is cached
}

/*
Find returns a query cursor over all elements of this domain matching a
filter configuration.
*/
func (d *Domain) Find(cfg map[string]interface{}) cursor.Cursor {
	if d.disposed {
		return &cursor.EmptyCursor{}
	}

	source := &nodeElementCursor{d, d.hg.GetNodes(graph.KindNode|graph.KindEdge, "")}

	return newQuery(d, source, cfg)
}

/*
newQuery creates a query cursor over a given source.
*/
func newQuery(d *Domain, source cursor.Cursor, cfg map[string]interface{}) *Query {
	q := &Query{
		domain: d,
		source: source,
		cfg:    cfg,
		take:   -1,
	}

	if v, ok := cfg["$skip"]; ok {
		if n, ok := toFloat(v); ok {
			q.skip = int(n)
		}
	}

	if v, ok := cfg["$take"]; ok {
		if n, ok := toFloat(v); ok {
			q.take = int(n)
		}
	}

	return q
}

/*
HasNext returns if the query has a next result.
*/
func (q *Query) HasNext() bool {
	if q.hasItem {
		return true
	}

	for {
		switch q.state {

		case queryStateSeekRoot:

			if q.take >= 0 && q.taken >= q.take {
				q.state = queryStateDone
				continue
			}

			root := q.seekRoot()
			if root == nil {
				q.state = queryStateDone
				continue
			}

			q.taken++
			q.root = root
			q.subKeys = q.subQueryKeys(root)
			q.subIdx = 0
			q.state = queryStateIterSubs

			_, hasSelect := q.cfg["$select"]

			if len(q.subKeys) == 0 || hasSelect {
				q.current = root
				q.hasItem = true

				return true
			}

		case queryStateIterSubs:

			if q.subIdx >= len(q.subKeys) {
				q.state = queryStateSeekRoot
				continue
			}

			key := q.subKeys[q.subIdx]
			q.subIdx++

			q.subCur = q.buildSubQuery(q.root, key)
			q.state = queryStatePumpSub

		case queryStatePumpSub:

			if q.subCur != nil && q.subCur.HasNext() {
				q.current = q.subCur.Next()
				q.hasItem = true

				return true
			}

			q.state = queryStateIterSubs

		default:
			return false
		}
	}
}

/*
Next returns the next result element.
*/
func (q *Query) Next() interface{} {
	if !q.HasNext() {
		return nil
	}

	q.hasItem = false

	return q.current
}

/*
Reset rewinds the query.
*/
func (q *Query) Reset() {
	q.source.Reset()
	q.state = queryStateSeekRoot
	q.skipped = 0
	q.taken = 0
	q.root = nil
	q.subKeys = nil
	q.subCur = nil
	q.current = nil
	q.hasItem = false
}

/*
seekRoot pulls the source until the next accepted root element.
*/
func (q *Query) seekRoot() *Element {
	for q.source.HasNext() {
		element, ok := q.source.Next().(*Element)
		if !ok || element == nil {
			continue
		}

		if !q.matchConfig(q.cfg, element, false) {
			continue
		}

		if q.skipped < q.skip {
			q.skipped++
			continue
		}

		return element
	}

	return nil
}

/*
subQueryKeys returns the configuration keys which name references of a
given root element in sorted order.
*/
func (q *Query) subQueryKeys(root *Element) []string {
	if root.Schema() == nil {
		return nil
	}

	var keys []string

	for key, val := range q.cfg {

		if strings.HasPrefix(key, "$") || key == "_id" {
			continue
		}

		if _, ok := val.(map[string]interface{}); !ok {
			continue
		}

		if root.Schema().GetReference(key, true) != nil {
			keys = append(keys, key)
		}
	}

	sort.StringSlice(keys).Sort()

	return keys
}

/*
buildSubQuery creates the sub query cursor for a reference key of the
current root.
*/
func (q *Query) buildSubQuery(root *Element, key string) cursor.Cursor {
	ref := root.Schema().GetReference(key, true)

	targets := root.refTargets(ref)

	items := make([]interface{}, 0, len(targets))
	for _, target := range targets {
		items = append(items, target)
	}

	subCfg, _ := q.cfg[key].(map[string]interface{})

	return newQuery(q.domain, cursor.NewArrayCursor(items), subCfg)
}

/*
matchConfig evaluates a filter configuration against an element. In and
mode every condition must hold, in or mode a single holding condition is
enough.
*/
func (q *Query) matchConfig(cfg map[string]interface{}, element *Element,
	anyOf bool) bool {

	for key, val := range cfg {
		var cond bool

		switch key {

		case "$skip", "$take", "$select":
			continue

		case "$or":
			sub, ok := val.(map[string]interface{})
			cond = ok && q.matchConfig(sub, element, true)

		case "_id":
			cond = element.id == q.domain.fullID(fmt.Sprint(val))

		case "$schema":
			target := fmt.Sprint(val)

			if info, _ := q.domain.store.registry.GetInfo(target, false); info != nil {
				target = info.ID
			}

			cond = strings.EqualFold(element.schemaID, target)

		case "$filter":
			pred, ok := val.(func(*Element) bool)
			cond = ok && pred(element)

		default:

			// Reference keys introduce sub queries and do not filter roots

			if _, isMap := val.(map[string]interface{}); isMap &&
				element.Schema() != nil &&
				element.Schema().GetReference(key, true) != nil {
				continue
			}

			cond = q.matchProperty(element, key, val)
		}

		if anyOf {
			if cond {
				return true
			}
		} else if !cond {
			return false
		}
	}

	return !anyOf
}

/*
matchProperty evaluates a single property condition.
*/
func (q *Query) matchProperty(element *Element, name string, expected interface{}) bool {
	pv, err := q.domain.GetPropertyValue(element.id, name)
	if err != nil {
		return false
	}

	switch e := expected.(type) {

	case *regexp.Regexp:
		return pv.Value != nil && e.MatchString(fmt.Sprint(pv.Value))

	case map[string]interface{}:
		return matchExpression(pv.Value, e)
	}

	return equalValues(pv.Value, expected)
}

/*
matchExpression evaluates an operator object against a property value.
*/
func matchExpression(value interface{}, expr map[string]interface{}) bool {
	for op, operand := range expr {

		switch op {

		case "$eq":
			if !equalValues(value, operand) {
				return false
			}

		case "$ne":
			if equalValues(value, operand) {
				return false
			}

		case "$regex":
			re, err := regexp.Compile(fmt.Sprint(operand))
			if err != nil || value == nil || !re.MatchString(fmt.Sprint(value)) {
				return false
			}

		case "$gt", "$gte", "$lt", "$lte":
			a, oka := toFloat(value)
			b, okb := toFloat(operand)

			if !oka || !okb {
				return false
			}

			switch op {
			case "$gt":
				if !(a > b) {
					return false
				}
			case "$gte":
				if !(a >= b) {
					return false
				}
			case "$lt":
				if !(a < b) {
					return false
				}
			case "$lte":
				if !(a <= b) {
					return false
				}
			}

		default:
			return false
		}
	}

	return true
}

/*
equalValues compares two values with numeric normalization so that values
of different numeric types compare by magnitude.
*/
func equalValues(a interface{}, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	fa, oka := toFloat(a)
	fb, okb := toFloat(b)

	return oka && okb && fa == fb
}

/*
toFloat normalizes a numeric value to a float64.
*/
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {

	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true

	case interface{ Float64() (float64, error) }:

		// json.Number and friends

		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}

	return 0, false
}
