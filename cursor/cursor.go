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
Package cursor contains the lazy iteration model of the store.

A Cursor produces its items one at a time and only when asked. Query
results are exposed as cursors so that a result which is never consumed
costs nothing. Cursors compose - filters, projections and concatenations
wrap an underlying cursor without materializing it.

The protocol is HasNext / Next / Reset. HasNext advances the cursor to the
next item and caches it, repeated HasNext calls without Next are idempotent.
Next returns the cached item. Reset rewinds the cursor to the beginning.
*/
package cursor

/*
Cursor is a lazy producer of items.
*/
type Cursor interface {

	/*
	   HasNext returns if there is a next item. The call advances the cursor
	   and caches the item for Next.
	*/
	HasNext() bool

	/*
	   Next returns the next item. Returns nil if the cursor is exhausted.
	*/
	Next() interface{}

	/*
	   Reset rewinds the cursor to the beginning.
	*/
	Reset()
}

// Source cursors
// ==============

/*
ArrayCursor is a cursor over a slice of items.
*/
type ArrayCursor struct {
	items []interface{}
	pos   int
}

/*
NewArrayCursor creates a cursor over a given slice.
*/
func NewArrayCursor(items []interface{}) *ArrayCursor {
	return &ArrayCursor{items, 0}
}

/*
HasNext returns if there is a next item.
*/
func (ac *ArrayCursor) HasNext() bool {
	return ac.pos < len(ac.items)
}

/*
Next returns the next item.
*/
func (ac *ArrayCursor) Next() interface{} {
	if ac.pos >= len(ac.items) {
		return nil
	}

	item := ac.items[ac.pos]
	ac.pos++

	return item
}

/*
Reset rewinds the cursor.
*/
func (ac *ArrayCursor) Reset() {
	ac.pos = 0
}

/*
EmptyCursor is a cursor which never produces an item.
*/
type EmptyCursor struct {
}

/*
HasNext always returns false.
*/
func (ec *EmptyCursor) HasNext() bool { return false }

/*
Next always returns nil.
*/
func (ec *EmptyCursor) Next() interface{} { return nil }

/*
Reset does nothing.
*/
func (ec *EmptyCursor) Reset() {}

/*
FuncCursor is a cursor which pulls its items from a producer function. The
producer is called with the zero based position of the requested item and
returns the item and if the item exists.
*/
type FuncCursor struct {
	Producer func(pos int) (interface{}, bool)
	pos      int
	current  interface{}
	hasItem  bool
}

/*
HasNext returns if the producer has a next item.
*/
func (fc *FuncCursor) HasNext() bool {
	if fc.hasItem {
		return true
	}

	item, ok := fc.Producer(fc.pos)
	if !ok {
		return false
	}

	fc.pos++
	fc.current = item
	fc.hasItem = true

	return true
}

/*
Next returns the next item.
*/
func (fc *FuncCursor) Next() interface{} {
	if !fc.HasNext() {
		return nil
	}

	fc.hasItem = false

	return fc.current
}

/*
Reset rewinds the cursor.
*/
func (fc *FuncCursor) Reset() {
	fc.pos = 0
	fc.current = nil
	fc.hasItem = false
}

// Composing cursors
// =================

/*
FilterCursor is a cursor which only produces the items of an underlying
cursor which pass a predicate.
*/
type FilterCursor struct {
	Source  Cursor
	Pred    func(item interface{}) bool
	current interface{}
	hasItem bool
}

/*
HasNext returns if there is a next matching item.
*/
func (fc *FilterCursor) HasNext() bool {
	if fc.hasItem {
		return true
	}

	for fc.Source.HasNext() {
		item := fc.Source.Next()

		if fc.Pred(item) {
			fc.current = item
			fc.hasItem = true

			return true
		}
	}

	return false
}

/*
Next returns the next matching item.
*/
func (fc *FilterCursor) Next() interface{} {
	if !fc.HasNext() {
		return nil
	}

	fc.hasItem = false

	return fc.current
}

/*
Reset rewinds the cursor.
*/
func (fc *FilterCursor) Reset() {
	fc.Source.Reset()
	fc.current = nil
	fc.hasItem = false
}

/*
MapCursor is a cursor which applies a projection to the items of an
underlying cursor.
*/
type MapCursor struct {
	Source Cursor
	Mapper func(item interface{}) interface{}
}

/*
HasNext returns if there is a next item.
*/
func (mc *MapCursor) HasNext() bool {
	return mc.Source.HasNext()
}

/*
Next returns the next projected item.
*/
func (mc *MapCursor) Next() interface{} {
	if !mc.Source.HasNext() {
		return nil
	}

	return mc.Mapper(mc.Source.Next())
}

/*
Reset rewinds the cursor.
*/
func (mc *MapCursor) Reset() {
	mc.Source.Reset()
}

/*
ConcatCursor is a cursor which produces the items of several underlying
cursors in sequence.
*/
type ConcatCursor struct {
	Sources []Cursor
	pos     int
}

/*
HasNext returns if any remaining source has a next item.
*/
func (cc *ConcatCursor) HasNext() bool {
	for cc.pos < len(cc.Sources) {

		if cc.Sources[cc.pos].HasNext() {
			return true
		}

		cc.pos++
	}

	return false
}

/*
Next returns the next item.
*/
func (cc *ConcatCursor) Next() interface{} {
	if !cc.HasNext() {
		return nil
	}

	return cc.Sources[cc.pos].Next()
}

/*
Reset rewinds all sources.
*/
func (cc *ConcatCursor) Reset() {
	for _, s := range cc.Sources {
		s.Reset()
	}

	cc.pos = 0
}

/*
SkipTakeCursor is a cursor which skips a number of leading items and then
produces at most a maximum number of items. A negative take means no limit.
*/
type SkipTakeCursor struct {
	Source  Cursor
	Skip    int
	Take    int
	skipped bool
	taken   int
}

/*
HasNext returns if there is a next item within the window.
*/
func (sc *SkipTakeCursor) HasNext() bool {
	if !sc.skipped {
		for i := 0; i < sc.Skip && sc.Source.HasNext(); i++ {
			sc.Source.Next()
		}

		sc.skipped = true
	}

	if sc.Take >= 0 && sc.taken >= sc.Take {
		return false
	}

	return sc.Source.HasNext()
}

/*
Next returns the next item within the window.
*/
func (sc *SkipTakeCursor) Next() interface{} {
	if !sc.HasNext() {
		return nil
	}

	sc.taken++

	return sc.Source.Next()
}

/*
Reset rewinds the cursor.
*/
func (sc *SkipTakeCursor) Reset() {
	sc.Source.Reset()
	sc.skipped = false
	sc.taken = 0
}

// Derived operations
// ==================

/*
ToArray drains a cursor into a slice.
*/
func ToArray(c Cursor) []interface{} {
	ret := []interface{}{}

	for c.HasNext() {
		ret = append(ret, c.Next())
	}

	return ret
}

/*
ForEach applies a function to every remaining item of a cursor.
*/
func ForEach(c Cursor, f func(item interface{})) {
	for c.HasNext() {
		f(c.Next())
	}
}

/*
Count returns the number of remaining items of a cursor. The cursor is
drained by this call.
*/
func Count(c Cursor) int {
	var count int

	for c.HasNext() {
		c.Next()
		count++
	}

	return count
}

/*
Any returns if a cursor has at least one remaining item which passes an
optional predicate.
*/
func Any(c Cursor, pred func(item interface{}) bool) bool {
	if pred == nil {
		return c.HasNext()
	}

	for c.HasNext() {
		if pred(c.Next()) {
			return true
		}
	}

	return false
}

/*
FirstOrDefault returns the first remaining item of a cursor or a given
default value if the cursor is exhausted.
*/
func FirstOrDefault(c Cursor, def interface{}) interface{} {
	if c.HasNext() {
		return c.Next()
	}

	return def
}
