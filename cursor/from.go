/*
 * Hyperstore
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cursor

/*
ItemsProvider is anything which exposes a snapshot of its items. Live
collections implement this interface.
*/
type ItemsProvider interface {

	/*
	   Items returns a snapshot of all items.
	*/
	Items() []interface{}
}

/*
From builds a cursor from a value. Cursors are passed through, slices and
item providers are wrapped, nil becomes an empty cursor and any other
value becomes a single item cursor.
*/
func From(x interface{}) Cursor {
	switch v := x.(type) {

	case nil:
		return &EmptyCursor{}

	case Cursor:
		return v

	case []interface{}:
		return NewArrayCursor(v)

	case ItemsProvider:
		return NewArrayCursor(v.Items())
	}

	return NewArrayCursor([]interface{}{x})
}
