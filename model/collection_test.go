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
	"testing"

	"devt.de/krotik/hyperstore/cursor"
	"devt.de/krotik/hyperstore/graph/util"
)

func TestCollectionLiveUpdates(t *testing.T) {
	_, domain := testSetup(t)

	author, _ := domain.CreateEntity("Author", "", 0)
	books := addBooks(t, domain, "tea", "ten")

	if _, err := domain.CreateRelationship("Author_books", author.ID(),
		books[0].ID(), "", 0); err != nil {
		t.Fatal(err)
	}

	// The collection populates itself from the existing relationships

	col, err := NewElementCollection(author, "Author_books", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer col.Dispose()

	if col.Count() != 1 || col.Elements()[0] != books[0] {
		t.Error("Unexpected collection state:", col.Items())
		return
	}

	// Adding through the collection creates a relationship and the session
	// events update the collection

	if err := col.Add(books[1]); err != nil {
		t.Error(err)
		return
	}

	if col.Count() != 2 || col.Elements()[1] != books[1] {
		t.Error("Unexpected collection state:", col.Items())
		return
	}

	// Relationships created directly are picked up as well

	book3, _ := domain.CreateEntity("Book", "", 0)

	if _, err := domain.CreateRelationship("Author_books", author.ID(),
		book3.ID(), "", 0); err != nil {
		t.Error(err)
		return
	}

	if col.Count() != 3 {
		t.Error("Unexpected result:", col.Count())
		return
	}

	if err := col.Remove(books[0]); err != nil {
		t.Error(err)
		return
	}

	if col.Count() != 2 || col.Elements()[0] != books[1] {
		t.Error("Unexpected collection state:", col.Items())
		return
	}

	// The removed relationship was not embedded so the book survives

	if books[0].IsDisposed() {
		t.Error("Book should have survived")
		return
	}

	if err := col.Remove(books[0]); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidElement {
		t.Error("Unexpected result:", err)
		return
	}

	if res := cursor.Count(col.Cursor()); res != 2 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestCollectionOpposite(t *testing.T) {
	_, domain := testSetup(t)

	book, _ := domain.CreateEntity("Book", "", 0)
	author1, _ := domain.CreateEntity("Author", "", 0)
	author2, _ := domain.CreateEntity("Author", "", 0)

	domain.CreateRelationship("Author_books", author1.ID(), book.ID(), "", 0)

	// With the opposite flag the collection follows incoming relationships
	// and contains their start elements

	col, err := NewElementCollection(book, "Author_books", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer col.Dispose()

	if col.Count() != 1 || col.Elements()[0] != author1 {
		t.Error("Unexpected collection state:", col.Items())
		return
	}

	if err := col.Add(author2); err != nil {
		t.Error(err)
		return
	}

	if col.Count() != 2 || col.Elements()[1] != author2 {
		t.Error("Unexpected collection state:", col.Items())
		return
	}

	rel, _ := domain.FindRelationships("Author_books", author2.ID(), book.ID())

	if el := rel.Next().(*Element); el.startID != author2.ID() ||
		el.endID != book.ID() {
		t.Error("Unexpected result:", el)
		return
	}

	if err := col.Remove(author1); err != nil {
		t.Error(err)
		return
	}

	if col.Count() != 1 || col.Elements()[0] != author2 {
		t.Error("Unexpected collection state:", col.Items())
		return
	}
}

func TestCollectionFilter(t *testing.T) {
	_, domain := testSetup(t)

	author, _ := domain.CreateEntity("Author", "", 0)
	books := addBooks(t, domain, "tea", "toy")

	for _, book := range books {
		domain.CreateRelationship("Author_books", author.ID(), book.ID(), "", 0)
	}

	col, err := NewElementCollection(author, "Author_books", false,
		func(el *Element) bool {
			pv, _ := el.GetPropertyValue("title")
			return fmt.Sprint(pv.Value) == "toy"
		})
	if err != nil {
		t.Fatal(err)
	}
	defer col.Dispose()

	if col.Count() != 1 || col.Elements()[0] != books[1] {
		t.Error("Unexpected collection state:", col.Items())
		return
	}

	// Filtered out additions are ignored

	book3 := addBooks(t, domain, "tea2")[0]

	domain.CreateRelationship("Author_books", author.ID(), book3.ID(), "", 0)

	if col.Count() != 1 {
		t.Error("Unexpected result:", col.Count())
		return
	}
}

func TestCollectionAbortedSession(t *testing.T) {
	st, domain := testSetup(t)

	author, _ := domain.CreateEntity("Author", "", 0)
	book, _ := domain.CreateEntity("Book", "", 0)

	col, err := NewElementCollection(author, "Author_books", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer col.Dispose()

	// Events of an aborted session never reach the collection

	session := st.BeginSession(ModeNormal)

	if _, err := domain.CreateRelationship("Author_books", author.ID(),
		book.ID(), "", 0); err != nil {
		t.Error(err)
		return
	}

	session.Close()

	if col.Count() != 0 {
		t.Error("Unexpected result:", col.Count())
		return
	}
}

func TestCollectionErrors(t *testing.T) {
	_, domain := testSetup(t)

	author, _ := domain.CreateEntity("Author", "", 0)

	if _, err := NewElementCollection(author, "Unknown", false, nil); err == nil ||
		err.(*util.StoreError).Type != util.ErrUnknownSchema {
		t.Error("Unexpected result:", err)
		return
	}

	col, err := NewElementCollection(author, "Author_books", false, nil)
	if err != nil {
		t.Fatal(err)
	}

	col.Dispose()
	col.Dispose()

	if err := col.Add(author); err == nil ||
		err.(*util.StoreError).Type != util.ErrDisposedElement {
		t.Error("Unexpected result:", err)
		return
	}

	if err := col.Remove(author); err == nil ||
		err.(*util.StoreError).Type != util.ErrDisposedElement {
		t.Error("Unexpected result:", err)
		return
	}

	author.Remove()

	if _, err := NewElementCollection(author, "Author_books", false, nil); err == nil ||
		err.(*util.StoreError).Type != util.ErrDisposedElement {
		t.Error("Unexpected result:", err)
		return
	}
}
