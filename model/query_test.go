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
	"regexp"
	"testing"

	"devt.de/krotik/hyperstore/cursor"
)

func addBooks(t *testing.T, domain *Domain, titles ...string) []*Element {
	var books []*Element

	for _, title := range titles {
		book, err := domain.CreateEntity("Book", "", 0)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := book.SetPropertyValue("title", title); err != nil {
			t.Fatal(err)
		}

		books = append(books, book)
	}

	return books
}

func resultTitles(t *testing.T, c cursor.Cursor) []string {
	var titles []string

	for c.HasNext() {
		element := c.Next().(*Element)

		pv, err := element.GetPropertyValue("title")
		if err != nil {
			t.Fatal(err)
		}

		titles = append(titles, fmt.Sprint(pv.Value))
	}

	return titles
}

func TestFindWindow(t *testing.T) {
	_, domain := testSetup(t)

	addBooks(t, domain, "tea", "ten", "toy", "test", "term")

	res := domain.Find(map[string]interface{}{
		"$schema": "Book",
		"title":   regexp.MustCompile("^te"),
		"$skip":   1,
		"$take":   2,
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[ten test]" {
		t.Error("Unexpected result:", titles)
		return
	}

	res.Reset()

	// A reset rewinds the window as well

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[ten test]" {
		t.Error("Unexpected result:", titles)
		return
	}
}

func TestFindBySchemaAndID(t *testing.T) {
	_, domain := testSetup(t)

	books := addBooks(t, domain, "tea", "ten")
	domain.CreateEntity("Author", "", 0)

	// The schema filter accepts simple names

	res := domain.Find(map[string]interface{}{"$schema": "Book"})

	if count := cursor.Count(res); count != 2 {
		t.Error("Unexpected result:", count)
		return
	}

	res = domain.Find(map[string]interface{}{"_id": books[0].ID()})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[tea]" {
		t.Error("Unexpected result:", titles)
		return
	}

	// A local id is qualified with the domain name

	res = domain.Find(map[string]interface{}{"_id": domain.localPart(books[1].ID())})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[ten]" {
		t.Error("Unexpected result:", titles)
		return
	}
}

func TestFindOperators(t *testing.T) {
	_, domain := testSetup(t)

	books := addBooks(t, domain, "tea", "ten", "toy")

	books[0].SetPropertyValue("pages", 100)
	books[1].SetPropertyValue("pages", 200)
	books[2].SetPropertyValue("pages", 300)

	res := domain.Find(map[string]interface{}{
		"$schema": "Book",
		"pages":   map[string]interface{}{"$gt": 100, "$lte": 300},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[ten toy]" {
		t.Error("Unexpected result:", titles)
		return
	}

	res = domain.Find(map[string]interface{}{
		"$schema": "Book",
		"title":   map[string]interface{}{"$ne": "toy"},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[tea ten]" {
		t.Error("Unexpected result:", titles)
		return
	}

	res = domain.Find(map[string]interface{}{
		"$schema": "Book",
		"title":   map[string]interface{}{"$regex": "y$"},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[toy]" {
		t.Error("Unexpected result:", titles)
		return
	}

	// Unknown operators never match

	res = domain.Find(map[string]interface{}{
		"title": map[string]interface{}{"$unknown": 1},
	})

	if res.HasNext() {
		t.Error("Unexpected result")
		return
	}
}

func TestFindOrAndFilter(t *testing.T) {
	_, domain := testSetup(t)

	addBooks(t, domain, "tea", "ten", "toy")

	res := domain.Find(map[string]interface{}{
		"$schema": "Book",
		"$or": map[string]interface{}{
			"title": "tea",
			"pages": map[string]interface{}{"$gt": 1000},
		},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[tea]" {
		t.Error("Unexpected result:", titles)
		return
	}

	res = domain.Find(map[string]interface{}{
		"$filter": func(el *Element) bool {
			pv, _ := el.GetPropertyValue("title")
			return pv.Value == "toy"
		},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[toy]" {
		t.Error("Unexpected result:", titles)
		return
	}
}

func TestFindSubQueries(t *testing.T) {
	_, domain := testSetup(t)

	library, _ := domain.CreateEntity("Library", "", 0)
	library.SetPropertyValue("name", "city")

	books := addBooks(t, domain, "tea", "test")

	for _, book := range books {
		if _, err := domain.CreateRelationship("Library_books", library.ID(),
			book.ID(), "", 0); err != nil {
			t.Fatal(err)
		}
	}

	// Without $select only the sub query results are emitted

	res := domain.Find(map[string]interface{}{
		"$schema": "Library",
		"books": map[string]interface{}{
			"title": "test",
		},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[test]" {
		t.Error("Unexpected result:", titles)
		return
	}

	// With $select the matching root is emitted before its sub query results

	res = domain.Find(map[string]interface{}{
		"$schema": "Library",
		"$select": true,
		"books": map[string]interface{}{
			"title": "test",
		},
	})

	var ids []string
	for res.HasNext() {
		ids = append(ids, res.Next().(*Element).ID())
	}

	if len(ids) != 2 || ids[0] != library.ID() || ids[1] != books[1].ID() {
		t.Error("Unexpected result:", ids)
		return
	}

	// An empty sub query yields all reachable elements

	res = domain.Find(map[string]interface{}{
		"$schema": "Library",
		"books":   map[string]interface{}{},
	})

	if titles := resultTitles(t, res); fmt.Sprint(titles) != "[tea test]" {
		t.Error("Unexpected result:", titles)
		return
	}
}

func TestFindRelationships(t *testing.T) {
	_, domain := testSetup(t)

	library, _ := domain.CreateEntity("Library", "", 0)
	author, _ := domain.CreateEntity("Author", "", 0)
	book, _ := domain.CreateEntity("Book", "", 0)

	rel1, _ := domain.CreateRelationship("Library_books", library.ID(), book.ID(), "", 0)
	rel2, _ := domain.CreateRelationship("Author_books", author.ID(), book.ID(), "", 0)

	if _, err := domain.FindRelationships("Unknown", "", ""); err == nil {
		t.Error("Unexpected result:", err)
		return
	}

	// Without terminals all edges are returned

	res, err := domain.FindRelationships("", "", "")
	if err != nil {
		t.Error(err)
		return
	}

	if count := cursor.Count(res); count != 2 {
		t.Error("Unexpected result:", count)
		return
	}

	// A schema restricts the scan

	res, _ = domain.FindRelationships("Library_books", "", "")

	if el := res.Next().(*Element); el.ID() != rel1.ID() || res.HasNext() {
		t.Error("Unexpected result:", el)
		return
	}

	// A start terminal uses the incident edge map of the element

	res, _ = domain.FindRelationships("", author.ID(), "")

	if el := res.Next().(*Element); el.ID() != rel2.ID() || res.HasNext() {
		t.Error("Unexpected result:", el)
		return
	}

	// An end terminal scans the incoming side

	res, _ = domain.FindRelationships("", "", book.ID())

	if count := cursor.Count(res); count != 2 {
		t.Error("Unexpected result:", count)
		return
	}

	res, _ = domain.FindRelationships("Author_books", "", book.ID())

	if el := res.Next().(*Element); el.ID() != rel2.ID() || res.HasNext() {
		t.Error("Unexpected result:", el)
		return
	}

	// Both terminals restrict to the edges between the two elements

	res, _ = domain.FindRelationships("", library.ID(), book.ID())

	if el := res.Next().(*Element); el.ID() != rel1.ID() || res.HasNext() {
		t.Error("Unexpected result:", el)
		return
	}

	// Unknown terminals produce an empty cursor

	res, _ = domain.FindRelationships("", "main:99", "")

	if res.HasNext() {
		t.Error("Unexpected result")
		return
	}
}
