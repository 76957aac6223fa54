/*
 * Hyperstore
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package schema

import (
	"testing"

	"devt.de/krotik/hyperstore/graph/util"
)

func TestDefine(t *testing.T) {
	reg := NewRegistry()

	err := Define(reg, "lib", map[string]interface{}{
		"Media": map[string]interface{}{
			"title": "string",
		},
		"Book": map[string]interface{}{
			"$base": "Media",
			"pages": map[string]interface{}{
				"$type":    "number",
				"$default": 0,
			},
			"summary": func(owner interface{}) interface{} {
				return "a book"
			},
		},
		"Library": map[string]interface{}{
			"name":  "string",
			"books": map[string]interface{}{
				"$end":  "Book",
				"$kind": "1-=*",
			},
		},
	})

	if err != nil {
		t.Error(err)
		return
	}

	book, err := reg.GetEntity("lib:Book")
	if err != nil {
		t.Error(err)
		return
	}

	if book.Base == nil || book.Base.Name != "Media" {
		t.Error("Unexpected result:", book.Base)
		return
	}

	if prop := book.GetProperty("title", true); prop == nil || prop.TypeID != "string" {
		t.Error("Unexpected result:", prop)
		return
	}

	if prop := book.GetProperty("pages", false); prop == nil ||
		prop.TypeID != "number" || prop.Default() != 0 {
		t.Error("Unexpected result:", prop)
		return
	}

	if prop := book.GetProperty("summary", false); prop == nil ||
		prop.Kind != PropertyCalculated || prop.Calculate(nil) != "a book" {
		t.Error("Unexpected result:", prop)
		return
	}

	// The books reference produces an embedded one to many relationship

	rel, err := reg.GetRelationship("lib:Library_books")
	if err != nil {
		t.Error(err)
		return
	}

	if rel.StartSchemaID != "lib:Library" || rel.EndSchemaID != "lib:Book" ||
		rel.Cardinality != OneToMany || !rel.Embedded {
		t.Error("Unexpected result:", rel)
		return
	}

	library, _ := reg.GetEntity("Library")

	if ref := library.GetReference("books", false); ref == nil || !ref.IsCollection ||
		ref.Opposite {
		t.Error("Unexpected result:", ref)
		return
	}
}

func TestDefineShorthandAndReversed(t *testing.T) {
	reg := NewRegistry()

	err := Define(reg, "lib", map[string]interface{}{
		"Author": map[string]interface{}{
			"books": []interface{}{"Book"},
		},
		"Book": map[string]interface{}{
			"publisher": map[string]interface{}{
				"$end":  "Publisher",
				"$kind": "1-<*",
				"$name": "published",
			},
		},
		"Publisher": map[string]interface{}{},
	})

	if err != nil {
		t.Error(err)
		return
	}

	// The single element list is a plain one to many reference

	shorthand, err := reg.GetRelationship("lib:Author_books")
	if err != nil {
		t.Error(err)
		return
	}

	if shorthand.Cardinality != OneToMany || shorthand.Embedded ||
		shorthand.StartSchemaID != "lib:Author" || shorthand.EndSchemaID != "lib:Book" {
		t.Error("Unexpected result:", shorthand)
		return
	}

	// The reversed kind makes the declaring entity the end of the
	// relationship and attaches the reference to the end side

	reversed, err := reg.GetRelationship("lib:published")
	if err != nil {
		t.Error(err)
		return
	}

	if reversed.StartSchemaID != "lib:Publisher" || reversed.EndSchemaID != "lib:Book" ||
		reversed.EndPropertyName != "publisher" || reversed.StartPropertyName != "" {
		t.Error("Unexpected result:", reversed)
		return
	}

	book, _ := reg.GetEntity("lib:Book")

	if ref := book.GetReference("publisher", false); ref == nil || !ref.Opposite {
		t.Error("Unexpected result:", ref)
		return
	}
}

func TestDefineErrors(t *testing.T) {
	reg := NewRegistry()

	if err := Define(reg, "not a name!", nil); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidArgument {
		t.Error("Unexpected result:", err)
		return
	}

	err := Define(reg, "lib", map[string]interface{}{
		"Thing": map[string]interface{}{
			"other": map[string]interface{}{
				"$end":  "Unknown",
				"$kind": "1--*",
			},
		},
	})

	if err == nil || err.(*util.StoreError).Type != util.ErrUnknownSchema {
		t.Error("Unexpected result:", err)
		return
	}

	err = Define(reg, "lib2", map[string]interface{}{
		"Thing": map[string]interface{}{
			"bad": 42,
		},
	})

	if err == nil || err.(*util.StoreError).Type != util.ErrInvalidData {
		t.Error("Unexpected result:", err)
		return
	}

	err = Define(reg, "lib3", map[string]interface{}{
		"Thing": map[string]interface{}{
			"others": []interface{}{"A", "B"},
		},
	})

	if err == nil || err.(*util.StoreError).Type != util.ErrInvalidData {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestParseKind(t *testing.T) {
	checks := []struct {
		kind        string
		cardinality int
		embedded    bool
		reversed    bool
	}{
		{"1--1", OneToOne, false, false},
		{"1--*", OneToMany, false, false},
		{"*--1", ManyToOne, false, false},
		{"*--*", ManyToMany, false, false},
		{"1-=*", OneToMany, true, false},
		{"1=-*", OneToMany, true, false},
		{"1-<*", OneToMany, false, true},
		{"1->1", OneToOne, false, false},
	}

	for _, check := range checks {
		cardinality, embedded, reversed, err := parseKind(check.kind)

		if err != nil || cardinality != check.cardinality ||
			embedded != check.embedded || reversed != check.reversed {
			t.Error("Unexpected result for", check.kind, ":", cardinality,
				embedded, reversed, err)
			return
		}
	}

	for _, invalid := range []string{"", "1--", "x--1", "1xx*", "1-x*", "1--x"} {
		if _, _, _, err := parseKind(invalid); err == nil {
			t.Error("Kind should have been rejected:", invalid)
			return
		}
	}
}

func TestDefineYAML(t *testing.T) {
	reg := NewRegistry()

	data := []byte(`
Book:
  title: string
  pages:
    $type: number
    $default: 100
Library:
  books:
    $end: Book
    $kind: 1-=*
`)

	if err := DefineYAML(reg, "lib", data); err != nil {
		t.Error(err)
		return
	}

	book, err := reg.GetEntity("lib:Book")
	if err != nil {
		t.Error(err)
		return
	}

	if prop := book.GetProperty("pages", false); prop == nil || prop.Default() != 100 {
		t.Error("Unexpected result:", prop)
		return
	}

	if rel, err := reg.GetRelationship("lib:Library_books"); err != nil || !rel.Embedded {
		t.Error("Unexpected result:", rel, err)
		return
	}

	if err := DefineYAML(reg, "lib2", []byte("\t:bad")); err == nil ||
		err.(*util.StoreError).Type != util.ErrInvalidData {
		t.Error("Unexpected result:", err)
		return
	}
}
