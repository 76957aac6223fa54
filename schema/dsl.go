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
	"fmt"
	"strings"

	"devt.de/krotik/common/stringutil"
	"gopkg.in/yaml.v3"

	"devt.de/krotik/hyperstore/graph/util"
)

/*
Define builds schema elements from a declarative definition object and
registers them. Top level keys name entities, the value of each key maps
property names to property or reference definitions:

  - a string names the value type of a plain property ("string", "number")
  - a map with $type / $default / $constraints describes a property
  - a function value declares a calculated property
  - a map with $end / $kind / $name declares a reference and its
    relationship
  - a single element list declares a one to many reference ([Target])
  - $base names the base entity of the single inheritance chain

The $kind grammar is [1|*](-|=)(-|=|<|>)[1|*]. The outer characters give
the cardinality of the start and end side. An equals sign on the arrow
head side marks the relationship as embedded. A left angle reverses the
direction so that the declaring entity becomes the end of the
relationship.

All entities are registered before any reference is resolved - forward
references within one definition object are allowed.
*/
func Define(reg *Registry, schemaName string, def map[string]interface{}) error {

	if !stringutil.IsAlphaNumeric(schemaName) {
		return &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: fmt.Sprintf("Invalid schema name: %v", schemaName),
		}
	}

	// First pass - register all entities so references can be resolved

	entities := make(map[string]*Element)

	for name := range def {
		entity := NewEntity(schemaName+":"+name, name)

		if err := reg.AddElement(entity); err != nil {
			return err
		}

		entities[name] = entity
	}

	// Second pass - attach properties and references

	for name, entity := range entities {
		body, ok := def[name].(map[string]interface{})
		if !ok {
			return &util.StoreError{
				Type:   util.ErrInvalidData,
				Detail: fmt.Sprintf("Definition of %v is not an object", name),
			}
		}

		for key, val := range body {

			if key == "$base" {

				base, err := reg.GetEntity(fmt.Sprint(val))
				if err != nil {
					return err
				}

				entity.Base = base
				continue
			}

			if err := defineMember(reg, schemaName, entity, key, val); err != nil {
				return err
			}
		}
	}

	return nil
}

/*
DefineYAML builds schema elements from a YAML document of the same shape
as the Define definition object.
*/
func DefineYAML(reg *Registry, schemaName string, data []byte) error {
	var def map[string]interface{}

	if err := yaml.Unmarshal(data, &def); err != nil {
		return &util.StoreError{
			Type:   util.ErrInvalidData,
			Detail: fmt.Sprintf("Could not parse schema document: %v", err),
		}
	}

	return Define(reg, schemaName, def)
}

/*
defineMember attaches a single property or reference definition to an
entity.
*/
func defineMember(reg *Registry, schemaName string, entity *Element,
	key string, val interface{}) error {

	switch v := val.(type) {

	case string:

		// Plain property - the value names the value type

		entity.AddProperty(&Property{
			Name:   key,
			TypeID: resolveTypeID(reg, v),
			Kind:   PropertyNormal,
		})

		return nil

	case func(owner interface{}) interface{}:

		entity.AddProperty(&Property{
			Name:      key,
			Kind:      PropertyCalculated,
			Calculate: v,
		})

		return nil

	case []interface{}:

		// Single element list - one to many reference shorthand

		if len(v) != 1 {
			return &util.StoreError{
				Type:   util.ErrInvalidData,
				Detail: fmt.Sprintf("Reference list of %v must name exactly one target", key),
			}
		}

		return defineReference(reg, schemaName, entity, key, map[string]interface{}{
			"$end":  fmt.Sprint(v[0]),
			"$kind": "1--*",
		})

	case map[string]interface{}:

		if _, ok := v["$end"]; ok {
			return defineReference(reg, schemaName, entity, key, v)
		}

		return defineProperty(reg, entity, key, v)
	}

	return &util.StoreError{
		Type:   util.ErrInvalidData,
		Detail: fmt.Sprintf("Invalid definition of %v", key),
	}
}

/*
defineProperty attaches a property described by a $type / $default /
$constraints object.
*/
func defineProperty(reg *Registry, entity *Element, key string,
	def map[string]interface{}) error {

	prop := &Property{
		Name: key,
		Kind: PropertyNormal,
	}

	if t, ok := def["$type"]; ok {
		prop.TypeID = resolveTypeID(reg, fmt.Sprint(t))
	}

	if d, ok := def["$default"]; ok {

		if thunk, ok := d.(func() interface{}); ok {
			prop.DefaultFunc = thunk
		} else {
			prop.DefaultValue = d
		}
	}

	if c, ok := def["$constraints"]; ok {

		switch cv := c.(type) {

		case *Constraint:
			cv.PropertyName = key
			prop.Constraints = append(prop.Constraints, cv)

		case []*Constraint:
			for _, item := range cv {
				item.PropertyName = key
				prop.Constraints = append(prop.Constraints, item)
			}

		default:
			return &util.StoreError{
				Type:   util.ErrInvalidData,
				Detail: fmt.Sprintf("Invalid constraint definition of %v", key),
			}
		}
	}

	entity.AddProperty(prop)

	return nil
}

/*
defineReference creates the relationship of a $end / $kind / $name
reference object and registers it. The reference descriptor is attached by
the registry.
*/
func defineReference(reg *Registry, schemaName string, entity *Element,
	key string, def map[string]interface{}) error {

	target, err := reg.GetEntity(fmt.Sprint(def["$end"]))
	if err != nil {
		return err
	}

	kind := "1--*"
	if k, ok := def["$kind"]; ok {
		kind = fmt.Sprint(k)
	}

	cardinality, embedded, reversed, err := parseKind(kind)
	if err != nil {
		return err
	}

	localName := fmt.Sprintf("%v_%v", entity.Name, key)
	if n, ok := def["$name"]; ok {
		localName = fmt.Sprint(n)
	}

	var rel *Relationship

	if reversed {

		// The declaring entity is the end of the relationship

		rel = NewRelationship(schemaName+":"+localName, localName,
			target.ID, entity.ID, cardinality, embedded)
		rel.EndPropertyName = key

	} else {

		rel = NewRelationship(schemaName+":"+localName, localName,
			entity.ID, target.ID, cardinality, embedded)
		rel.StartPropertyName = key
	}

	return reg.AddRelationship(rel)
}

/*
parseKind parses a $kind string into cardinality, embedded and reversed
flags.
*/
func parseKind(kind string) (int, bool, bool, error) {
	invalid := func() (int, bool, bool, error) {
		return 0, false, false, &util.StoreError{
			Type:   util.ErrInvalidData,
			Detail: fmt.Sprintf("Invalid relationship kind: %v", kind),
		}
	}

	if len(kind) != 4 {
		return invalid()
	}

	c0, c1, c2, c3 := kind[0], kind[1], kind[2], kind[3]

	if (c0 != '1' && c0 != '*') || (c3 != '1' && c3 != '*') {
		return invalid()
	}

	if c1 != '-' && c1 != '=' {
		return invalid()
	}

	if c2 != '-' && c2 != '=' && c2 != '<' && c2 != '>' {
		return invalid()
	}

	var cardinality int

	switch {
	case c0 == '1' && c3 == '1':
		cardinality = OneToOne
	case c0 == '1' && c3 == '*':
		cardinality = OneToMany
	case c0 == '*' && c3 == '1':
		cardinality = ManyToOne
	default:
		cardinality = ManyToMany
	}

	reversed := c2 == '<'
	embedded := c1 == '=' || c2 == '='

	return cardinality, embedded, reversed, nil
}

/*
resolveTypeID resolves a type name from a definition object to a schema
id. Unknown names are kept verbatim so that value types can be declared
after first use.
*/
func resolveTypeID(reg *Registry, name string) string {
	if info, _ := reg.GetInfo(name, false); info != nil {
		return info.ID
	}

	return strings.TrimSpace(name)
}
