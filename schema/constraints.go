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

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/hyperstore/graph/util"
)

// Constraint kinds
// ================

/*
ConstraintCheck is the kind of constraints which run on property writes and
on session commit. A violated check constraint flagged as error aborts the
enclosing session.
*/
const ConstraintCheck = 0x01

/*
ConstraintValidate is the kind of constraints which only run on session
commit. Violations are reported as diagnostics and never abort.
*/
const ConstraintValidate = 0x02

/*
Constraint is a predicate attached to a schema element or to one of its
properties.
*/
type Constraint struct {
	Kind         int                                 // Kind of the constraint
	Condition    func(ctx *ConstraintContext) bool   // Predicate - true means the constraint holds
	Message      string                              // Message reported on violation
	AsError      bool                                // Flag if a violation aborts the session
	PropertyName string                              // Name of the constrained property (optional)
}

/*
ConstraintContext carries the data a constraint condition can inspect. The
element is the materialized model element being checked.
*/
type ConstraintContext struct {
	Element     interface{}                // The model element under check
	Schema      *Element                   // Schema of the element
	Property    *Property                  // The constrained property or nil
	Diagnostics *errorutil.CompositeError  // Collector for violation messages
}

/*
RunConstraints runs all constraints of a given kind attached to a schema
element or its base chain against a model element. If propertyName is not
empty only constraints of that property run. Violation messages accumulate
in the given diagnostics collector. Returns an error as soon as a violated
check constraint is flagged as error.
*/
func RunConstraints(kind int, elementSchema *Element, element interface{},
	propertyName string, diags *errorutil.CompositeError) error {

	for _, c := range elementSchema.GetConstraints() {

		if c.Kind != kind {
			continue
		}

		if propertyName != "" && c.PropertyName != propertyName {
			continue
		}

		ctx := &ConstraintContext{
			Element:     element,
			Schema:      elementSchema,
			Property:    elementSchema.GetProperty(c.PropertyName, true),
			Diagnostics: diags,
		}

		if c.Condition(ctx) {
			continue
		}

		msg := c.Message
		if msg == "" {
			msg = fmt.Sprintf("Constraint on %v failed", elementSchema.ID)
		}

		if c.Kind == ConstraintCheck && c.AsError {
			return &util.StoreError{
				Type:   util.ErrConstraintViolation,
				Detail: msg,
			}
		}

		diags.Add(&util.StoreError{
			Type:   util.ErrConstraintViolation,
			Detail: msg,
		})
	}

	return nil
}
