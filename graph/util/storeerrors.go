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
Package util contains utility classes for the model store.

StoreError

Models a store related error. Low-level errors should be wrapped in a
StoreError before they are returned to a client.
*/
package util

import (
	"errors"
	"fmt"
)

/*
StoreError is a model store related error
*/
type StoreError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
}

/*
Error returns a human-readable string representation of this error.
*/
func (se *StoreError) Error() string {
	if se.Detail != "" {
		return fmt.Sprintf("StoreError: %v (%v)", se.Type, se.Detail)
	}

	return fmt.Sprintf("StoreError: %v", se.Type)
}

/*
Schema related error types
*/
var (
	ErrUnknownSchema   = errors.New("Unknown schema")
	ErrAmbiguousSchema = errors.New("Ambiguous schema")
	ErrDuplicateSchema = errors.New("Duplicate schema")
)

/*
Graph and session related error types
*/
var (
	ErrInvalidArgument     = errors.New("Invalid argument")
	ErrInvalidData         = errors.New("Invalid data")
	ErrDuplicateElement    = errors.New("Duplicate element")
	ErrInvalidElement      = errors.New("Invalid element")
	ErrTypeMismatch        = errors.New("Type mismatch")
	ErrDisposedElement     = errors.New("Can not use a disposed element")
	ErrConstraintViolation = errors.New("Constraint violation")
	ErrNoSession           = errors.New("No active session")
	ErrSessionClosed       = errors.New("Session is closed")
)
