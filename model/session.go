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
	"devt.de/krotik/common/errorutil"

	"devt.de/krotik/hyperstore/events"
	"devt.de/krotik/hyperstore/graph/util"
	"devt.de/krotik/hyperstore/schema"
)

// Session modes
// =============

/*
ModeNormal is the mode of a plain client session.
*/
const ModeNormal = 0x00

/*
ModeUndo is set while an undo manager replays reverse events.
*/
const ModeUndo = 0x01

/*
ModeRedo is set while an undo manager replays redo events.
*/
const ModeRedo = 0x02

/*
ModeUndoOrRedo combines the undo and redo mode flags.
*/
const ModeUndoOrRedo = ModeUndo | ModeRedo

/*
ModeRollback is set while a session rolls its own events back. Cascading
removal is suppressed in this mode.
*/
const ModeRollback = 0x04

/*
ModeLoading is set while a loader imports external data. Loading sessions
are not captured by undo managers.
*/
const ModeLoading = 0x08

/*
SessionInfo is the immutable description of a completed session which is
handed to session subscribers.
*/
type SessionInfo struct {
	ID          int64                      // Id of the completed session
	Mode        int                        // Mode bitmask of the session
	Aborted     bool                       // Flag if the session was rolled back
	Events      []*events.Event            // Events recorded by the session
	Diagnostics *errorutil.CompositeError  // Validation diagnostics
}

/*
Session is a unit of work over the domains of a store. All graph mutations
happen inside a session. Sessions nest: beginning a session while one is
active only increments its depth and the outermost close decides between
commit and rollback. A nested level which closes without accepting its
changes aborts the whole session.
*/
type Session struct {
	store   *Store                    // Owning store
	id      int64                     // Unique monotonic session id
	mode    int                       // Mode bitmask
	accepts []bool                    // Accept flag per nesting level
	events  []*events.Event           // Recorded change events
	aborted bool                      // Flag if the session was aborted
	closed  bool                      // Flag if the session was closed
	diags   *errorutil.CompositeError // Collected validation diagnostics
}

/*
BeginSession returns the ambient current session with an incremented
nesting depth or installs a new session with the given mode flags.
*/
func (s *Store) BeginSession(mode int) *Session {

	if s.current != nil && !s.current.closed {
		s.current.mode |= mode
		s.current.accepts = append(s.current.accepts, false)

		return s.current
	}

	s.sessionSeq++

	sess := &Session{
		store:   s,
		id:      s.sessionSeq,
		mode:    mode,
		accepts: []bool{false},
		diags:   errorutil.NewCompositeError(),
	}

	s.current = sess

	return sess
}

/*
CurrentSession returns the ambient current session or nil.
*/
func (s *Store) CurrentSession() *Session {
	if s.current != nil && !s.current.closed {
		return s.current
	}

	return nil
}

/*
RunInSession runs an operation inside the ambient current session. If no
session is active a new one with the given mode flags is opened and closed
around the operation. An error from the operation aborts the session level.
*/
func (s *Store) RunInSession(mode int, op func() error) error {
	sess := s.BeginSession(mode)

	if err := op(); err != nil {
		sess.Close()

		return err
	}

	sess.AcceptChanges()

	return sess.Close()
}

/*
ID returns the id of this session.
*/
func (sess *Session) ID() int64 {
	return sess.id
}

/*
Mode returns the mode bitmask of this session.
*/
func (sess *Session) Mode() int {
	return sess.mode
}

/*
IsAborted returns if this session was aborted.
*/
func (sess *Session) IsAborted() bool {
	return sess.aborted
}

/*
Abort marks this session as aborted. The outermost close rolls all
recorded events back.
*/
func (sess *Session) Abort() {
	sess.aborted = true
}

/*
AcceptChanges marks the current nesting level as committed. A level which
closes without accepting aborts the session.
*/
func (sess *Session) AcceptChanges() error {
	if sess.closed {
		return &util.StoreError{
			Type:   util.ErrSessionClosed,
			Detail: "Accept on a closed session",
		}
	}

	sess.accepts[len(sess.accepts)-1] = true

	return nil
}

/*
appendEvent records a change event in this session.
*/
func (sess *Session) appendEvent(ev *events.Event) error {
	if sess.closed {
		return &util.StoreError{
			Type:   util.ErrSessionClosed,
			Detail: "Mutation on a closed session",
		}
	}

	ev.SessionID = sess.id
	sess.events = append(sess.events, ev)

	return nil
}

/*
Close leaves the current nesting level. The outermost close commits the
session - or rolls it back if any level aborted - and publishes the result
to all session subscribers.
*/
func (sess *Session) Close() error {
	if sess.closed {
		return &util.StoreError{
			Type:   util.ErrSessionClosed,
			Detail: "Close on a closed session",
		}
	}

	accepted := sess.accepts[len(sess.accepts)-1]
	sess.accepts = sess.accepts[:len(sess.accepts)-1]

	if !accepted {
		sess.aborted = true
	}

	if len(sess.accepts) > 0 {
		return nil
	}

	// Outermost close - commit or roll back

	var err error

	if !sess.aborted {
		if err = sess.runConstraints(); err != nil {
			sess.aborted = true
		}
	}

	if sess.aborted {
		sess.rollback()
	}

	sess.closed = true
	sess.store.current = nil

	sess.store.publish(&SessionInfo{
		ID:          sess.id,
		Mode:        sess.mode,
		Aborted:     sess.aborted,
		Events:      sess.events,
		Diagnostics: sess.diags,
	})

	return err
}

/*
runConstraints runs the constraints of every element touched by this
session. A violated check constraint which is flagged as error stops the
commit; validation violations only accumulate as diagnostics.
*/
func (sess *Session) runConstraints() error {
	type touched struct {
		domain *Domain
		id     string
	}

	var order []touched

	seen := make(map[string]bool)

	for _, ev := range sess.events {
		if ev.Domain == "" || seen[ev.ID] {
			continue
		}

		seen[ev.ID] = true

		if domain := sess.store.Domain(ev.Domain); domain != nil {
			order = append(order, touched{domain, ev.ID})
		}
	}

	for _, t := range order {
		element, err := t.domain.Get(t.id)

		if err != nil || element == nil {

			// Elements removed by this session are not checked

			continue
		}

		if err := schema.RunConstraints(schema.ConstraintCheck,
			element.Schema(), element, "", sess.diags); err != nil {
			return err
		}

		schema.RunConstraints(schema.ConstraintValidate,
			element.Schema(), element, "", sess.diags)
	}

	return nil
}

/*
rollback replays the inverse of every recorded event in reverse order. The
rollback mode flag suppresses cascading removal - the event stream already
carries the individual removals.
*/
func (sess *Session) rollback() {
	sess.mode |= ModeRollback

	for i := len(sess.events) - 1; i >= 0; i-- {
		rev := sess.events[i].Reverse(sess.id)

		if domain := sess.store.Domain(rev.Domain); domain != nil {
			if err := domain.replayEvent(rev); err != nil {
				sess.store.log.Error("Rollback of session ", sess.id, " failed: ", err)
			}
		}
	}
}
