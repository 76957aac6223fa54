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
	"devt.de/krotik/hyperstore/events"
)

/*
undoFrame holds the recorded events of one session.
*/
type undoFrame struct {
	sessionID int64           // Id of the recorded session
	events    []*events.Event // Events of the session in record order
}

/*
UndoManager records the events of completed sessions for its registered
domains and replays their inverses on demand. Undo and redo run inside
their own sessions so that all subscribers observe the replayed changes.

Sessions in undo, redo or loading mode and aborted sessions are never
recorded.
*/
type UndoManager struct {
	store     *Store                     // Owning store
	domains   map[string]bool            // Registered domain names
	filter    func(*events.Event) bool   // Optional event filter
	undoStack []*undoFrame               // Recorded session frames
	redoStack []*undoFrame               // Undone session frames
	cookie    int                        // Session subscription cookie
	disposed  bool                       // Flag if this manager was disposed
}

/*
NewUndoManager creates an undo manager recording the given domains. The
optional filter restricts recording to the events it accepts.
*/
func NewUndoManager(store *Store, filter func(*events.Event) bool,
	domains ...*Domain) *UndoManager {

	um := &UndoManager{
		store:   store,
		domains: make(map[string]bool),
		filter:  filter,
	}

	for _, domain := range domains {
		um.domains[domain.name] = true
	}

	um.cookie = store.Subscribe(um.onSessionCompleted)

	return um
}

/*
AddDomain registers a further domain with this manager.
*/
func (um *UndoManager) AddDomain(domain *Domain) {
	um.domains[domain.name] = true
}

/*
onSessionCompleted records the events of an eligible session as an undo
frame. A session which matches the top frame merges into it - this folds
reopened sessions into one undoable step. Any new recording clears the
redo stack.
*/
func (um *UndoManager) onSessionCompleted(info *SessionInfo) {

	if um.disposed || info.Aborted || info.Mode&(ModeUndoOrRedo|ModeLoading) != 0 {
		return
	}

	var kept []*events.Event

	for _, ev := range info.Events {
		if !um.domains[ev.Domain] {
			continue
		}

		if um.filter != nil && !um.filter(ev) {
			continue
		}

		kept = append(kept, ev)
	}

	if len(kept) == 0 {
		return
	}

	if top := um.top(); top != nil && top.sessionID == info.ID {
		top.events = append(top.events, kept...)

	} else {
		um.undoStack = append(um.undoStack, &undoFrame{info.ID, kept})
	}

	um.redoStack = nil
}

/*
top returns the top undo frame or nil.
*/
func (um *UndoManager) top() *undoFrame {
	if len(um.undoStack) == 0 {
		return nil
	}

	return um.undoStack[len(um.undoStack)-1]
}

/*
CanUndo returns if there is something to undo.
*/
func (um *UndoManager) CanUndo() bool {
	return len(um.undoStack) > 0
}

/*
CanRedo returns if there is something to redo.
*/
func (um *UndoManager) CanRedo() bool {
	return len(um.redoStack) > 0
}

/*
SavePoint returns the session id of the top undo frame. The second return
value is false when there is nothing to undo.
*/
func (um *UndoManager) SavePoint() (int64, bool) {
	if top := um.top(); top != nil {
		return top.sessionID, true
	}

	return 0, false
}

/*
Undo reverts the changes of the most recent recorded session.
*/
func (um *UndoManager) Undo() error {
	return um.undo(0, false)
}

/*
UndoToSavePoint reverts recorded sessions until the frame of the given
save point is on top again. An unknown save point drains the whole stack.
*/
func (um *UndoManager) UndoToSavePoint(savePoint int64) error {
	return um.undo(savePoint, true)
}

/*
undo pops undo frames and replays their events in reverse inside a
session in undo mode. Every popped frame becomes a redo frame.
*/
func (um *UndoManager) undo(savePoint int64, toSavePoint bool) error {
	if len(um.undoStack) == 0 {
		return nil
	}

	return um.store.RunInSession(ModeUndo, func() error {
		sessionID := um.store.current.ID()

		for len(um.undoStack) > 0 {

			if toSavePoint && um.top().sessionID == savePoint {
				break
			}

			frame := um.top()
			um.undoStack = um.undoStack[:len(um.undoStack)-1]

			redo := &undoFrame{sessionID: frame.sessionID}

			for i := len(frame.events) - 1; i >= 0; i-- {
				rev := frame.events[i].Reverse(sessionID)

				domain := um.store.Domain(rev.Domain)
				if domain == nil {
					continue
				}

				if err := domain.ApplyEvent(rev); err != nil {
					return err
				}

				redo.events = append(redo.events, rev)
			}

			um.redoStack = append(um.redoStack, redo)

			if !toSavePoint {
				break
			}
		}

		return nil
	})
}

/*
Redo reapplies the changes of the most recently undone session.
*/
func (um *UndoManager) Redo() error {
	if len(um.redoStack) == 0 {
		return nil
	}

	return um.store.RunInSession(ModeRedo, func() error {
		sessionID := um.store.current.ID()

		frame := um.redoStack[len(um.redoStack)-1]
		um.redoStack = um.redoStack[:len(um.redoStack)-1]

		undone := &undoFrame{sessionID: frame.sessionID}

		for i := len(frame.events) - 1; i >= 0; i-- {
			fwd := frame.events[i].Reverse(sessionID)

			domain := um.store.Domain(fwd.Domain)
			if domain == nil {
				continue
			}

			if err := domain.ApplyEvent(fwd); err != nil {
				return err
			}

			undone.events = append(undone.events, fwd)
		}

		um.undoStack = append(um.undoStack, undone)

		return nil
	})
}

/*
Dispose releases the session subscription of this manager.
*/
func (um *UndoManager) Dispose() {
	if um.disposed {
		return
	}

	um.store.Unsubscribe(um.cookie)
	um.undoStack = nil
	um.redoStack = nil
	um.disposed = true
}
