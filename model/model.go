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
Package model contains the store, domains, sessions and model elements of
Hyperstore.

A Store is the root aggregate. It owns the schema registry, the named
domains, the ambient current session slot and the session subscribers.
Client code registers schemas, creates domains and mutates domain graphs
inside sessions. Every mutation is recorded as a change event; on commit
the session publishes its events to all subscribers - undo managers, live
collections and adapters.
*/
package model

import (
	"fmt"
	"sort"
	"strings"

	"devt.de/krotik/common/datautil"
	"devt.de/krotik/common/logutil"
	"github.com/google/uuid"

	"devt.de/krotik/hyperstore/config"
	"devt.de/krotik/hyperstore/graph/util"
	"devt.de/krotik/hyperstore/schema"
)

/*
Store is the root object of a Hyperstore instance.
*/
type Store struct {
	id          string                     // Unique instance id
	registry    *schema.Registry           // Schema registry of this store
	domains     map[string]*Domain         // Domains by lowercase name
	current     *Session                   // Ambient current session or nil
	sessionSeq  int64                      // Sequence for session ids
	subscribers map[int]func(*SessionInfo) // Session completed subscribers
	subSeq      int                        // Sequence for subscriber cookies
	trace       *datautil.RingBuffer       // History of completed sessions
	log         logutil.Logger             // Logger of this store
}

/*
NewStore creates a new empty store.
*/
func NewStore() *Store {
	return &Store{
		id:          uuid.New().String(),
		registry:    schema.NewRegistry(),
		domains:     make(map[string]*Domain),
		subscribers: make(map[int]func(*SessionInfo)),
		trace:       datautil.NewRingBuffer(int(config.Int(config.SessionTraceHistory))),
		log:         logutil.GetLogger("hyperstore"),
	}
}

/*
ID returns the unique id of this store instance.
*/
func (s *Store) ID() string {
	return s.id
}

/*
Registry returns the schema registry of this store.
*/
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Domains
// =======

/*
NewDomain creates a new named domain. Domain names are normalized to lower
case. Creating an existing domain fails with a duplicate element error.
*/
func (s *Store) NewDomain(name string) (*Domain, error) {
	key := strings.ToLower(name)

	if key == "" {
		return nil, &util.StoreError{
			Type:   util.ErrInvalidArgument,
			Detail: "Domain name must not be empty",
		}
	}

	if _, ok := s.domains[key]; ok {
		return nil, &util.StoreError{
			Type:   util.ErrDuplicateElement,
			Detail: fmt.Sprintf("Domain %v already exists", name),
		}
	}

	domain := newDomain(s, key)
	s.domains[key] = domain

	s.log.Info("Created domain ", key)

	return domain, nil
}

/*
Domain returns a domain by name. Returns nil if the domain does not exist.
*/
func (s *Store) Domain(name string) *Domain {
	return s.domains[strings.ToLower(name)]
}

/*
Domains returns the names of all domains of this store in sorted order.
*/
func (s *Store) Domains() []string {
	names := make([]string, 0, len(s.domains))
	for name := range s.domains {
		names = append(names, name)
	}

	sort.StringSlice(names).Sort()

	return names
}

// Subscriptions
// =============

/*
Subscribe registers a session completed subscriber. The returned cookie
identifies the subscription for Unsubscribe.
*/
func (s *Store) Subscribe(f func(*SessionInfo)) int {
	s.subSeq++
	s.subscribers[s.subSeq] = f

	return s.subSeq
}

/*
Unsubscribe removes a subscription by cookie.
*/
func (s *Store) Unsubscribe(cookie int) {
	delete(s.subscribers, cookie)
}

/*
publish delivers a completed session to all subscribers in subscription
order and records it in the session trace.
*/
func (s *Store) publish(info *SessionInfo) {
	s.trace.Add(info)

	if config.Bool(config.EnableSessionTraceLog) {
		s.log.Debug("Session ", info.ID, " completed - aborted: ",
			info.Aborted, " events: ", len(info.Events))
	}

	cookies := make([]int, 0, len(s.subscribers))
	for cookie := range s.subscribers {
		cookies = append(cookies, cookie)
	}

	sort.Ints(cookies)

	for _, cookie := range cookies {
		if f, ok := s.subscribers[cookie]; ok {
			f(info)
		}
	}
}

/*
SessionTrace returns the retained history of completed sessions, oldest
first.
*/
func (s *Store) SessionTrace() []*SessionInfo {
	slice := s.trace.Slice()

	ret := make([]*SessionInfo, 0, len(slice))
	for _, item := range slice {
		ret = append(ret, item.(*SessionInfo))
	}

	return ret
}

/*
Close disposes all domains of this store.
*/
func (s *Store) Close() {
	for _, name := range s.Domains() {
		s.domains[name].Dispose()
	}

	s.log.Info("Closed store ", s.id)
}
