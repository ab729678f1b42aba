// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package changeset holds the machinery shared by the per-domain change
// sets: ordered diff tracking, rejection records, lifecycle guards, the
// collaborator bundle and commit telemetry.
package changeset

// Change is the before and after value of one staged key.
type Change[V any] struct {
	Old V `json:"old"`
	New V `json:"new"`
}

// Tracker is an insertion-ordered map of staged changes. Re-staging an
// existing key updates it in place without moving it.
type Tracker[K comparable, V any] struct {
	keys    []K
	changes map[K]Change[V]
}

func NewTracker[K comparable, V any]() *Tracker[K, V] {
	return &Tracker[K, V]{changes: map[K]Change[V]{}}
}

func (t *Tracker[K, V]) Set(key K, c Change[V]) {
	if _, ok := t.changes[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.changes[key] = c
}

func (t *Tracker[K, V]) Get(key K) (Change[V], bool) {
	c, ok := t.changes[key]
	return c, ok
}

func (t *Tracker[K, V]) Has(key K) bool {
	_, ok := t.changes[key]
	return ok
}

func (t *Tracker[K, V]) Delete(key K) {
	if _, ok := t.changes[key]; !ok {
		return
	}
	delete(t.changes, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the staged keys in insertion order.
func (t *Tracker[K, V]) Keys() []K {
	out := make([]K, len(t.keys))
	copy(out, t.keys)
	return out
}

func (t *Tracker[K, V]) Len() int {
	return len(t.keys)
}

func (t *Tracker[K, V]) Reset() {
	t.keys = nil
	t.changes = map[K]Change[V]{}
}
