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

package fly

import (
	"maps"
	"slices"

	"github.com/segmentio/kafka-go"
)

// Message is one record bound for a topic. Headers are written in key order
// so identical messages produce identical wire records.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Header returns the named header, or "" when it is absent.
func (m Message) Header(key string) string {
	return m.Headers[key]
}

func (m Message) kafkaMessage() kafka.Message {
	km := kafka.Message{Key: m.Key, Value: m.Value}
	for _, k := range slices.Sorted(maps.Keys(m.Headers)) {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(m.Headers[k])})
	}
	return km
}
