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

package requirements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/wikifarm/internal/logctx"
)

var errMalformed = errors.New("malformed requirement payload")

// Evaluate reports whether every check in spec passes. An empty spec
// passes. Any unknown kind fails the whole evaluation before other checks
// run. Malformed payloads and oracle errors fail closed.
func Evaluate(ctx context.Context, spec Spec, enabled []string, bypassPermissions bool, tenant Tenant) bool {
	logger := logctx.FromContext(ctx).With(slog.String("wikiID", tenant.WikiID))

	for kind := range spec {
		if !slices.Contains(Kinds, kind) {
			logger.Warn("Unknown requirement kind", slog.String("kind", kind))
			return false
		}
	}

	for _, kind := range Kinds {
		payload, ok := spec[kind]
		if !ok {
			continue
		}
		pass, err := check(ctx, kind, payload, enabled, bypassPermissions, tenant)
		if err != nil {
			logger.Warn("Requirement check failed closed",
				slog.String("kind", kind),
				slog.Any("error", err))
			return false
		}
		if !pass {
			return false
		}
	}
	return true
}

func check(ctx context.Context, kind string, payload any, enabled []string, bypass bool, tenant Tenant) (bool, error) {
	switch kind {
	case KindPermissions:
		if bypass || tenant.Unattended {
			return true, nil
		}
		return permissions(ctx, payload, tenant.Actor)
	case KindExtensions:
		return extensions(payload, enabled)
	case KindActiveUsers, KindArticles, KindPages, KindImages:
		return statistic(ctx, kind, payload, tenant.Stats)
	case KindSettings:
		return settings(ctx, payload, tenant)
	case KindVisibility:
		return visibility(ctx, payload, tenant)
	}
	return false, fmt.Errorf("unhandled kind %q", kind)
}

func permissions(ctx context.Context, payload any, actor Actor) (bool, error) {
	rights, ok := stringList(payload)
	if !ok {
		return false, fmt.Errorf("%w: permissions wants a list of rights", errMalformed)
	}
	if actor == nil {
		return len(rights) == 0, nil
	}
	for _, right := range rights {
		if !actor.HasRight(ctx, right) {
			return false, nil
		}
	}
	return true, nil
}

// extensions is an AND over entries; an entry that is itself a list is an
// OR over its members.
func extensions(payload any, enabled []string) (bool, error) {
	entries, ok := payload.([]any)
	if !ok {
		if ids, isStrings := payload.([]string); isStrings {
			entries = make([]any, len(ids))
			for i, id := range ids {
				entries[i] = id
			}
		} else {
			return false, fmt.Errorf("%w: extensions wants a list", errMalformed)
		}
	}

	live := mapset.NewThreadUnsafeSet(enabled...)
	for _, entry := range entries {
		if id, isString := entry.(string); isString {
			if !live.Contains(id) {
				return false, nil
			}
			continue
		}
		alternatives, isList := stringList(entry)
		if !isList {
			return false, fmt.Errorf("%w: extensions entry %v", errMalformed, entry)
		}
		if !live.ContainsAny(alternatives...) {
			return false, nil
		}
	}
	return true, nil
}

func statistic(ctx context.Context, kind string, payload any, stats Statistics) (bool, error) {
	limit, ok := toInt64(payload)
	if !ok {
		return false, fmt.Errorf("%w: %s wants an integer", errMalformed, kind)
	}
	if stats == nil {
		return false, fmt.Errorf("no statistics source for %s", kind)
	}

	var (
		value int64
		err   error
	)
	switch kind {
	case KindActiveUsers:
		value, err = stats.ActiveUsers(ctx)
	case KindArticles:
		value, err = stats.Articles(ctx)
	case KindPages:
		value, err = stats.Pages(ctx)
	case KindImages:
		value, err = stats.Images(ctx)
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", kind, err)
	}
	return value <= limit, nil
}

func settings(ctx context.Context, payload any, tenant Tenant) (bool, error) {
	m, ok := toMap(payload)
	if !ok {
		return false, fmt.Errorf("%w: settings wants a map", errMalformed)
	}
	name, ok := m["setting"].(string)
	if !ok || name == "" {
		return false, fmt.Errorf("%w: settings.setting must be a string", errMalformed)
	}
	want, ok := m["value"]
	if !ok {
		return false, fmt.Errorf("%w: settings.value is required", errMalformed)
	}
	wikiID := tenant.WikiID
	if raw, present := m["dbname"]; present {
		db, isString := raw.(string)
		if !isString {
			return false, fmt.Errorf("%w: settings.dbname must be a string", errMalformed)
		}
		wikiID = db
	}
	if tenant.Settings == nil {
		return false, errors.New("no settings source")
	}

	stored, found, err := tenant.Settings.Setting(ctx, wikiID, name)
	if err != nil {
		return false, fmt.Errorf("read setting %s of %s: %w", name, wikiID, err)
	}
	if !found || stored == nil {
		return false, nil
	}
	return Matches(stored, want), nil
}

func visibility(ctx context.Context, payload any, tenant Tenant) (bool, error) {
	m, ok := toMap(payload)
	if !ok {
		return false, fmt.Errorf("%w: visibility wants a map", errMalformed)
	}

	if raw, present := m["state"]; present {
		state, isString := raw.(string)
		if !isString {
			return false, fmt.Errorf("%w: visibility.state must be a string", errMalformed)
		}
		if tenant.Visibility == nil {
			return false, errors.New("no visibility source")
		}
		private, err := tenant.Visibility.IsPrivate(ctx)
		if err != nil {
			return false, fmt.Errorf("read visibility: %w", err)
		}
		if !(state == "private" && private) && !(state == "public" && !private) {
			return false, nil
		}
	}

	if raw, present := m["permissions"]; present {
		return permissions(ctx, raw, tenant.Actor)
	}
	return true, nil
}

// Matches reports whether stored equals want, or contains it when stored
// is a list or a map of values.
func Matches(stored, want any) bool {
	stored, want = normalize(stored), normalize(want)
	if reflect.DeepEqual(stored, want) {
		return true
	}
	switch s := stored.(type) {
	case []any:
		for _, v := range s {
			if reflect.DeepEqual(v, want) {
				return true
			}
		}
	case map[string]any:
		for _, v := range s {
			if reflect.DeepEqual(v, want) {
				return true
			}
		}
	}
	return false
}

// normalize folds the numeric and container types different decoders
// produce (yaml int, toml int64, json float64) into one shape.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	}
	return v
}

func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		m, _ := normalize(t).(map[string]any)
		return m, true
	}
	return nil, false
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	}
	return 0, false
}
