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
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStats struct {
	active, articles, pages, images int64
	err                             error
}

func (f fakeStats) ActiveUsers(context.Context) (int64, error) { return f.active, f.err }
func (f fakeStats) Articles(context.Context) (int64, error)    { return f.articles, f.err }
func (f fakeStats) Pages(context.Context) (int64, error)       { return f.pages, f.err }
func (f fakeStats) Images(context.Context) (int64, error)      { return f.images, f.err }

type fakeVisibility struct {
	private bool
	err     error
}

func (f fakeVisibility) IsPrivate(context.Context) (bool, error) { return f.private, f.err }

type fakeSettings map[string]map[string]any

func (f fakeSettings) Setting(_ context.Context, wikiID, name string) (any, bool, error) {
	v, ok := f[wikiID][name]
	return v, ok, nil
}

func tenant() Tenant {
	return Tenant{
		WikiID:     "alpha",
		Stats:      fakeStats{active: 5, articles: 100, pages: 300, images: 7},
		Actor:      Rights{"managewiki-restricted"},
		Visibility: fakeVisibility{private: true},
		Settings: fakeSettings{
			"alpha": {"wgUploads": []any{"a", "b"}, "wgLogo": "logo.png", "wgMaxSize": float64(10)},
			"meta":  {"wgCentral": true},
		},
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		spec    Spec
		enabled []string
		bypass  bool
		tenant  func(Tenant) Tenant
		want    bool
	}{
		{name: "empty spec", spec: Spec{}, want: true},
		{name: "nil spec", spec: nil, want: true},
		{name: "unknown key fails even with passing keys", spec: Spec{"articles": 1000, "moon": "full"}, want: false},
		{name: "permission held", spec: Spec{"permissions": []any{"managewiki-restricted"}}, want: true},
		{name: "permission missing", spec: Spec{"permissions": []any{"root"}}, want: false},
		{name: "permission bypassed", spec: Spec{"permissions": []any{"root"}}, bypass: true, want: true},
		{
			name:   "permission unattended",
			spec:   Spec{"permissions": []any{"root"}},
			tenant: func(t Tenant) Tenant { t.Unattended = true; return t },
			want:   true,
		},
		{name: "extensions and", spec: Spec{"extensions": []any{"cite", "echo"}}, enabled: []string{"echo", "cite"}, want: true},
		{name: "extensions and missing", spec: Spec{"extensions": []any{"cite", "echo"}}, enabled: []string{"cite"}, want: false},
		{name: "extensions or group", spec: Spec{"extensions": []any{[]any{"vector", "timeless"}}}, enabled: []string{"timeless"}, want: true},
		{name: "extensions or group none", spec: Spec{"extensions": []any{[]any{"vector", "timeless"}}}, enabled: []string{"cite"}, want: false},
		{name: "extensions typed list", spec: Spec{"extensions": []string{"cite"}}, enabled: []string{"cite"}, want: true},
		{name: "articles under limit", spec: Spec{"articles": 100}, want: true},
		{name: "articles over limit", spec: Spec{"articles": int64(99)}, want: false},
		{name: "pages float limit", spec: Spec{"pages": float64(300)}, want: true},
		{name: "images over", spec: Spec{"images": 6}, want: false},
		{name: "activeusers", spec: Spec{"activeusers": 5}, want: true},
		{name: "fractional limit malformed", spec: Spec{"pages": 300.5}, want: false},
		{name: "string limit malformed", spec: Spec{"pages": "300"}, want: false},
		{
			name:   "statistics error fails closed",
			spec:   Spec{"articles": 1000},
			tenant: func(t Tenant) Tenant { t.Stats = fakeStats{err: errors.New("down")}; return t },
			want:   false,
		},
		{name: "setting list contains", spec: Spec{"settings": map[string]any{"setting": "wgUploads", "value": "b"}}, want: true},
		{name: "setting list lacks", spec: Spec{"settings": map[string]any{"setting": "wgUploads", "value": "c"}}, want: false},
		{name: "setting scalar equal", spec: Spec{"settings": map[string]any{"setting": "wgLogo", "value": "logo.png"}}, want: true},
		{name: "setting number across decoders", spec: Spec{"settings": map[string]any{"setting": "wgMaxSize", "value": 10}}, want: true},
		{name: "setting missing", spec: Spec{"settings": map[string]any{"setting": "wgNope", "value": true}}, want: false},
		{name: "setting other wiki", spec: Spec{"settings": map[string]any{"dbname": "meta", "setting": "wgCentral", "value": true}}, want: true},
		{name: "setting without value malformed", spec: Spec{"settings": map[string]any{"setting": "wgLogo"}}, want: false},
		{name: "visibility private", spec: Spec{"visibility": map[string]any{"state": "private"}}, want: true},
		{name: "visibility public on private wiki", spec: Spec{"visibility": map[string]any{"state": "public"}}, want: false},
		{
			name: "visibility state and permissions",
			spec: Spec{"visibility": map[string]any{"state": "private", "permissions": []any{"managewiki-restricted"}}},
			want: true,
		},
		{
			name: "visibility permissions missing",
			spec: Spec{"visibility": map[string]any{"permissions": []any{"root"}}},
			want: false,
		},
		{name: "visibility malformed", spec: Spec{"visibility": "private"}, want: false},
		{
			name: "visibility yaml map keys",
			spec: Spec{"visibility": map[any]any{"state": "private"}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := tenant()
			if tt.tenant != nil {
				tc = tt.tenant(tc)
			}
			assert.Equal(t, tt.want, Evaluate(ctx, tt.spec, tt.enabled, tt.bypass, tc))
		})
	}
}

func TestEvaluateMissingOraclesFailClosed(t *testing.T) {
	ctx := context.Background()
	bare := Tenant{WikiID: "alpha"}

	assert.False(t, Evaluate(ctx, Spec{"articles": 10}, nil, false, bare))
	assert.False(t, Evaluate(ctx, Spec{"visibility": map[string]any{"state": "public"}}, nil, false, bare))
	assert.False(t, Evaluate(ctx, Spec{"settings": map[string]any{"setting": "x", "value": 1}}, nil, false, bare))
	assert.False(t, Evaluate(ctx, Spec{"permissions": []any{"edit"}}, nil, false, bare))
	assert.True(t, Evaluate(ctx, Spec{"permissions": []any{}}, nil, false, bare))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches([]string{"a", "b"}, "b"))
	assert.False(t, Matches([]string{"a", "b"}, "c"))
	assert.True(t, Matches(map[string]any{"0": true}, true))
	assert.True(t, Matches(int64(3), 3))
	assert.True(t, Matches([]any{1, 2}, []any{float64(1), float64(2)}))
	assert.False(t, Matches("3", 3))
}
