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

package registry

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T, name string) *Registry {
	t.Helper()
	r, err := Load(context.Background(), "testdata/"+name)
	require.NoError(t, err)
	return r
}

func TestLoadYAML(t *testing.T) {
	r := loadTestdata(t, "registry.yaml")

	assert.Equal(t, []string{"cite", "citethispage", "vector", "timeless", "checkuser", "lore"}, r.ExtensionIDs())
	assert.Equal(t, []string{"cite"}, r.DefaultExtensions)

	cite, ok := r.Extension("cite")
	require.True(t, ok)
	assert.Equal(t, "wgEnableCite", cite.RuntimeName())
	vector, _ := r.Extension("vector")
	assert.Equal(t, "Vector", vector.RuntimeName())
	assert.Equal(t, []string{"timeless"}, vector.Conflicts)

	cu, _ := r.Extension("checkuser")
	require.NotNil(t, cu.Install)
	assert.Equal(t, []string{"checkuser", "checkuser-log"}, cu.Install.Permissions["checkuser"].Permissions)
	assert.Equal(t, true, cu.Install.Settings["wgCheckUserLogLogins"])
	assert.Equal(t, []string{"checkuser-populate"}, cu.Install.Jobs)
	assert.Contains(t, cu.Requires, "visibility")

	lore, _ := r.Extension("lore")
	assert.Equal(t, int32(3000), lore.Install.Namespaces["Lore"].ID)
	assert.True(t, lore.Install.Namespaces["Lore"].Content)

	assert.True(t, r.IsDisallowedNamespaceName("special"))
	assert.False(t, r.IsDisallowedNamespaceName("Lore"))

	name, ok := r.LocalizedNamespaceName("de", 1)
	assert.True(t, ok)
	assert.Equal(t, "Diskussion", name)

	assert.Equal(t, "member", r.Permissions.DefaultPrivateGroup)
	assert.Equal(t, map[string]bool{"managewiki-restricted": true, "editinterface": false}, r.Permissions.AdditionalRights["sysop"])
	assert.Equal(t, []string{"bot"}, r.Permissions.AdditionalAddGroups["sysop"])
}

func TestNamespaceSettingsParsed(t *testing.T) {
	r := loadTestdata(t, "registry.yaml")

	byName := map[string]NamespaceSetting{}
	var names []string
	for _, s := range r.NamespaceSettings {
		byName[s.Name] = s
		names = append(names, s.Name)
	}
	assert.IsIncreasing(t, names)

	subpages := byName["wgNamespacesWithSubpages"]
	assert.Equal(t, KindNamespaceMap, subpages.Kind)
	assert.True(t, subpages.Override.IsMap)
	v, ok := subpages.Override.Lookup(2)
	assert.True(t, ok)
	assert.Equal(t, true, v)
	v, ok = subpages.Override.Lookup(0)
	assert.True(t, ok)
	assert.Equal(t, false, v)
	v, ok = subpages.Override.Lookup(SpecialNamespaceID)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	content := byName["wgContentNamespaces"]
	assert.Equal(t, KindNamespaceFlag, content.Kind)
	assert.False(t, content.Override.IsMap)
	v, ok = content.Override.Lookup(0)
	assert.True(t, ok)
	assert.Equal(t, false, v)

	meta := byName["wgMetaNamespace"]
	assert.True(t, meta.Constant)
	assert.Equal(t, []int32{4}, meta.Only)
	assert.True(t, meta.AppliesTo(4))
	assert.False(t, meta.AppliesTo(0))

	extra := byName["wgExtraSignatureNamespaces"]
	assert.Equal(t, []int32{0, 4}, extra.Only)
	_, ok = extra.Override.Lookup(0)
	assert.False(t, ok, "no default key means no override")
}

func TestOverrideDefaultSkipsSpecial(t *testing.T) {
	o := Override{IsMap: true, PerNamespace: map[int32]any{}, Default: "x", HasDefault: true}
	_, ok := o.Lookup(SpecialNamespaceID)
	assert.False(t, ok)

	scalar := Override{Scalar: "y", HasScalar: true}
	_, ok = scalar.Lookup(SpecialNamespaceID)
	assert.False(t, ok)
	v, ok := scalar.Lookup(10)
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestLoadTOML(t *testing.T) {
	r := loadTestdata(t, "registry.toml")

	assert.Equal(t, []string{"cite", "vector", "timeless"}, r.ExtensionIDs())
	timeless, _ := r.Extension("timeless")
	assert.Equal(t, float64(1000), timeless.Requires["articles"])
	require.Len(t, r.NamespaceSettings, 1)
	v, ok := r.NamespaceSettings[0].Override.Lookup(2)
	assert.True(t, ok)
	assert.Equal(t, "noindex,nofollow", v)
	assert.Equal(t, "member", r.Permissions.DefaultPrivateGroup)
}

func TestLoadJSONFromEnv(t *testing.T) {
	t.Setenv("WIKIFARM_TEST_REGISTRY", `{"extensions":[{"id":"cite","name":"Cite"}],"default_extensions":["cite"]}`)

	r, err := Load(context.Background(), "env:WIKIFARM_TEST_REGISTRY")
	require.NoError(t, err)
	assert.Equal(t, []string{"cite"}, r.ExtensionIDs())
}

type fakeObjects map[string][]byte

func (f fakeObjects) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := f[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func TestLoadFromObjectStore(t *testing.T) {
	data, err := os.ReadFile("testdata/registry.yaml")
	require.NoError(t, err)
	objects := fakeObjects{"farm-config/registry/prod.yaml": data}

	r, err := Load(context.Background(), "s3://farm-config/registry/prod.yaml", WithObjectGetter(objects))
	require.NoError(t, err)
	assert.Len(t, r.ExtensionIDs(), 6)

	_, err = Load(context.Background(), "s3://farm-config/registry/prod.yaml")
	assert.ErrorContains(t, err, "no object store client")

	_, err = Load(context.Background(), "s3://farm-config", WithObjectGetter(objects))
	assert.ErrorContains(t, err, "want s3://bucket/key")
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, "")
	assert.Error(t, err)
	_, err = Load(ctx, "testdata/registry.ini")
	assert.ErrorContains(t, err, "unknown format")
	_, err = Load(ctx, "env:WIKIFARM_DEFINITELY_UNSET")
	assert.ErrorContains(t, err, "is not set")
}

func TestValidateReportsEverything(t *testing.T) {
	r, err := Parse([]byte(`
extensions:
  - id: a
    conflicts: [a, ghost]
    requires:
      moonphase: full
  - id: b
    install:
      namespaces:
        Bad:
          id: -5
default_extensions: [missing]
namespace_settings:
  wgThing:
    type: check
    constant: true
`), FormatYAML)
	require.NoError(t, err)

	err = r.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "conflicts with itself")
	assert.Contains(t, msg, "unknown extension ghost")
	assert.Contains(t, msg, `unknown requirement kind "moonphase"`)
	assert.Contains(t, msg, "reserved id -5")
	assert.Contains(t, msg, "default extension missing")
	assert.Contains(t, msg, "constant requires the default type")
}

func TestParseRejectsBadOnly(t *testing.T) {
	_, err := Parse([]byte(`{"namespace_settings":{"wgX":{"only":"all"}}}`), FormatJSON)
	assert.ErrorContains(t, err, "only must be")
}

func TestAddExtensionKeepsOrder(t *testing.T) {
	r := &Registry{}
	r.AddExtension(&Extension{ID: "b"})
	r.AddExtension(&Extension{ID: "a"})
	r.AddExtension(&Extension{ID: "b", Name: "Bee"})

	assert.Equal(t, []string{"b", "a"}, r.ExtensionIDs())
	assert.Equal(t, "Bee", r.Extensions["b"].DisplayName())
	assert.Equal(t, "a", r.Extensions["a"].DisplayName())
}
