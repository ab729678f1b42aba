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

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/namespaces"
)

// namespaceFlags holds the values of `namespaces set`.
type namespaceFlags struct {
	name           string
	searchable     bool
	subpages       bool
	content        bool
	contentModel   string
	protection     string
	aliases        []string
	core           bool
	additional     []string
	maintainPrefix bool
}

var (
	nsFlags          namespaceFlags
	nsMoveTo         int32
	nsDeleteMaintain bool
)

func init() {
	namespacesCmd := &cobra.Command{
		Use:   "namespaces",
		Short: "List and change the namespaces of a wiki",
	}

	namespacesCmd.AddCommand(&cobra.Command{
		Use:   "list <wiki-id>",
		Short: "List the namespaces of a wiki",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp("namespaces list", runNamespacesList),
	})

	setCmd := &cobra.Command{
		Use:   "set <wiki-id> <namespace-id>",
		Short: "Create or modify a namespace; only the given flags change",
		Args:  cobra.ExactArgs(2),
	}
	setCmd.RunE = withApp("namespaces set", func(ctx context.Context, a *app, out io.Writer, args []string) error {
		return runNamespacesSet(ctx, a, out, args, nsFlags, setCmd.Flags().Changed)
	})
	f := setCmd.Flags()
	f.StringVar(&nsFlags.name, "name", "", "Namespace name")
	f.BoolVar(&nsFlags.searchable, "searchable", false, "Searched by default")
	f.BoolVar(&nsFlags.subpages, "subpages", false, "Allow subpages")
	f.BoolVar(&nsFlags.content, "content", false, "Count as content namespace")
	f.StringVar(&nsFlags.contentModel, "content-model", "", "Default content model")
	f.StringVar(&nsFlags.protection, "protection", "", "Right required to edit")
	f.StringSliceVar(&nsFlags.aliases, "alias", nil, "Alias (repeatable); replaces the alias list")
	f.BoolVar(&nsFlags.core, "core", false, "Core namespace")
	f.StringArrayVar(&nsFlags.additional, "additional", nil, "key=value namespace setting (repeatable); value is JSON or a bare string")
	f.BoolVar(&nsFlags.maintainPrefix, "maintain-prefix", false, "Keep the old prefix on moved pages")
	namespacesCmd.AddCommand(setCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <wiki-id> <namespace-id>",
		Short: "Delete a namespace, moving its pages",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp("namespaces delete", runNamespacesDelete),
	}
	deleteCmd.Flags().Int32Var(&nsMoveTo, "move-to", 0, "Namespace id that receives the pages")
	deleteCmd.Flags().BoolVar(&nsDeleteMaintain, "maintain-prefix", false, "Keep the old prefix on moved pages")
	namespacesCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(namespacesCmd)
}

func parseNamespaceID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad namespace id %q", s)
	}
	return int32(id), nil
}

func runNamespacesList(ctx context.Context, a *app, out io.Writer, args []string) error {
	cs, err := namespaces.Load(ctx, a.env, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSEARCHABLE\tSUBPAGES\tCONTENT\tMODEL\tPROTECTION\tALIASES")
	for _, ns := range cs.List() {
		fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%t\t%s\t%s\t%s\n",
			ns.ID, ns.Name, ns.Searchable, ns.Subpages, ns.Content,
			ns.ContentModel, ns.Protection, strings.Join(ns.Aliases, ","))
	}
	return w.Flush()
}

// namespaceUpdate builds an update from the flags the user set. Additional
// entries merge into current.
func namespaceUpdate(f namespaceFlags, changed func(string) bool, current map[string]any) (namespaces.Update, error) {
	var u namespaces.Update
	if changed("name") {
		u.Name = &f.name
	}
	if changed("searchable") {
		u.Searchable = &f.searchable
	}
	if changed("subpages") {
		u.Subpages = &f.subpages
	}
	if changed("content") {
		u.Content = &f.content
	}
	if changed("content-model") {
		u.ContentModel = &f.contentModel
	}
	if changed("protection") {
		u.Protection = &f.protection
	}
	if changed("alias") {
		u.Aliases = append([]string{}, f.aliases...)
	}
	if changed("core") {
		u.Core = &f.core
	}
	if len(f.additional) > 0 {
		merged := maps.Clone(current)
		if merged == nil {
			merged = map[string]any{}
		}
		for _, kv := range f.additional {
			key, raw, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return u, fmt.Errorf("--additional wants key=value, got %q", kv)
			}
			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				value = raw
			}
			if value == nil {
				delete(merged, key)
				continue
			}
			merged[key] = value
		}
		u.Additional = merged
	}
	return u, nil
}

func runNamespacesSet(ctx context.Context, a *app, out io.Writer, args []string, f namespaceFlags, changed func(string) bool) error {
	id, err := parseNamespaceID(args[1])
	if err != nil {
		return err
	}
	cs, err := namespaces.Load(ctx, a.env, args[0])
	if err != nil {
		return err
	}
	current, exists := cs.Namespace(id)
	u, err := namespaceUpdate(f, changed, current.Additional)
	if err != nil {
		return err
	}
	if !exists && u.Name == nil {
		return fmt.Errorf("namespace %d does not exist; --name is required to create it", id)
	}

	err = changeset.Scoped(cs, func(cs *namespaces.ChangeSet) error {
		cs.Modify(id, u, f.maintainPrefix)
		if !cs.HasChanges() {
			return nil
		}
		return cs.Commit(ctx, true)
	})
	if err != nil {
		return err
	}
	report(out, cs.Errors())
	if !cs.Committed() {
		fmt.Fprintf(out, "namespace %d unchanged\n", id)
		return nil
	}
	fmt.Fprintf(out, "namespace %d saved (%s)\n", id, cs.LogAction())
	return nil
}

func runNamespacesDelete(ctx context.Context, a *app, out io.Writer, args []string) error {
	id, err := parseNamespaceID(args[1])
	if err != nil {
		return err
	}
	cs, err := namespaces.Load(ctx, a.env, args[0])
	if err != nil {
		return err
	}
	if _, ok := cs.Namespace(id); !ok {
		return fmt.Errorf("namespace %d does not exist on %s", id, args[0])
	}
	err = changeset.Scoped(cs, func(cs *namespaces.ChangeSet) error {
		cs.Remove(id, nsMoveTo, nsDeleteMaintain)
		return cs.Commit(ctx, true)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "namespace %d deleted, pages move to %d\n", id, nsMoveTo)
	return nil
}
