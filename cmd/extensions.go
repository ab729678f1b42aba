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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/extensions"
)

var forceDisable bool

func init() {
	extensionsCmd := &cobra.Command{
		Use:   "extensions",
		Short: "List and change the extensions enabled on a wiki",
	}

	extensionsCmd.AddCommand(&cobra.Command{
		Use:   "list <wiki-id>",
		Short: "List the extension catalogue and what the wiki has enabled",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp("extensions list", runExtensionsList),
	})
	extensionsCmd.AddCommand(&cobra.Command{
		Use:   "enable <wiki-id> <extension>...",
		Short: "Enable extensions",
		Args:  cobra.MinimumNArgs(2),
		RunE:  withApp("extensions enable", runExtensionsEnable),
	})
	disableCmd := &cobra.Command{
		Use:   "disable <wiki-id> <extension>...",
		Short: "Disable extensions",
		Args:  cobra.MinimumNArgs(2),
		RunE:  withApp("extensions disable", runExtensionsDisable),
	}
	disableCmd.Flags().BoolVar(&forceDisable, "force", false, "Stage removal even for extensions that are not enabled")
	extensionsCmd.AddCommand(disableCmd)
	extensionsCmd.AddCommand(&cobra.Command{
		Use:   "set <wiki-id> [extension]...",
		Short: "Make the enabled set exactly the given extensions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withApp("extensions set", runExtensionsSet),
	})

	rootCmd.AddCommand(extensionsCmd)
}

func runExtensionsList(ctx context.Context, a *app, out io.Writer, args []string) error {
	cs, err := extensions.Load(ctx, a.env, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tCONFLICTS")
	for _, id := range a.registry.ExtensionIDs() {
		ext, _ := a.registry.Extension(id)
		fmt.Fprintf(w, "%s\t%s\t%t\t%v\n", id, ext.DisplayName(), cs.IsEnabled(id), ext.Conflicts)
	}
	return w.Flush()
}

// commitExtensions stages a change through stage and commits it.
func commitExtensions(ctx context.Context, a *app, out io.Writer, wikiID string, stage func(*extensions.ChangeSet)) error {
	cs, err := extensions.Load(ctx, a.env, wikiID)
	if err != nil {
		return err
	}
	err = changeset.Scoped(cs, func(cs *extensions.ChangeSet) error {
		stage(cs)
		if !cs.HasChanges() {
			return nil
		}
		return cs.Commit(ctx)
	})
	if err != nil {
		return err
	}
	report(out, cs.Errors())
	fmt.Fprintf(out, "%s: %v\n", wikiID, cs.List())
	return nil
}

func runExtensionsEnable(ctx context.Context, a *app, out io.Writer, args []string) error {
	return commitExtensions(ctx, a, out, args[0], func(cs *extensions.ChangeSet) {
		cs.Add(args[1:]...)
	})
}

func runExtensionsDisable(ctx context.Context, a *app, out io.Writer, args []string) error {
	return commitExtensions(ctx, a, out, args[0], func(cs *extensions.ChangeSet) {
		cs.Remove(forceDisable, args[1:]...)
	})
}

func runExtensionsSet(ctx context.Context, a *app, out io.Writer, args []string) error {
	return commitExtensions(ctx, a, out, args[0], func(cs *extensions.ChangeSet) {
		cs.OverwriteAll(args[1:])
	})
}
