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

	"github.com/spf13/cobra"
)

var (
	wikiPrivate  bool
	wikiLanguage string
)

func init() {
	wikiCmd := &cobra.Command{
		Use:   "wiki",
		Short: "Create wikis and change their visibility",
	}

	createCmd := &cobra.Command{
		Use:   "create <wiki-id>",
		Short: "Create a wiki seeded from the default wiki",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp("wiki create", runWikiCreate),
	}
	createCmd.Flags().BoolVar(&wikiPrivate, "private", false, "Create the wiki as private")
	createCmd.Flags().StringVar(&wikiLanguage, "language", "en", "Content language code")
	wikiCmd.AddCommand(createCmd)

	wikiCmd.AddCommand(&cobra.Command{
		Use:       "visibility <wiki-id> private|public",
		Short:     "Make a wiki private or public",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"private", "public"},
		RunE:      withApp("wiki visibility", runWikiVisibility),
	})

	wikiCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every wiki",
		Args:  cobra.NoArgs,
		RunE:  withApp("wiki list", runWikiList),
	})

	rootCmd.AddCommand(wikiCmd)
}

func runWikiCreate(ctx context.Context, a *app, out io.Writer, args []string) error {
	if err := a.lifecycle.CreateWiki(ctx, args[0], wikiPrivate, wikiLanguage); err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s\n", args[0])
	return nil
}

func runWikiVisibility(ctx context.Context, a *app, out io.Writer, args []string) error {
	var private bool
	switch args[1] {
	case "private":
		private = true
	case "public":
	default:
		return fmt.Errorf("visibility must be private or public, not %q", args[1])
	}
	if err := a.lifecycle.SetVisibility(ctx, args[0], private); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is now %s\n", args[0], args[1])
	return nil
}

func runWikiList(ctx context.Context, a *app, out io.Writer, _ []string) error {
	ids, err := a.state.WikiIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
