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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/wikifarm/internal/changeset"
	"github.com/cardinalhq/wikifarm/internal/permissions"
)

// groupFlags holds the set members a grant or revoke touches.
type groupFlags struct {
	rights       []string
	addgroups    []string
	removegroups []string
	addself      []string
	removeself   []string
	autopromote  string
}

var grantFlags, revokeFlags groupFlags

func init() {
	permissionsCmd := &cobra.Command{
		Use:   "permissions",
		Short: "List and change the user groups of a wiki",
	}

	permissionsCmd.AddCommand(&cobra.Command{
		Use:   "list <wiki-id>",
		Short: "List groups and their rights",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp("permissions list", runPermissionsList),
	})

	grantCmd := &cobra.Command{
		Use:   "grant <wiki-id> <group>",
		Short: "Add rights and group memberships to a group, creating it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: withApp("permissions grant", func(ctx context.Context, a *app, out io.Writer, args []string) error {
			return runPermissionsChange(ctx, a, out, args, grantFlags, true)
		}),
	}
	bindGroupFlags(grantCmd, &grantFlags)
	grantCmd.Flags().StringVar(&grantFlags.autopromote, "autopromote", "", "Autopromote condition as JSON; null clears it")
	permissionsCmd.AddCommand(grantCmd)

	revokeCmd := &cobra.Command{
		Use:   "revoke <wiki-id> <group>",
		Short: "Remove rights and group memberships from a group",
		Args:  cobra.ExactArgs(2),
		RunE: withApp("permissions revoke", func(ctx context.Context, a *app, out io.Writer, args []string) error {
			return runPermissionsChange(ctx, a, out, args, revokeFlags, false)
		}),
	}
	bindGroupFlags(revokeCmd, &revokeFlags)
	permissionsCmd.AddCommand(revokeCmd)

	permissionsCmd.AddCommand(&cobra.Command{
		Use:   "delete <wiki-id> <group>",
		Short: "Delete a group",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp("permissions delete", runPermissionsDelete),
	})

	rootCmd.AddCommand(permissionsCmd)
}

func bindGroupFlags(c *cobra.Command, g *groupFlags) {
	f := c.Flags()
	f.StringSliceVar(&g.rights, "right", nil, "User right (repeatable)")
	f.StringSliceVar(&g.addgroups, "addgroup", nil, "Group members may add others to (repeatable)")
	f.StringSliceVar(&g.removegroups, "removegroup", nil, "Group members may remove others from (repeatable)")
	f.StringSliceVar(&g.addself, "addself", nil, "Group members may join (repeatable)")
	f.StringSliceVar(&g.removeself, "removeself", nil, "Group members may leave (repeatable)")
}

func runPermissionsList(ctx context.Context, a *app, out io.Writer, args []string) error {
	cs, err := permissions.Load(ctx, a.env, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tRIGHTS\tADDGROUPS\tREMOVEGROUPS\tAUTOPROMOTE")
	for _, name := range cs.GroupNames() {
		g := cs.Group(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name,
			strings.Join(g.Permissions, ","),
			strings.Join(g.Addgroups, ","),
			strings.Join(g.Removegroups, ","),
			string(g.Autopromote))
	}
	return w.Flush()
}

// groupUpdate turns flags into an additive or subtractive update.
func groupUpdate(g groupFlags, add bool) (permissions.Update, error) {
	delta := func(values []string) permissions.SetDelta {
		if add {
			return permissions.SetDelta{Add: values}
		}
		return permissions.SetDelta{Remove: values}
	}
	u := permissions.Update{
		Permissions:  delta(g.rights),
		Addgroups:    delta(g.addgroups),
		Removegroups: delta(g.removegroups),
		Addself:      delta(g.addself),
		Removeself:   delta(g.removeself),
	}
	if g.autopromote != "" {
		if !json.Valid([]byte(g.autopromote)) {
			return u, fmt.Errorf("--autopromote is not valid JSON")
		}
		raw := json.RawMessage(g.autopromote)
		u.Autopromote = &raw
	}
	return u, nil
}

func runPermissionsChange(ctx context.Context, a *app, out io.Writer, args []string, g groupFlags, add bool) error {
	wikiID, group := args[0], args[1]
	u, err := groupUpdate(g, add)
	if err != nil {
		return err
	}
	cs, err := permissions.Load(ctx, a.env, wikiID)
	if err != nil {
		return err
	}
	err = changeset.Scoped(cs, func(cs *permissions.ChangeSet) error {
		cs.Modify(group, u)
		return cs.Commit(ctx)
	})
	if err != nil {
		return err
	}
	if len(cs.Changes()) == 0 {
		fmt.Fprintf(out, "group %s unchanged\n", group)
		return nil
	}
	fmt.Fprintf(out, "group %s saved: %s\n", group, strings.Join(cs.Group(group).Permissions, ","))
	return nil
}

func runPermissionsDelete(ctx context.Context, a *app, out io.Writer, args []string) error {
	wikiID, group := args[0], args[1]
	cs, err := permissions.Load(ctx, a.env, wikiID)
	if err != nil {
		return err
	}
	if _, ok := cs.List()[group]; !ok {
		return fmt.Errorf("group %s does not exist on %s", group, wikiID)
	}
	err = changeset.Scoped(cs, func(cs *permissions.ChangeSet) error {
		cs.Remove(group)
		return cs.Commit(ctx)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "group %s deleted\n", group)
	return nil
}
