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

	"github.com/spf13/cobra"
)

var warmAll bool

func init() {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage effective configuration snapshots",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "show <wiki-id>",
		Short: "Print the effective configuration of a wiki as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp("cache show", runCacheShow),
	})

	warmCmd := &cobra.Command{
		Use:   "warm [wiki-id]...",
		Short: "Build snapshots ahead of first use",
		RunE:  withApp("cache warm", runCacheWarm),
	}
	warmCmd.Flags().BoolVar(&warmAll, "all", false, "Warm every known wiki")
	cacheCmd.AddCommand(warmCmd)

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "invalidate <wiki-id>...",
		Short: "Drop cached snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withApp("cache invalidate", runCacheInvalidate),
	})

	rootCmd.AddCommand(cacheCmd)
}

func runCacheShow(ctx context.Context, a *app, out io.Writer, args []string) error {
	snap, err := a.cache.Get(ctx, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func runCacheWarm(ctx context.Context, a *app, out io.Writer, args []string) error {
	ids := args
	if warmAll {
		all, err := a.state.WikiIDs(ctx)
		if err != nil {
			return err
		}
		ids = all
	}
	if len(ids) == 0 {
		return fmt.Errorf("name wikis to warm or pass --all")
	}
	if err := a.cache.Warm(ctx, ids, a.cfg.Cache.WarmConcurrency); err != nil {
		return err
	}
	fmt.Fprintf(out, "warmed %d snapshots\n", len(ids))
	return nil
}

func runCacheInvalidate(ctx context.Context, a *app, out io.Writer, args []string) error {
	for _, id := range args {
		if err := a.cache.Invalidate(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "invalidated %s\n", id)
	}
	return nil
}
