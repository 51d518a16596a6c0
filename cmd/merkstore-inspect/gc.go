package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newGCCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "List every key with zero ref_count and zero root_count (GC-eligible)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(opts)
			if err != nil {
				return err
			}
			defer closeDB()

			keys, err := db.GetUnreachableKeys()
			if err != nil {
				return err
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

			if opts.json {
				out := make([]string, 0, len(keys))
				for _, k := range keys {
					out = append(out, k.String())
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d GC-eligible key(s)\n", len(keys))
			return nil
		},
	}
}
