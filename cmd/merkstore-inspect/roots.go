package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/voskan/merkstore/pkg/hash"
)

func newRootsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "List every tracked root hash and its root count",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(opts)
			if err != nil {
				return err
			}
			defer closeDB()

			roots, err := db.GetRoots()
			if err != nil {
				return err
			}
			hashes := make([]hash.Hash, 0, len(roots))
			for h := range roots {
				hashes = append(hashes, h)
			}
			sort.Slice(hashes, func(i, j int) bool { return hashes[i].String() < hashes[j].String() })

			if opts.json {
				type row struct {
					Hash  string `json:"hash"`
					Count uint32 `json:"root_count"`
				}
				out := make([]row, 0, len(hashes))
				for _, h := range hashes {
					out = append(out, row{Hash: h.String(), Count: roots[h]})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for _, h := range hashes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  root_count=%d\n", h, roots[h])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d root(s)\n", len(hashes))
			return nil
		},
	}
}
