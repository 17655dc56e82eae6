package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mossy-p/meeting-signaling/internal/redis"
)

// newRosterCmd prints the stored members of a room.
func newRosterCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roster <roomId>",
		Short: "Print the membership records stored for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := redis.Connect(cmd.Context(), opts.cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			store := redis.NewMembershipStore(client, opts.cfg.StoreTimeout, 0)
			members, err := store.Members(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(members)
		},
	}
}

// newEvictCmd removes a membership record left behind by a process that
// died without running its disconnect handling.
func newEvictCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <roomId> <userId>",
		Short: "Remove a stale membership record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := redis.Connect(cmd.Context(), opts.cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			store := redis.NewMembershipStore(client, opts.cfg.StoreTimeout, 0)
			removed, err := store.Leave(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not a member of %s\n", args[1], args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", args[1], args[0])
			return nil
		},
	}
}
