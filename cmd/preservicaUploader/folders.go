package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFoldersCmd(root *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "folders [ref]",
		Short: "List the folders under the archive root or a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			parent := ""
			if len(args) == 1 {
				parent = args[0]
			}

			client := newClient(cfg)
			list := client.Folders
			if all {
				list = client.Children
			}
			entities, err := list(cmd.Context(), parent)
			if err != nil {
				return fmt.Errorf("list %q: %w", parent, err)
			}
			if len(entities) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No folders found.")
				return nil
			}
			renderEntities(cmd.OutOrStdout(), entities)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include assets")
	return cmd
}
