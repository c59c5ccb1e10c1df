package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKeysCommand(load func() (Backend, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage token signing keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Create a new version of the vault transit signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := load()
			if err != nil {
				return err
			}
			keys, release, err := backend.Keys(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := keys.RotateKey(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signing key rotated")
			return nil
		},
	})
	return cmd
}
