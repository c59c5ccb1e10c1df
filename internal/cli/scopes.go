package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"passport/internal/domain/models"
)

type scopeFile struct {
	Scopes []models.Scope `yaml:"scopes"`
}

func newScopesCommand(load func() (Backend, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "Manage the scope catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert scopes from a yaml file",
		Long: `Upsert scope catalog entries.

The file lists scopes under a top level "scopes" key:

  scopes:
    - name: email
      description: Your email address
      claims: [email]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopes, err := readScopes(args[0])
			if err != nil {
				return err
			}
			backend, err := load()
			if err != nil {
				return err
			}
			apps, release, err := backend.Apps(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := apps.ImportScopes(cmd.Context(), scopes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d scopes\n", len(scopes))
			return nil
		},
	})
	return cmd
}

func readScopes(path string) ([]models.Scope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scopes file: %w", err)
	}
	var f scopeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scopes file: %w", err)
	}
	if len(f.Scopes) == 0 {
		return nil, fmt.Errorf("no scopes in %s", path)
	}
	return f.Scopes, nil
}
