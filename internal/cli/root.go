// Package cli implements passportctl, the admin tool for applications, scopes and signing keys.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"passport/internal/domain/models"
)

// AppAdmin manages registered applications and the scope catalog
type AppAdmin interface {
	CreateApp(ctx context.Context, name, redirectURI, icon string, scopes []string) (*models.App, string, error)
	RotateSecret(ctx context.Context, clientID string) (string, error)
	Apps(ctx context.Context) ([]models.App, error)
	ImportScopes(ctx context.Context, scopes []models.Scope) error
}

type KeyRotator interface {
	RotateKey(ctx context.Context) error
}

// Backend opens the collaborators a command needs; the returned func releases them
type Backend interface {
	Apps(ctx context.Context) (AppAdmin, func(), error)
	Keys(ctx context.Context) (KeyRotator, func(), error)
}

// NewRootCommand builds the passportctl command tree. A nil backend is loaded from --config.
func NewRootCommand(backend Backend, out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "passportctl",
		Short:         "Administer the passport service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the passport config file")
	root.SetOut(out)

	load := func() (Backend, error) {
		if backend != nil {
			return backend, nil
		}
		return NewConfigBackend(configPath)
	}

	root.AddCommand(
		newAppCommand(load),
		newScopesCommand(load),
		newKeysCommand(load),
		newHealthCommand(),
	)
	return root
}

// ExecuteContext runs passportctl against the configured deployment
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand(nil, os.Stdout).ExecuteContext(ctx)
}
