package protected

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"

	"passport/internal/config"
	"passport/internal/lib/extensions"
)

// Vault is a client instance to Hashicorp Vault secure storage for storing secrets
type Vault struct {
	Client *vault.Client
}

// NewVaultClient creates new instance of Vault client, logging in with AppRole when no token is configured
func NewVaultClient(ctx context.Context, cfg config.VaultConfig) (*Vault, error) {
	client, err := vault.New(
		vault.WithAddress(cfg.Address),
		vault.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating new vault client instance: %w", err)
	}
	v := &Vault{Client: client}

	if cfg.Token != "" {
		if err := v.Client.SetToken(cfg.Token); err != nil {
			return nil, fmt.Errorf("error while setting token: %w", err)
		}
		return v, nil
	}
	if err := v.AuthUser(ctx, cfg.RoleIDFile, cfg.SecretIDFile); err != nil {
		return nil, fmt.Errorf("error while logging in to vault: %w", err)
	}
	return v, nil
}

// AuthUser authenticated service-user as Vault client
func (v *Vault) AuthUser(ctx context.Context, roleIDFile, secretIDFile string) error {
	roleID, err := extensions.GetTextFromFile(roleIDFile)
	if err != nil {
		return err
	}
	secretID, err := extensions.GetTextFromFile(secretIDFile)
	if err != nil {
		return err
	}

	resp, err := v.Client.Auth.AppRoleLogin(
		ctx,
		schema.AppRoleLoginRequest{
			RoleId:   roleID,
			SecretId: secretID,
		})
	if err != nil {
		return err
	}
	if resp.Auth == nil {
		return fmt.Errorf("approle login returned no auth")
	}
	return v.Client.SetToken(resp.Auth.ClientToken)
}
