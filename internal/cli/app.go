package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"passport/internal/domain/models"
	"passport/internal/lib/utilities"
)

func newAppCommand(load func() (Backend, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage client applications",
	}
	cmd.AddCommand(newAppCreateCommand(load), newAppRotateCommand(load), newAppListCommand(load))
	return cmd
}

func newAppCreateCommand(load func() (Backend, error)) *cobra.Command {
	var (
		name        string
		redirectURI string
		icon        string
		scopes      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an application and print its credentials",
		Long: `Register a client application.

The client secret is printed once and only its hash is stored.

Examples:
  passportctl app create --name console --redirect-uri https://console.test/cb --scope openid,profile`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := load()
			if err != nil {
				return err
			}
			apps, release, err := backend.Apps(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			app, secret, err := apps.CreateApp(cmd.Context(), name, redirectURI, icon, scopes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_id:     %s\nclient_secret: %s\n", app.ClientID, secret)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "application name")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "registered redirect uri")
	cmd.Flags().StringVar(&icon, "icon", "", "icon url")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scopes the application may request")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("redirect-uri")
	return cmd
}

func newAppRotateCommand(load func() (Backend, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret <client-id>",
		Short: "Issue a new client secret, invalidating the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := load()
			if err != nil {
				return err
			}
			apps, release, err := backend.Apps(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			secret, err := apps.RotateSecret(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_secret: %s\n", secret)
			return nil
		},
	}
}

type appRow struct {
	clientID string
	name     string
	redirect string
	scopes   string
}

func newAppListCommand(load func() (Backend, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered applications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := load()
			if err != nil {
				return err
			}
			apps, release, err := backend.Apps(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			list, err := apps.Apps(cmd.Context())
			if err != nil {
				return err
			}
			rows := utilities.Map(list, func(a models.App) appRow {
				return appRow{clientID: a.ClientID, name: a.Name, redirect: a.RedirectURI, scopes: strings.Join(a.Scopes, ",")}
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLIENT ID\tNAME\tREDIRECT URI\tSCOPES")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.clientID, r.name, r.redirect, r.scopes)
			}
			return tw.Flush()
		},
	}
}
