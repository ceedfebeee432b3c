package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spec-kit/sla-service/internal/app"
	"github.com/spec-kit/sla-service/internal/domain"
)

func accountCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage API service accounts",
	}
	cmd.AddCommand(accountCreateCmd(rt))
	return cmd
}

func accountCreateCmd(rt *Runtime) *cobra.Command {
	var orgID, clientID, secret, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a service account for POST /auth/token",
		Long: `Register a service account bound to one organization. When --secret
is omitted a random secret is generated and printed once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generated := secret == ""
			if generated {
				secret = uuid.NewString()
			}
			return rt.withContainer(cmd.Context(), func(c *app.Container) error {
				account, err := c.Auth.CreateAccount(cmd.Context(), orgID, clientID, secret,
					domain.Role(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created account %s (%s) for org %s\n", account.ClientID, account.Role, account.OrgID)
				if generated {
					fmt.Fprintf(out, "Client secret: %s\n", warnColor.Sprint(secret))
					fmt.Fprintln(out, dimColor.Sprint("Store it now; it cannot be shown again."))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization the account acts for")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Client identifier")
	cmd.Flags().StringVar(&secret, "secret", "", "Client secret (generated when empty)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleIntegration), "ADMIN, SCHEDULER or INTEGRATION")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}
