package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutorcenter/internal/accounts"
)

var superadminIn accounts.SuperadminInput

var superadminCmd = &cobra.Command{
	Use:   "superadmin",
	Short: "Create the first superadmin account",
	Long: `Creates the bootstrap superadmin. It refuses once any superadmin
exists; further accounts are created through the API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.close()

		acc := accounts.New(b.store, accounts.Options{Tokens: b.tokens, Logger: lg.Base})
		u, err := acc.CreateSuperadmin(cmd.Context(), superadminIn)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "superadmin %s created with id %d\n", u.Username, u.ID)
		return err
	},
}

func init() {
	f := superadminCmd.Flags()
	f.StringVar(&superadminIn.Username, "username", "", "login name")
	f.StringVar(&superadminIn.Email, "email", "", "email address")
	f.StringVar(&superadminIn.Password, "password", "", "initial password")
	f.StringVar(&superadminIn.FullName, "name", "", "full name")
	f.StringVar(&superadminIn.Phone, "phone", "", "phone number")
	for _, name := range []string{"username", "email", "password", "name"} {
		_ = superadminCmd.MarkFlagRequired(name)
	}
}
