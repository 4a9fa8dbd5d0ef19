package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hedgehog-learn/internal/auth"
)

var tokenContact auth.Contact

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a 24h contact token signed with JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenContact.ContactID == "" && tokenContact.Email == "" {
			return errors.New("one of --contact-id or --email is required")
		}
		tok, err := auth.NewTokens(cfg.JWTSecret).Issue(tokenContact)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenContact.ContactID, "contact-id", "", "CRM contact id")
	tokenCmd.Flags().StringVar(&tokenContact.Email, "email", "", "Contact email")
}
