package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/guestpass-service/internal/auth"
)

var hashKeyCost int

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <client-key>",
	Short: "Print the AUTH_CLIENT_KEY_HASH value for a client key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[0]) < 16 {
			return errors.New("client key must be at least 16 characters")
		}
		hashed, err := auth.HashClientKey(args[0], hashKeyCost)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), hashed)
		return err
	},
}

func init() {
	hashKeyCmd.Flags().IntVar(&hashKeyCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}
