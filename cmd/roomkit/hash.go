package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/roomkit/adapters/hasher"
)

var hashCost int

var hashCmd = &cobra.Command{
	Use:   "hash [password]",
	Short: "Hash a role password",
	Long: `Print the bcrypt hash of a password for use under auth.passwords.

The password is read from the first argument, or from the first line of
stdin when no argument is given.

Examples:
  roomkit hash s3cret
  echo s3cret | roomkit hash --cost 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().IntVar(&hashCost, "cost", 12, "bcrypt cost")
}

func runHash(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password given")
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := hasher.NewBcrypt(hashCost).Hash(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}
