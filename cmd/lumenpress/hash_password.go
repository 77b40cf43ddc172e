package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lumenpress/lumenpress/internal/security"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for auth.password_hash",
	Long: `Print a bcrypt hash for auth.password_hash. The password is read from the
argument, or from the terminal (without echo) or the first line of standard
input when no argument is given.
With --totp a new TOTP secret for auth.totp_secret is printed as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(args)
		if err != nil {
			return err
		}
		hash, err := security.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)

		if withTOTP, _ := cmd.Flags().GetBool("totp"); withTOTP {
			account, _ := cmd.Flags().GetString("account")
			secret, url, errTOTP := security.GenerateTOTPSecret(account)
			if errTOTP != nil {
				return errTOTP
			}
			fmt.Fprintf(cmd.OutOrStdout(), "totp_secret: %s\notpauth url: %s\n", secret, url)
		}
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().Bool("totp", false, "also generate a TOTP secret")
	hashPasswordCmd.Flags().String("account", "admin", "account name shown in authenticator apps")
}

func readPassword(args []string) (string, error) {
	if len(args) == 1 {
		if p := strings.TrimSpace(args[0]); p != "" {
			return p, nil
		}
	}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if password := strings.TrimSpace(string(raw)); password != "" {
			return password, nil
		}
		return "", errors.New("password is empty")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}
