package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solaius/pallet-registry/pkg/auth"
)

var (
	loginUser     string
	loginPassword string
	loginPrint    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and store the access token",
	Long: `Authenticates against the server and stores the returned token in the
user config directory. The password is read from --password, the
PALLET_PASSWORD environment variable, or the first line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUser == "" {
			return fmt.Errorf("--user is required")
		}
		password := loginPassword
		if password == "" {
			password = os.Getenv("PALLET_PASSWORD")
		}
		if password == "" {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		var tok auth.Token
		body := map[string]string{"login": loginUser, "password": password}
		if err := newClient().postJSON("/auth/login", body, &tok); err != nil {
			return err
		}

		if loginPrint {
			fmt.Fprintln(out, tok.AccessToken)
			return nil
		}
		path, err := tokenPath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(tok.AccessToken+"\n"), 0o600); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		fmt.Fprintf(out, "Logged in as %s (%s), token valid until %s\n",
			tok.Operator.Name, tok.Operator.Role, tok.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "Login name")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password")
	loginCmd.Flags().BoolVar(&loginPrint, "print", false, "Print the token instead of storing it")
}
