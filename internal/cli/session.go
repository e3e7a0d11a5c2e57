package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"eduverse-client-go/internal/domain/auth"
)

// identityView is what login and whoami print.
type identityView struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Credential    string `json:"credential"`
}

func viewSession(s auth.Session) identityView {
	v := identityView{Credential: auth.Fingerprint(s.Credential)}
	if s.Identity != nil {
		v.ID = s.Identity.ID
		v.Username = s.Identity.Username
		v.Email = s.Identity.Email
		v.Role = s.Identity.Role
		v.WalletAddress = s.Identity.WalletAddress
	}
	return v
}

func (v identityView) String() string {
	line := fmt.Sprintf("%s (id %s)", v.Username, v.ID)
	if v.Role != "" {
		line += " role=" + v.Role
	}
	if v.WalletAddress != "" {
		line += " wallet=" + v.WalletAddress
	}
	return line + " credential=" + v.Credential
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and show the resulting identity",
		Long: `Sign in with --username and --password.

The password is read from stdin when not given. Credentials are never
written to disk; later commands restore the session from the refresh
cookie or sign in again with the same flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Username == "" {
				return NewExitError(ExitCommandError, "--username is required")
			}
			password := opts.Password
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return WrapExitError(ExitCommandError, "read password", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.Auth.Login(commandContext(cmd), opts.Username, password)
			if err != nil {
				return WrapExitError(ExitAuth, "login failed", err)
			}
			view := viewSession(session)
			return opts.formatter(cmd).Success(view, "Signed in as "+view.String())
		},
	}
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the server session and clear local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			if _, err := opts.session(ctx, app); err != nil {
				opts.formatter(cmd).VerboseLog("no session to end: %v", err)
			}
			if err := app.Auth.Logout(ctx); err != nil {
				return WrapExitError(exitCodeFor(err), "logout failed", err)
			}
			return opts.formatter(cmd).Success(map[string]bool{"loggedOut": true}, "Signed out")
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Long:  "Restores the session through the refresh cookie, falling back to --username/--password.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := opts.session(commandContext(cmd), app)
			if err != nil {
				return WrapExitError(exitCodeFor(err), "not signed in", err)
			}
			view := viewSession(session)
			return opts.formatter(cmd).Success(view, view.String())
		},
	}
}
