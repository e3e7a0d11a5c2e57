package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"eduverse-client-go/internal/domain/wallet"
)

type walletView struct {
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
}

func viewConnection(state wallet.State, conn *wallet.Connection) walletView {
	v := walletView{State: state.Name()}
	if conn != nil {
		v.Address = conn.Address.Hex()
	}
	return v
}

func (v walletView) String() string {
	if v.Address == "" {
		return "wallet " + v.State
	}
	return fmt.Sprintf("wallet %s as %s", v.State, v.Address)
}

// NewWalletCommand creates the wallet command group.
func NewWalletCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the external signing agent connection",
	}
	cmd.AddCommand(newWalletConnectCommand(opts))
	cmd.AddCommand(newWalletStatusCommand(opts))
	return cmd
}

func newWalletConnectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect an account, prompting for approval if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			conn, err := app.Wallet.EnsureConnected(commandContext(cmd))
			if err != nil {
				return WrapExitError(exitCodeFor(err), "wallet connect failed", err)
			}
			view := viewConnection(app.Wallet.State(), conn)
			return opts.formatter(cmd).Success(view, view.String())
		},
	}
}

func newWalletStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connection state without prompting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			conn, err := app.Wallet.RestoreConnected(commandContext(cmd))
			if err != nil {
				return WrapExitError(exitCodeFor(err), "wallet status failed", err)
			}
			view := viewConnection(app.Wallet.State(), conn)
			return opts.formatter(cmd).Success(view, view.String())
		},
	}
}
