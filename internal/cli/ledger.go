package cli

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type balanceView struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [ADDRESS]",
		Short: "Show the platform token balance",
		Long:  "Shows the balance of ADDRESS, or of the connected wallet account when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !common.IsHexAddress(args[0]) {
				return NewExitError(ExitCommandError, "not a hex address: "+args[0])
			}

			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ledgerClient, err := app.RequireLedger()
			if err != nil {
				return WrapExitError(ExitCommandError, "ledger unavailable", err)
			}
			ctx := commandContext(cmd)

			var account common.Address
			if len(args) == 1 {
				account = common.HexToAddress(args[0])
			} else {
				conn, err := app.Wallet.EnsureConnected(ctx)
				if err != nil {
					return WrapExitError(exitCodeFor(err), "wallet connect failed", err)
				}
				account = conn.Address
			}

			balance, err := ledgerClient.BalanceOf(ctx, account)
			if err != nil {
				return WrapExitError(exitCodeFor(err), "balance lookup failed", err)
			}
			view := balanceView{Address: account.Hex(), Balance: balance.String()}
			return opts.formatter(cmd).Success(view, view.Address+"  "+view.Balance)
		},
	}
}

type transferView struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	TxHash string `json:"txHash"`
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(opts *RootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "transfer AMOUNT",
		Short: "Send platform tokens from the connected account",
		Long:  "Sends AMOUNT base units to --to, or to the platform wallet when --to is omitted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, ok := new(big.Int).SetString(args[0], 10)
			if !ok || amount.Sign() <= 0 {
				return NewExitError(ExitCommandError, "amount must be a positive integer: "+args[0])
			}
			if to != "" && !common.IsHexAddress(to) {
				return NewExitError(ExitCommandError, "not a hex address: "+to)
			}

			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ledgerClient, err := app.RequireLedger()
			if err != nil {
				return WrapExitError(ExitCommandError, "ledger unavailable", err)
			}
			ctx := commandContext(cmd)

			recipient := common.HexToAddress(to)
			if to == "" {
				if recipient, err = ledgerClient.PlatformWallet(ctx); err != nil {
					return WrapExitError(exitCodeFor(err), "platform wallet lookup failed", err)
				}
			}
			conn, err := app.Wallet.EnsureConnected(ctx)
			if err != nil {
				return WrapExitError(exitCodeFor(err), "wallet connect failed", err)
			}
			tx, err := ledgerClient.Transfer(ctx, conn.Signer, conn.Address, recipient, amount)
			if err != nil {
				return WrapExitError(exitCodeFor(err), "transfer failed", err)
			}
			view := transferView{
				From:   conn.Address.Hex(),
				To:     recipient.Hex(),
				Amount: amount.String(),
				TxHash: tx.Hex(),
			}
			return opts.formatter(cmd).Success(view, "sent "+view.Amount+" to "+view.To+" in "+view.TxHash)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address (defaults to the platform wallet)")
	return cmd
}
