package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eduverse-client-go/internal/bootstrap"
	"eduverse-client-go/internal/domain/auth"
	"eduverse-client-go/internal/domain/wallet"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Username   string
	Password   string
	Verbose    bool

	// app overrides what bootstrap receives; tests inject a ready config here.
	app bootstrap.Options
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the client CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eduverse",
		Short: "EduVerse learning platform client",
		Long: `Command line client for the EduVerse learning platform.

Signs in against the platform backend, connects an external signing
agent and mints learning resources on the ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Username, "username", "u", os.Getenv("EDUVERSE_USERNAME"), "account used when no session can be restored")
	cmd.PersistentFlags().StringVar(&opts.Password, "password", os.Getenv("EDUVERSE_PASSWORD"), "password for --username")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewWalletCommand(opts))
	cmd.AddCommand(NewMintCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))

	return cmd
}

// open bootstraps the client for one command. The caller closes it.
func (o *RootOptions) open(cmd *cobra.Command) (*bootstrap.App, error) {
	bopts := o.app
	if bopts.ConfigPath == "" {
		bopts.ConfigPath = o.ConfigPath
	}
	if bopts.Console == nil {
		bopts.Console = cmd.ErrOrStderr()
	}
	if bopts.Confirmer == nil {
		bopts.Confirmer = wallet.PromptConfirmer{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	}
	app, err := bootstrap.New(commandContext(cmd), bopts)
	if err != nil {
		return nil, WrapExitError(exitCodeFor(err), "startup failed", err)
	}
	return app, nil
}

// session restores or signs in with the global credentials.
func (o *RootOptions) session(ctx context.Context, app *bootstrap.App) (auth.Session, error) {
	return app.Authenticate(ctx, o.Username, o.Password)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
