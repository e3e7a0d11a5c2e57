package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"eduverse-client-go/internal/domain/mint"
	"eduverse-client-go/internal/domain/mint/model"
)

// recordView is a saga record plus the recovery it currently allows.
type recordView struct {
	*model.Record
	Action mint.Action `json:"action"`
}

func viewRecord(r *model.Record) recordView {
	return recordView{Record: r, Action: mint.Recovery(r)}
}

func (v recordView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-9s  %s", v.ID, v.Phase, v.Title)
	if v.Ledger != nil {
		fmt.Fprintf(&b, "  token=%s tx=%s", v.Ledger.TokenID, v.Ledger.TxHash)
	}
	if v.PendingTxHash != "" {
		fmt.Fprintf(&b, "  pending=%s", v.PendingTxHash)
		if v.MintEventMissing {
			b.WriteString(" (confirmed without mint event)")
		}
	}
	if v.Action != mint.ActionNone {
		fmt.Fprintf(&b, "  next=%s", v.Action)
	}
	if v.LastError != "" {
		fmt.Fprintf(&b, "\n    last error (%s): %s", v.FailedPhase, v.LastError)
	}
	return b.String()
}

// NewMintCommand creates the mint command group.
func NewMintCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint learning resources on the ledger",
		Long: `Mint runs three phases: create the off-chain record, commit it to the
ledger and attach the ledger reference back to the record.

A failed phase keeps everything earlier phases produced. Use the retry
and reconcile commands with the saga id to continue from there.`,
	}
	cmd.AddCommand(newMintCreateCommand(opts))
	cmd.AddCommand(newMintRetryCommitCommand(opts))
	cmd.AddCommand(newMintRetryFinalizeCommand(opts))
	cmd.AddCommand(newMintAttachCommand(opts))
	cmd.AddCommand(newMintReconcileCommand(opts))
	cmd.AddCommand(newMintPendingCommand(opts))
	cmd.AddCommand(newMintShowCommand(opts))
	cmd.AddCommand(newMintHistoryCommand(opts))
	return cmd
}

type mintCreateOptions struct {
	ContentAddress string
	File           string
	Title          string
	Description    string
}

func newMintCreateCommand(opts *RootOptions) *cobra.Command {
	create := &mintCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create, commit and finalize a new resource",
		Example: `  eduverse mint create --title "Thermodynamics" --content-address ipfs://bafy... --file lecture.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := mint.Input{
				Title:          create.Title,
				Description:    create.Description,
				ContentAddress: create.ContentAddress,
			}
			if create.File != "" {
				content, err := os.ReadFile(create.File)
				if err != nil {
					return WrapExitError(ExitCommandError, "read content file", err)
				}
				in.Content = content
				in.FileName = filepath.Base(create.File)
				in.ContentType = mime.TypeByExtension(filepath.Ext(create.File))
			}
			return opts.runSaga(cmd, func(ctx context.Context, saga *mint.Saga, owner string) (*model.Record, error) {
				in.Owner = owner
				return saga.Mint(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&create.ContentAddress, "content-address", "", "content address of the uploaded resource (required)")
	_ = cmd.MarkFlagRequired("content-address")
	cmd.Flags().StringVar(&create.Title, "title", "", "resource title (required)")
	_ = cmd.MarkFlagRequired("title")
	cmd.Flags().StringVar(&create.File, "file", "", "content file to upload with the record")
	cmd.Flags().StringVar(&create.Description, "description", "", "resource description")
	return cmd
}

func newMintRetryCommitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-commit ID",
		Short: "Re-run the ledger commit for a created record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSaga(cmd, func(ctx context.Context, saga *mint.Saga, _ string) (*model.Record, error) {
				return saga.RetryCommit(ctx, args[0])
			})
		},
	}
}

func newMintRetryFinalizeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-finalize ID",
		Short: "Attach the ledger reference of a committed record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSaga(cmd, func(ctx context.Context, saga *mint.Saga, _ string) (*model.Record, error) {
				return saga.RetryFinalize(ctx, args[0])
			})
		},
	}
}

func newMintAttachCommand(opts *RootOptions) *cobra.Command {
	var ref model.LedgerReference
	cmd := &cobra.Command{
		Use:   "attach ID",
		Short: "Attach a known ledger reference by hand",
		Long: `Attach records a token id and transaction hash found outside the client,
for example in a block explorer, and finalizes the record with them.

A record whose mint transaction confirmed without a mint event can only be
finished this way, and only with that transaction's hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSaga(cmd, func(ctx context.Context, saga *mint.Saga, _ string) (*model.Record, error) {
				return saga.AttachLedgerReference(ctx, args[0], ref)
			})
		},
	}
	cmd.Flags().StringVar(&ref.TokenID, "token-id", "", "minted token id (required)")
	_ = cmd.MarkFlagRequired("token-id")
	cmd.Flags().StringVar(&ref.TxHash, "tx", "", "mint transaction hash (required)")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func newMintReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile ID",
		Short: "Find out whether an interrupted commit reached the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSaga(cmd, func(ctx context.Context, saga *mint.Saga, _ string) (*model.Record, error) {
				return saga.Reconcile(ctx, args[0])
			})
		},
	}
}

func newMintPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List records that have not been finalized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Store.List(commandContext(cmd))
			if err != nil {
				return WrapExitError(exitCodeFor(err), "list records", err)
			}
			views := make([]recordView, 0, len(records))
			lines := make([]string, 0, len(records))
			for _, r := range records {
				if r.Done() {
					continue
				}
				v := viewRecord(r)
				views = append(views, v)
				lines = append(lines, v.String())
			}
			text := strings.Join(lines, "\n")
			if len(views) == 0 {
				text = "No unfinished mints"
			}
			return opts.formatter(cmd).Success(views, text)
		},
	}
}

func newMintShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one saga record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			record, err := app.Store.Get(commandContext(cmd), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "record "+args[0], err)
			}
			v := viewRecord(record)
			return opts.formatter(cmd).Success(v, v.String())
		},
	}
}

func newMintHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show the journaled events of one saga record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Journal == nil {
				return NewExitError(ExitCommandError, "event history needs the sqlite mint store")
			}
			events, err := app.Journal.History(commandContext(cmd), args[0])
			if err != nil {
				return WrapExitError(exitCodeFor(err), "read history", err)
			}
			lines := make([]string, 0, len(events))
			for _, ev := range events {
				lines = append(lines, fmt.Sprintf("%s  %-12s %v", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Topic, ev.Data))
			}
			text := strings.Join(lines, "\n")
			if len(events) == 0 {
				text = "No events for " + args[0]
			}
			return opts.formatter(cmd).Success(events, text)
		},
	}
}

// runSaga opens the client, signs in and runs one saga operation. A phase
// failure prints the surviving record and its recovery before returning.
func (o *RootOptions) runSaga(cmd *cobra.Command, run func(ctx context.Context, saga *mint.Saga, owner string) (*model.Record, error)) error {
	app, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	saga, err := app.RequireSaga()
	if err != nil {
		return WrapExitError(ExitCommandError, "minting unavailable", err)
	}
	ctx := commandContext(cmd)
	session, err := o.session(ctx, app)
	if err != nil {
		return WrapExitError(ExitAuth, "not signed in", err)
	}
	owner := ""
	if session.Identity != nil {
		owner = session.Identity.ID
	}

	record, err := run(ctx, saga, owner)
	out := o.formatter(cmd)
	if err != nil {
		if pe, ok := mint.AsPhaseError(err); ok {
			details := map[string]any{"step": pe.Step, "action": pe.Action()}
			if pe.Record != nil {
				details["record"] = viewRecord(pe.Record)
			}
			if pe.Ledger != nil {
				details["ledger"] = pe.Ledger
			}
			_ = out.Error(err, details)
		}
		return WrapExitError(exitCodeFor(err), "mint failed", err)
	}
	v := viewRecord(record)
	return out.Success(v, v.String())
}
