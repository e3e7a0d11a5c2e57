package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"eduverse-client-go/internal/bootstrap"
	"eduverse-client-go/internal/platform/storage"
)

type migrationView struct {
	Version   string `json:"version"`
	Name      string `json:"name"`
	AppliedAt string `json:"appliedAt"`
}

// NewDBCommand creates the db command group for the local sqlite database.
func NewDBCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and repair the local mint database",
		Long: `The local database holds mint records and the event journal when
mint.store.type is sqlite. Every command applies pending migrations first.`,
	}
	cmd.AddCommand(newDBStatusCommand(opts))
	cmd.AddCommand(newDBRollbackCommand(opts))
	return cmd
}

func newDBStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied schema migrations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			manager, err := schemaManager(app)
			if err != nil {
				return err
			}
			history, err := manager.GetMigrationHistory()
			if err != nil {
				return WrapExitError(exitCodeFor(err), "read migration history", err)
			}

			views := make([]migrationView, 0, len(history))
			lines := make([]string, 0, len(history))
			for _, record := range history {
				v := migrationView{
					Version:   record.Version,
					Name:      record.Name,
					AppliedAt: record.AppliedAt.Format("2006-01-02 15:04:05"),
				}
				views = append(views, v)
				lines = append(lines, fmt.Sprintf("%s  %-24s %s", v.AppliedAt, v.Version, v.Name))
			}
			return opts.formatter(cmd).Success(views, strings.Join(lines, "\n"))
		},
	}
}

func newDBRollbackCommand(opts *RootOptions) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "rollback VERSION",
		Short: "Revert one schema migration",
		Long: `Rollback reverts VERSION and forgets it was applied. The next command
applies it again, so this rebuilds what VERSION created: rolling back
002_domain_events empties the event journal, for example.

Data held by the reverted schema is lost, so --yes is required.`,
		Example: `  eduverse db rollback 002_domain_events --yes`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return NewExitError(ExitCommandError, "rollback discards data; pass --yes to confirm")
			}
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			manager, err := schemaManager(app)
			if err != nil {
				return err
			}
			if err := manager.RollbackMigration(args[0]); err != nil {
				return WrapExitError(exitCodeFor(err), "rollback "+args[0], err)
			}
			return opts.formatter(cmd).Success(map[string]string{"rolledBack": args[0]}, "Rolled back "+args[0])
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm that data held by the migration may be lost")
	return cmd
}

func schemaManager(app *bootstrap.App) (*storage.MigrationManager, error) {
	if app.DB == nil {
		return nil, NewExitError(ExitCommandError, "the local database needs the sqlite mint store")
	}
	return storage.NewSchemaManager(app.DB), nil
}
