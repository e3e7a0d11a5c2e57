package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"eduverse-client-go/internal/domain/resource"
)

type searchOptions struct {
	Size int
	All  bool
}

// NewSearchCommand creates the search command.
func NewSearchCommand(opts *RootOptions) *cobra.Command {
	search := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [TEXT]",
		Short: "Search learning resources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			if _, err := opts.session(ctx, app); err != nil {
				return WrapExitError(ExitAuth, "not signed in", err)
			}

			catalog := resource.NewCatalog(app.Resources, nil)
			defer catalog.Close()

			query := resource.Query{Size: search.Size}
			if len(args) == 1 {
				query.Text = args[0]
			}
			catalog.Search(ctx, query)
			catalog.Wait()
			for search.All && catalog.LoadMore(ctx) {
				catalog.Wait()
			}

			page, err := catalog.Current()
			if err != nil {
				return WrapExitError(exitCodeFor(err), "search failed", err)
			}
			return opts.formatter(cmd).Success(page, renderPage(page))
		},
	}
	cmd.Flags().IntVar(&search.Size, "size", 20, "results per page")
	cmd.Flags().BoolVar(&search.All, "all", false, "fetch every page")
	return cmd
}

func renderPage(page resource.Page) string {
	if len(page.Items) == 0 {
		return "No resources found"
	}
	var b strings.Builder
	for _, r := range page.Items {
		minted := "-"
		if r.Minted() {
			minted = "token " + r.TokenID
		}
		fmt.Fprintf(&b, "%s  %s  %s  (%s)\n", r.ID, r.Title, r.ContentAddress, minted)
	}
	fmt.Fprintf(&b, "%d of %d", len(page.Items), page.Total)
	return b.String()
}
