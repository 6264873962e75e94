package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liverow/liverow"
)

func newQueryCmd() *cobra.Command {
	var (
		whereJSON string
		columns   []string
		order     string
		limit     int
		offset    int
		showSQL   bool
	)

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Run an ad-hoc select against one table",
		Long: `Run a select against the named table and print the matching rows as JSON.
The --where flag takes a JSON object of field conditions; keys may carry an
operator suffix ("age >", "name LIKE").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			queryArgs := []any{}
			if whereJSON != "" {
				var where map[string]any
				if err := json.Unmarshal([]byte(whereJSON), &where); err != nil {
					return fmt.Errorf("invalid --where JSON: %w", err)
				}
				queryArgs = append(queryArgs, where)
			}
			if len(columns) > 0 {
				queryArgs = append(queryArgs, liverow.Columns(columns...))
			}
			if order != "" {
				queryArgs = append(queryArgs, liverow.OrderBy(order))
			}
			if limit > 0 {
				queryArgs = append(queryArgs, liverow.Limit(limit))
			}
			if offset > 0 {
				queryArgs = append(queryArgs, liverow.Offset(offset))
			}

			var sqlText string
			if showSQL {
				queryArgs = append(queryArgs, liverow.Capture(&sqlText))
			}

			rows, err := sess.AllRows(cmd.Context(), args[0], queryArgs...)
			if err != nil {
				return err
			}

			if showSQL {
				fmt.Fprintf(cmd.ErrOrStderr(), "-- %s\n", sqlText)
			}

			out := make([]map[string]any, 0, len(rows))
			for _, row := range rows {
				data, err := row.Data()
				if err != nil {
					return err
				}
				out = append(out, data)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&whereJSON, "where", "", "JSON object of field conditions")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to project (default all)")
	cmd.Flags().StringVar(&order, "order", "", "order-by clause, e.g. \"created_at DESC\"")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the generated SQL to stderr")

	return cmd
}
