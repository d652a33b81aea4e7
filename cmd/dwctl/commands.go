package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/warehouse-ai/internal/app"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
	"github.com/seanankenbruck/warehouse-ai/internal/processor"
	"github.com/seanankenbruck/warehouse-ai/internal/semantic"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the catalog index and print its size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.Catalog.Stats()
			summary := map[string]interface{}{
				"catalog":    a.Config.Catalog.Path,
				"datasets":   stats.Datasets,
				"tables":     stats.Tables,
				"columns":    stats.Columns,
				"objects":    a.Index.Len(),
				"dimensions": a.Index.Dimensions(),
			}
			if opts.asJSON {
				return opts.printJSON(cmd.OutOrStdout(), summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog:    %s\n", a.Config.Catalog.Path)
			fmt.Fprintf(out, "Datasets:   %d\n", stats.Datasets)
			fmt.Fprintf(out, "Tables:     %d\n", stats.Tables)
			fmt.Fprintf(out, "Columns:    %d\n", stats.Columns)
			fmt.Fprintf(out, "Objects:    %d\n", a.Index.Len())
			fmt.Fprintf(out, "Dimensions: %d\n", a.Index.Dimensions())
			return nil
		},
	}
}

func printRetrieval(cmd *cobra.Command, opts *globalOptions, result *semantic.RetrievalResult) error {
	if opts.asJSON {
		return opts.printJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	if result.IsEmpty() {
		fmt.Fprintln(out, "No relevant schema objects found")
		return nil
	}
	for i, table := range result.Tables {
		fmt.Fprintf(out, "%d. %s (table score %.1f)\n", i+1, table.QualifiedName(), table.TableScore)
		for _, column := range table.Columns {
			fmt.Fprintf(out, "     %-24s %.4f\n", column.Name, column.Score)
		}
	}
	return nil
}

func newRetrieveCmd(opts *globalOptions) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Show the tables and columns retrieved for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Retriever.Retrieve(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			return printRetrieval(cmd, opts, result)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of tables to keep (default TOPK_OBJECTS)")
	return cmd
}

func newSQLCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sql <question>",
		Short: "Generate and validate the SQL for a question without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sql, retrieval, err := a.Processor.GenerateSQL(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if opts.asJSON {
				return opts.printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"sql":     sql,
					"sources": retrieval.Sources(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), sql)
			return nil
		},
	}
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var userID, department, lang string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question end to end against the warehouse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Processor.ProcessQuery(cmd.Context(), &processor.QueryRequest{
				UserID:     userID,
				Department: department,
				Prompt:     strings.Join(args, " "),
				Lang:       lang,
			})
			if err != nil {
				return err
			}
			if opts.asJSON {
				return opts.printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)
			fmt.Fprintf(out, "\nSources: %s\nRows: %d\n", strings.Join(resp.Sources, ", "), resp.RowCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "dwctl", "user id recorded with the question")
	cmd.Flags().StringVar(&department, "department", "", "department of the asking user")
	cmd.Flags().StringVar(&lang, "lang", "", "answer language (default DEFAULT_LANG)")
	return cmd
}

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write the catalog index to the Postgres snapshot database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := app.OpenSnapshotStore(cmd.Context(), a.Config)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveSnapshot(cmd.Context(), a.Index.Objects()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d objects\n", a.Index.Len())
			return nil
		},
	}
	cmd.AddCommand(newSnapshotSearchCmd(opts))
	return cmd
}

func newSnapshotSearchCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Find the stored objects nearest to a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := app.OpenSnapshotStore(cmd.Context(), a.Config)
			if err != nil {
				return err
			}
			defer store.Close()

			vectors, err := a.Embedder.Embed(cmd.Context(), []string{strings.Join(args, " ")})
			if err != nil {
				return err
			}
			matches, err := store.NearestObjects(cmd.Context(), vectors[0], limit)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return opts.printJSON(cmd.OutOrStdout(), matches)
			}
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %-8s %s\n", m.Similarity, m.Object.Kind, m.Object.QualifiedName())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of objects to return")
	return cmd
}

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the health checks of the query processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			response := a.Health.GetHealthResponse(cmd.Context())
			if opts.asJSON {
				if err := opts.printJSON(cmd.OutOrStdout(), response); err != nil {
					return err
				}
			} else {
				names := make([]string, 0, len(response.Checks))
				for name := range response.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					check := response.Checks[name]
					fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-10s %s\n", name, check.Status, check.Message)
				}
			}
			if response.Status != observability.HealthStatusHealthy {
				return fmt.Errorf("status %s", response.Status)
			}
			return nil
		},
	}
}
