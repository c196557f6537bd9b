package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrollment records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		records, err := a.svc.List(cmd.Context())
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), records)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <identity>",
	Short: "Show one enrollment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.svc.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("show %s: %w", args[0], err)
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find a record by identity or name",
	Long: `Find a single record. The query is tried as an exact identity, then as an
identity ignoring case, then as part of the full name ignoring case and accents.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.svc.FindCandidate(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("search %q: %w", args[0], err)
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <identity>",
	Short: "Delete an enrollment record and its thumbnail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.svc.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, searchCmd, deleteCmd)
}
