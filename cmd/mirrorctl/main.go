package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codeberg.org/graphmirror/graphmirror/pkg/report"
)

var serverAddr string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "mirrorctl",
		Short: "mirrorctl controls the directory mirror service",
		Long:  `A command line tool to trigger syncs and pull reports from a directory mirror server.`,
	}

	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8080", "The address and port of the mirror API server")

	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newReportsCommand())
	rootCmd.AddCommand(newReportCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [resource]",
		Short: "Trigger a delta sync for users, groups or teams",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resources := []string{"users", "groups", "teams"}
			if len(args) == 1 {
				resources = []string{args[0]}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "RESOURCE\tADDED\tUPDATED\tDELETED")
			for _, resource := range resources {
				resp, err := http.Post(serverAddr+"/sync/"+resource, "application/json", nil)
				if err != nil {
					fmt.Printf("Error connecting to server: %v\n", err)
					return
				}

				if resp.StatusCode != http.StatusOK {
					body, _ := io.ReadAll(resp.Body)
					resp.Body.Close()
					fmt.Printf("Error from server (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
					return
				}

				var result struct {
					Resource string `json:"resource"`
					Added    int    `json:"added"`
					Updated  int    `json:"updated"`
					Deleted  int    `json:"deleted"`
				}
				err = json.NewDecoder(resp.Body).Decode(&result)
				resp.Body.Close()
				if err != nil {
					fmt.Printf("Error decoding server response: %v\n", err)
					return
				}

				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", result.Resource, result.Added, result.Updated, result.Deleted)
			}
			w.Flush()
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync checkpoints and recent runs",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := http.Get(serverAddr + "/sync/status")
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Error: Server returned %d\n", resp.StatusCode)
				return
			}

			var status struct {
				Checkpoints []struct {
					Resource     string `json:"resource"`
					LastSyncedAt string `json:"lastSyncedAt"`
				} `json:"checkpoints"`
				RecentRuns []struct {
					Resource     string `json:"resource"`
					SyncedAt     string `json:"syncedAt"`
					Added        int    `json:"added"`
					Updated      int    `json:"updated"`
					Deleted      int    `json:"deleted"`
					Status       string `json:"status"`
					ErrorMessage string `json:"errorMessage"`
				} `json:"recentRuns"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "RESOURCE\tLAST SYNCED")
			for _, cp := range status.Checkpoints {
				fmt.Fprintf(w, "%s\t%s\n", cp.Resource, cp.LastSyncedAt)
			}
			w.Flush()

			if len(status.RecentRuns) == 0 {
				return
			}

			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "RESOURCE\tSYNCED\tADDED\tUPDATED\tDELETED\tSTATUS")
			for _, run := range status.RecentRuns {
				st := run.Status
				if run.ErrorMessage != "" {
					st = fmt.Sprintf("%s (%s)", run.Status, run.ErrorMessage)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					run.Resource, run.SyncedAt, run.Added, run.Updated, run.Deleted, st)
			}
			w.Flush()
		},
	}
}

func newReportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reports [resource]",
		Short: "List the reports available for a resource",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			names := report.Names(args[0])
			if len(names) == 0 {
				fmt.Printf("Error: Unknown resource %q\n", args[0])
				return
			}
			for _, name := range names {
				fmt.Println(name)
			}
		},
	}
}

func newReportCommand() *cobra.Command {
	var (
		page    int
		all     bool
		search  string
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "report [resource] [name]",
		Short: "Run a report and print the records",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			params := url.Values{}
			if all {
				params.Set("page", "all")
			} else if page > 1 {
				params.Set("page", fmt.Sprint(page))
			}
			if search != "" {
				params.Set("search", search)
			}
			for _, f := range filters {
				key, value, ok := strings.Cut(f, "=")
				if !ok {
					fmt.Printf("Error: filter %q is not key=value\n", f)
					return
				}
				params.Add(key, value)
			}

			endpoint := fmt.Sprintf("%s/report/%s/%s", serverAddr, args[0], args[1])
			if len(params) > 0 {
				endpoint += "?" + params.Encode()
			}

			resp, err := http.Get(endpoint)
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				fmt.Printf("Error from server (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
				return
			}

			var result struct {
				Page         int              `json:"page"`
				TotalPages   int              `json:"totalPages"`
				TotalRecords int              `json:"totalRecords"`
				Records      []map[string]any `json:"records"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}

			if len(result.Records) == 0 {
				fmt.Println("No records found")
				return
			}

			fields := recordFields(result.Records)
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, strings.ToUpper(strings.Join(fields, "\t")))
			for _, record := range result.Records {
				row := make([]string, len(fields))
				for i, field := range fields {
					row[i] = formatCell(record[field])
				}
				fmt.Fprintln(w, strings.Join(row, "\t"))
			}
			w.Flush()

			fmt.Printf("\nPage %d of %d (%d records)\n", result.Page, result.TotalPages, result.TotalRecords)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Result page to fetch")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Fetch every record instead of a single page")
	cmd.Flags().StringVar(&search, "search", "", "Search term matched across the report's text columns")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Report filter as key=value, repeatable")
	return cmd
}

func recordFields(records []map[string]any) []string {
	seen := map[string]bool{}
	var fields []string
	for _, record := range records {
		for field := range record {
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}
