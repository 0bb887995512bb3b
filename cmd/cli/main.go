package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourusername/url-relay-go/internal/app"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
)

var (
	serverURL   string
	noAutoStart bool
	relayConfig string
	userID      int64
	rootCmd     = &cobra.Command{
		Use:           "url-relay",
		Short:         "url-relay CLI - fetch HTTP files, media pages and torrents",
		Long:          `A command-line interface for the url-relay server, plus an in-process fetch command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().StringVar(&relayConfig, "relay-config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().Int64VarP(&userID, "user", "u", 1, "User ID the acquisition belongs to")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(activeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(fetchCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [locator]",
	Short: "Start an acquisition on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		filename, _ := cmd.Flags().GetString("name")

		var task domain.ActiveTask
		err := call(http.MethodPost, "/api/v1/acquisitions", map[string]interface{}{
			"user_id":  userID,
			"locator":  args[0],
			"filename": filename,
		}, &task)
		if err != nil {
			return err
		}

		fmt.Printf("Acquisition started!\n")
		fmt.Printf("ID:      %s\n", task.ID)
		fmt.Printf("Locator: %s\n", task.Locator)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show the state of an acquisition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		var status app.TaskStatus
		if err := call(http.MethodGet, "/api/v1/acquisitions/"+url.PathEscape(args[0]), nil, &status); err != nil {
			return err
		}

		fmt.Printf("Acquisition Details:\n")
		fmt.Printf("  ID:      %s\n", status.ID)
		fmt.Printf("  User:    %d\n", status.UserID)
		fmt.Printf("  Locator: %s\n", status.Locator)
		fmt.Printf("  State:   %s\n", status.State)
		fmt.Printf("  Started: %s\n", status.StartedAt.Format("2006-01-02 15:04:05"))
		if status.Path != "" {
			fmt.Printf("  File:    %s\n", status.Path)
		}
		if status.Size > 0 {
			fmt.Printf("  Size:    %s\n", format.Bytes(status.Size))
		}
		if status.Error != "" {
			fmt.Printf("  Error:   %s\n", status.Error)
		}
		return nil
	},
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the user's running acquisition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		var task domain.ActiveTask
		if err := call(http.MethodGet, userPath("active"), nil, &task); err != nil {
			return err
		}

		fmt.Printf("%s  %s  (started %s)\n", task.ID, task.Locator, task.StartedAt.Format("15:04:05"))
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the user's running acquisition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		if err := call(http.MethodPost, userPath("cancel"), nil, nil); err != nil {
			return err
		}
		fmt.Println("Cancellation requested")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the user's recent acquisitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")

		var records []domain.AcquisitionRecord
		if err := call(http.MethodGet, userPath("history")+"?limit="+strconv.Itoa(limit), nil, &records); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLOCATOR\tKIND\tSTATUS\tSIZE\tCOMPLETED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(r.ID, 8),
				truncate(r.Locator, 40),
				r.Kind,
				r.Status,
				format.Bytes(r.Size),
				r.CompletedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show acquisition statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		mine, _ := cmd.Flags().GetBool("mine")

		path := "/api/v1/stats"
		if mine {
			path += "?user_id=" + strconv.FormatInt(userID, 10)
		}

		var stats domain.AcquisitionStats
		if err := call(http.MethodGet, path, nil, &stats); err != nil {
			return err
		}

		fmt.Println("Acquisition Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Cancelled:  %d\n", stats.Cancelled)
		fmt.Printf("  Downloaded: %s\n", format.Bytes(stats.TotalBytes))
		if !mine {
			fmt.Printf("  Users:      %d\n", stats.Users)
		}
		for source, count := range stats.BySource {
			fmt.Printf("  %-12s%d\n", source+":", count)
		}
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [locator]",
	Short: "Show how a locator would be routed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")

		var loc domain.Locator
		if local {
			loc = domain.NewClassifier(nil).Classify(args[0])
		} else {
			ensureServer()
			if err := call(http.MethodPost, "/api/v1/classify", map[string]string{"locator": args[0]}, &loc); err != nil {
				return err
			}
		}

		fmt.Printf("Kind: %s\n", loc.Kind)
		if loc.IsValid() {
			fmt.Printf("URL:  %s\n", loc.URL)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("name", "n", "", "Desired file name for direct downloads")
	historyCmd.Flags().IntP("limit", "l", 20, "Number of records to show")
	statsCmd.Flags().Bool("mine", false, "Only count the --user's acquisitions")
	classifyCmd.Flags().Bool("local", false, "Classify with the built-in media list, without the server")
}

func userPath(action string) string {
	return "/api/v1/users/" + strconv.FormatInt(userID, 10) + "/" + action
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
