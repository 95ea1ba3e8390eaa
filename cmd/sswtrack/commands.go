package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sswtrack/sswtrack/internal/api"
	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/config"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/storage"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDays(d int) string {
	if d == compliance.NoDate {
		return "-"
	}
	return strconv.Itoa(d)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- staff ---

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "List, register and inspect staff",
}

var staffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staff with their compliance status",
	RunE: func(cmd *cobra.Command, args []string) error {
		archived, _ := cmd.Flags().GetBool("archived")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/staff?archived="+strconv.FormatBool(archived))
		if err != nil {
			return err
		}
		var list []roster.StaffStatus
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if asJSON {
			return printJSON(os.Stdout, list)
		}
		if len(list) == 0 {
			printWarning("No staff registered")
			return nil
		}
		renderRoster(os.Stdout, list)
		return nil
	},
}

func renderRoster(w io.Writer, list []roster.StaffStatus) {
	t := table{header: []string{"ID", "NAME", "SECTOR", "ENTRY", "EXPIRY", "DAYS", "PHASE", "URGENCY"}}
	for _, s := range list {
		t.rows = append(t.rows, []string{
			shortID(s.Staff.ID),
			s.Staff.Name,
			s.Staff.Sector,
			compliance.FormatDate(s.Staff.EntryDate),
			compliance.FormatDate(s.Staff.ResidenceExpiry),
			formatDays(s.Status.DaysUntilExpiry),
			string(s.Status.Phase),
			urgencyLabel(s.Status.Urgency),
		})
	}
	t.style = func(row, col int) (lipgloss.Style, bool) {
		if col != 7 {
			return lipgloss.Style{}, false
		}
		return urgencyStyle(list[row].Status.Urgency), true
	}
	t.write(w)
}

var staffAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a staff member",
	Long: `Register a staff member. The residence expiry starts at one year after entry.

Examples:
  sswtrack staff add --name "Nguyen Van A" --sector kaigo --entry 2025-04-01 --nationality Vietnam`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		entry, _ := cmd.Flags().GetString("entry")
		if name == "" || entry == "" {
			return fmt.Errorf("--name and --entry are required")
		}
		if compliance.ParseDate(entry).IsZero() {
			return fmt.Errorf("--entry must be a YYYY-MM-DD date, got %q", entry)
		}
		sector, _ := cmd.Flags().GetString("sector")
		nationality, _ := cmd.Flags().GetString("nationality")
		kana, _ := cmd.Flags().GetString("kana")
		facility, _ := cmd.Flags().GetString("facility")
		memo, _ := cmd.Flags().GetString("memo")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/staff", map[string]string{
			"name":        name,
			"name_kana":   kana,
			"nationality": nationality,
			"sector":      sector,
			"entry_date":  entry,
			"facility_id": facility,
			"memo":        memo,
		})
		if err != nil {
			return err
		}
		var st storage.Staff
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		printSuccess("Registered %s (%s), residence expiry %s", st.Name, st.ID, compliance.FormatDate(st.ResidenceExpiry))
		return nil
	},
}

var staffShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one staff member's compliance status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/staff/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var st roster.StaffStatus
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		if asJSON {
			return printJSON(os.Stdout, st)
		}
		renderStaffStatus(os.Stdout, st)
		return nil
	},
}

func renderStaffStatus(w io.Writer, st roster.StaffStatus) {
	line := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", colorize(boldStyle, label+":"), value)
	}
	line("Name", st.Staff.Name)
	line("Sector", st.Staff.Sector)
	line("Status", st.Staff.Status)
	line("Entry", compliance.FormatDate(st.Staff.EntryDate))
	line("Residence expiry", fmt.Sprintf("%s (%s days)", compliance.FormatDate(st.Staff.ResidenceExpiry), formatDays(st.Status.DaysUntilExpiry)))
	line("Phase", string(st.Status.Phase))
	line("Urgency", colorize(urgencyStyle(st.Status.Urgency), urgencyLabel(st.Status.Urgency)))
	if st.Status.NextAction != compliance.ActionNone {
		line("Next action", string(st.Status.NextAction))
	}
	for _, wn := range st.Status.Warnings {
		fmt.Fprintf(w, "  %s %s\n", colorize(urgencyStyle(wn.Severity), "["+urgencyLabel(wn.Severity)+"]"), wn.Message)
	}
}

func init() {
	staffListCmd.Flags().Bool("archived", false, "include archived staff")
	staffListCmd.Flags().Bool("json", false, "print JSON")
	staffShowCmd.Flags().Bool("json", false, "print JSON")

	staffAddCmd.Flags().String("name", "", "full name")
	staffAddCmd.Flags().String("kana", "", "name in katakana")
	staffAddCmd.Flags().String("nationality", "", "nationality")
	staffAddCmd.Flags().String("sector", "kaigo", "sector: kaigo or gaishoku")
	staffAddCmd.Flags().String("entry", "", "entry date (YYYY-MM-DD)")
	staffAddCmd.Flags().String("facility", "", "facility ID")
	staffAddCmd.Flags().String("memo", "", "free-form memo")

	staffCmd.AddCommand(staffListCmd, staffAddCmd, staffShowCmd)
}

// --- tasks ---

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List open compliance tasks, most urgent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		urgency, _ := cmd.Flags().GetString("urgency")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/tasks")
		if err != nil {
			return err
		}
		var tasks []compliance.Task
		if err := decodeJSON(resp, &tasks); err != nil {
			return err
		}
		tasks = filterTasks(tasks, compliance.Severity(urgency))

		if asJSON {
			return printJSON(os.Stdout, tasks)
		}
		if len(tasks) == 0 {
			printSuccess("No open tasks")
			return nil
		}
		renderTasks(os.Stdout, tasks)
		return nil
	},
}

func filterTasks(tasks []compliance.Task, urgency compliance.Severity) []compliance.Task {
	if urgency == "" {
		return tasks
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.Urgency == urgency {
			out = append(out, t)
		}
	}
	return out
}

func renderTasks(w io.Writer, tasks []compliance.Task) {
	t := table{header: []string{"URGENCY", "STAFF", "TASK", "DUE", "DAYS"}}
	for _, task := range tasks {
		t.rows = append(t.rows, []string{
			urgencyLabel(task.Urgency),
			task.StaffName,
			task.Message,
			compliance.FormatDate(task.Due),
			formatDays(task.Days),
		})
	}
	t.style = func(row, col int) (lipgloss.Style, bool) {
		if col != 0 {
			return lipgloss.Style{}, false
		}
		return urgencyStyle(tasks[row].Urgency), true
	}
	t.write(w)
}

func init() {
	tasksCmd.Flags().String("urgency", "", "only show critical, warning or normal tasks")
	tasksCmd.Flags().Bool("json", false, "print JSON")
}

// --- dashboard ---

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show facility-wide counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/dashboard")
		if err != nil {
			return err
		}
		var d compliance.Dashboard
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}
		renderDashboard(os.Stdout, d)
		return nil
	},
}

func renderDashboard(w io.Writer, d compliance.Dashboard) {
	row := func(label string, n int, style lipgloss.Style) {
		fmt.Fprintf(w, "  %s %s\n", colorize(boldStyle, label+":"), colorize(style, strconv.Itoa(n)))
	}
	row("在籍", d.Active, boldStyle)
	row("期限間近 (90日以内)", d.ExpiringSoon, cautionStyle)
	row("訪問系対応可", d.VisitCareReady, normalStyle)
	row("退職手続き中", d.Exiting, boldStyle)
	row("緊急タスク", d.Critical, criticalStyle)
	row("注意タスク", d.Warning, cautionStyle)
	row("通常タスク", d.Normal, normalStyle)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the roster as an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = fmt.Sprintf("roster-%s.xlsx", time.Now().Format("20060102"))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/export/roster.xlsx")
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return decodeJSON(resp, nil)
		}
		defer resp.Body.Close()

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		n, err := io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}

		printSuccess("Roster exported to %s (%d bytes)", output, n)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file path (default: roster-YYYYMMDD.xlsx)")
}

// --- remind ---

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Queue a reminder digest to every owner and admin",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/reminders/digest", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued reminder digest %s", result["id"])
		return nil
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the read-only roster tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		svc, _, err := newRoster(cfg, store)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		stdio := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Roster: svc}))
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(boldStyle, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
