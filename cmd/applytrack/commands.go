package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/applytrack/internal/config"
	"github.com/kalambet/applytrack/internal/jobs"
	"github.com/kalambet/applytrack/internal/reminder"
	"github.com/kalambet/applytrack/internal/tracker"
)

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage tracked job applications",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if query != "" {
			q.Set("q", query)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/jobs"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var list []tracker.JobApplication
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		printJobs(stdout, list)
		return nil
	},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <title> <company>",
	Short: "Track a new job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		nj := jobs.NewJob{Title: args[0], Company: args[1]}
		nj.Location, _ = cmd.Flags().GetString("location")
		nj.Type, _ = cmd.Flags().GetString("type")
		nj.URL, _ = cmd.Flags().GetString("url")
		nj.Salary, _ = cmd.Flags().GetString("salary")
		if saved, _ := cmd.Flags().GetBool("save"); saved {
			nj.Status = tracker.StatusSaved
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/jobs", nj)
		if err != nil {
			return err
		}
		var job tracker.JobApplication
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printSuccess("Added %s at %s (%s)", job.Title, job.Company, job.ID)
		return nil
	},
}

var jobsApplyCmd = &cobra.Command{
	Use:   "apply <id>",
	Short: "Mark a job as applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/jobs/"+args[0]+"/apply", nil)
		if err != nil {
			return err
		}
		var job tracker.JobApplication
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printSuccess("Applied to %s at %s", job.Title, job.Company)
		return nil
	},
}

var jobsNoteCmd = &cobra.Command{
	Use:   "note <id> <text...>",
	Short: "Add a note to a job's timeline",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		resp, err := client.post(cmd.Context(), "/jobs/"+args[0]+"/notes", map[string]string{"text": text})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Note added")
		return nil
	},
}

var jobsMoveCmd = &cobra.Command{
	Use:   "move <id> <column>",
	Short: "Move a job to another board column",
	Long: `Move a job to another board column and record the matching timeline event.

Columns: saved, applied, interviewing, rejected, offered`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := tracker.Column(args[1])
		if _, ok := tracker.StatusForColumn(target); !ok {
			return fmt.Errorf("unknown column %q", args[1])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}
		var job tracker.JobApplication
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		from, _ := tracker.ColumnForStatus(job.Status)

		resp, err = client.post(cmd.Context(), "/board/move", tracker.DragResult{
			DraggableID: job.ID,
			Source:      tracker.Position{Column: from},
			Destination: &tracker.Position{Column: target},
		})
		if err != nil {
			return err
		}
		var res jobs.MoveResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if res.Event == nil {
			printWarning("%s is already in %s", job.Title, target)
			return nil
		}
		printSuccess("Moved %s to %s", job.Title, target)
		return nil
	},
}

var jobsTimelineCmd = &cobra.Command{
	Use:   "timeline <id>",
	Short: "Show a job's status timeline, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs/"+args[0]+"/timeline")
		if err != nil {
			return err
		}
		var entries []timelineEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		printTimeline(stdout, entries)
		return nil
	},
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Create a job from a posting page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/jobs/import", map[string]string{"url": args[0]})
		if err != nil {
			return err
		}
		var job tracker.JobApplication
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printSuccess("Imported %s at %s (%s)", job.Title, job.Company, job.ID)
		return nil
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <id> <file.pdf>",
	Short: "Attach a PDF resume to a job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("opening resume: %w", err)
		}
		defer f.Close()

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/jobs/" + args[0] + "/resume?name=" + url.QueryEscape(filepath.Base(args[1]))
		resp, err := client.upload(cmd.Context(), path, "application/pdf", f)
		if err != nil {
			return err
		}
		var job tracker.JobApplication
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printSuccess("Attached %s (%d characters extracted)", job.Resume, len(job.ResumeText))
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by status (saved, applied, interviewing, rejected, offered, none)")
	jobsListCmd.Flags().String("query", "", "match title, company or location")
	jobsListCmd.Flags().Int("limit", 0, "maximum number of jobs")

	jobsAddCmd.Flags().String("location", "", "job location")
	jobsAddCmd.Flags().String("type", "", "employment type")
	jobsAddCmd.Flags().String("url", "", "posting URL")
	jobsAddCmd.Flags().String("salary", "", "salary range")
	jobsAddCmd.Flags().Bool("save", false, "bookmark the job")

	jobsCmd.AddCommand(jobsListCmd, jobsAddCmd, jobsApplyCmd, jobsNoteCmd, jobsMoveCmd, jobsTimelineCmd, jobsImportCmd, jobsResumeCmd)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change reminder settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show reminder settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/settings/email")
		if err != nil {
			return err
		}
		var s reminder.EmailSettings
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSettings(stdout, s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one reminder setting",
	Long: `Change one reminder setting.

Keys: enabled, email_address, after_applied, after_interview,
application_reminders, interview_reminders, status_changes`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/settings/email")
		if err != nil {
			return err
		}
		var s reminder.EmailSettings
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		if err := applySetting(&s, args[0], args[1]); err != nil {
			return err
		}
		resp, err = client.put(cmd.Context(), "/settings/email", s)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

// applySetting assigns value to the settings field named key.
func applySetting(s *reminder.EmailSettings, key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean value for %s: %q", key, value)
		}
		return b, nil
	}
	parseDays := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count for %s: %q", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "enabled":
		s.Enabled, err = parseBool()
	case "email_address":
		s.EmailAddress = strings.TrimSpace(value)
	case "after_applied":
		s.FollowUpDays.AfterApplied, err = parseDays()
	case "after_interview":
		s.FollowUpDays.AfterInterview, err = parseDays()
	case "application_reminders":
		s.Notifications.ApplicationReminders, err = parseBool()
	case "interview_reminders":
		s.Notifications.InterviewReminders, err = parseBool()
	case "status_changes":
		s.Notifications.StatusChanges, err = parseBool()
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return err
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}

// --- reminders ---

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Inspect and deliver follow-up reminders",
}

var remindersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders ordered by due date",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/reminders?limit=%d", limit)
		if all {
			path += "&all=true"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var list []reminder.FollowUpEmail
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		printReminders(stdout, list)
		return nil
	},
}

var remindersProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Deliver every due reminder now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/reminders/process", nil)
		if err != nil {
			return err
		}
		var res reminder.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if res.Skipped {
			printWarning("Reminders are disabled or no email address is set")
			return nil
		}
		printSuccess("Delivered %d of %d due reminders", res.Sent, res.Due)
		if res.Failed > 0 {
			printWarning("%d deliveries failed", res.Failed)
		}
		return nil
	},
}

func init() {
	remindersListCmd.Flags().Bool("all", false, "include reminders already sent")
	remindersListCmd.Flags().Int("limit", 50, "maximum number of reminders")
	remindersCmd.AddCommand(remindersListCmd, remindersProcessCmd)
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

		asJSON, _ := cmd.Flags().GetBool("json")
		keys := config.ShowAll(cfg)
		if asJSON {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k.Key] = k.Value
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
			printError("valid keys: %s", strings.Join(config.ValidKeys(), ", "))
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print as JSON")
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
