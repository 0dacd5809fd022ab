package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kalambet/applytrack/internal/reminder"
	"github.com/kalambet/applytrack/internal/tracker"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var stdout io.Writer = os.Stdout

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusLabel(s tracker.Status) string {
	if s == tracker.StatusNone {
		return "-"
	}
	return string(s)
}

func printJobs(w io.Writer, list []tracker.JobApplication) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No jobs found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tCOMPANY\tLOCATION")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(j.ID), statusLabel(j.Status), j.Title, j.Company, j.Location)
	}
	tw.Flush()
}

type timelineEntry struct {
	tracker.StatusEvent
	Label string `json:"label"`
}

func printTimeline(w io.Writer, entries []timelineEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No events yet.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s", e.Date.Local().Format("2006-01-02 15:04"), colorize(colorBold, e.Label))
		if e.Notes != "" {
			line += "  " + e.Notes
		}
		if e.ContactPerson != "" {
			line += " (" + e.ContactPerson + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func printReminders(w io.Writer, list []reminder.FollowUpEmail) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No reminders.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DUE\tSENT\tTYPE\tSUBJECT")
	for _, e := range list {
		sent := "no"
		if e.Sent {
			sent = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.TriggerDate.Format("2006-01-02"), sent, e.EmailType, e.Subject)
	}
	tw.Flush()
}

func printSettings(w io.Writer, s reminder.EmailSettings) {
	rows := [][2]string{
		{"enabled", fmt.Sprint(s.Enabled)},
		{"email_address", s.EmailAddress},
		{"after_applied", fmt.Sprint(s.FollowUpDays.AfterApplied)},
		{"after_interview", fmt.Sprint(s.FollowUpDays.AfterInterview)},
		{"application_reminders", fmt.Sprint(s.Notifications.ApplicationReminders)},
		{"interview_reminders", fmt.Sprint(s.Notifications.InterviewReminders)},
		{"status_changes", fmt.Sprint(s.Notifications.StatusChanges)},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, r[0]), strings.TrimSpace(r[1]))
	}
}
