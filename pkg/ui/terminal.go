package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"catbot/pkg/automation"
	"catbot/pkg/models"
)

// Logo printed by interactive commands
const Logo = `
     /\_/\     catbot
    ( o.o )    cat content for Instagram
     > ^ <
`

// Output is where all terminal helpers write
var Output io.Writer = os.Stdout

var noColor bool

// SetNoColor disables ANSI colors
func SetNoColor(disabled bool) { noColor = disabled }

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the logo with color
func PrintLogo() {
	fmt.Fprint(Output, Cyan(Logo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		fmt.Fprintln(Output, Red(msg+": "+fmt.Sprint(args[0])))
		return
	}
	fmt.Fprintln(Output, Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Output, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output, Yellow(msg+": "+fmt.Sprint(args[0])))
		return
	}
	fmt.Fprintln(Output, Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(Output, Magenta(msg))
}

// PrintReport prints the outcome of a cycle
func PrintReport(rep *automation.Report) {
	switch rep.Status {
	case models.RunSuccess:
		PrintSuccess("[CYCLE " + strings.ToUpper(string(rep.Status)) + "] " + rep.Message)
	case models.RunFailed:
		PrintWarning("[CYCLE FAILED] " + rep.Message)
	default:
		PrintError("[CYCLE ERROR] " + rep.Message)
	}
	PrintInfo("Mode", rep.Mode)
	PrintInfo("Posted", fmt.Sprint(rep.Posted))
	if rep.MediaID != "" {
		PrintInfo("Media", rep.MediaID)
	}
	if rep.PublishedID != "" {
		PrintInfo("Published as", rep.PublishedID)
	}
	PrintInfo("Duration", fmt.Sprintf("%.1fs", rep.DurationSeconds()))
	if rep.Error != "" {
		PrintError("Error", rep.Error)
	}
}

// PrintStatus prints a status snapshot
func PrintStatus(st automation.Status) {
	PrintHighlight("Status")
	PrintInfo("Mode", st.Mode)
	if st.Username != "" {
		PrintInfo("Account", st.Username)
	}
	PrintInfo("Caption API", yesNo(st.CaptionConfigured))
	PrintInfo("Waiting downloads", fmt.Sprint(st.Stats.PendingDownloads))
	PrintInfo("Waiting user content", fmt.Sprint(st.Stats.PendingUser))
	PrintInfo("Posted total", fmt.Sprint(st.Stats.LedgerSize))
	PrintInfo("Posts in last 24h", fmt.Sprintf("%d/%d", st.Stats.PostsLast24h, st.Stats.DailyQuota))

	if st.LastRun != nil {
		PrintInfo("Last run", fmt.Sprintf("%s %s (%s)",
			st.LastRun.StartedAt.Local().Format("2006-01-02 15:04"), st.LastRun.Status, st.LastRun.Message))
	}

	names := make([]string, 0, len(st.Directories))
	for name := range st.Directories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		PrintInfo("Directory "+name, yesNo(st.Directories[name]))
	}

	if len(st.RecentPosts) > 0 {
		fmt.Fprintln(Output)
		PrintHighlight("Recent posts")
		for _, p := range st.RecentPosts {
			fmt.Fprintf(Output, "  %s  %-10s %-9s %s\n",
				Dim(p.PostedAt.Local().Format(time.DateTime)), p.MediaID, p.Outcome, truncate(p.Caption, 48))
		}
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
