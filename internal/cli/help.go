package cli

import (
	"fmt"
	"io"
)

func PrintExtendedHelp(w io.Writer) {
	fmt.Fprintln(w, "medremind - Medication reminders that ring until you answer")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  medremind [--config path] [--data dir]   Run the reminder server (default)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Setup:")
	fmt.Fprintln(w, "  medremind init                       Run the interactive setup wizard")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reminders:")
	fmt.Fprintln(w, "  medremind reminders export           Print medications as YAML")
	fmt.Fprintln(w, "  medremind reminders reset            Cancel and reschedule every reminder")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintln(w, "  medremind config get <key>           Get configuration value")
	fmt.Fprintln(w, "  medremind config path                Show config file path")
	fmt.Fprintln(w, "  medremind config show                Print config file")
	fmt.Fprintln(w, "  medremind channels status            Show channel status")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "System & Diagnostics:")
	fmt.Fprintln(w, "  medremind status                     Show current status")
	fmt.Fprintln(w, "  medremind doctor                     Run diagnostics")
	fmt.Fprintln(w, "  medremind version                    Show version")
}

func PrintConfigHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: medremind config <get <key>|path|show>")
}

func PrintChannelsHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: medremind channels status")
}

func PrintRemindersHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: medremind reminders <export|reset>")
}
