// Package cli parses the fala command line.
package cli

import (
	"fmt"
	"slices"
	"strings"
)

type Command string

const (
	CommandRun        Command = "run"
	CommandStart      Command = "start"
	CommandStop       Command = "stop"
	CommandToggle     Command = "toggle"
	CommandStatus     Command = "status"
	CommandInitialize Command = "initialize"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

type commandInfo struct {
	name      Command
	summary   string
	forwarded bool
}

// commands is ordered as printed by HelpText.
var commands = []commandInfo{
	{CommandRun, "Run the turn daemon in the foreground", false},
	{CommandStart, "Start recording a turn", true},
	{CommandStop, "Stop recording and send the turn", true},
	{CommandToggle, "Start recording, or stop and send when already recording", true},
	{CommandStatus, "Print controller state", true},
	{CommandInitialize, "Repeat the inference service handshake", true},
	{CommandDevices, "List available input devices", false},
	{CommandDoctor, "Run configuration and environment checks", false},
	{CommandVersion, "Print version information", false},
	{CommandHelp, "Show this help", false},
}

var logLevels = []string{"debug", "info", "warn", "error"}

func lookup(c Command) (commandInfo, bool) {
	i := slices.IndexFunc(commands, func(info commandInfo) bool { return info.name == c })
	if i < 0 {
		return commandInfo{}, false
	}
	return commands[i], true
}

// Forwarded reports whether the command is sent to a running daemon over IPC.
func (c Command) Forwarded() bool {
	info, ok := lookup(c)
	return ok && info.forwarded
}

type Parsed struct {
	Command    Command
	ConfigPath string
	// LogLevel overrides log.level from the config file when set.
	LogLevel string
	ShowHelp bool
}

// Parse reads global flags followed by at most one command. Flags accept both
// "--flag value" and "--flag=value".
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		if !strings.HasPrefix(arg, "-") {
			hasInline = false
		}

		value := func() (string, error) {
			if hasInline {
				if inline == "" {
					return "", fmt.Errorf("%s requires a value", name)
				}
				return inline, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			i++
			return args[i], nil
		}

		switch {
		case arg == "-h" || arg == "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case arg == "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case name == "-c" || name == "--config":
			path, err := value()
			if err != nil {
				return Parsed{}, fmt.Errorf("%w (expected a path)", err)
			}
			parsed.ConfigPath = path
		case name == "--log-level":
			level, err := value()
			if err != nil {
				return Parsed{}, err
			}
			level = strings.ToLower(level)
			if !slices.Contains(logLevels, level) {
				return Parsed{}, fmt.Errorf("--log-level must be one of: %s", strings.Join(logLevels, ", "))
			}
			parsed.LogLevel = level
		case strings.HasPrefix(arg, "-"):
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		default:
			cmd := Command(arg)
			if _, ok := lookup(cmd); !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [--config PATH] [--log-level LEVEL] <command>\n\nCommands:\n", binaryName)
	for _, info := range commands {
		fmt.Fprintf(&b, "  %-11s %s\n", info.name, info.summary)
	}
	b.WriteString(`
Flags:
  -c, --config PATH    Config file path (default: $XDG_CONFIG_HOME/fala/config.jsonc)
  --log-level LEVEL    Override log.level (debug, info, warn, error)
  -h, --help           Show help
  --version            Show version
`)
	return b.String()
}
