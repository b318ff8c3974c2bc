package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/exp/slices"
)

// CommandDefinition describes a console command
type CommandDefinition struct {
	Name              string
	Aliases           []string
	Summary           string
	Syntax            string
	Description       []string
	ParseFunc         func(parts []string) (*Command, error)
	GetCandidatesFunc func(t Target, d prompt.Document) []prompt.Suggest
}

var onOffCandidates = []prompt.Suggest{
	{Text: "on"},
	{Text: "off"},
}

// simpleCommand parses a command without arguments
func simpleCommand(t CommandType) func(parts []string) (*Command, error) {
	return func(parts []string) (*Command, error) {
		if err := argCount(parts, 0, 0); err != nil {
			return nil, err
		}
		return newCommand(t), nil
	}
}

// onOffCommand parses "<command> on|off"
func onOffCommand(t CommandType) func(parts []string) (*Command, error) {
	return func(parts []string) (*Command, error) {
		if err := argCount(parts, 1, 1); err != nil {
			return nil, err
		}
		on, err := parseOnOff(parts[1])
		if err != nil {
			return nil, err
		}
		cmd := newCommand(t)
		cmd.On = on
		return cmd, nil
	}
}

// namesCommand parses "<command> name..."
func namesCommand(t CommandType, required bool) func(parts []string) (*Command, error) {
	return func(parts []string) (*Command, error) {
		if required && len(parts) < 2 {
			return nil, fmt.Errorf("%s: missing device name", parts[0])
		}
		cmd := newCommand(t)
		cmd.Names = slices.Clone(parts[1:])
		return cmd, nil
	}
}

func onOffCandidatesFunc(Target, prompt.Document) []prompt.Suggest {
	return onOffCandidates
}

// CommandTable lists the console commands
var CommandTable = []CommandDefinition{
	{
		Name:    "play",
		Summary: "Start the playback",
		Syntax:  "play [back]",
		Description: []string{
			"back: play backward",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 0, 1); err != nil {
				return nil, err
			}
			cmd := newCommand(CmdPlay)
			if len(parts) == 2 {
				if parts[1] != "back" {
					return nil, &InvalidArgument{Argument: parts[1]}
				}
				cmd.Backward = true
			}
			return cmd, nil
		},
		GetCandidatesFunc: func(Target, prompt.Document) []prompt.Suggest {
			return []prompt.Suggest{{Text: "back", Description: "play backward"}}
		},
	},
	{
		Name:      "stop",
		Summary:   "Stop the playback",
		Syntax:    "stop",
		ParseFunc: simpleCommand(CmdStop),
	},
	{
		Name:    "seek",
		Summary: "Move to a time",
		Syntax:  "seek time",
		Description: []string{
			"time: nanoseconds or a duration like 1.5s",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 1, 1); err != nil {
				return nil, err
			}
			t, err := parseTime(parts[1])
			if err != nil {
				return nil, err
			}
			cmd := newCommand(CmdSeek)
			cmd.Time = t
			return cmd, nil
		},
	},
	{
		Name:    "pos",
		Summary: "Move to a sample position",
		Syntax:  "pos position",
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 1, 1); err != nil {
				return nil, err
			}
			pos, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil || pos < 0 {
				return nil, &InvalidArgument{Argument: parts[1]}
			}
			cmd := newCommand(CmdPos)
			cmd.Pos = pos
			return cmd, nil
		},
	},
	{
		Name:      "next",
		Summary:   "Move to the next sample",
		Syntax:    "next",
		ParseFunc: simpleCommand(CmdNext),
	},
	{
		Name:      "prev",
		Aliases:   []string{"previous"},
		Summary:   "Move to the previous sample",
		Syntax:    "prev",
		ParseFunc: simpleCommand(CmdPrevious),
	},
	{
		Name:      "first",
		Summary:   "Move to the first time",
		Syntax:    "first",
		ParseFunc: simpleCommand(CmdFirst),
	},
	{
		Name:      "last",
		Summary:   "Move to the last time",
		Syntax:    "last",
		ParseFunc: simpleCommand(CmdLast),
	},
	{
		Name:    "speed",
		Summary: "Set the play speed",
		Syntax:  "speed factor",
		Description: []string{
			"factor: positive multiplier of the wall clock, 1 is real time",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 1, 1); err != nil {
				return nil, err
			}
			speed, err := strconv.ParseFloat(parts[1], 64)
			if err != nil || speed <= 0 {
				return nil, &InvalidArgument{Argument: parts[1]}
			}
			cmd := newCommand(CmdSpeed)
			cmd.Speed = speed
			return cmd, nil
		},
	},
	{
		Name:              "repeat",
		Summary:           "Loop the playback",
		Syntax:            "repeat on|off",
		ParseFunc:         onOffCommand(CmdRepeat),
		GetCandidatesFunc: onOffCandidatesFunc,
	},
	{
		Name:    "limits",
		Summary: "Bound the playback",
		Syntax:  "limits begin-end|off",
		Description: []string{
			"begin-end: stop times, either bound can be omitted (10ms-, -2s)",
			"off: play the whole window",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 1, 1); err != nil {
				return nil, err
			}
			cmd := newCommand(CmdLimits)
			if parts[1] == "off" {
				return cmd, nil
			}
			begin, end, err := parseRange(parts[1])
			if err != nil {
				return nil, err
			}
			cmd.On, cmd.Begin, cmd.End = true, begin, end
			return cmd, nil
		},
		GetCandidatesFunc: func(Target, prompt.Document) []prompt.Suggest {
			return []prompt.Suggest{{Text: "off", Description: "disable the limits"}}
		},
	},
	{
		Name:              "miss",
		Summary:           "Skip frames to keep up with the play speed",
		Syntax:            "miss on|off",
		ParseFunc:         onOffCommand(CmdMiss),
		GetCandidatesFunc: onOffCandidatesFunc,
	},
	{
		Name:              "stream",
		Summary:           "Start or stop the streaming of the sequential devices",
		Syntax:            "stream on|off",
		ParseFunc:         onOffCommand(CmdStream),
		GetCandidatesFunc: onOffCandidatesFunc,
	},
	{
		Name:    "devices",
		Aliases: []string{"list"},
		Summary: "List the devices of the pool",
		Syntax:  "devices [name...]",
		Description: []string{
			"name: show only the named devices",
		},
		ParseFunc:         namesCommand(CmdDevices, false),
		GetCandidatesFunc: deviceCandidatesFunc,
	},
	{
		Name:              "enable",
		Summary:           "Enable devices",
		Syntax:            "enable name...",
		ParseFunc:         namesCommand(CmdEnable, true),
		GetCandidatesFunc: deviceCandidatesFunc,
	},
	{
		Name:              "disable",
		Summary:           "Disable devices",
		Syntax:            "disable name...",
		ParseFunc:         namesCommand(CmdDisable, true),
		GetCandidatesFunc: deviceCandidatesFunc,
	},
	{
		Name:      "info",
		Summary:   "Show the pool state",
		Syntax:    "info",
		ParseFunc: simpleCommand(CmdInfo),
	},
	{
		Name:    "save",
		Summary: "Save the pools to a state file",
		Syntax:  "save [filename]",
		Description: []string{
			"filename: .json or .yaml file, the configured state file when omitted",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 0, 1); err != nil {
				return nil, err
			}
			cmd := newCommand(CmdSave)
			if len(parts) == 2 {
				cmd.Filename = parts[1]
			}
			return cmd, nil
		},
	},
	{
		Name:    "help",
		Summary: "Show the usage",
		Syntax:  "help [command]",
		ParseFunc: func(parts []string) (*Command, error) {
			if err := argCount(parts, 0, 1); err != nil {
				return nil, err
			}
			cmd := newCommand(CmdHelp)
			if len(parts) == 2 {
				cmd.Topic = &parts[1]
			}
			return cmd, nil
		},
	},
	{
		Name:      "quit",
		Aliases:   []string{"exit"},
		Summary:   "Quit",
		Syntax:    "quit",
		ParseFunc: simpleCommand(CmdQuit),
	},
}

// findCommand looks a command up by name or alias
func findCommand(name string) *CommandDefinition {
	for i := range CommandTable {
		def := &CommandTable[i]
		if def.Name == name || slices.Contains(def.Aliases, name) {
			return def
		}
	}
	return nil
}

// PrintUsage writes the command list, or the details of one command
func PrintUsage(w io.Writer, topic *string) {
	if topic != nil {
		def := findCommand(*topic)
		if def == nil {
			fmt.Fprintf(w, "unknown command: %s\n", *topic)
			return
		}
		fmt.Fprintf(w, "%s: %s\n", def.Syntax, def.Summary)
		if len(def.Aliases) > 0 {
			fmt.Fprintf(w, "  aliases: %s\n", strings.Join(def.Aliases, ", "))
		}
		for _, line := range def.Description {
			fmt.Fprintf(w, "  %s\n", line)
		}
		return
	}

	width := 0
	for _, def := range CommandTable {
		width = max(width, len(def.Syntax))
	}
	for _, def := range CommandTable {
		fmt.Fprintf(w, "  %-*s  %s\n", width, def.Syntax, def.Summary)
	}
}
