package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"thermavip/vip"
)

// CommandType identifies a console command
type CommandType int

const (
	CmdUnknown CommandType = iota
	CmdQuit
	CmdHelp
	CmdPlay
	CmdStop
	CmdSeek
	CmdPos
	CmdNext
	CmdPrevious
	CmdFirst
	CmdLast
	CmdSpeed
	CmdRepeat
	CmdLimits
	CmdMiss
	CmdStream
	CmdDevices
	CmdEnable
	CmdDisable
	CmdInfo
	CmdSave
)

// Command is a parsed console line
type Command struct {
	Type     CommandType
	Backward bool    // play
	Time     int64   // seek
	Pos      int64   // pos
	Speed    float64 // speed
	On       bool    // repeat, miss, stream, limits
	Begin    int64   // limits
	End      int64   // limits
	Names    []string
	Filename string
	Topic    *string // help
	Done     chan struct{}
	Error    error
}

func newCommand(t CommandType) *Command {
	return &Command{
		Type:  t,
		Begin: vip.InvalidTime,
		End:   vip.InvalidTime,
		Done:  make(chan struct{}),
	}
}

// InvalidArgument is returned for an argument a command does not accept
type InvalidArgument struct {
	Argument string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Argument)
}

// CommandParser turns console lines into commands
type CommandParser struct{}

func NewCommandParser() *CommandParser {
	return &CommandParser{}
}

// ParseCommand parses line. An empty line gives a nil command.
func (p *CommandParser) ParseCommand(line string) (*Command, error) {
	parts := splitWords(strings.TrimSpace(line))
	if len(parts) == 0 || parts[0] == "" {
		return nil, nil
	}

	def := findCommand(parts[0])
	if def == nil {
		return nil, fmt.Errorf("unknown command: %s", parts[0])
	}
	return def.ParseFunc(parts)
}

// parseTime accepts nanosecond counts and Go durations like "1.5s"
func parseTime(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &InvalidArgument{Argument: s}
	}
	return int64(d), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, &InvalidArgument{Argument: s}
}

// parseRange parses "begin-end". Either bound can be omitted.
func parseRange(s string) (int64, int64, error) {
	if s == "" {
		return 0, 0, &InvalidArgument{Argument: s}
	}
	// "-100" omits the begin, otherwise a leading '-' is a sign
	sep := strings.Index(s[1:], "-") + 1
	if sep == 0 {
		if s[0] != '-' {
			return 0, 0, &InvalidArgument{Argument: s}
		}
	}

	begin, end := vip.InvalidTime, vip.InvalidTime
	var err error
	if b := s[:sep]; b != "" {
		if begin, err = parseTime(b); err != nil {
			return 0, 0, err
		}
	}
	if e := s[sep+1:]; e != "" {
		if end, err = parseTime(e); err != nil {
			return 0, 0, err
		}
	}
	if begin != vip.InvalidTime && end != vip.InvalidTime && begin > end {
		return 0, 0, fmt.Errorf("range %s: begin after end", s)
	}
	return begin, end, nil
}

// argCount checks that parts holds the command and between lo and hi arguments
func argCount(parts []string, lo, hi int) error {
	n := len(parts) - 1
	if n < lo {
		return fmt.Errorf("%s: missing argument", parts[0])
	}
	if n > hi {
		return &InvalidArgument{Argument: parts[hi+1]}
	}
	return nil
}
