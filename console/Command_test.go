package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"thermavip/vip"
)

func TestSplitWords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: []string{}},
		{name: "words", input: "seek 40", want: []string{"seek", "40"}},
		{name: "trailing blank", input: "play ", want: []string{"play", ""}},
		{name: "many blanks", input: "  devices  a\tb", want: []string{"devices", "a", "b"}},
		{name: "quoted", input: `save "my state.json"`, want: []string{"save", "my state.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitWords(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("splitWords(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	str := func(s string) *string { return &s }
	cmd := func(t CommandType, f func(c *Command)) *Command {
		c := &Command{Type: t, Begin: vip.InvalidTime, End: vip.InvalidTime}
		if f != nil {
			f(c)
		}
		return c
	}

	tests := []struct {
		input string
		want  *Command
	}{
		{input: "", want: nil},
		{input: "   ", want: nil},
		{input: "play", want: cmd(CmdPlay, nil)},
		{input: "play back", want: cmd(CmdPlay, func(c *Command) { c.Backward = true })},
		{input: "stop", want: cmd(CmdStop, nil)},
		{input: "seek 40", want: cmd(CmdSeek, func(c *Command) { c.Time = 40 })},
		{input: "seek 1.5s", want: cmd(CmdSeek, func(c *Command) { c.Time = 1_500_000_000 })},
		{input: "pos 3", want: cmd(CmdPos, func(c *Command) { c.Pos = 3 })},
		{input: "next", want: cmd(CmdNext, nil)},
		{input: "previous", want: cmd(CmdPrevious, nil)},
		{input: "first", want: cmd(CmdFirst, nil)},
		{input: "last", want: cmd(CmdLast, nil)},
		{input: "speed 0.5", want: cmd(CmdSpeed, func(c *Command) { c.Speed = 0.5 })},
		{input: "repeat on", want: cmd(CmdRepeat, func(c *Command) { c.On = true })},
		{input: "miss off", want: cmd(CmdMiss, nil)},
		{input: "stream on", want: cmd(CmdStream, func(c *Command) { c.On = true })},
		{input: "limits 10-90", want: cmd(CmdLimits, func(c *Command) { c.On, c.Begin, c.End = true, 10, 90 })},
		{input: "limits 10-", want: cmd(CmdLimits, func(c *Command) { c.On, c.Begin = true, 10 })},
		{input: "limits -90", want: cmd(CmdLimits, func(c *Command) { c.On, c.End = true, 90 })},
		{input: "limits -10-20", want: cmd(CmdLimits, func(c *Command) { c.On, c.Begin, c.End = true, -10, 20 })},
		{input: "limits off", want: cmd(CmdLimits, nil)},
		{input: "list", want: cmd(CmdDevices, func(c *Command) { c.Names = []string{} })},
		{input: "devices a b", want: cmd(CmdDevices, func(c *Command) { c.Names = []string{"a", "b"} })},
		{input: "enable a", want: cmd(CmdEnable, func(c *Command) { c.Names = []string{"a"} })},
		{input: "disable a", want: cmd(CmdDisable, func(c *Command) { c.Names = []string{"a"} })},
		{input: "info", want: cmd(CmdInfo, nil)},
		{input: "save", want: cmd(CmdSave, nil)},
		{input: "save state.yaml", want: cmd(CmdSave, func(c *Command) { c.Filename = "state.yaml" })},
		{input: "help", want: cmd(CmdHelp, nil)},
		{input: "help seek", want: cmd(CmdHelp, func(c *Command) { c.Topic = str("seek") })},
		{input: "exit", want: cmd(CmdQuit, nil)},
	}

	p := NewCommandParser()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := p.ParseCommand(tt.input)
			if err != nil {
				t.Fatalf("ParseCommand(%q) error: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreFields(Command{}, "Done"), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ParseCommand(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	inputs := []string{
		"rewind",
		"play forward",
		"stop now",
		"seek",
		"seek soon",
		"pos -1",
		"speed 0",
		"speed fast",
		"repeat maybe",
		"limits 90-10",
		"limits 10",
		"enable",
		"save a b",
	}

	p := NewCommandParser()
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			if _, err := p.ParseCommand(input); err == nil {
				t.Errorf("ParseCommand(%q) should fail", input)
			}
		})
	}
}

func TestInvalidArgument(t *testing.T) {
	_, err := NewCommandParser().ParseCommand("repeat sometimes")
	var invalid *InvalidArgument
	if !errors.As(err, &invalid) {
		t.Fatalf("error %v is not an InvalidArgument", err)
	}
	if invalid.Argument != "sometimes" {
		t.Errorf("Argument = %q, want %q", invalid.Argument, "sometimes")
	}
}

func TestCommandTableNames(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range CommandTable {
		for _, name := range append([]string{def.Name}, def.Aliases...) {
			if seen[name] {
				t.Errorf("command name %q is defined twice", name)
			}
			seen[name] = true
		}
		if def.ParseFunc == nil {
			t.Errorf("command %q has no ParseFunc", def.Name)
		}
		if !strings.HasPrefix(def.Syntax, def.Name) {
			t.Errorf("syntax of %q should start with its name: %q", def.Name, def.Syntax)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var all bytes.Buffer
	PrintUsage(&all, nil)
	for _, def := range CommandTable {
		if !strings.Contains(all.String(), def.Syntax) {
			t.Errorf("usage does not list %q", def.Syntax)
		}
	}

	var one bytes.Buffer
	topic := "limits"
	PrintUsage(&one, &topic)
	if !strings.Contains(one.String(), "either bound can be omitted") {
		t.Errorf("limits usage has no description: %q", one.String())
	}

	var unknown bytes.Buffer
	topic = "rewind"
	PrintUsage(&unknown, &topic)
	if !strings.Contains(unknown.String(), "unknown command") {
		t.Errorf("unexpected output %q", unknown.String())
	}
}
