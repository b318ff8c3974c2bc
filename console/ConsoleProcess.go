package console

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c-bata/go-prompt"
)

// ConsoleProcess runs the interactive shell until quit, Ctrl-D or ctx is done
func ConsoleProcess(ctx context.Context, target Target, stateFile string) {
	processor := NewCommandProcessor(ctx, target, stateFile)
	processor.Start()
	defer processor.Stop()

	fmt.Println("help for usage, quit to exit")

	history := LoadHistory(historyFilePath())
	defer func() {
		if err := history.Save(); err != nil {
			slog.Warn("Failed to save the console history", "err", err)
		}
	}()

	parser := NewCommandParser()
	quit := false
	executor := func(line string) {
		history.Add(line)
		cmd, err := parser.ParseCommand(line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if cmd == nil {
			return
		}
		if cmd.Type == CmdQuit {
			quit = true
			return
		}
		if err := processor.SendCommand(cmd); err != nil {
			fmt.Printf("error: %v\n", err)
			if ctx.Err() != nil {
				quit = true
			}
		}
	}

	p := prompt.New(
		executor,
		newCompleter(target),
		prompt.OptionPrefix("> "),
		prompt.OptionTitle("thermavip"),
		prompt.OptionHistory(history.Lines()),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && (quit || ctx.Err() != nil)
		}),
	)
	p.Run()
}
