package console

import (
	"strings"

	"github.com/c-bata/go-prompt"
)

// deviceCandidatesFunc suggests the names of the pool members not yet on the line
func deviceCandidatesFunc(t Target, d prompt.Document) []prompt.Suggest {
	words := splitWords(d.TextBeforeCursor())
	used := make(map[string]struct{}, len(words))
	for _, w := range words {
		used[w] = struct{}{}
	}

	devices := t.Pool().Devices()
	suggests := make([]prompt.Suggest, 0, len(devices))
	for _, dev := range devices {
		if _, ok := used[dev.Name()]; ok {
			continue
		}
		suggests = append(suggests, prompt.Suggest{
			Text:        dev.Name(),
			Description: dev.ClassName() + " " + dev.Type().String(),
		})
	}
	return suggests
}

func commandCandidates() []prompt.Suggest {
	suggests := make([]prompt.Suggest, 0, len(CommandTable))
	for _, def := range CommandTable {
		suggests = append(suggests, prompt.Suggest{Text: def.Name, Description: def.Summary})
	}
	return suggests
}

// newCompleter completes command names, then the arguments of the command
func newCompleter(t Target) prompt.Completer {
	return func(d prompt.Document) []prompt.Suggest {
		words := splitWords(d.TextBeforeCursor())
		current := d.GetWordBeforeCursor()
		if len(words) <= 1 {
			return prompt.FilterHasPrefix(commandCandidates(), current, true)
		}

		if words[0] == "help" {
			if len(words) > 2 {
				return nil
			}
			return prompt.FilterHasPrefix(commandCandidates(), current, true)
		}

		def := findCommand(words[0])
		if def == nil || def.GetCandidatesFunc == nil {
			return nil
		}
		return prompt.FilterHasPrefix(def.GetCandidatesFunc(t, d), current, true)
	}
}

// splitWords splits line on blanks, keeping quoted blanks. A trailing blank
// gives a final empty word, the one being typed.
func splitWords(line string) []string {
	words := []string{}
	if line == "" {
		return words
	}

	var word strings.Builder
	inQuote := false
	lastWasSpace := true
	for _, r := range line {
		switch {
		case (r == ' ' || r == '\t') && !inQuote:
			if !lastWasSpace && word.Len() > 0 {
				words = append(words, word.String())
				word.Reset()
			}
			lastWasSpace = true
		case r == '"' || r == '\'':
			inQuote = !inQuote
			lastWasSpace = false
		default:
			word.WriteRune(r)
			lastWasSpace = false
		}
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	if lastWasSpace {
		words = append(words, "")
	}
	return words
}
