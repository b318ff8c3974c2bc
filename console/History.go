package console

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	historyFileName = ".thermavip_history"
	maxHistorySize  = 1000
)

// historyFilePath is in the home directory, or the working directory without one
func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("No home directory, the console history is kept in the working directory", "err", err)
		return historyFileName
	}
	return filepath.Join(home, historyFileName)
}

// History holds the console lines, oldest first, without blanks or repeats
type History struct {
	path  string
	lines []string
}

// LoadHistory reads path. A missing file is an empty history.
func LoadHistory(path string) *History {
	h := &History{path: path}
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read the console history", "file", path, "err", err)
		}
		return h
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		h.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Failed to scan the console history", "file", path, "err", err)
	}
	return h
}

// Add appends line, moving an earlier copy to the end
func (h *History) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	for i, l := range h.lines {
		if l == line {
			h.lines = append(h.lines[:i], h.lines[i+1:]...)
			break
		}
	}
	h.lines = append(h.lines, line)
	if len(h.lines) > maxHistorySize {
		h.lines = h.lines[len(h.lines)-maxHistorySize:]
	}
}

func (h *History) Lines() []string {
	return slices.Clone(h.lines)
}

// Save writes the history back to its file
func (h *History) Save() error {
	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range h.lines {
		if _, err := fmt.Fprintln(writer, line); err != nil {
			return err
		}
	}
	return writer.Flush()
}
