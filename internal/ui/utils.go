package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/properties"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

// Output is where the helpers print. Tests swap it for a buffer.
var Output io.Writer = os.Stdout

var input = bufio.NewReader(os.Stdin)

// SetInput replaces the reader prompts read from.
func SetInput(r io.Reader) {
	input = bufio.NewReader(r)
}

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	fmt.Fprintf(Output, "%s\nWarning:%s\n", ColorYellow, ColorReset)
	fmt.Fprintf(Output, "%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	fmt.Fprintf(Output, "\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	fmt.Fprintf(Output, "\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	fmt.Fprintf(Output, "%s%s%s", ColorBlue, message, ColorReset)
}

func printItem(format string, args ...interface{}) {
	fmt.Fprintf(Output, "%s- %s%s\n", ColorGreen, fmt.Sprintf(format, args...), ColorReset)
}

// ReadString reads a string from stdin with trimming
func ReadString(prompt string) string {
	PrintInfo(prompt)
	line, _ := input.ReadString('\n')
	return strings.TrimSpace(line)
}

// ReadInt reads an integer from stdin with validation
func ReadInt(prompt string, min, max int) (int, error) {
	line := ReadString(prompt)
	value, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", line)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadDate reads a date from stdin. An empty answer keeps fallback.
func ReadDate(prompt, fallback string) (string, error) {
	line := ReadString(prompt)
	if line == "" {
		return fallback, nil
	}
	if line == "today" {
		return time.Now().Format(properties.DateLayout), nil
	}
	if _, err := time.Parse(properties.DateLayout, line); err != nil {
		return "", fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", line)
	}
	return line, nil
}

// ReadDateRange asks for the acquisition window, defaulting to the configured
// one.
func ReadDateRange(cfg properties.Config) (properties.Config, error) {
	start, err := ReadDate(fmt.Sprintf("Enter the start date (YYYY-MM-DD) [%s]: ", cfg.StartDate), cfg.StartDate)
	if err != nil {
		return cfg, err
	}
	end, err := ReadDate(fmt.Sprintf("Enter the end date, exclusive (YYYY-MM-DD | today) [%s]: ", cfg.EndDate), cfg.EndDate)
	if err != nil {
		return cfg, err
	}
	return cfg.WithDates(start, end)
}
