package ui

import (
	"context"
	"fmt"
)

type menuOption struct {
	title   string
	handler func() error
}

// ShowMenu displays the main menu and handles user input until the user
// exits.
func ShowMenu(ctx context.Context, app *App) {
	exit := false
	menuOptions := []menuOption{
		{"Compute land surface temperature over the vector mask", func() error {
			cfg, err := ReadDateRange(app.Config)
			if err != nil {
				return err
			}
			run := *app
			run.Config = cfg
			return run.ComputeLST(ctx, "")
		}},
		{"View the candidate Landsat scenes", func() error {
			cfg, err := ReadDateRange(app.Config)
			if err != nil {
				return err
			}
			run := *app
			run.Config = cfg
			return run.ListScenes(ctx)
		}},
		{"Describe the vector mask", app.DescribeMask},
		{"View the visualization presets", func() error { app.ListPresets(); return nil }},
		{"Exit the application", func() error { fmt.Fprintln(Output, "Exiting..."); exit = true; return nil }},
	}

	for !exit {
		fmt.Fprintf(Output, "%s===================%s\n", ColorBlue, ColorReset)
		for i, opt := range menuOptions {
			fmt.Fprintf(Output, "%s%d. %s%s\n", ColorBlue, i+1, opt.title, ColorReset)
		}

		line := ReadString("Please enter your choice: ")
		if line == "" && isEOF() {
			return
		}
		var choice int
		if _, err := fmt.Sscan(line, &choice); err != nil {
			PrintError("Invalid input. Please enter a number.")
			continue
		}
		if choice < 1 || choice > len(menuOptions) {
			PrintError("Invalid choice. Please try again.")
			continue
		}

		if err := menuOptions[choice-1].handler(); err != nil {
			PrintError(err.Error())
		}
	}
}

// isEOF reports whether stdin has no more input.
func isEOF() bool {
	_, err := input.Peek(1)
	return err != nil
}
