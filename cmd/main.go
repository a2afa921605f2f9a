package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/landsat-lst/internal/earthengine"
	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/notification"
	"github.com/forest-guardian/landsat-lst/internal/properties"
	"github.com/forest-guardian/landsat-lst/internal/ui"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func printBanner() {
	figure1 := figure.NewFigure("Landsat", "isometric1", true)
	figure2 := figure.NewFigure("LST", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

func loadEnv() {
	for _, path := range []string{"../../.env", "../.env", ".env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
	logrus.Debug("no .env file found, using the process environment")
}

func setupLogging(level string) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

func newService(cfg properties.Config) ui.ServiceFactory {
	return func(ctx context.Context) (imagery.Service, error) {
		client := earthengine.New(earthengine.Options{
			BaseURL:             properties.EarthEngineAPIURL(),
			Project:             properties.EarthEngineProject(),
			TokenURL:            properties.EarthEngineTokenURL(),
			ServiceAccountFile:  properties.EarthEngineServiceAccountFile(),
			ClientID:            properties.EarthEngineClientID(),
			ClientSecret:        properties.EarthEngineClientSecret(),
			Collection:          cfg.Collection,
			CacheDir:            cfg.CacheDir,
			ListingTTL:          time.Hour,
			DownloadConcurrency: cfg.DownloadConcurrency,
			Local:               imagery.Local{Workers: cfg.Workers, MaxOverlaySize: cfg.MaxOverlaySize},
		})
		if err := client.Initialize(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newRootCommand(ctx context.Context) *cobra.Command {
	var (
		configPath string
		logLevel   string
		app        = &ui.App{}
	)

	root := &cobra.Command{
		Use:           "lst",
		Short:         "Land surface temperature from Landsat scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(logLevel); err != nil {
				return err
			}
			cfg, err := properties.LoadConfig(configPath)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Service = newService(cfg)
			app.Notifier = notification.NewDiscord()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			ui.ShowMenu(ctx, app)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", properties.ConfigPath(), "YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", properties.LogLevel(), "log level (debug, info, warn, error)")

	var start, end, runID string
	var progress bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Compute LST over the vector mask and write the maps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.WithDates(start, end)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Progress = progress
			return app.ComputeLST(ctx, runID)
		},
	}
	run.Flags().StringVar(&start, "start", "", "first acquisition date, inclusive (YYYY-MM-DD)")
	run.Flags().StringVar(&end, "end", "", "last acquisition date, exclusive (YYYY-MM-DD)")
	run.Flags().StringVar(&runID, "run-id", "", "name of the output folder, random when empty")
	run.Flags().BoolVar(&progress, "progress", true, "show progress bars")

	scenes := &cobra.Command{
		Use:   "scenes",
		Short: "List the candidate scenes, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.WithDates(start, end)
			if err != nil {
				return err
			}
			app.Config = cfg
			return app.ListScenes(ctx)
		},
	}
	scenes.Flags().StringVar(&start, "start", "", "first acquisition date, inclusive (YYYY-MM-DD)")
	scenes.Flags().StringVar(&end, "end", "", "last acquisition date, exclusive (YYYY-MM-DD)")

	mask := &cobra.Command{
		Use:   "mask",
		Short: "Describe the vector mask",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.DescribeMask()
		},
	}

	presets := &cobra.Command{
		Use:   "presets",
		Short: "List the visualization presets",
		Run: func(cmd *cobra.Command, args []string) {
			app.ListPresets()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(run, scenes, mask, presets, versionCmd)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			// Get the function, file, and line where panic occurred
			pc, file, line, ok := runtime.Caller(3)
			var location string
			if ok {
				fn := runtime.FuncForPC(pc)
				location = fmt.Sprintf("%s:%d in %s", file, line, fn.Name())
			} else {
				location = "Unknown location"
			}

			fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
			fmt.Printf("\033[31mLocation: %s\033[0m\n", location)
			fmt.Printf("\033[31mExiting...\033[0m\n")

			errMessage := fmt.Sprintf("LST CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
			if err := notification.NewDiscord().SendError(context.Background(), errMessage); err != nil {
				fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
			}
			os.Exit(2)
		}
	}()

	loadEnv()
	godal.RegisterAll()

	if err := newRootCommand(ctx).Execute(); err != nil {
		ui.PrintError(err.Error())
		if errors.Is(err, earthengine.ErrAuthentication) {
			ui.PrintWarning("Check EE_SERVICE_ACCOUNT_FILE or EE_CLIENT_ID / EE_CLIENT_SECRET.")
		}
		os.Exit(1)
	}
}
