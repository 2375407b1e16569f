package main

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-mcservice/pkg/logging"
	"github.com/core-tools/hsu-mcservice/pkg/manager"
	"github.com/core-tools/hsu-mcservice/pkg/settings"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the service settings file" required:"true"`
	LogLevel    string `long:"log-level" description:"overrides the log level from the settings file"`
	Validate    bool   `long:"validate" description:"validate the settings and the configuration document, then exit"`
	RunDuration int    `long:"run-duration" description:"stop after the given number of seconds"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Validate {
		if err := manager.ValidateSettingsFile(opts.Config); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Settings are valid")
		return
	}

	config, err := settings.LoadSettingsFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load settings: %v\n", err)
		os.Exit(1)
	}
	if opts.LogLevel != "" {
		config.Service.LogLevel = opts.LogLevel
	}
	if err := settings.ValidateSettings(config); err != nil {
		fmt.Printf("Invalid settings: %v\n", err)
		os.Exit(1)
	}

	backend, err := logging.NewZapBackend(logging.ZapConfig{
		Level:  config.Service.LogLevel,
		Format: config.Service.LogFormat,
		Output: config.Service.LogOutput,
	})
	if err != nil {
		fmt.Printf("Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ModulePrefix("mcservice"), backend.LogFuncs())

	logger.Infof("opts: %+v", opts)
	logger.Infof("Starting...")

	err = manager.Run(opts.RunDuration, config, logger)
	backend.Sync()
	if err != nil {
		fmt.Printf("Service failed: %v\n", err)
		os.Exit(1)
	}
}
