package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gmsas95/medremind/internal/app"
	"github.com/gmsas95/medremind/internal/cli"
	"github.com/gmsas95/medremind/internal/config"
	"github.com/gmsas95/medremind/internal/onboarding"
	"github.com/gmsas95/medremind/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() { cli.PrintExtendedHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	envPaths := append(config.DefaultEnvPaths(), filepath.Join(config.ResolveDataDir(*dataDir), ".env"))
	if err := config.LoadEnvFiles(envPaths...); err != nil {
		log.Printf("Failed to load .env: %v", err)
	}

	opts := cli.Options{ConfigPath: *configPath, DataDir: *dataDir}
	args := flag.Args()

	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve", "server", "run":
		if *configPath == "" && term.IsTerminal(int(os.Stdin.Fd())) && onboarding.CheckFirstRun(config.ResolveDataDir(*dataDir)) {
			fmt.Println("No configuration found. Running first-time setup...")
			if err := runOnboarding(); err != nil {
				fmt.Fprintf(os.Stderr, "❌ Setup failed: %v\n", err)
				return 1
			}
		}
		application, closeApp := initApp()
		defer closeApp()
		err = application.RunServer()
	case "reminders":
		if len(args) == 0 {
			cli.PrintRemindersHelp(os.Stdout)
			return 0
		}
		application, closeApp := initApp()
		defer closeApp()
		err = cli.HandleRemindersCommand(opts, args, application)
	case "init", "onboard", "setup":
		err = runOnboarding()
	case "config":
		err = cli.HandleConfigCommand(opts, args)
	case "channels":
		err = cli.HandleChannelsCommand(opts, args)
	case "status":
		err = cli.HandleStatusCommand(opts)
	case "doctor":
		if cli.HandleDoctorCommand(opts) > 0 {
			return 1
		}
	case "help", "--help", "-h":
		cli.PrintExtendedHelp(os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("medremind version %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		cli.PrintExtendedHelp(os.Stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	return 0
}

func newLogger() (*zap.Logger, error) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func initApp() (*app.App, func()) {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting medremind", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application := app.New(cfg, st, logger, version)
	application.ConfigPath = *configPath

	return application, func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
		logger.Sync()
	}
}

func runOnboarding() error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	wizard := onboarding.NewWizard(os.Stdin, os.Stdout, config.ResolveDataDir(*dataDir), logger)
	if err := wizard.Run(); err != nil {
		return err
	}
	*dataDir = wizard.DataDir()
	return nil
}
