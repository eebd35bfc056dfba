package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jypelle/tftmirror/internal/srv"
	"github.com/jypelle/tftmirror/internal/version"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

const configSuffix = "tftmirror"

func main() {

	// Logger
	logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true})

	mainCommand := filepath.Base(os.Args[0])

	// region Flags and Commands definition

	// Debug Mode
	debugMode := flag.BoolP("debug", "d", false, "Enable debug mode")

	// Simulation Mode
	simulationMode := flag.BoolP("simulation", "s", false, "Enable simulation mode")

	// User config dir
	defaultConfigDir := "./." + configSuffix
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		defaultConfigDir = filepath.Join(userConfigDir, configSuffix)
	}
	configDir := flag.StringP("config", "c", defaultConfigDir, "Location of tftmirror config folder")

	// Usage
	flag.Usage = func() {
		fmt.Printf("\nUsage: %s [OPTIONS] [COMMAND]\n", mainCommand)
		fmt.Printf("\nMirror the console or the X display on a SPI TFT panel\n")
		fmt.Printf("\nOptions:\n")
		flag.PrintDefaults()
		fmt.Printf("\nCommands:\n")
		fmt.Printf("  run       Run server\n")
		fmt.Printf("  version   Show the version number\n")
		fmt.Printf("\nRun '%s COMMAND --help' for more information on a command.\n", mainCommand)
	}

	// run command
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)

	runCmd.Usage = func() {
		fmt.Printf("\nUsage: %s run\n", mainCommand)
		fmt.Printf("\nRun the server\n")
	}

	// version command
	versionCmd := flag.NewFlagSet("version", flag.ExitOnError)

	versionCmd.Usage = func() {
		fmt.Printf("\nUsage: %s version\n", mainCommand)
		fmt.Printf("\nShow the version information\n")
	}

	// endregion

	// region Flags and Commands Parsing
	flag.CommandLine.SetInterspersed(false)
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	switch flag.Arg(0) {
	case "run":
		runCmd.Parse(flag.Args()[1:])
		if runCmd.NArg() > 0 {
			fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flag.Arg(0))
			runCmd.Usage()
			os.Exit(1)
		}
	case "version":
		versionCmd.Parse(flag.Args()[1:])
		if versionCmd.NArg() > 0 {
			fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flag.Arg(0))
			versionCmd.Usage()
			os.Exit(1)
		}
	default:
		fmt.Printf("\n%s is not a tftmirror command\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
	// endregion

	if versionCmd.Parsed() {
		fmt.Printf("%s version %s\n", version.AppName, version.AppVersion.String())
		return
	}

	// Lock order checks are only worth their cost while debugging
	deadlock.Opts.Disable = !*debugMode

	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
		logrus.Printf("Debug mode activated")
	}

	// Create tftmirror server
	serverApp, err := srv.NewServerApp(*configDir, *debugMode, *simulationMode)
	if err != nil {
		logrus.Fatalf("Unable to create server: %v", err)
	}

	// Listen stop signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	if err := serverApp.Start(); err != nil {
		serverApp.Stop()
		logrus.Fatalf("Unable to start server: %v", err)
	}

	sig := <-ch
	logrus.Infof("Received signal: %v", sig)
	serverApp.Stop()
}
