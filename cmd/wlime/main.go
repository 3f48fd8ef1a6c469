// wlime is a Wayland input method daemon.
//
// It takes the input method role on a seat, grabs the keyboard on request
// and edits text in the preedit of the focused text field:
//
//	wlime [run]        Run the daemon
//	wlime init         Write the default configuration file
//	wlime config       Print the effective configuration
//	wlime version      Print the version
//
// The running daemon is controlled over D-Bus with wlimectl.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"wlime/internal/config"
)

// Version is set at build time.
var Version = "dev"

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "run":
		if err := runDaemon(resolveConfigPath()); err != nil {
			fmt.Fprintf(os.Stderr, "wlime: %v\n", err)
			os.Exit(1)
		}
	case "init":
		cmdInit()
	case "config":
		cmdConfig()
	case "version":
		fmt.Println("wlime", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `wlime - Wayland input method daemon

USAGE:
    wlime [options] [command]

COMMANDS:
    run         Run the daemon (default)
    init        Write the default configuration file
    config      Print the effective configuration
    version     Show version
    help        Show this help message

OPTIONS:
    -config <path>  Path to config file (default: ~/.config/wlime/config.toml)

ENVIRONMENT:
    WLIME_DISPLAY, WLIME_SEAT, WLIME_LOG_LEVEL, WLIME_TRANSFORM, ...
    override the matching configuration keys.`)
}

func resolveConfigPath() string {
	if *configPath != "" {
		return *configPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func cmdInit() {
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	_, created, err := config.LoadOrCreate(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Wrote default configuration to %s\n", path)
	} else {
		fmt.Printf("Configuration already exists at %s\n", path)
	}
}

func cmdConfig() {
	cfg, err := config.NewLoader(resolveConfigPath()).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
