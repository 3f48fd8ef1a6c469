// wlimectl is the control CLI for wlime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"wlime/internal/config"
	"wlime/internal/ime"
	"wlime/internal/ipc"
)

var (
	configPath = flag.String("config", "", "path to config file")
	busName    = flag.String("bus-name", "", "D-Bus name of the daemon (default: from config)")
	timeout    = flag.Duration("timeout", 5*time.Second, "request timeout")
)

// client is the subset of *ipc.Client the commands use.
type client interface {
	SendString(ctx context.Context, text string) error
	SendPreedit(ctx context.Context, text string, cursorBegin, cursorEnd int32) error
	DeleteText(ctx context.Context, before, after int32) error
	GrabKeyboard(ctx context.Context) error
	ReleaseKeyboard(ctx context.Context) error
	Status(ctx context.Context) (ipc.Status, error)
	WatchActive(ctx context.Context, fn func(active bool)) error
}

var _ client = (*ipc.Client)(nil)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	if flag.Arg(0) == "help" {
		usage()
		return
	}

	c, err := ipc.Dial(resolveBusName())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `wlimectl - Control utility for wlime

Usage: wlimectl [options] <command> [args]

Commands:
  status                      Show whether the input method is active
  commit <text>               Commit text to the focused text field
  preedit <text> [begin end]  Show preedit text (cursor in bytes, -1 hides it)
  delete [before [after]]     Delete text around the cursor (default 1 0)
  grab                        Grab the keyboard into the line editor
  release                     Release the keyboard
  watch                       Print activation changes until interrupted
  help                        Show this help message

Options:
  -config <path>     Path to config file (default: ~/.config/wlime/config.toml)
  -bus-name <name>   D-Bus name of the daemon
  -timeout <dur>     Request timeout (default 5s)`)
}

func resolveBusName() string {
	if *busName != "" {
		return *busName
	}
	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	if cfg, err := config.Load(path); err == nil {
		return cfg.IPC.BusName
	}
	return ipc.DefaultBusName
}

var errUsage = errors.New("invalid arguments")

func run(ctx context.Context, c client, args []string) error {
	cmd, args := args[0], args[1:]

	if cmd == "watch" {
		err := c.WatchActive(ctx, func(active bool) {
			fmt.Println(activeString(active))
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch cmd {
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("State:    %s\n", activeString(st.Active))
		fmt.Printf("Input:    %s\n", yesNo(st.HasInput))
		fmt.Printf("Keyboard: %s\n", yesNo(st.HasKeyboard))
		return nil
	case "commit":
		if len(args) != 1 {
			return fmt.Errorf("%w: usage: wlimectl commit <text>", errUsage)
		}
		return c.SendString(ctx, args[0])
	case "preedit":
		begin, end := int32(-1), int32(-1)
		switch len(args) {
		case 1:
		case 3:
			var err error
			if begin, err = parseInt32(args[1]); err != nil {
				return err
			}
			if end, err = parseInt32(args[2]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: usage: wlimectl preedit <text> [begin end]", errUsage)
		}
		return c.SendPreedit(ctx, args[0], begin, end)
	case "delete":
		before, after := int32(1), int32(0)
		var err error
		if len(args) > 2 {
			return fmt.Errorf("%w: usage: wlimectl delete [before [after]]", errUsage)
		}
		if len(args) > 0 {
			if before, err = parseInt32(args[0]); err != nil {
				return err
			}
		}
		if len(args) > 1 {
			if after, err = parseInt32(args[1]); err != nil {
				return err
			}
		}
		return c.DeleteText(ctx, before, after)
	case "grab":
		return c.GrabKeyboard(ctx)
	case "release":
		return c.ReleaseKeyboard(ctx)
	default:
		return fmt.Errorf("%w: unknown command %s", errUsage, cmd)
	}
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, s)
	}
	return int32(v), nil
}

func activeString(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, ime.ErrNoInput), errors.Is(err, ime.ErrKeyboardGrabbed):
		return 3
	default:
		return 1
	}
}
