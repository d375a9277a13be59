package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/cli"
	"github.com/unithub/unithub-ble/pkg/connector/ble"
	"github.com/unithub/unithub-ble/pkg/protocol"
	"github.com/unithub/unithub-ble/pkg/session"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Without -device, the Unit-Hub with the strongest signal is used.
 * Without a COMMAND, an interactive shell is started.
 * LoRaWAN AppKeys are kept in the system keyring; see store-appkey.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	for _, command := range commandNames() {
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	for _, command := range commandNames() {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func commandNames() []string {
	var labels []string
	for command := range commands {
		labels = append(labels, command)
	}
	sort.Strings(labels)
	return labels
}

func runCommand(s *session.Session, config *cli.Config, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, s, config, args); err != nil {
		if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else if errors.Is(err, protocol.ErrNotConnected) {
			writeErr("Device disconnected: %s", err)
		} else if protocol.ShouldRetry(err) {
			writeErr("Failed to execute command (try again): %s", err)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func newShell() (*readline.Instance, error) {
	var items []readline.PrefixCompleterInterface
	for _, name := range append(commandNames(), "exit", "help") {
		items = append(items, readline.PcItem(name))
	}
	rlConfig := &readline.Config{
		Prompt:          "> ",
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	if home, err := os.UserHomeDir(); err == nil {
		rlConfig.HistoryFile = filepath.Join(home, ".unithub_history")
	}
	return readline.NewEx(rlConfig)
}

func runInteractiveShell(s *session.Session, config *cli.Config, timeout time.Duration) int {
	rl, err := newShell()
	if err != nil {
		writeErr("Error starting shell: %s", err)
		return 1
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return 0
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return 0
		} else if err != nil {
			writeErr("Error reading command: %s", err)
			return 1
		}
		args, err := shlex.Split(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			if len(args) > 1 {
				if info, ok := commands[args[1]]; ok {
					info.Usage(args[1])
					continue
				}
			}
			for _, name := range commandNames() {
				fmt.Printf("  %s\n", name)
			}
			continue
		}
		runCommand(s, config, args, timeout)
	}
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug          bool
		logFormat      string
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.StringVar(&logFormat, "log-format", "console", "Log `format` (console|json)")
	flag.DurationVar(&commandTimeout, "command-timeout", 10*time.Second, "Set timeout for commands sent to the device. Firmware uploads may need several minutes.")
	flag.DurationVar(&connTimeout, "connect-timeout", 30*time.Second, "Set timeout for scanning and establishing the initial connection.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	format, err := log.ParseFormat(logFormat)
	if err != nil {
		writeErr("%s", err)
		return
	}
	log.SetFormat(format)
	config.ReadFromEnvironment()

	requires := requiresDevice
	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if err := configureFlags(config, args[0]); err != nil {
			writeErr("%s: %s", err, args[0])
			return
		}
		requires = commands[args[0]].requires
	}

	if err := config.LoadCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	var s *session.Session
	switch requires {
	case requiresAdapter:
		s, err = config.NewSession()
	case requiresDevice:
		s, err = config.Connect(ctx)
	}
	if err != nil {
		writeErr("Error: %s", err)
		if ble.IsAdapterError(err) {
			writeErr("\n%s", ble.AdapterErrorHelpMessage(err))
		}
		return
	}
	if s != nil {
		defer s.Close(context.Background())
	}

	if flag.NArg() > 0 {
		status = runCommand(s, config, flag.Args(), commandTimeout)
	} else {
		status = runInteractiveShell(s, config, commandTimeout)
	}
}
