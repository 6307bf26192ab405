package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(2)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "stream":
		err = runStream(args, os.Stdout)
	case "serve":
		err = runServe(args)
	case "layouts":
		err = runLayouts(args, os.Stdout)
	case "encrypt":
		err = runEncrypt(args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'deckstream --help' for usage information.\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`deckstream - incremental slide deck generation client

USAGE:
    deckstream <COMMAND> [FLAGS]

COMMANDS:
    stream <presentation-id>   Stream an outline or deck and render it live
    serve                      Run the WebSocket gateway
    layouts [list]             List registered layouts
    layouts resolve <id> [group]
                               Show how a layout id resolves
    encrypt <value>            Encrypt a config secret with DECKSTREAM_CONFIG_KEY

FLAGS:
    -h, --help          Show this help message
    --config PATH       Config file (default: ./deckstream.yaml)
    --kind KIND         stream: outline or deck (default: outline)
    --replay PATH       stream/serve: replay .sse captures instead of connecting
    --pace BYTES        stream: replay in chunks of BYTES
    --pace-delay DUR    stream: pause between replay chunks (default: 20ms)
    --live              stream: redraw on every update
    --plain             stream: no markdown styling
    --json              stream: print the final result as JSON
    --width N           stream: output width (default: 80)
    --addr ADDR         serve: listen address

CONFIGURATION:
    Environment: DECKSTREAM_* variables override the config file.
    .env.local and .env are loaded when present.

EXAMPLES:
    deckstream stream 3f2a --kind deck --live
    deckstream stream demo --replay ./captures/demo.sse --pace 32
    deckstream serve --addr 127.0.0.1:8787
    deckstream layouts resolve cards-slide modern`)
}

// cliArgs is the result of parsing a subcommand's arguments.
type cliArgs struct {
	pos   []string
	flags map[string]string
}

// parseArgs splits args into positionals and --flags. Flags listed in
// boolFlags take no value; the others read "--name value" or "--name=value".
func parseArgs(args []string, boolFlags ...string) cliArgs {
	isBool := make(map[string]bool, len(boolFlags))
	for _, b := range boolFlags {
		isBool[b] = true
	}
	out := cliArgs{flags: make(map[string]string)}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") || a == "--" {
			out.pos = append(out.pos, a)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(a, "--"), "=")
		switch {
		case hasValue:
		case isBool[name]:
			value = "true"
		case i+1 < len(args) && !strings.HasPrefix(args[i+1], "--"):
			value = args[i+1]
			i++
		default:
			value = "true"
		}
		out.flags[name] = value
	}
	return out
}

func (c cliArgs) str(name, def string) string {
	if v, ok := c.flags[name]; ok && v != "" {
		return v
	}
	return def
}

func (c cliArgs) bool(name string) bool {
	v, _ := strconv.ParseBool(c.flags[name])
	return v
}

func (c cliArgs) int(name string, def int) (int, error) {
	v, ok := c.flags[name]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return n, nil
}

func (c cliArgs) duration(name string, def time.Duration) (time.Duration, error) {
	v, ok := c.flags[name]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// configPath reads --config, then DECKSTREAM_CONFIG, then the default.
func configPath(args []string) string {
	if p := parseArgs(args).str("config", ""); p != "" {
		return p
	}
	if p := os.Getenv("DECKSTREAM_CONFIG"); p != "" {
		return p
	}
	return "deckstream.yaml"
}
