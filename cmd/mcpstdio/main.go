// Command mcpstdio inspects and drives stdio tool servers from the shell.
//
// The server is taken from a configuration file (--config, --server) or from
// the arguments after "--":
//
//	mcpstdio tools -- sql -mcp
//	mcpstdio call --config servers.yaml --server sqlcl run-sql '{"sql":"select 1 from dual"}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/wagiedev/mcpstdio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)

		return 1
	}

	cmd, rest := args[0], args[1:]

	var err error

	switch cmd {
	case "tools":
		err = cmdTools(ctx, rest, stdout, stderr)
	case "call":
		err = cmdCall(ctx, rest, stdout, stderr)
	case "ping":
		err = cmdPing(ctx, rest, stdout, stderr)
	case "servers":
		err = cmdServers(rest, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)

		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)

		return 1
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)

		return 1
	}

	return 0
}

func printUsage(w io.Writer) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w, "Usage: mcpstdio <command> [flags] [args] [-- server-command args...]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  tools                   List the server's tools")
	fmt.Fprintln(w, "  call <tool> [json]      Call a tool with a JSON object of arguments")
	fmt.Fprintln(w, "  ping                    Check that the server responds")
	fmt.Fprintln(w, "  servers                 List the servers in a configuration file")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  --config <path>         Server configuration file (.json, .toml, .yaml)")
	fmt.Fprintln(w, "  --server <name>         Server to launch from the configuration file")
	fmt.Fprintln(w, "  --timeout <duration>    Tool call timeout (default 2m)")
	fmt.Fprintln(w, "  --protocol <version>    Protocol version to request")
	fmt.Fprintln(w, "  --verbose               Log protocol traffic and server stderr")
	fmt.Fprintln(w, "  --schema                With tools: print each normalized input schema")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  mcpstdio tools -- sql -mcp")
	fmt.Fprintln(w, "  mcpstdio call --config servers.yaml --server sqlcl list-connections")
	fmt.Fprintln(w)
}

// commonFlags are shared by every command that launches a server.
type commonFlags struct {
	config   string
	server   string
	protocol string
	timeout  time.Duration
	verbose  bool
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	cf := &commonFlags{}
	fs.StringVar(&cf.config, "config", "", "server configuration file")
	fs.StringVar(&cf.server, "server", "", "server name in the configuration file")
	fs.StringVar(&cf.protocol, "protocol", "", "protocol version to request")
	fs.DurationVar(&cf.timeout, "timeout", 2*time.Minute, "tool call timeout")
	fs.BoolVar(&cf.verbose, "verbose", false, "log protocol traffic and server stderr")

	return fs, cf
}

// splitServerCommand separates the arguments after "--".
func splitServerCommand(args []string) (own, server []string) {
	for i, arg := range args {
		if arg == "--" {
			return args[:i], args[i+1:]
		}
	}

	return args, nil
}

// clientOptions builds the client options for the selected server.
func (cf *commonFlags) clientOptions(serverCmd []string, stderr io.Writer) ([]mcpstdio.Option, error) {
	level := slog.LevelWarn
	if cf.verbose {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []mcpstdio.Option{
		mcpstdio.WithLogger(log),
		mcpstdio.WithToolCallTimeout(cf.timeout),
	}

	switch {
	case len(serverCmd) > 0 && cf.config != "":
		return nil, errors.New("use either --config or a server command after --, not both")
	case len(serverCmd) > 0:
		opts = append(opts, mcpstdio.WithCommand(serverCmd[0], serverCmd[1:]...))
	case cf.config != "":
		file, err := mcpstdio.LoadServerFile(cf.config)
		if err != nil {
			return nil, err
		}

		cfg, err := file.Server(cf.server)
		if err != nil {
			return nil, err
		}

		opts = append(opts, mcpstdio.WithServerConfig(cfg))
	default:
		return nil, errors.New("no server: pass --config or a command after --")
	}

	if cf.protocol != "" {
		opts = append(opts,
			mcpstdio.WithProtocolVersion(cf.protocol),
			mcpstdio.WithSupportedProtocolVersions(cf.protocol, mcpstdio.DefaultProtocolVersion),
		)
	}

	if cf.verbose {
		opts = append(opts, mcpstdio.WithStderr(func(line string) {
			log.Debug("server stderr", "line", line)
		}))
	}

	return opts, nil
}

// cmdTools lists the server's tools.
func cmdTools(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	own, serverCmd := splitServerCommand(args)

	fs, cf := newFlagSet("tools", stderr)
	showSchema := fs.Bool("schema", false, "print each normalized input schema")

	if err := fs.Parse(own); err != nil {
		return err
	}

	opts, err := cf.clientOptions(serverCmd, stderr)
	if err != nil {
		return err
	}

	return mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		tools, err := c.Discover(ctx)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan)
		fmt.Fprintln(stdout)

		info := c.ServerInfo()
		if info != nil {
			cyan.Fprintf(stdout, "  %s %s (protocol %s)\n", info.Name, info.Version, c.ProtocolVersion())
		}

		if len(tools) == 0 {
			fmt.Fprintln(stdout, "  (no tools)")
			fmt.Fprintln(stdout)

			return nil
		}

		if *showSchema {
			for _, tool := range tools {
				data, err := json.MarshalIndent(tool.Schema, "  ", "  ")
				if err != nil {
					return fmt.Errorf("encode schema of %s: %w", tool.Name, err)
				}

				fmt.Fprintf(stdout, "\n  %s\n  %s\n", tool.Name, data)
			}

			fmt.Fprintln(stdout)

			return nil
		}

		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tPARAMETERS\tDESCRIPTION")
		fmt.Fprintln(w, "  ----\t----------\t-----------")

		for _, tool := range tools {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", tool.Name, parameterList(tool.Schema), truncate(tool.Description, 60))
		}

		_ = w.Flush()

		fmt.Fprintln(stdout)

		return nil
	}, opts...)
}

// cmdCall calls one tool and prints its text.
func cmdCall(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	own, serverCmd := splitServerCommand(args)

	fs, cf := newFlagSet("call", stderr)
	if err := fs.Parse(own); err != nil {
		return err
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: mcpstdio call [flags] <tool> [json-arguments]")
	}

	name := fs.Arg(0)

	var arguments map[string]any

	if fs.NArg() == 2 {
		if err := json.Unmarshal([]byte(fs.Arg(1)), &arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	opts, err := cf.clientOptions(serverCmd, stderr)
	if err != nil {
		return err
	}

	return mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		if _, err := c.Discover(ctx); err != nil {
			return err
		}

		result, err := c.Call(ctx, name, arguments)
		if err != nil {
			return err
		}

		fmt.Fprintln(stdout, result.Text())

		for _, item := range result.Content {
			if item.Type != "text" {
				color.New(color.FgYellow).Fprintf(stderr, "(%s content, %s, %d bytes base64)\n", item.Type, item.MIMEType, len(item.Data))
			}
		}

		return nil
	}, opts...)
}

// cmdPing starts a session and pings the server.
func cmdPing(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	own, serverCmd := splitServerCommand(args)

	fs, cf := newFlagSet("ping", stderr)
	if err := fs.Parse(own); err != nil {
		return err
	}

	opts, err := cf.clientOptions(serverCmd, stderr)
	if err != nil {
		return err
	}

	return mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
		started := time.Now()

		if err := c.Ping(ctx); err != nil {
			return err
		}

		color.New(color.FgGreen).Fprintf(stdout, "ok (%s)\n", time.Since(started).Round(time.Millisecond))

		return nil
	}, opts...)
}

// cmdServers lists the servers in a configuration file.
func cmdServers(args []string, stdout, stderr io.Writer) error {
	fs, cf := newFlagSet("servers", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if cf.config == "" {
		return errors.New("--config is required")
	}

	file, err := mcpstdio.LoadServerFile(cf.config)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTYPE\tCOMMAND")
	fmt.Fprintln(w, "  ----\t----\t-------")

	for _, name := range file.Names() {
		cfg := file.Servers[name]
		if cfg == nil {
			fmt.Fprintf(w, "  %s\t-\t(empty definition)\n", name)

			continue
		}

		command := strings.Join(append([]string{cfg.Command}, cfg.Args...), " ")
		if err := cfg.Validate(); err != nil {
			command = "(unsupported: " + err.Error() + ")"
		}

		fmt.Fprintf(w, "  %s\t%s\t%s\n", name, cfg.GetType(), command)
	}

	return w.Flush()
}

// parameterList renders the property names of a schema, required ones starred.
func parameterList(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return "-"
	}

	required := map[string]bool{}

	switch list := schema["required"].(type) {
	case []string:
		for _, name := range list {
			required[name] = true
		}
	case []any:
		for _, name := range list {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}

	slices.Sort(names)

	for i, name := range names {
		if required[name] {
			names[i] = name + "*"
		}
	}

	return strings.Join(names, ",")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}

	return s[:n-3] + "..."
}
