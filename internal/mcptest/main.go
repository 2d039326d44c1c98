package mcptest

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

// Environment variables read by Main.
const (
	EnvProtocolVersion = "MCPTEST_PROTOCOL_VERSION"
	EnvPageSize        = "MCPTEST_PAGE_SIZE"
	EnvBanner          = "MCPTEST_BANNER"
	EnvExitAfterCalls  = "MCPTEST_EXIT_AFTER_CALLS"
	EnvExitCode        = "MCPTEST_EXIT_CODE"
	EnvExitMessage     = "MCPTEST_EXIT_MESSAGE"
	EnvLogLevel        = "MCPTEST_LOG_LEVEL"
)

// defaultExitCode is used by MCPTEST_EXIT_AFTER_CALLS without MCPTEST_EXIT_CODE.
const defaultExitCode = 3

// Main serves the database fixture on stdin and stdout and exits the
// process. It is meant to be called from TestMain of a re-executed test
// binary.
func Main() {
	os.Exit(Run(context.Background(), os.Stdin, os.Stdout, os.Stderr, os.Getenv))
}

// Run serves the database fixture configured from getenv and returns the
// process exit code. Logs go to stderr.
func Run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	opts, err := OptionsFromEnv(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "mcptest: %v\n", err)

		return 2
	}

	level := slog.LevelInfo
	if v := getenv(EnvLogLevel); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			fmt.Fprintf(stderr, "mcptest: %s: %v\n", EnvLogLevel, err)

			return 2
		}
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	server := NewDatabaseServer(append(opts, WithLogger(log))...)

	err = server.Serve(ctx, stdin, stdout)
	if exit, ok := stderrors.AsType[*ExitError](err); ok {
		if msg := getenv(EnvExitMessage); msg != "" {
			fmt.Fprintln(stderr, msg)
		}

		return exit.Code
	}

	if err != nil {
		log.Error("Serve failed", "error", err)

		return 1
	}

	return 0
}

// OptionsFromEnv builds server options from MCPTEST_* variables.
func OptionsFromEnv(getenv func(string) string) ([]Option, error) {
	var opts []Option

	if v := getenv(EnvProtocolVersion); v != "" {
		opts = append(opts, WithProtocolVersion(v))
	}

	if v := getenv(EnvBanner); v != "" {
		opts = append(opts, WithBanner(v))
	}

	if v := getenv(EnvPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%s: invalid page size %q", EnvPageSize, v)
		}

		opts = append(opts, WithPageSize(n))
	}

	if v := getenv(EnvExitAfterCalls); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%s: invalid call count %q", EnvExitAfterCalls, v)
		}

		code := defaultExitCode

		if c := getenv(EnvExitCode); c != "" {
			code, err = strconv.Atoi(c)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid exit code %q", EnvExitCode, c)
			}
		}

		opts = append(opts, WithExitAfterCalls(n, code))
	}

	return opts, nil
}
