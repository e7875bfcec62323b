// Command tablectl runs table maintenance against the configured document
// store without going through the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/JonMunkholm/tablekit/internal/config"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/logging"
)

type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = map[string]command{
	"sanitize": {"print the collection name derived from each table name", runSanitize},
	"preview":  {"parse an import file and print what would be imported", runPreview},
	"tables":   {"list every table", runTables},
	"import":   {"import a CSV or JSON file into a table", runImport},
	"export":   {"write a table as CSV or JSON", runExport},
	"orphans":  {"list collections without table metadata", runOrphans},
	"user":     {"approve, reject or change the role of a user", runUser},
	"token":    {"mint a signed session token for local testing", runToken},
}

var errUsage = errors.New("usage")

// env carries the process streams so commands stay testable.
type env struct {
	stdout io.Writer
	stderr io.Writer
}

func main() {
	_ = godotenv.Load()

	var lc config.LoggingConfig
	if err := config.LoadSection(&lc); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.SetupWriter(os.Stderr, lc.Level, lc.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, &env{stdout: os.Stdout, stderr: os.Stderr}, os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp), err == errUsage:
		os.Exit(2)
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	default:
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints the technical error, followed by the user message and
// its code when one is known.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "tablectl: %v\n", err)
	if core.IsUserFacing(err) {
		fmt.Fprintf(w, "  %s\n", core.FormatUserError(err))
	}
}

func run(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(e.stderr)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(e.stderr, "unknown command %q\n\n", args[0])
		usage(e.stderr)
		return errUsage
	}
	return cmd.run(ctx, e, args[1:])
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: tablectl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.SortFlags = false
	return fs
}
