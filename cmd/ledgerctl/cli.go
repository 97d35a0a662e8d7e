package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"reconledger/internal/app"
	"reconledger/internal/config"
	"reconledger/internal/infra/logging"
	"reconledger/internal/usecase"

	"github.com/spf13/pflag"
)

type env struct {
	stdout io.Writer
	stderr io.Writer
}

type command func(ctx context.Context, e env, args []string) int

var commands = map[string]map[string]command{
	"ticket": {
		"ingest":    runTicketIngest,
		"modify":    runTicketModify,
		"close":     runTicketClose,
		"get":       runTicketGet,
		"history":   runTicketHistory,
		"open":      runTicketOpen,
		"heartbeat": runTicketHeartbeat,
		"check":     runTicketCheck,
	},
	"audit": {
		"record":    runAuditRecord,
		"get":       runAuditGet,
		"list":      runAuditList,
		"report":    runAuditReport,
		"revisions": runAuditRevisions,
	},
	"bag": {
		"assign":        runBagAssign,
		"verify":        runBagVerify,
		"get":           runBagGet,
		"delete":        runBagDelete,
		"unverified":    runBagUnverified,
		"discrepancies": runBagDiscrepancies,
	},
}

func run(args []string, stdout, stderr io.Writer) int {
	e := env{stdout: stdout, stderr: stderr}
	if len(args) < 2 {
		usage(e, args)
		return 1
	}
	ctx := context.Background()

	if args[1] == "migrate" {
		return runMigrate(ctx, e, args[2:])
	}
	if group, ok := commands[args[1]]; ok && len(args) >= 3 {
		if cmd, ok := group[args[2]]; ok {
			return cmd(ctx, e, args[3:])
		}
	}
	usage(e, args)
	return 1
}

func usage(e env, args []string) {
	name := "ledgerctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(e.stderr, "usage:\n")
	fmt.Fprintf(e.stderr, "  %s migrate [--config <file>]\n", name)
	fmt.Fprintf(e.stderr, "  %s ticket ingest (--payload <json>|--payload-file <file>) [--id <ticket id>]\n", name)
	fmt.Fprintf(e.stderr, "  %s ticket modify --id <ticket id> (--payload <json>|--payload-file <file>)\n", name)
	fmt.Fprintf(e.stderr, "  %s ticket close|get|history|check --id <ticket id>\n", name)
	fmt.Fprintf(e.stderr, "  %s ticket open\n", name)
	fmt.Fprintf(e.stderr, "  %s ticket heartbeat --open <id,id,...>\n", name)
	fmt.Fprintf(e.stderr, "  %s audit record --date <YYYY-MM-DD> --source-a <amt> --source-b <amt> --source-c <amt>\n", name)
	fmt.Fprintf(e.stderr, "  %s audit get|revisions --date <YYYY-MM-DD>\n", name)
	fmt.Fprintf(e.stderr, "  %s audit list|report --from <YYYY-MM-DD> --to <YYYY-MM-DD>\n", name)
	fmt.Fprintf(e.stderr, "  %s bag assign --date <YYYY-MM-DD> --source <system> --source-id <id> --expected <amt> [--employee <id>] [--device <id>] [--shift <id>]\n", name)
	fmt.Fprintf(e.stderr, "  %s bag verify --id <bag id> --counted <amt> --by <counter> [--notes <text>]\n", name)
	fmt.Fprintf(e.stderr, "  %s bag get|delete --id <bag id>\n", name)
	fmt.Fprintf(e.stderr, "  %s bag unverified\n", name)
	fmt.Fprintf(e.stderr, "  %s bag discrepancies --from <YYYY-MM-DD> --to <YYYY-MM-DD> [--threshold <amt>] [--threshold-percent <pct>]\n", name)
	fmt.Fprintf(e.stderr, "every command accepts --config <file> (default $LEDGER_CONFIG) and --verbose\n")
}

// flags is a subcommand flag set carrying the shared options.
type flags struct {
	*pflag.FlagSet
	configPath string
	verbose    bool
}

func newFlags(name string, e env) *flags {
	f := &flags{FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.SetOutput(e.stderr)
	f.StringVar(&f.configPath, "config", config.Path(), "config file")
	f.BoolVar(&f.verbose, "verbose", false, "log at info level")
	return f
}

func (f *flags) parse(args []string) bool {
	if err := f.Parse(args); err != nil {
		return false
	}
	if f.NArg() > 0 {
		fmt.Fprintf(f.Output(), "unexpected argument: %s\n", f.Arg(0))
		return false
	}
	return true
}

func (f *flags) open(ctx context.Context, e env) (*app.App, bool) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(e.stderr, "load config: %v\n", err)
		return nil, false
	}
	level := "warn"
	if f.verbose {
		level = "info"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		fmt.Fprintf(e.stderr, "init logger: %v\n", err)
		return nil, false
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(e.stderr, "open ledger: %v\n", err)
		return nil, false
	}
	return a, true
}

func runMigrate(ctx context.Context, e env, args []string) int {
	f := newFlags("migrate", e)
	if !f.parse(args) {
		return 1
	}
	a, ok := f.open(ctx, e)
	if !ok {
		return 1
	}
	defer a.Close()
	if err := a.Store.Migrate(ctx); err != nil {
		return fail(e, err)
	}
	return writeJSON(e, map[string]string{"status": "migrated"})
}

func writeJSON(e env, v any) int {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(e.stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func fail(e env, err error) int {
	fmt.Fprintf(e.stderr, "%s: %v\n", usecase.ResultCode(err), err)
	return 1
}

func required(e env, pairs ...string) bool {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			fmt.Fprintf(e.stderr, "--%s is required\n", pairs[i])
			return false
		}
	}
	return true
}

func readPayload(inline, path string) ([]byte, error) {
	switch {
	case inline != "" && path != "":
		return nil, errors.New("use either --payload or --payload-file")
	case inline != "":
		return []byte(inline), nil
	case path == "-":
		return io.ReadAll(os.Stdin)
	case path != "":
		return os.ReadFile(path)
	default:
		return nil, errors.New("--payload or --payload-file is required")
	}
}
