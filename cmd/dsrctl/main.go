// Command dsrctl validates engine configurations and runs privacy requests
// against them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/config"
	"github.com/syssam/dsr/connector"
	"github.com/syssam/dsr/masking"
	"github.com/syssam/dsr/saas"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newApp().Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "dsrctl",
		Usage: "Privacy request engine tooling",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log at debug level"},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return ctx, nil
		},
		Commands: []*cli.Command{
			validateCommand(),
			dryRunCommand(),
			testCommand(),
			accessCommand(),
			strategiesCommand(),
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "dsr.yml", Usage: "configuration file"}
}

func load(c *cli.Command) (*config.Config, error) {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(masking.Default()); err != nil {
		return nil, err
	}
	return conf, nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate a configuration file",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{Name: "watch", Usage: "keep validating the file whenever it changes"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := load(c)
			if err != nil {
				return err
			}
			printSummary(c.Root().Writer, conf)
			if !c.Bool("watch") {
				return nil
			}
			return config.Watch(ctx, c.String("config"), func(conf *config.Config) {
				printSummary(c.Root().Writer, conf)
			})
		},
	}
}

func dryRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "dry-run",
		Usage: "Print the read instruction of every collection in traversal order",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := load(c)
			if err != nil {
				return err
			}
			conns, err := conf.Connectors()
			if err != nil {
				return err
			}
			defer closeAll(conns)
			exec, err := conf.Executor(conns, slog.Default())
			if err != nil {
				return err
			}
			queries, err := exec.DryRun()
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.Root().Writer, queries)
			}
			tr, _ := conf.Traversal()
			for _, addr := range tr.Order() {
				fmt.Fprintf(c.Root().Writer, "%s\n  %s\n", addr, queries[addr.String()])
			}
			return nil
		},
	}
}

func testCommand() *cli.Command {
	return &cli.Command{
		Name:  "test-connections",
		Usage: "Check that every configured connection is reachable",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := load(c)
			if err != nil {
				return err
			}
			conns, err := conf.Connectors()
			if err != nil {
				return err
			}
			defer closeAll(conns)
			var errs []error
			for _, key := range sortedKeys(conns) {
				status, err := conns[key].TestConnection(ctx)
				fmt.Fprintf(c.Root().Writer, "%-24s %s\n", key, status)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", key, err))
				}
			}
			return dsr.NewAggregateError(errs...)
		},
	}
}

func accessCommand() *cli.Command {
	return &cli.Command{
		Name:  "access",
		Usage: "Run an access request and print the results allowed by the policy",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "policy", Required: true, Usage: "policy key"},
			&cli.StringSliceFlag{Name: "identity", Required: true, Usage: "identity seed as key=value, e.g. email=jane@example.com"},
			&cli.BoolFlag{Name: "erase", Usage: "run the erasure rules of the policy after the access request"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := load(c)
			if err != nil {
				return err
			}
			policy, ok := conf.Policy(c.String("policy"))
			if !ok {
				return dsr.NewConfigError(c.String("policy"), "policy not found")
			}
			identity, err := parseIdentity(c.StringSlice("identity"))
			if err != nil {
				return err
			}
			conns, err := conf.Connectors()
			if err != nil {
				return err
			}
			defer closeAll(conns)
			exec, err := conf.Executor(conns, slog.Default())
			if err != nil {
				return err
			}

			req := dsr.NewRequest(identity)
			access, err := exec.Access(ctx, req, policy)
			defer func() { _ = access.Close(ctx) }()
			if err != nil {
				slog.WarnContext(ctx, "access request incomplete", "request", req.ID, "summary", access.Summary(), "error", err)
			}
			results, ferr := access.Filtered(ctx, policy)
			if ferr != nil {
				return ferr
			}
			if perr := printJSON(c.Root().Writer, results); perr != nil {
				return perr
			}
			if !c.Bool("erase") {
				return err
			}
			erasure, eerr := exec.Erasure(ctx, req, policy, access)
			if eerr != nil {
				return eerr
			}
			masked := 0
			for _, n := range erasure.Nodes {
				masked += n.Rows
			}
			slog.InfoContext(ctx, "erasure request finished", "request", req.ID, "summary", erasure.Summary(), "rows", masked)
			return err
		},
	}
}

func strategiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "strategies",
		Usage: "List the masking strategies and SaaS post-processors",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
		Action: func(ctx context.Context, c *cli.Command) error {
			descs := masking.Default().Describe()
			processors := saas.DefaultRegistry().Names()
			if c.Bool("json") {
				return printJSON(c.Root().Writer, map[string]any{
					"masking":        descs,
					"postprocessors": processors,
				})
			}
			printStrategies(c.Root().Writer, descs, processors)
			return nil
		},
	}
}

func parseIdentity(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid identity %q, expected key=value", p)
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, errors.New("an identity is required")
	}
	return out, nil
}

func closeAll(conns map[string]connector.Connector) {
	for key, c := range conns {
		if err := c.Close(); err != nil {
			slog.Warn("closing connector", "connection", key, "error", err)
		}
	}
}
