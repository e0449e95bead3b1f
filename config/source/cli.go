package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/skekre98/modserver/config"
)

// CLISource turns dotted long flags into nested keys:
// --server.port=9090 --cache.root ./www becomes
// {server: {port: "9090"}, cache: {root: "./www"}}.
//
// Both --flag=value and --flag value are accepted, as is a single dash.
// Flags without a dot are left to the command that owns them, as are
// positional arguments and empty values. A dotted flag with no value
// fails the load.
type CLISource struct {
	// Args defaults to os.Args[1:].
	Args []string
}

func (c *CLISource) Name() string { return "cli" }

func (c *CLISource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := c.Args
	if args == nil {
		args = os.Args[1:]
	}
	values, err := parseDottedFlags(args)
	if err != nil {
		return nil, fmt.Errorf("command line: %w", err)
	}
	return values, nil
}

// Watch is a no-op; arguments never change.
func (c *CLISource) Watch(context.Context, chan<- config.Event) error { return nil }

func parseDottedFlags(raw []string) (map[string]any, error) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// only dotted flags reach pflag; everything else belongs to the command
	args := normalizeArgs(raw)
	var dotted []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name, hasValue := flagName(arg)
		if !strings.Contains(name, ".") {
			continue
		}
		if fs.Lookup(name) == nil {
			fs.String(name, "", "config override for "+name)
		}
		if !hasValue {
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
				return nil, fmt.Errorf("flag needs an argument: --%s", name)
			}
			arg += "=" + args[i+1]
			i++
		}
		dotted = append(dotted, arg)
	}
	if err := fs.Parse(dotted); err != nil {
		return nil, err
	}

	result := make(map[string]any)
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed || f.Value.String() == "" {
			return
		}
		setNestedValue(result, strings.Split(f.Name, "."), f.Value.String())
	})
	return result, nil
}

// normalizeArgs rewrites single-dash long flags (-server.port=1) to the
// double-dash form pflag expects.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && len(arg) > 2 && arg[1] != '=' {
			arg = "-" + arg
		}
		out[i] = arg
	}
	return out
}

func flagName(arg string) (name string, hasValue bool) {
	if !strings.HasPrefix(arg, "--") {
		return "", false
	}
	name, _, hasValue = strings.Cut(strings.TrimPrefix(arg, "--"), "=")
	return name, hasValue
}
