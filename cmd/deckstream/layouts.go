package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"deckstream/internal/infra/logger"
)

func runLayouts(args []string, out io.Writer) error {
	c := parseArgs(args)
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	resolver, err := newResolver(cfg.Layouts, logger.Discard(), nil)
	if err != nil {
		return err
	}

	sub := "list"
	if len(c.pos) > 0 {
		sub = c.pos[0]
	}
	switch sub {
	case "list":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tDESCRIPTION")
		for _, e := range resolver.Registry().Entries() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, e.Name, e.Description)
		}
		return tw.Flush()
	case "resolve":
		if len(c.pos) < 2 {
			return fmt.Errorf("usage: deckstream layouts resolve <layout-id> [group]")
		}
		group := cfg.Layouts.DefaultGroup
		if len(c.pos) > 2 {
			group = c.pos[2]
		}
		e, trace := resolver.ResolveTrace(c.pos[1], group)
		if e == nil {
			fmt.Fprintf(out, "miss: no layout renders %q (group %q)\n", c.pos[1], group)
		} else {
			fmt.Fprintf(out, "%s: %s\n", trace.Stage, e.Key)
		}
		fmt.Fprintf(out, "tried: %s\n", strings.Join(trace.Tried, ", "))
		return nil
	default:
		return fmt.Errorf("unknown layouts subcommand: %s", sub)
	}
}
