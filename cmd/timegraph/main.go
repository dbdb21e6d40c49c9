// Command timegraph creates, inspects and maintains timegraph databases.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/timegraphdb/pkg/config"
	"github.com/dd0wney/timegraphdb/pkg/engine"
	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
)

// node is the payload the CLI stores: a labelled entity found by key.
type node struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

func keyOf(n node) string { return n.Key }

type command struct {
	name    string
	summary string
	run     func(env *environment, args []string) error
}

var commands = []command{
	{"demo", "build a small meetup graph and query it", runDemo},
	{"load", "insert random nodes and relationships", runLoad},
	{"find", "look a node up by its unique key", runFind},
	{"verify", "check the relationship file without opening it for writing", runVerify},
	{"defrag", "rebalance fillers in the relationship file", runDefrag},
	{"dump", "print relationship file slots", runDump},
	{"init-config", "write the default configuration as YAML", runInitConfig},
}

// environment carries what every subcommand shares.
type environment struct {
	cfg         config.Config
	logger      logging.Logger
	metrics     *metrics.Registry
	showMetrics bool
}

func (env *environment) openEngine() (*engine.Engine[node], error) {
	return engine.Open(env.cfg, keyOf, engine.WithLogger(env.logger), engine.WithMetrics(env.metrics))
}

func main() {
	var (
		configFile  = flag.String("config", "", "YAML configuration file")
		dataDir     = flag.String("data", "", "Data directory (overrides the configuration)")
		showMetrics = flag.Bool("metrics", false, "Print collected metrics on exit")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	env := &environment{
		cfg:         cfg,
		logger:      logging.NewJSONLogger(os.Stderr, cfg.Level()),
		metrics:     metrics.NewRegistry(),
		showMetrics: *showMetrics,
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(env, args)
		if env.showMetrics {
			printMetrics(env.metrics)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: timegraph [flags] <command> [command flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

func printMetrics(reg *metrics.Registry) {
	families, err := reg.GetPrometheusRegistry().Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  gather metrics: %v\n", err)
		return
	}
	fmt.Println("\n📊 Metrics")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("   %s%s: %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Printf("   %s%s: %g\n", mf.GetName(), labels, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Printf("   %s%s: count=%d sum=%g\n", mf.GetName(), labels, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
}
