// Package common provides the shared startup sequence used by every binary
// in this repository: flag parsing, logging, signal-triggered cleanup, and
// an optional Prometheus metrics endpoint, composed from an ordered list of
// Opts the same way the rest of this stack bootstraps its servers.
package common

import (
	"flag"
	"net/http"
	"os"
	"runtime"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mobileci/go/cleanup"
	"mobileci/go/sklog"
)

// Opt represents the initialization parameters for a single init service.
//
// Initializing flags and metrics is order dependent, and each binary wants a
// different subset, so each optional piece gets its own Opt and
// initialization is broken into two phases, preinit() and init().
//
// The desired order for all Opts is:
//
//	0 - base
//	3 - prometheus
type Opt interface {
	order() int
	preinit(appName string) error
	init(appName string) error
}

type optSlice []Opt

func (p optSlice) Len() int           { return len(p) }
func (p optSlice) Less(i, j int) bool { return p[i].order() < p[j].order() }
func (p optSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// baseInitOpt is always constructed internally and runs before every Opt
// except the no-op FlagSetOpt.
type baseInitOpt struct {
	flagSet *flag.FlagSet
}

func (b *baseInitOpt) preinit(appName string) error {
	if b.flagSet != nil {
		if err := b.flagSet.Parse(os.Args[1:]); err != nil {
			return err
		}
	} else {
		flag.Parse()
	}
	return nil
}

func (b *baseInitOpt) init(appName string) error {
	visit := flag.VisitAll
	if b.flagSet != nil {
		visit = b.flagSet.VisitAll
	}
	visit(func(f *flag.Flag) {
		sklog.Infof("Flags: --%s=%v", f.Name, f.Value)
	})

	runtime.GOMAXPROCS(runtime.NumCPU())

	// Enable signal handling for the cleanup package so registered
	// shutdown hooks (lock release, log flush) run on SIGINT/SIGTERM.
	cleanup.Enable()

	sklog.Infof("Running as %d:%d", os.Getuid(), os.Getgid())
	return nil
}

func (b *baseInitOpt) order() int {
	return 0
}

// FlagSetOpt causes InitWith to parse and log the flags registered on the
// given FlagSet instead of the global flag.CommandLine.
func FlagSetOpt(fs *flag.FlagSet) Opt {
	return &flagSetOpt{fs: fs}
}

type flagSetOpt struct {
	fs *flag.FlagSet
}

func (o *flagSetOpt) preinit(appName string) error { return nil }
func (o *flagSetOpt) init(appName string) error    { return nil }
func (o *flagSetOpt) order() int                   { return -1 }

// promInitOpt implements Opt for Prometheus.
type promInitOpt struct {
	port *string
}

// PrometheusOpt creates an Opt that serves Prometheus metrics on port when
// passed to InitWith(). A nil or empty port disables the endpoint.
func PrometheusOpt(port *string) Opt {
	return &promInitOpt{port: port}
}

func (o *promInitOpt) preinit(appName string) error { return nil }

func (o *promInitOpt) init(appName string) error {
	if o.port == nil || *o.port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		sklog.Infof("Prometheus metrics on %q", *o.port)
		sklog.Fatal(http.ListenAndServe(*o.port, mux))
	}()
	return nil
}

func (o *promInitOpt) order() int {
	return 3
}

// InitWith initializes each service named by opts, in order() order.
func InitWith(appName string, opts ...Opt) error {
	fs := (*flag.FlagSet)(nil)
	for _, o := range opts {
		if fso, ok := o.(*flagSetOpt); ok {
			fs = fso.fs
		}
	}
	opts = append(opts, &baseInitOpt{flagSet: fs})

	sort.Sort(optSlice(opts))

	for i := 0; i < len(opts)-1; i++ {
		if opts[i].order() == opts[i+1].order() {
			return errDuplicateOpt
		}
	}

	for _, o := range opts {
		if err := o.preinit(appName); err != nil {
			return err
		}
	}
	for _, o := range opts {
		if err := o.init(appName); err != nil {
			return err
		}
	}
	sklog.Flush()
	return nil
}

var errDuplicateOpt = &duplicateOptError{}

type duplicateOptError struct{}

func (e *duplicateOptError) Error() string {
	return "only one of each type of Opt can be used"
}

// InitWithMust calls InitWith and fails fatally if an error is encountered.
func InitWithMust(appName string, opts ...Opt) {
	if err := InitWith(appName, opts...); err != nil {
		sklog.Fatalf("Failed to initialize: %s", err)
	}
}
