// Package main provides the daedalus binary entry point.
// Daedalus turns JSON records into RDF graph segments driven by a descriptor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/descriptor"
	"github.com/wehubfusion/Daedalus/pkg/rdf"
	"github.com/wehubfusion/Daedalus/pkg/source"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "daedalus"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Generate RDF graphs from JSON records",
		Long: `Daedalus reads JSON records, maps them to RDF triples through a
descriptor and writes the graph as segments in the requested format.

Small inputs are partitioned across the workers up front. Inputs above the
large threshold are streamed one JSON object per line.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.input, "input", "", "JSON input file")
	f.StringVar(&opts.output, "output", "", "Output base path; segments are named <stem>_<sink>_<n><ext>")
	f.StringVar(&opts.descriptor, "descriptor", "", "Descriptor file (YAML or JSON)")
	f.StringVar(&opts.graph, "graph", "", "Graph IRI, overriding the descriptor")
	f.StringVar(&opts.format, "format", string(rdf.DefaultFormat), "Output format (see 'daedalus formats')")
	f.IntVar(&opts.workers, "workers", 0, "Worker/sink pairs (default DAEDALUS_WORKERS or cpus-1)")
	f.BoolVar(&opts.inlineSinks, "inline-sinks", false, "Run sinks on the worker goroutines instead of their own")
	f.IntVar(&opts.bufferSize, "buffer-size", 0, fmt.Sprintf("Records or triples buffered before a drain (default %d)", concurrency.DefaultBufferSize))
	f.IntVar(&opts.segmentSize, "segment-size", 0, fmt.Sprintf("Triples per segment (default %d)", concurrency.DefaultSegmentSize))
	f.IntVar(&opts.queueSize, "queue-size", 0, "Capacity of the worker and sink queues")
	f.Int64Var(&opts.largeThreshold, "large-threshold", source.DefaultLargeThreshold, "Input size in bytes above which records are streamed")
	f.StringVar(&opts.blobConnectionString, "blob-connection-string", "", "Azure Blob Storage connection string; segments go to the local filesystem if empty")
	f.StringVar(&opts.blobContainer, "blob-container", "daedalus", "Azure Blob Storage container")
	f.StringVar(&opts.natsURL, "nats-url", "", "Publish segment events to this NATS server")
	f.StringVar(&opts.natsSubject, "nats-subject", "daedalus.segments", "Subject for segment events")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP HTTP endpoint (host:port) for traces")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&opts.sentryDSN, "sentry-dsn", "", "Report failed segment writes to Sentry")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	for _, name := range []string{"input", "output", "descriptor"} {
		_ = cmd.MarkFlagRequired(name)
	}

	cmd.AddCommand(validateCmd(), formatsCmd(), versionCmd())
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Load and validate a descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := descriptor.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", args[0])
			if g := desc.GraphIRI(); g != "" {
				fmt.Fprintf(out, "graph: %s\n", g)
			}
			for _, e := range desc.Entities() {
				fmt.Fprintf(out, "entity %s (%s): %d properties\n", e.Name, e.Type, len(e.Properties))
			}
			return nil
		},
	}
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List output formats",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FORMAT\tEXT\tMIME")
			for _, f := range rdf.Formats() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", f, f.Extension(), f.MIMEType())
			}
			_ = w.Flush()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
