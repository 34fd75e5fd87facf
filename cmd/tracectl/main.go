// Command tracectl resolves a lot identifier against a sqlite snapshot
// without running the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"almazara/internal/core"
	"almazara/internal/render"
	"almazara/internal/trace"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tracectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "almazara.db", "sqlite snapshot database")
	query := fs.String("q", "", "identifier to trace (slip, milling, production, nurse or packaging lot)")
	kind := fs.String("kind", "", "entity kind to resolve directly, used with -id")
	id := fs.String("id", "", "entity id to resolve directly, used with -kind")
	format := fs.String("format", "text", "output format: text, json, csv, pdf or xlsx")
	layout := fs.String("layout", "summary", "pdf layout: summary or detailed")
	out := fs.String("out", "", "write the document to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*query) == "" && (*kind == "" || *id == "") {
		fmt.Fprintln(stderr, "tracectl: -q or -kind and -id required")
		fs.Usage()
		return 2
	}
	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(stderr, "tracectl: snapshot database: %v\n", err)
		return 1
	}

	store, err := core.OpenPersistentStore(core.StorageOptions{Driver: core.StorageSQLite, SQLitePath: *dbPath}, core.NewDefaultRulesEngine())
	if err != nil {
		fmt.Fprintf(stderr, "tracectl: open %s: %v\n", *dbPath, err)
		return 1
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	svc := core.NewService(store)

	ctx := context.Background()
	var report trace.Report
	if *query != "" {
		report, err = svc.Trace(ctx, *query)
	} else {
		report, err = svc.Resolve(ctx, trace.Ref{Kind: trace.Kind(*kind), ID: *id})
	}
	if err != nil {
		if errors.Is(err, trace.ErrNotFound) {
			fmt.Fprintf(stderr, "tracectl: %s: not found\n", strings.TrimSpace(*query+" "+*id))
			return 3
		}
		fmt.Fprintf(stderr, "tracectl: %v\n", err)
		return 1
	}

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(stderr, "tracectl: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if *format == "text" {
		err = writeText(w, render.BuildView(report))
	} else {
		var f render.Format
		var l render.Layout
		if f, err = render.ParseFormat(*format); err == nil {
			if l, err = render.ParseLayout(*layout); err == nil {
				err = render.Write(w, report, f, l)
			}
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "tracectl: %v\n", err)
		return 1
	}
	return 0
}

// writeText prints the view as aligned plain-text sections.
func writeText(w io.Writer, v render.View) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t(snapshot v%d)\n", v.Title, v.Version)
	for _, s := range v.Sections {
		fmt.Fprintf(tw, "\n== %s ==\n", s.Title)
		if s.Empty() {
			fmt.Fprintf(tw, "  %s\n", s.EmptyText)
			continue
		}
		for _, f := range s.Fields {
			fmt.Fprintf(tw, "  %s:\t%s\n", f.Label, f.Value)
		}
		for _, t := range s.Tables {
			fmt.Fprintf(tw, "  [%s]\n", t.Title)
			fmt.Fprintf(tw, "  %s\n", strings.Join(t.Headers, "\t"))
			for _, row := range t.Rows {
				fmt.Fprintf(tw, "  %s\n", strings.Join(row, "\t"))
			}
		}
	}
	if len(v.Notes) > 0 {
		fmt.Fprintln(tw, "\n== Notes ==")
		for _, n := range v.Notes {
			fmt.Fprintf(tw, "  %s\n", n)
		}
	}
	return tw.Flush()
}
