package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// printer writes command results as aligned text or as indented JSON.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, jsonOut bool) *printer {
	return &printer{w: w, json: jsonOut}
}

// line prints a formatted line in text mode. JSON mode ignores it.
func (p *printer) line(format string, args ...any) {
	if p.json {
		return
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}

// value prints v as JSON, or runs text when in text mode.
func (p *printer) value(v any, text func()) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

// table writes a header and rows as tab-aligned columns.
func (p *printer) table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}
