package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/five82/flowwatch/internal/config"
	"github.com/five82/flowwatch/internal/fileflows"
)

// ProbeReport is the output of the probe command.
type ProbeReport struct {
	Server    string                  `json:"server" yaml:"server"`
	CheckedAt time.Time               `json:"checked_at" yaml:"checked_at"`
	Endpoints []fileflows.ProbeResult `json:"endpoints" yaml:"endpoints"`
}

// Available counts endpoints that answered with JSON.
func (r ProbeReport) Available() int {
	n := 0
	for _, e := range r.Endpoints {
		if e.OK {
			n++
		}
	}
	return n
}

// RunProbe checks every known endpoint and writes the report to w in the
// requested format (text, json or yaml).
func RunProbe(ctx context.Context, opts Options, format string, w io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		return err
	}
	client, err := fileflows.NewClient(fileflows.Options{
		BaseURL:        ep.BaseURL(),
		Token:          cfg.APIToken,
		Timeout:        cfg.Timeout,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("init fileflows client: %w", err)
	}

	report := ProbeReport{
		Server:    client.BaseURL(),
		CheckedAt: time.Now().UTC().Truncate(time.Second),
		Endpoints: client.Probe(ctx, fileflows.KnownEndpoints),
	}
	return WriteProbeReport(w, report, format)
}

// WriteProbeReport renders report as text, json or yaml.
func WriteProbeReport(w io.Writer, report ProbeReport, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return writeProbeText(w, report)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func writeProbeText(w io.Writer, report ProbeReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "server\t%s\n", report.Server)
	fmt.Fprintf(tw, "available\t%d/%d\n\n", report.Available(), len(report.Endpoints))
	fmt.Fprintln(tw, "ENDPOINT\tSTATUS\tTIME\tDETAIL")
	for _, e := range report.Endpoints {
		status := "ok"
		detail := ""
		if !e.OK {
			status = e.Kind
			detail = e.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Path, status, e.Duration.Round(time.Millisecond), detail)
	}
	return tw.Flush()
}
