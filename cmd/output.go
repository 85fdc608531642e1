package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/conneroisu/surfacepool/internal/types"
	"gopkg.in/yaml.v3"
)

// writeOutput renders v as JSON or YAML, or calls table for the table format.
func writeOutput(w io.Writer, format string, v interface{}, table func(*tabwriter.Writer) error) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if err := table(tw); err != nil {
			return err
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// eventRecord is the printable form of one visibility change.
type eventRecord struct {
	Element string `json:"element" yaml:"element"`
	Visible bool   `json:"visible" yaml:"visible"`
}

func eventRecords(events []types.VisibilityChangeEvent) []eventRecord {
	records := make([]eventRecord, len(events))
	for i, e := range events {
		records[i] = eventRecord{Element: e.Element.String(), Visible: e.Visible}
	}
	return records
}

// flagRecord is the printable form of one element's state.
type flagRecord struct {
	Element   string `json:"element" yaml:"element"`
	Base      bool   `json:"base" yaml:"base"`
	Effective bool   `json:"effective" yaml:"effective"`
}

// flagSource is the part of the engine the state table reads.
type flagSource interface {
	Elements() []types.ElementKey
	Flag(key types.ElementKey) bool
	Effective(key types.ElementKey) bool
}

func flagRecords(engine flagSource) []flagRecord {
	elements := engine.Elements()
	records := make([]flagRecord, len(elements))
	for i, key := range elements {
		records[i] = flagRecord{
			Element:   key.String(),
			Base:      engine.Flag(key),
			Effective: engine.Effective(key),
		}
	}
	return records
}

// dispatchRecord is the printable form of one broadcast.
type dispatchRecord struct {
	Step      string        `json:"step" yaml:"step"`
	Events    []eventRecord `json:"events" yaml:"events"`
	Attempted int           `json:"attempted" yaml:"attempted"`
	Succeeded int           `json:"succeeded" yaml:"succeeded"`
	Failed    int           `json:"failed" yaml:"failed"`
	Failures  []string      `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func newDispatchRecord(step string, result types.DispatchResult) dispatchRecord {
	record := dispatchRecord{
		Step:      step,
		Events:    eventRecords(result.Events),
		Attempted: result.Attempted,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	}
	for _, f := range result.Failures {
		record.Failures = append(record.Failures,
			fmt.Sprintf("#%d (%s) %s: %s", f.RegistrationID, f.ComponentType, f.Event, f.Reason))
	}
	return record
}

func writeFlagTable(tw *tabwriter.Writer, records []flagRecord) {
	fmt.Fprintln(tw, "ELEMENT\tBASE\tEFFECTIVE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%t\t%t\n", r.Element, r.Base, r.Effective)
	}
}

func writeDispatchTable(tw *tabwriter.Writer, records []dispatchRecord) {
	fmt.Fprintln(tw, "STEP\tEVENTS\tATTEMPTED\tSUCCEEDED\tFAILED")
	for _, r := range records {
		events := make([]string, len(r.Events))
		for i, e := range r.Events {
			events[i] = fmt.Sprintf("%s=%t", e.Element, e.Visible)
		}
		summary := "-"
		if len(events) > 0 {
			summary = fmt.Sprint(events)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.Step, summary, r.Attempted, r.Succeeded, r.Failed)
		for _, failure := range r.Failures {
			fmt.Fprintf(tw, "\t  failure: %s\t\t\t\n", failure)
		}
	}
}
