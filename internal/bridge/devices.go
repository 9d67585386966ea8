package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/hostapi"
)

// Output formats accepted by WriteDevices
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
	FormatJSON  = "json"
)

// DeviceReport is the host API descriptor with its device list
type DeviceReport struct {
	HostAPI       string         `yaml:"host_api" json:"host_api"`
	DefaultInput  int            `yaml:"default_input" json:"default_input"`
	DefaultOutput int            `yaml:"default_output" json:"default_output"`
	Devices       []DeviceRecord `yaml:"devices" json:"devices"`
}

// DeviceRecord is one device in a report
type DeviceRecord struct {
	Index             int           `yaml:"index" json:"index"`
	Name              string        `yaml:"name" json:"name"`
	ServerName        string        `yaml:"server_name" json:"server_name"`
	InputChannels     int           `yaml:"input_channels" json:"input_channels"`
	OutputChannels    int           `yaml:"output_channels" json:"output_channels"`
	DefaultSampleRate float64       `yaml:"default_sample_rate" json:"default_sample_rate"`
	LowLatency        time.Duration `yaml:"low_latency" json:"low_latency"`
	HighLatency       time.Duration `yaml:"high_latency" json:"high_latency"`
}

// NewDeviceReport snapshots the host API's device table
func NewDeviceReport(api *hostapi.HostAPI) DeviceReport {
	info := api.Info()
	report := DeviceReport{
		HostAPI:       info.Name,
		DefaultInput:  info.DefaultInputDevice,
		DefaultOutput: info.DefaultOutputDevice,
	}
	for _, d := range api.Devices() {
		rec := DeviceRecord{
			Index:             d.Index,
			Name:              d.Name,
			ServerName:        d.ServerName,
			InputChannels:     d.MaxInputChannels,
			OutputChannels:    d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			LowLatency:        d.DefaultLowOutputLatency,
			HighLatency:       d.DefaultHighOutputLatency,
		}
		if d.IsInput() {
			rec.LowLatency = d.DefaultLowInputLatency
			rec.HighLatency = d.DefaultHighInputLatency
		}
		report.Devices = append(report.Devices, rec)
	}
	return report
}

// WriteDevices renders report to w as a table, YAML or JSON
func WriteDevices(w io.Writer, report DeviceReport, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatTable, "":
		return writeDeviceTable(w, report)
	default:
		return errors.Newf("unknown output format %q", format).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
}

func writeDeviceTable(w io.Writer, report DeviceReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Host API: %s\n\n", report.HostAPI)
	fmt.Fprintln(tw, "INDEX\tDIRECTION\tCHANNELS\tRATE\tLATENCY\tNAME\tSERVER NAME")
	for _, d := range report.Devices {
		direction, channels := "output", d.OutputChannels
		if d.InputChannels > 0 {
			direction, channels = "input", d.InputChannels
		}
		marker := ""
		if d.Index == report.DefaultInput || d.Index == report.DefaultOutput {
			marker = " *"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%d\t%.0f\t%s-%s\t%s\t%s\n",
			d.Index, marker, direction, channels, d.DefaultSampleRate,
			d.LowLatency, d.HighLatency, d.Name, d.ServerName)
	}
	return tw.Flush()
}
