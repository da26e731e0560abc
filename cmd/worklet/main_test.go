package main

import (
	"strings"
	"testing"

	"github.com/wippyai/wasm-worklet/processor"
)

func TestParamDefs_Set(t *testing.T) {
	var defs paramDefs
	for _, s := range []string{"gain=0:2:1", "cutoff=20:20000:1000:k"} {
		if err := defs.Set(s); err != nil {
			t.Fatalf("Set(%q): %v", s, err)
		}
	}
	if len(defs) != 2 {
		t.Fatalf("got %d defs, want 2", len(defs))
	}
	want := processor.ParamDescriptor{Name: "cutoff", Min: 20, Max: 20000, Default: 1000, Rate: processor.KRate}
	if defs[1] != want {
		t.Errorf("defs[1] = %+v, want %+v", defs[1], want)
	}
	if defs.String() != "gain,cutoff" {
		t.Errorf("String() = %q", defs.String())
	}

	for _, bad := range []string{"gain", "=0:1:0", "gain=0:1", "gain=a:1:0", "gain=0:1:0:x", "gain=0:1:0:k:1"} {
		if err := defs.Set(bad); err == nil {
			t.Errorf("Set(%q) succeeded", bad)
		}
	}
}

func TestParamValues_Set(t *testing.T) {
	vals := paramValues{}
	if err := vals.Set("gain=0.5"); err != nil {
		t.Fatal(err)
	}
	if err := vals.Set("pan=-1"); err != nil {
		t.Fatal(err)
	}
	if vals["gain"] != 0.5 || vals["pan"] != -1 {
		t.Errorf("vals = %v", vals)
	}
	if vals.String() != "gain,pan" {
		t.Errorf("String() = %q", vals.String())
	}
	if err := vals.Set("gain"); err == nil {
		t.Error("missing value accepted")
	}
	if err := vals.Set("gain=loud"); err == nil {
		t.Error("non-numeric value accepted")
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(10, -1); got != "10 frames" {
		t.Errorf("unknown total: %q", got)
	}
	if got := progressBar(50, 100); !strings.HasSuffix(got, " 50%") {
		t.Errorf("half: %q", got)
	}
	if got := progressBar(200, 100); !strings.HasSuffix(got, "100%") {
		t.Errorf("overrun: %q", got)
	}
}

func TestMeters(t *testing.T) {
	out := meters([]float32{0, 1})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "-Inf dB") {
		t.Errorf("silent channel: %q", lines[0])
	}
	if !strings.Contains(lines[1], "0.0 dB") {
		t.Errorf("full scale channel: %q", lines[1])
	}
}

func TestOptions_Validate(t *testing.T) {
	ok := options{block: 128, latency: 64}
	if err := ok.validate(); err != nil {
		t.Fatalf("validate(%+v): %v", ok, err)
	}

	for _, bad := range []options{
		{block: 128, latency: -1},
		{block: 0},
	} {
		if err := bad.validate(); err == nil {
			t.Errorf("validate(%+v) succeeded", bad)
		}
	}
}
