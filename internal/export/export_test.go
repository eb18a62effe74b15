package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/motorbench/internal/sequence"
	"github.com/san-kum/motorbench/internal/storage"
)

func testSamples() []storage.Sample {
	out := make([]storage.Sample, 100)
	for i := range out {
		t := float64(i) * 0.1
		out[i] = storage.Sample{
			Time: t, SpeedRPM: 2000 - 500/(t+1), TorqueNm: 3,
			CurrentA: 20, VoltageV: 40, PowerW: 700,
			Efficiency: 0.85, TemperatureC: 25 + t,
		}
	}
	return out
}

func TestValues(t *testing.T) {
	vals, err := Values(testSamples(), Temperature)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 100 || vals[10] != 26 {
		t.Errorf("column extraction wrong: len=%d vals[10]=%v", len(vals), vals[10])
	}

	if _, err := Values(testSamples(), "bogus"); err == nil {
		t.Error("expected error for unknown quantity")
	}
}

func TestTimeSeriesChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speed.png")
	if err := TimeSeriesChart(testSamples(), Speed, "run", path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty chart file")
	}
}

func TestTimeSeriesChartEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	if err := TimeSeriesChart(nil, Speed, "run", path); err == nil {
		t.Error("expected error for empty sample set")
	}
}

func testResult() *sequence.Result {
	res := &sequence.Result{
		SequenceID: "map-1", Name: "Efficiency map",
		Type: sequence.EfficiencyMap, Status: sequence.StatusCompleted,
	}
	for i := 0; i < 36; i++ {
		res.Points = append(res.Points, sequence.TestPoint{
			Time:     float64(i),
			SpeedRPM: 500 + float64(i%6)*500,
			TorqueNm: 1 + float64(i/6),
		})
	}
	return res
}

func TestEfficiencyMapChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.svg")
	if err := EfficiencyMapChart(testResult(), path); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("chart not written: %v", err)
	}
}

func TestJSONDocument(t *testing.T) {
	var buf bytes.Buffer
	meta := storage.RunMetadata{ID: "run_1", Motor: "bldc_2kw_48v"}
	if err := JSON(&buf, meta, testSamples(), testResult()); err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.ID != "run_1" || len(doc.Samples) != 100 || doc.Result == nil {
		t.Errorf("document incomplete: %+v", doc.Metadata)
	}
}
