// Package storage persists bench runs as directories of metadata.json,
// samples.csv and, for scripted tests, result.json. Persistence always
// happens after a run, never inside the tick loop.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/motorbench/internal/sequence"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Sample is one recorded observation of the rig.
type Sample struct {
	Time         float64
	SpeedRPM     float64
	TorqueNm     float64
	CurrentA     float64
	VoltageV     float64
	PowerW       float64
	Efficiency   float64
	TemperatureC float64
	LoadNm       float64
}

// FromTestPoint converts a recorded test point into a storable sample.
func FromTestPoint(pt sequence.TestPoint) Sample {
	return Sample{
		Time:         pt.Time,
		SpeedRPM:     pt.SpeedRPM,
		TorqueNm:     pt.TorqueNm,
		CurrentA:     pt.CurrentA,
		VoltageV:     pt.VoltageV,
		PowerW:       pt.PowerW,
		Efficiency:   pt.Efficiency,
		TemperatureC: pt.TemperatureC,
	}
}

type RunMetadata struct {
	ID        string    `json:"id"`
	Motor     string    `json:"motor"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Target    float64   `json:"target"`
	Duration  float64   `json:"duration"`
	Samples   int       `json:"samples"`
	Sequence  string    `json:"sequence,omitempty"`
	Passed    *bool     `json:"passed,omitempty"`
}

var csvHeader = []string{
	"time", "speed_rpm", "torque_nm", "current_a", "voltage_v",
	"power_w", "efficiency", "temperature_c", "load_nm",
}

// Save writes one run directory and returns its id. result may be nil for
// plain (non-test) runs.
func (s *Store) Save(meta RunMetadata, samples []Sample, result *sequence.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.Motor, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.Samples = len(samples)
	if result != nil {
		meta.Sequence = result.SequenceID
		passed := result.Passed
		meta.Passed = &passed
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeSamples(filepath.Join(runDir, "samples.csv"), samples); err != nil {
		return "", err
	}
	if result != nil {
		if err := writeJSON(filepath.Join(runDir, "result.json"), result); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSamples(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, sm := range samples {
		row := []string{
			fmtF(sm.Time), fmtF(sm.SpeedRPM), fmtF(sm.TorqueNm),
			fmtF(sm.CurrentA), fmtF(sm.VoltageV), fmtF(sm.PowerW),
			fmtF(sm.Efficiency), fmtF(sm.TemperatureC), fmtF(sm.LoadNm),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadResult reads the finalized test record of a run, or an error if the
// run was a plain one.
func (s *Store) LoadResult(runID string) (*sequence.Result, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "result.json"))
	if err != nil {
		return nil, err
	}
	var res sequence.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) LoadSamples(runID string) ([]Sample, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "samples.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < len(csvHeader) {
			continue
		}
		vals := make([]float64, len(csvHeader))
		ok := true
		for i := range vals {
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		samples = append(samples, Sample{
			Time: vals[0], SpeedRPM: vals[1], TorqueNm: vals[2],
			CurrentA: vals[3], VoltageV: vals[4], PowerW: vals[5],
			Efficiency: vals[6], TemperatureC: vals[7], LoadNm: vals[8],
		})
	}
	return samples, nil
}
