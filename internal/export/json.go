package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/motorbench/internal/sequence"
	"github.com/san-kum/motorbench/internal/storage"
)

// Document is the self-contained JSON form of one recorded run.
type Document struct {
	Metadata storage.RunMetadata `json:"metadata"`
	Samples  []storage.Sample    `json:"samples,omitempty"`
	Result   *sequence.Result    `json:"result,omitempty"`
}

func JSON(w io.Writer, meta storage.RunMetadata, samples []storage.Sample, result *sequence.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Metadata: meta, Samples: samples, Result: result})
}

func JSONFile(path string, meta storage.RunMetadata, samples []storage.Sample, result *sequence.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return JSON(f, meta, samples, result)
}
