package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"example.com/blfgate/internal/blf"
	"example.com/blfgate/internal/common"
)

// DecodeReport describes one decoded capture: where it came from, what its
// header declared and what the decoder found.
type DecodeReport struct {
	File        string         `json:"file"`
	SHA256      string         `json:"sha256"`
	Size        int64          `json:"size"`
	Header      blf.FileHeader `json:"header"`
	Summary     blf.Summary    `json:"summary"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Build hashes the file at path and combines it with the decoding results.
func Build(path string, hdr blf.FileHeader, sum blf.Summary) (DecodeReport, error) {
	hash, size, err := common.Sha256OfFile(path)
	if err != nil {
		return DecodeReport{}, err
	}
	return DecodeReport{
		File:        filepath.Base(path),
		SHA256:      hash,
		Size:        size,
		Header:      hdr,
		Summary:     sum,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Clean reports whether nothing was skipped or resynchronized.
func (r DecodeReport) Clean() bool {
	s := r.Summary
	return s.SkippedContainers == 0 && s.SkippedObjects == 0 && s.Resyncs == 0
}

func SaveJSON(rep DecodeReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (DecodeReport, error) {
	var rep DecodeReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
