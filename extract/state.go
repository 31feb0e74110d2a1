package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"
)

// State is persisted between runs in the data directory.
type State struct {
	// LastExtractionTime is in unix seconds.
	LastExtractionTime float64 `json:"last_extraction_time"`
	FilesExtracted     int     `json:"files_extracted"`
}

// Watermark returns LastExtractionTime as a time, zero when unset.
func (s State) Watermark() time.Time {
	if s.LastExtractionTime <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s.LastExtractionTime)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func newState(now time.Time, files int) State {
	return State{
		LastExtractionTime: float64(now.UnixNano()) / 1e9,
		FilesExtracted:     files,
	}
}

// readState loads the previous state. A missing file yields the zero state.
func readState(path string) (State, error) {
	var s State
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return s, nil
}

// writeJSON writes v to path through a temporary file and a rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
