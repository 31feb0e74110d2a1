package extract

import (
	"encoding/csv"
	"fmt"
	"os"
)

type fileManifest struct {
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"is_public"`
	IsPermanent bool     `json:"is_permanent"`
}

type tableManifest struct {
	Columns     []string `json:"columns"`
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
	HasHeader   bool     `json:"has_header"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeFileManifest(out string, tags []string) error {
	return writeJSON(out+".manifest", fileManifest{
		Tags:        nonNil(tags),
		IsPermanent: true,
	})
}

func writeTableManifest(out string, m tableManifest) error {
	m.Columns = nonNil(m.Columns)
	m.PrimaryKey = nonNil(m.PrimaryKey)
	return writeJSON(out+".manifest", m)
}

// csvHeader reads the first record of the CSV file at path.
func csvHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header from %s: %w", path, err)
	}
	return header, nil
}
