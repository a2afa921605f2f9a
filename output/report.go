package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/landsat"
	"github.com/forest-guardian/landsat-lst/internal/raster"
)

type StageSummary struct {
	Stage    string        `json:"stage"`
	Band     string        `json:"band"`
	Stats    raster.Stats  `json:"stats"`
	Duration time.Duration `json:"duration_ns"`
	Dump     string        `json:"dump,omitempty"`
}

type RegionSummary struct {
	Source      string     `json:"source"`
	CRS         string     `json:"crs"`
	Features    int        `json:"features"`
	CentroidLon float64    `json:"centroid_lon"`
	CentroidLat float64    `json:"centroid_lat"`
	Bounds      [4]float64 `json:"bounds_lonlat"`
}

// Report is the machine readable record of a run, written next to the maps.
type Report struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Collection  string              `json:"collection"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	SceneID     string              `json:"scene_id"`
	Scene       landsat.SceneInfo   `json:"scene"`
	Calibration landsat.Calibration `json:"calibration"`
	Candidates  int                 `json:"candidates"`
	CloudCover  *float64            `json:"cloud_cover,omitempty"`
	Region      RegionSummary       `json:"region"`
	Stages      []StageSummary      `json:"stages"`
	Steps       map[string]string   `json:"steps"`
	Artifacts   map[string]string   `json:"artifacts"`
}

func WriteReport(path string, report *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	file, err := createFile(path)
	if err != nil {
		return fmt.Errorf("error creating report file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		file.Close()
		return fmt.Errorf("error encoding report: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing report file: %w", err)
	}
	return nil
}
