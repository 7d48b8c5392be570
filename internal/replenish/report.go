package replenish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Recommendation is one "buy again" suggestion.
type Recommendation struct {
	ProductID    string `json:"id"`
	Name         string `json:"name"`
	Reason       string `json:"reason"`
	SuggestedQty int    `json:"suggested_qty"`
	Frequency    int    `json:"frequency"`
}

// Report is the complete output artifact of one engine run. Discovery is
// reserved for cross-sell candidates and currently always empty.
type Report struct {
	ID          string           `json:"id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Items       []Recommendation `json:"items"`
	Discovery   []Recommendation `json:"discovery"`
}

// NewReport stamps a fresh report with an id and generation time.
func NewReport(now time.Time, items []Recommendation) Report {
	if items == nil {
		items = []Recommendation{}
	}
	return Report{
		ID:          uuid.New().String(),
		GeneratedAt: now.UTC(),
		Items:       items,
		Discovery:   []Recommendation{},
	}
}

// Write persists the report as pretty-printed JSON via atomic rename, so
// readers never observe a partial file.
func (r Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp report file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing report: %w", err)
	}
	return nil
}

// ReadReport loads a previously written report.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}
