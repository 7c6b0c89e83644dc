package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"RefreshSentinel/internal/model"
)

// LoadLastRun reads the last-run snapshot. Returns nil without error if the
// file doesn't exist yet.
func LoadLastRun(filePath string) (*model.RunSummary, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sum model.RunSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// SaveLastRun writes the snapshot through a temp file so readers never see
// a partial document.
func SaveLastRun(filePath string, sum *model.RunSummary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
