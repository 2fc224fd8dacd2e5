package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/rules"
)

// RulesFile is the catalogue file written next to the pathways.
const RulesFile = "rules.yaml"

// WriteDataset writes each pathway to pathways/<id>.json and the catalogue
// to rules.yaml under dir. It returns the pathway file paths.
func WriteDataset(dataset Dataset, dir string) ([]string, error) {
	pathwayDir := filepath.Join(dir, "pathways")
	if err := os.MkdirAll(pathwayDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, 0, len(dataset.Pathways))
	for _, doc := range dataset.Pathways {
		path := filepath.Join(pathwayDir, doc.ID+".json")
		if err := WriteJSON(path, doc); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	if err := writeRules(filepath.Join(dir, RulesFile), dataset.Rules); err != nil {
		return nil, err
	}
	return paths, nil
}

// WriteJSON writes data as indented JSON to path.
func WriteJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}

func writeRules(path string, catalogue []domain.Rule) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := rules.Encode(file, catalogue); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
