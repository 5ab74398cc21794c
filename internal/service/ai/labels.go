package ai

import (
	"fmt"
	"os"
	"sort"

	"landslidewatch/internal/service/pipeline"

	"github.com/goccy/go-yaml"
)

// LoadClassNames reads the "names" entry of a YOLO data.yaml file.
func LoadClassNames(path string) (pipeline.ClassNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class names: %w", err)
	}
	names, err := ParseClassNames(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return names, nil
}

// ParseClassNames accepts names as a list or as an index to name mapping.
// Gaps in a mapping are left empty and fail to resolve.
func ParseClassNames(data []byte) (pipeline.ClassNames, error) {
	var list struct {
		Names []string `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &list); err == nil && len(list.Names) > 0 {
		return pipeline.ClassNames(list.Names), nil
	}

	var mapping struct {
		Names map[int]string `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse class names: %w", err)
	}
	if len(mapping.Names) == 0 {
		return nil, fmt.Errorf("no class names found")
	}

	indexes := make([]int, 0, len(mapping.Names))
	for idx := range mapping.Names {
		if idx < 0 {
			return nil, fmt.Errorf("negative class index %d", idx)
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	names := make(pipeline.ClassNames, indexes[len(indexes)-1]+1)
	for _, idx := range indexes {
		names[idx] = mapping.Names[idx]
	}
	return names, nil
}
