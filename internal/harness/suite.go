package harness

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// ScenarioRun is one scenario's outcome within a suite.
type ScenarioRun struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioRun `json:"scenarios"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
}

// FindScenarios lists the .yaml and .yml files under dir, sorted. A
// non-empty filter is a glob matched against each file's base name.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			ok, err := filepath.Match(filter, d.Name())
			if err != nil {
				return fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario in paths. Load and execution
// errors count as failures of that scenario; the suite continues.
func RunSuite(paths []string) SuiteResult {
	res := SuiteResult{Scenarios: make([]ScenarioRun, 0, len(paths)), Total: len(paths)}

	for _, path := range paths {
		run := ScenarioRun{Name: filepath.Base(path), Path: path}

		scenario, err := LoadScenario(path)
		if err == nil {
			run.Name = scenario.Name
			var result *Result
			if result, err = Run(scenario); err == nil {
				run.Pass = result.Pass
				run.Errors = result.Errors
			}
		}
		if err != nil {
			run.Errors = []string{err.Error()}
		}

		if run.Pass {
			res.Passed++
		} else {
			res.Failed++
		}
		res.Scenarios = append(res.Scenarios, run)
	}
	return res
}
