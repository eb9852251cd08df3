package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CRS regression test files, as found in the tests/regression directory of the Core Rule Set.
type crsTestFile struct {
	Meta  map[string]interface{} `yaml:"meta"`
	Tests []crsTest              `yaml:"tests"`
}

type crsTest struct {
	TestTitle string            `yaml:"test_title"`
	Stages    []crsStageWrapper `yaml:"stages"`
}

type crsStageWrapper struct {
	Stage crsStage `yaml:"stage"`
}

type crsStage struct {
	Input  crsInput               `yaml:"input"`
	Output map[string]interface{} `yaml:"output"`
}

type crsInput struct {
	Method  string            `yaml:"method"`
	URI     string            `yaml:"uri"`
	Version string            `yaml:"version"`
	Headers map[string]string `yaml:"headers"`
	Data    interface{}       `yaml:"data"`
}

var ruleIDRegex = regexp.MustCompile(`(\d+)`)

// loadCRSFixtures reads a CRS regression test file, or every such file under a directory, and turns each test stage into a fixture.
func loadCRSFixtures(root string) (ff []fixture, err error) {
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.IsDir() && (strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("read crs tests: %w", err)
		return
	}

	if len(files) == 0 {
		err = fmt.Errorf("no crs test files found under %v", root)
		return
	}

	sort.Strings(files)

	for _, file := range files {
		var bb []byte
		bb, err = os.ReadFile(file)
		if err != nil {
			err = fmt.Errorf("read crs tests: %w", err)
			return
		}

		var tf crsTestFile
		if err = yaml.Unmarshal(bb, &tf); err != nil {
			err = fmt.Errorf("parse crs test file %s: %w", file, err)
			return
		}

		var tt []fixture
		if tt, err = crsToFixtures(tf); err != nil {
			err = fmt.Errorf("crs test file %s: %w", file, err)
			return
		}
		ff = append(ff, tt...)
	}

	return
}

func crsToFixtures(tf crsTestFile) (ff []fixture, err error) {
	for _, t := range tf.Tests {
		for i, s := range t.Stages {
			input := s.Stage.Input
			f := fixture{
				ID:       t.TestTitle,
				Method:   input.Method,
				URI:      input.URI,
				Protocol: input.Version,
				Body:     crsBody(input.Data),
			}
			if len(t.Stages) > 1 {
				f.ID = fmt.Sprintf("%s#%d", t.TestTitle, i+1)
			}
			if f.Method == "" {
				f.Method = "GET"
			}
			if f.URI == "" {
				f.URI = "/"
			}
			if f.Protocol == "" {
				f.Protocol = "HTTP/1.1"
			}

			names := make([]string, 0, len(input.Headers))
			for k := range input.Headers {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				f.Headers = append(f.Headers, fixtureHeader{Name: k, Value: input.Headers[k]})
			}

			for _, k := range []string{"log_contains", "no_log_contains"} {
				v, ok := s.Stage.Output[k].(string)
				if !ok {
					continue
				}

				var id int
				if id, err = strconv.Atoi(ruleIDRegex.FindString(v)); err != nil {
					err = fmt.Errorf("test %s: no rule id in %s %q", t.TestTitle, k, v)
					return
				}
				if k == "log_contains" {
					f.ExpectRules = append(f.ExpectRules, id)
				} else {
					f.ExpectNotRules = append(f.ExpectNotRules, id)
				}
			}

			ff = append(ff, f)
		}
	}

	return
}

// The data field in the YAML files can be either a single string, or a list of lines. This function returns a string from either.
func crsBody(inputData interface{}) (body string) {
	switch d := inputData.(type) {
	case string:
		body = d
	case []interface{}:
		var lines []string
		for _, line := range d {
			if line, ok := line.(string); ok {
				lines = append(lines, line)
			}
		}
		body = strings.Join(lines, "\n")
	}
	return
}
