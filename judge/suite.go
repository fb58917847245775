package judge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/isdmx/codejudge/pipeline"
)

// Suite is a set of tests loaded from a manifest.
type Suite struct {
	Language  string
	CodePath  string
	TimeLimit time.Duration
	DiffMode  string
	Tests     []pipeline.TestCase
}

type suiteFile struct {
	Language     string      `yaml:"language"`
	Code         string      `yaml:"code"`
	TimeLimitSec float64     `yaml:"time_limit_sec"`
	DiffMode     string      `yaml:"diff_mode"`
	Tests        []suiteTest `yaml:"tests"`
}

type suiteTest struct {
	Name         string  `yaml:"name"`
	Input        *string `yaml:"input"`
	InputFile    string  `yaml:"input_file"`
	Expected     *string `yaml:"expected"`
	ExpectedFile string  `yaml:"expected_file"`
}

// LoadSuite reads a YAML manifest. File paths in the manifest are relative
// to the manifest's directory. Every referenced input and expected file must
// exist, so a suite never fails halfway through a run for a missing file.
//
//	language: python
//	time_limit_sec: 1.5
//	tests:
//	  - name: sum
//	    input: "5\n"
//	    expected: "8"
//	  - name: large
//	    input_file: large.in
//	    expected_file: large.out
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}

	var sf suiteFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse suite %s: %w", path, err)
	}

	if len(sf.Tests) == 0 {
		return nil, fmt.Errorf("suite %s has no tests", path)
	}
	if sf.TimeLimitSec < 0 {
		return nil, fmt.Errorf("suite %s: time_limit_sec must not be negative", path)
	}

	dir := filepath.Dir(path)
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	suite := &Suite{
		Language:  sf.Language,
		CodePath:  rel(sf.Code),
		TimeLimit: time.Duration(sf.TimeLimitSec * float64(time.Second)),
		DiffMode:  sf.DiffMode,
		Tests:     make([]pipeline.TestCase, 0, len(sf.Tests)),
	}

	var missing []string
	for i, t := range sf.Tests {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("test-%d", i+1)
		}

		if t.Input != nil && t.InputFile != "" {
			return nil, fmt.Errorf("suite %s: test %s sets both input and input_file", path, name)
		}
		if t.Expected != nil && t.ExpectedFile != "" {
			return nil, fmt.Errorf("suite %s: test %s sets both expected and expected_file", path, name)
		}

		tc := pipeline.TestCase{
			ID:           i,
			Name:         name,
			InputPath:    rel(t.InputFile),
			Expected:     t.Expected,
			ExpectedPath: rel(t.ExpectedFile),
		}
		if t.Input != nil {
			tc.Input = []byte(*t.Input)
		} else if t.InputFile == "" {
			tc.Input = []byte{}
		}

		for _, file := range []string{tc.InputPath, tc.ExpectedPath} {
			if file == "" {
				continue
			}
			if _, err := os.Stat(file); err != nil {
				missing = append(missing, fmt.Sprintf("%s (%s)", name, file))
			}
		}

		suite.Tests = append(suite.Tests, tc)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("suite %s: files are missing for %s", path, strings.Join(missing, ", "))
	}

	return suite, nil
}

// Request builds a run request for code against the suite. A language given
// in the suite wins over the code file's extension.
func (s *Suite) Request(code []byte) Request {
	return Request{
		Code:      code,
		CodePath:  s.CodePath,
		Language:  s.Language,
		Tests:     s.Tests,
		TimeLimit: s.TimeLimit,
		DiffMode:  s.DiffMode,
	}
}
