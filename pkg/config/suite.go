package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/integrail/uismoke/pkg/smoke"
)

// LoadSuite reads one or more suites from a YAML file. Several suites can
// share a file as separate documents. Suites without a name are named after
// the file, with a numeric suffix when there are several.
func LoadSuite(path string) ([]*smoke.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read suite file")
	}
	suites, err := ParseSuites(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid suite file %s", path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i, s := range suites {
		if s.Name == "" {
			s.Name = base
			if len(suites) > 1 {
				s.Name = base + "-" + strconv.Itoa(i+1)
			}
		}
		if err := s.Normalize(); err != nil {
			return nil, errors.Wrapf(err, "invalid suite file %s", path)
		}
	}
	return suites, nil
}

func ParseSuites(data []byte) ([]*smoke.Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var suites []*smoke.Suite
	for {
		var s smoke.Suite
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		suites = append(suites, &s)
	}
	if len(suites) == 0 {
		return nil, errors.New("no suites defined")
	}
	return suites, nil
}

// LoadSuites loads every file and fails on the first invalid one.
func LoadSuites(paths []string) ([]*smoke.Suite, error) {
	var all []*smoke.Suite
	for _, p := range paths {
		suites, err := LoadSuite(p)
		if err != nil {
			return nil, err
		}
		all = append(all, suites...)
	}
	return all, nil
}
