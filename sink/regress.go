package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RegressSection is the generator's key in a regress list.
const RegressSection = "biasgen"

// RegressEntry describes one generated test.
type RegressEntry struct {
	Seed       uint64 `yaml:"seed"`
	Iterations uint64 `yaml:"iterations"`
	Emitted    uint64 `yaml:"emitted"`
	State      string `yaml:"state"`
	Digest     string `yaml:"digest,omitempty"`
	Output     string `yaml:"output,omitempty"`
}

// RegressList is the generator's section of a regress list: the directory
// holding generated tests plus one entry per test name.
type RegressList struct {
	TestPath string                  `yaml:"global_testpath,omitempty"`
	Tests    map[string]RegressEntry `yaml:",inline"`
}

// ReadRegressList loads the generator section of the regress file at path.
// A missing file or section yields an empty list.
func ReadRegressList(path string) (RegressList, error) {
	list := RegressList{Tests: map[string]RegressEntry{}}

	doc, err := readRegressDoc(path)
	if err != nil {
		return list, err
	}
	node, ok := doc[RegressSection]
	if !ok {
		return list, nil
	}
	if err := node.Decode(&list); err != nil {
		return list, fmt.Errorf("%s: section %s: %w", path, RegressSection, err)
	}
	if list.Tests == nil {
		list.Tests = map[string]RegressEntry{}
	}
	return list, nil
}

// WriteRegressList merges list into the regress file at path. Entries of
// the same test name are overwritten; other tests and other generators'
// sections are preserved. The file is replaced atomically.
func WriteRegressList(path string, list RegressList) error {
	doc, err := readRegressDoc(path)
	if err != nil {
		return err
	}

	merged := RegressList{Tests: map[string]RegressEntry{}}
	if node, ok := doc[RegressSection]; ok {
		if err := node.Decode(&merged); err != nil {
			return fmt.Errorf("%s: section %s: %w", path, RegressSection, err)
		}
		if merged.Tests == nil {
			merged.Tests = map[string]RegressEntry{}
		}
	}
	if list.TestPath != "" {
		merged.TestPath = list.TestPath
	}
	for name, e := range list.Tests {
		merged.Tests[name] = e
	}

	section := &yaml.Node{}
	if err := section.Encode(merged); err != nil {
		return err
	}
	doc[RegressSection] = section

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".regress-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readRegressDoc(path string) (map[string]*yaml.Node, error) {
	doc := map[string]*yaml.Node{}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse regress list %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]*yaml.Node{}
	}
	return doc, nil
}
