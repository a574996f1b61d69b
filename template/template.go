// Package template loads biasgen test templates from YAML.
//
// A template names the operation under test, declares named distributions
// (which may nest each other by name), binds them to operand slots, and
// optionally attaches a situation strategy and trailing operations:
//
//	name: remw
//	op: remw
//	iterations: 10000
//	distributions:
//	  int_dist:
//	    - {value: 0, bias: 5}
//	    - {value: -1, bias: 5}
//	    - {interval: [0x0, 0xffffffff], bias: 90}
//	  operands:
//	    - {dist: int_dist, bias: 80}
//	    - {set: [0xDEADBEEF, 0xBADF00D], bias: 20}
//	slots:
//	  - {name: rs1, dist: operands}
//	  - {name: rs2, dist: operands}
//	trailer: nop
//
// Values are int64 unless the template sets "unsigned: true", in which case
// ranges are ordered and sampled as uint64 and intervals such as
// [0x0, 0xffffffffffffffff] are valid.
package template

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexshd/biasgen"
)

var (
	// ErrUnknownDistribution is returned for a reference to an undeclared distribution.
	ErrUnknownDistribution = errors.New("template: unknown distribution")

	// ErrDistributionCycle is returned when named distributions nest each other.
	ErrDistributionCycle = errors.New("template: distribution cycle")

	// ErrInvalidTemplate is returned for structurally wrong templates.
	ErrInvalidTemplate = errors.New("template: invalid template")
)

// RangeSpec is one weighted range. Exactly one of Value, Interval, Set and
// Dist must be given.
type RangeSpec struct {
	Value    *Int   `yaml:"value"`
	Interval []Int  `yaml:"interval"`
	Set      []Int  `yaml:"set"`
	Dist     string `yaml:"dist"`
	Bias     *Uint  `yaml:"bias"`
}

// SlotSpec binds an operand slot to a named distribution.
type SlotSpec struct {
	Name string `yaml:"name"`
	Dist string `yaml:"dist"`
}

// SituationSpec attaches a situation strategy.
type SituationSpec struct {
	Strategy string `yaml:"strategy"`
	Params   string `yaml:"params"`
}

// Spec is the decoded YAML document.
type Spec struct {
	Name          string                 `yaml:"name"`
	Op            string                 `yaml:"op"`
	Seed          *Uint                  `yaml:"seed"`
	Iterations    Uint                   `yaml:"iterations"`
	OnError       string                 `yaml:"on_error"`
	Distributions map[string][]RangeSpec `yaml:"distributions"`
	Slots         []SlotSpec             `yaml:"slots"`
	Situation     *SituationSpec         `yaml:"situation"`
	Trailer       Ops                    `yaml:"trailer"`
	Unsigned      bool                   `yaml:"unsigned"`
}

// Program is a template's sequence body and named distributions at one
// operand width.
type Program[T biasgen.Integer] struct {
	Body          *biasgen.SequenceBody[T]
	Distributions map[string]*biasgen.Distribution[T]
}

// Template is a built, ready-to-run template. Exactly one of Signed and
// Unsigned is set: templates declaring "unsigned: true" compare and sample
// their ranges as uint64, all others as int64.
type Template struct {
	Name       string
	Path       string // Empty for templates parsed from memory
	Signed     *Program[int64]
	Unsigned   *Program[uint64]
	Seed       uint64
	HasSeed    bool
	Iterations uint64 // 0 means the caller's default
	OnError    biasgen.ErrorPolicy
}

// Op returns the operation under test.
func (t *Template) Op() string {
	if t.Unsigned != nil {
		return t.Unsigned.Body.Op()
	}
	return t.Signed.Body.Op()
}

// Config returns base with the template's settings applied on top.
func (t *Template) Config(base biasgen.Config) biasgen.Config {
	cfg := base
	cfg.Name = t.Name
	if t.HasSeed {
		cfg.Seed = t.Seed
	}
	if t.Iterations > 0 {
		cfg.Iterations = t.Iterations
	}
	if t.OnError != "" {
		cfg.OnEmissionError = t.OnError
	}
	return cfg
}

// Parse decodes and builds a template. Unknown keys are rejected.
func Parse(data []byte) (*Template, error) {
	spec, err := decode(data)
	if err != nil {
		return nil, err
	}
	return spec.Build()
}

func decode(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return &spec, nil
}

// Load reads and builds the template at path. The file name (without
// extension) is the default template name.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	spec, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	t, err := spec.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Glob expands paths into template files. Directories contribute their
// *.yaml and *.yml files, sorted.
func Glob(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			m, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			found = append(found, m...)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// Build resolves the named distributions and assembles the sequence body.
func (s *Spec) Build() (*Template, error) {
	if s.Op == "" {
		return nil, fmt.Errorf("%w: missing op", ErrInvalidTemplate)
	}
	name := s.Name
	if name == "" {
		name = s.Op
	}

	t := &Template{
		Name:       name,
		Iterations: uint64(s.Iterations),
	}
	var err error
	if s.Unsigned {
		t.Unsigned, err = buildProgram[uint64](s)
	} else {
		t.Signed, err = buildProgram[int64](s)
	}
	if err != nil {
		return nil, err
	}

	if s.Seed != nil {
		t.Seed, t.HasSeed = uint64(*s.Seed), true
	}
	if s.OnError != "" {
		if t.OnError, err = biasgen.ParseErrorPolicy(s.OnError); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// buildProgram builds the template at width T. Literals keep their 64-bit
// pattern, so in an unsigned template -1 and 0xFFFFFFFFFFFFFFFF are the
// same value.
func buildProgram[T biasgen.Integer](s *Spec) (*Program[T], error) {
	r := resolver[T]{specs: s.Distributions, built: map[string]*biasgen.Distribution[T]{}}
	names := make([]string, 0, len(s.Distributions))
	for n := range s.Distributions {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := r.resolve(n, nil); err != nil {
			return nil, err
		}
	}

	slots := make([]biasgen.Slot[T], len(s.Slots))
	for i, sl := range s.Slots {
		d, ok := r.built[sl.Dist]
		if !ok {
			return nil, fmt.Errorf("slot %q: %w %q", sl.Name, ErrUnknownDistribution, sl.Dist)
		}
		slots[i] = biasgen.Slot[T]{Name: sl.Name, Dist: d}
	}

	body, err := biasgen.NewSequenceBody(s.Op, slots...)
	if err != nil {
		return nil, err
	}

	if sit := s.Situation; sit != nil {
		var params *biasgen.Distribution[T]
		if sit.Params != "" {
			d, ok := r.built[sit.Params]
			if !ok {
				return nil, fmt.Errorf("situation %q: %w %q", sit.Strategy, ErrUnknownDistribution, sit.Params)
			}
			params = d
		}
		if body, err = body.WithSituation(sit.Strategy, params); err != nil {
			return nil, err
		}
	}
	if len(s.Trailer) > 0 {
		body = body.WithTrailer(s.Trailer...)
	}

	return &Program[T]{Body: body, Distributions: r.built}, nil
}

// resolver builds named distributions depth first, children before parents.
type resolver[T biasgen.Integer] struct {
	specs map[string][]RangeSpec
	built map[string]*biasgen.Distribution[T]
}

func (r *resolver[T]) resolve(name string, path []string) (*biasgen.Distribution[T], error) {
	if d, ok := r.built[name]; ok {
		return d, nil
	}
	for _, p := range path {
		if p == name {
			return nil, fmt.Errorf("%w: %s", ErrDistributionCycle, strings.Join(append(path, name), " -> "))
		}
	}
	specs, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDistribution, name)
	}
	path = append(path, name)

	ranges := make([]biasgen.Range[T], len(specs))
	for i, rs := range specs {
		rg, err := r.buildRange(rs, path)
		if err != nil {
			return nil, fmt.Errorf("distribution %q range %d: %w", name, i, err)
		}
		ranges[i] = rg
	}

	d, err := biasgen.NewDistribution(ranges...)
	if err != nil {
		return nil, fmt.Errorf("distribution %q: %w", name, err)
	}
	r.built[name] = d
	return d, nil
}

func (r *resolver[T]) buildRange(rs RangeSpec, path []string) (biasgen.Range[T], error) {
	var zero biasgen.Range[T]
	if rs.Bias == nil {
		return zero, fmt.Errorf("%w: missing bias", ErrInvalidTemplate)
	}
	bias := uint64(*rs.Bias)

	given := 0
	for _, set := range []bool{rs.Value != nil, rs.Interval != nil, rs.Set != nil, rs.Dist != ""} {
		if set {
			given++
		}
	}
	if given != 1 {
		return zero, fmt.Errorf("%w: want exactly one of value, interval, set, dist", ErrInvalidTemplate)
	}

	switch {
	case rs.Value != nil:
		return biasgen.Value(T(*rs.Value), bias), nil
	case rs.Interval != nil:
		if len(rs.Interval) != 2 {
			return zero, fmt.Errorf("%w: interval needs [low, high], got %d values", ErrInvalidTemplate, len(rs.Interval))
		}
		return biasgen.Interval(T(rs.Interval[0]), T(rs.Interval[1]), bias), nil
	case rs.Set != nil:
		values := make([]T, len(rs.Set))
		for i, v := range rs.Set {
			values[i] = T(v)
		}
		return biasgen.Set(bias, values...), nil
	default:
		d, err := r.resolve(rs.Dist, path)
		if err != nil {
			return zero, err
		}
		return biasgen.Nest(d, bias), nil
	}
}
