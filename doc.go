// Package biasgen generates biased, reproducible operand streams for
// instruction-level conformance and stress tests.
//
// # Overview
//
// A test template says which instruction to exercise and how its operands
// should be shaped: mostly random, sometimes zero, sometimes all ones,
// occasionally a magic constant. biasgen turns that shape into a weighted
// distribution, samples it deterministically from a seed, and drives a loop
// that instantiates the instruction thousands of times.
//
// # Architecture
//
// The package components:
//
//   - range/distribution - Weighted distribution algebra (constants, intervals, sets, nesting)
//   - source/sampler     - Seedable random sources and the sampling walk
//   - body/situation     - Parameterized sequence bodies and situation hooks
//   - runner/parallel    - Iteration loop, error policy, cancellation, parallel runs
//   - stats/assertions   - χ² checks and test helpers for distribution properties
//   - sink/              - Emitters: JSON lines, SQLite, SHA3 digest, regress list
//   - template/          - YAML authoring format
//
// # Quick Start
//
// Build the distribution of the REMW template:
//
//	intDist := biasgen.MustDistribution(
//	    biasgen.Value[int64](0, 5),                 // Zero
//	    biasgen.Value[int64](-1, 5),                // Small
//	    biasgen.Interval[int64](0, 0xFFFFFFFF, 90), // Large
//	)
//	operands := biasgen.MustDistribution(
//	    biasgen.Nest(intDist, 80),                                // Simple
//	    biasgen.Set[int64](20, 0xDEADBEEF, 0xBADF00D),            // Magic
//	)
//
// Bind it to the operand slots and run:
//
//	body, err := biasgen.NewSequenceBody("remw",
//	    biasgen.Slot[int64]{Name: "rd", Dist: operands},
//	    biasgen.Slot[int64]{Name: "rs1", Dist: operands},
//	    biasgen.Slot[int64]{Name: "rs2", Dist: operands},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := biasgen.DefaultConfig()
//	cfg.Seed = 42
//	runner, err := biasgen.NewRunner(body, emitter, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := runner.Run(ctx)
//
// # Probabilities
//
// A range is selected with probability
//
//	P(i) = bias_i / Σ bias_j
//
// and nesting multiplies: in the example above zero is produced with
// probability 0.80 · 5/100 = 4%, the magic constants 20% of the time.
// A zero bias makes a range unreachable; a distribution whose biases are
// all zero is rejected at construction with ErrDegenerateDistribution.
//
// # Determinism
//
// Two samplers built from the same seed and driven by the same sequence of
// Sample calls produce identical streams. The runner samples slots in
// declared order, so a (template, seed) pair fully identifies a run. When no
// seed is given, EntropySeed picks one; log it to be able to replay the run.
//
// # Width
//
// Distributions are generic over the integer type. Use int32/uint32 for a
// 32-bit register file and int64/uint64 for 64-bit. Intervals may span the
// full 64-bit range: bounded draws use multiply-and-reject on 64-bit words,
// never a modulo of a narrower random value.
//
// # Testing
//
// Use the assertions to validate distribution properties:
//
//	func TestOperands(t *testing.T) {
//	    cfg := biasgen.DefaultAssertionConfig()
//	    biasgen.AssertBiasProportions(t, operands, cfg)
//	    biasgen.AssertDeterministic(t, operands, 10000, cfg)
//	}
package biasgen
