package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexshd/biasgen"
	"github.com/alexshd/biasgen/sink"
	"github.com/alexshd/biasgen/template"
)

var (
	remwTemplate  = filepath.Join("..", "..", "template", "testdata", "remw.yaml")
	mulhuTemplate = filepath.Join("..", "..", "template", "testdata", "mulhu.yaml")
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}

func TestRoot_Version(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "biasgen 0.1.0\n", out)
}

func TestRoot_Generate(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	regress := filepath.Join(dir, "regress.yaml")
	dbPath := filepath.Join(dir, "regress.db")

	// Stale output must be removed before generation.
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "stale.jsonl"), nil, 0o644))

	out, err := execute(t,
		"--template", remwTemplate,
		"--seed", "5",
		"--count", "300",
		"--out", outDir,
		"--db", dbPath,
		"--regress", regress,
		"--log-level", "debug",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "remw")
	assert.Contains(t, out, "COMPLETED")

	assert.NoFileExists(t, filepath.Join(outDir, "stale.jsonl"))

	f, err := os.Open(filepath.Join(outDir, "remw.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	insts, err := sink.ReadJSONLines[int64](f)
	require.NoError(t, err)
	require.Len(t, insts, 300)
	assert.Equal(t, "remw", insts[0].Op)
	assert.Equal(t, []string{"nop"}, insts[0].Trailer)
	assert.Equal(t, "x1", insts[0].Bindings[0].Register)
	assert.Equal(t, "x2", insts[0].Bindings[1].Register)

	list, err := sink.ReadRegressList(regress)
	require.NoError(t, err)
	entry := list.Tests["remw"]
	assert.Equal(t, outDir, list.TestPath)
	assert.Equal(t, uint64(5), entry.Seed)
	assert.Equal(t, uint64(300), entry.Emitted)
	assert.Equal(t, string(biasgen.StateCompleted), entry.State)
	assert.Len(t, entry.Digest, 64)

	db, err := sink.OpenDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	run, err := db.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, entry.Digest, run.Digest)
	stored, err := db.Instances(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, insts, stored)

	// Same seed, same stream.
	_, err = execute(t, remwTemplate, "--seed", "5", "--count", "300", "--regress", regress, "--log-level", "warn")
	require.NoError(t, err)
	again, err := sink.ReadRegressList(regress)
	require.NoError(t, err)
	assert.Equal(t, entry.Digest, again.Tests["remw"].Digest)
}

func TestRoot_TemplateSeedAndLCG(t *testing.T) {
	dir := t.TempDir()
	regress := filepath.Join(dir, "regress.yaml")

	_, err := execute(t, remwTemplate, "--count", "100", "--regress", regress)
	require.NoError(t, err)
	pcg, err := sink.ReadRegressList(regress)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pcg.Tests["remw"].Seed, "template seed applies without --seed")

	_, err = execute(t, remwTemplate, "--count", "100", "--regress", regress, "--lcg48")
	require.NoError(t, err)
	lcg, err := sink.ReadRegressList(regress)
	require.NoError(t, err)
	assert.NotEqual(t, pcg.Tests["remw"].Digest, lcg.Tests["remw"].Digest)
}

func TestRoot_UnsignedTemplate(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "regress.db")

	out, err := execute(t, mulhuTemplate, "--out", outDir, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "mulhu")
	assert.Contains(t, out, "COMPLETED")

	f, err := os.Open(filepath.Join(outDir, "mulhu.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	insts, err := sink.ReadJSONLines[uint64](f)
	require.NoError(t, err)
	require.Len(t, insts, 200)

	var top, allOnes bool
	for _, inst := range insts {
		for _, b := range inst.Bindings {
			top = top || b.Value > math.MaxInt64
			allOnes = allOnes || b.Value == math.MaxUint64
		}
	}
	assert.True(t, top, "values above 2^63 are generated")
	assert.True(t, allOnes, "0xffffffffffffffff is generated")

	db, err := sink.OpenDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	run, err := db.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "mulhu", run.Op)
	assert.Equal(t, uint64(200), run.Emitted)
}

func TestGeneration_DigestSkipsRejectedInstances(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "regress.db")
	db, err := sink.OpenDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	log, err := newLogger(io.Discard, "error")
	require.NoError(t, err)
	tmpl, err := template.Load(remwTemplate)
	require.NoError(t, err)
	cfg := tmpl.Config(biasgen.DefaultConfig())
	cfg.Iterations = 20
	cfg.OnEmissionError = biasgen.OnErrorSkip

	g, err := newGeneration(ctx, tmpl, cfg, db, options{}, log)
	require.NoError(t, err)

	// Every database write now fails.
	raw, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec("DROP TABLE bindings")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	res, err := g.job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), res.Skipped)
	assert.Zero(t, res.Emitted)
	assert.Zero(t, g.digest.Count(), "digest only hashes instances the store accepted")
	assert.Equal(t, sink.NewDigest[int64]().Sum(), g.digest.Sum())
	assert.NoError(t, g.close(ctx))
}

func TestRoot_Directory(t *testing.T) {
	out, err := execute(t, "-t", filepath.Join("..", "..", "template", "testdata"), "-n", "50", "-s", "3", "-j", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "remw")
	assert.Contains(t, out, "divw_corner")
	assert.Contains(t, out, "mulhu")
	assert.Equal(t, 4, strings.Count(out, "\n"), "header plus one line per template")
}

func TestRoot_Errors(t *testing.T) {
	cases := map[string][]string{
		"NoTemplates": {},
		"BadPolicy":   {remwTemplate, "--on-error", "retry"},
		"ZeroCount":   {remwTemplate, "--count", "0"},
		"BadLevel":    {remwTemplate, "--log-level", "loud"},
		"Missing":     {"does-not-exist.yaml"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestFreeRegisters(t *testing.T) {
	f := newFreeRegisters()
	seen := map[string]bool{}
	for i := 0; i < 31; i++ {
		reg, err := f.Allocate("rs")
		require.NoError(t, err)
		assert.NotEqual(t, "x0", reg)
		seen[reg] = true
	}
	assert.Len(t, seen, 31)

	reg, _ := f.Allocate("rs")
	assert.Equal(t, "x1", reg, "allocation wraps around")
}
