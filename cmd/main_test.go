package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsestate"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeSeriesCSV(t *testing.T, s pulsestate.SampleSeries) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,value\n")
	for i := range s.T {
		fmt.Fprintf(&b, "%f,%f\n", s.T[i], s.D[i])
	}
	path := filepath.Join(t.TempDir(), "pulse.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRun_FailedPipelineStillWritesTrace(t *testing.T) {
	input := writeSeriesCSV(t, pulsestate.NewUniformSeries(make([]float64, 1000), 50, 0))
	prefix := filepath.Join(t.TempDir(), "trace")

	err := run(context.Background(), pulsestate.DefaultConfig(), quietLogger(), runArgs{
		input: input,
		debug: prefix,
		out:   io.Discard,
	})
	require.ErrorIs(t, err, pulsestate.ErrNoBeats)

	// 表头在缓冲里，只有 Close 执行过才会落盘
	beats, err := os.ReadFile(prefix + "_beats.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(beats), "Onset,Offset,"))
	rates, err := os.ReadFile(prefix + "_rates.csv")
	require.NoError(t, err)
	assert.Equal(t, "Center,Rate,State\n", string(rates))
}

func TestRun_WritesSummaryAndTrace(t *testing.T) {
	gen := pulsestate.NewPulseGenerator(50, 5)
	sig := gen.Generate([]pulsestate.RateSegment{{Duration: 60, Rate: 1.5, State: 1}})
	input := writeSeriesCSV(t, sig.Series)
	dir := t.TempDir()
	prefix := filepath.Join(dir, "trace")
	metrics := filepath.Join(dir, "pulse.prom")

	cfg := pulsestate.DefaultConfig()
	cfg.HMM.States = 1
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, quietLogger(), runArgs{
		input:   input,
		debug:   prefix,
		metrics: metrics,
		out:     &out,
	}))
	assert.Contains(t, out.String(), "gaussian HMM, 1 states")

	rates, err := os.ReadFile(prefix + "_rates.csv")
	require.NoError(t, err)
	assert.Greater(t, strings.Count(string(rates), "\n"), 1)
	_, err = os.Stat(metrics)
	assert.NoError(t, err)
}

func TestRun_NoInput(t *testing.T) {
	err := run(context.Background(), pulsestate.DefaultConfig(), quietLogger(), runArgs{out: io.Discard})
	assert.Error(t, err)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	_, err := readFile("pulse.mp3")
	assert.Error(t, err)
}
