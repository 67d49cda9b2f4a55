package pulsestate

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWav_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.wav")
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = 0.8 * math.Sin(2*math.Pi*float64(i)/100)
	}

	ww, err := CreateWav(path, 200)
	require.NoError(t, err)
	require.NoError(t, ww.WriteSamples(samples[:600]))
	require.NoError(t, ww.WriteSamples(samples[600:]))
	require.NoError(t, ww.Close())

	wr, err := OpenWav(path)
	require.NoError(t, err)
	defer wr.Close()
	assert.Equal(t, 200, wr.SampleRate)
	assert.Equal(t, 1, wr.Channels)
	assert.Equal(t, 2000, wr.DataSize)

	s, err := wr.ReadAll()
	require.NoError(t, err)
	require.Equal(t, len(samples), s.Len())
	assert.InDelta(t, 0.005, s.T[1], 1e-12)
	for i := range samples {
		assert.InDelta(t, samples[i], s.D[i], 1e-3)
	}
}

func TestWav_WriteSeriesNormalizesPeak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loud.wav")
	in := NewUniformSeries([]float64{0, 50, -100, 25}, 10, 0)
	require.NoError(t, WriteWavSeries(path, in, 10))

	s, err := ReadWavSeries(path)
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())
	assert.InDelta(t, 0.45, s.D[1], 1e-3)
	assert.InDelta(t, -0.9, s.D[2], 1e-3)
}

func TestWavReader_SkipsChunksAndTakesFirstChannel(t *testing.T) {
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	binary.Write(&buf, le, uint32(0)) // 长度字段读取时不使用
	buf.WriteString("WAVE")

	// 奇数长度的 LIST 块，后跟一个填充字节
	buf.WriteString("LIST")
	binary.Write(&buf, le, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})

	buf.WriteString("fmt ")
	binary.Write(&buf, le, uint32(16))
	binary.Write(&buf, le, uint16(1))    // PCM
	binary.Write(&buf, le, uint16(2))    // 双声道
	binary.Write(&buf, le, uint32(8000)) // 采样率
	binary.Write(&buf, le, uint32(32000))
	binary.Write(&buf, le, uint16(4))
	binary.Write(&buf, le, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, le, uint32(8))
	for _, v := range []int16{1000, -1000, 2000, 5} {
		binary.Write(&buf, le, v)
	}

	wr, err := NewWavReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, wr.Channels)
	assert.Equal(t, 8000, wr.SampleRate)

	got, err := wr.ReadSamples(10)
	require.NoError(t, err)
	assert.Equal(t, []float64{1000.0 / 32768, 2000.0 / 32768}, got)

	_, err = wr.ReadSamples(10)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, wr.Close())
}

func TestWavReader_Invalid(t *testing.T) {
	_, err := NewWavReader(bytes.NewReader([]byte("RIFX\x00\x00\x00\x00WAVE")))
	assert.ErrorIs(t, err, ErrInvalidWav)

	_, err = NewWavReader(bytes.NewReader([]byte("RIFF")))
	assert.ErrorIs(t, err, ErrInvalidWav)

	// 只有头，没有 fmt 和 data
	_, err = NewWavReader(bytes.NewReader([]byte("RIFF\x04\x00\x00\x00WAVE")))
	assert.ErrorIs(t, err, ErrInvalidWav)

	_, err = OpenWav(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestNewWavWriter_RejectsSampleRate(t *testing.T) {
	_, err := CreateWav(filepath.Join(t.TempDir(), "x.wav"), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
