package pulsestate

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// WavWriter 16-bit PCM 单声道 WAV 写入
type WavWriter struct {
	w          io.WriteSeeker
	closer     io.Closer
	sampleRate int
	dataSize   int
}

// CreateWav 创建文件
func CreateWav(filename string, sampleRate int) (*WavWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	ww, err := NewWavWriter(f, sampleRate)
	if err != nil {
		f.Close()
		return nil, err
	}
	ww.closer = f
	return ww, nil
}

// NewWavWriter 先写 44 字节的占位头，Close 时回写长度
func NewWavWriter(w io.WriteSeeker, sampleRate int) (*WavWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidInput, sampleRate)
	}
	if _, err := w.Write(make([]byte, 44)); err != nil {
		return nil, err
	}
	return &WavWriter{w: w, sampleRate: sampleRate}, nil
}

// WriteSamples 写入 [-1, 1] 范围的样本，超出部分限幅
func (ww *WavWriter) WriteSamples(samples []float64) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}
	n, err := ww.w.Write(buf)
	ww.dataSize += n
	return err
}

// Close 回写 WAV 头
func (ww *WavWriter) Close() error {
	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+ww.dataSize))
	copy(header[8:], "WAVE")

	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)                      // PCM fmt 块长度
	binary.LittleEndian.PutUint16(header[20:], 1)                       // PCM
	binary.LittleEndian.PutUint16(header[22:], 1)                       // 单声道
	binary.LittleEndian.PutUint32(header[24:], uint32(ww.sampleRate))   // 采样率
	binary.LittleEndian.PutUint32(header[28:], uint32(ww.sampleRate*2)) // 字节率
	binary.LittleEndian.PutUint16(header[32:], 2)                       // 块对齐
	binary.LittleEndian.PutUint16(header[34:], 16)                      // 位深

	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(ww.dataSize))

	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := ww.w.Write(header); err != nil {
		return err
	}
	if ww.closer != nil {
		return ww.closer.Close()
	}
	return nil
}

// WriteWavSeries 把序列按峰值归一化到 0.9 写成 WAV
func WriteWavSeries(filename string, s SampleSeries, sampleRate int) error {
	peak := 0.0
	for _, v := range s.D {
		peak = math.Max(peak, math.Abs(v))
	}
	scale := 1.0
	if peak > 0 {
		scale = 0.9 / peak
	}
	scaled := make([]float64, len(s.D))
	for i, v := range s.D {
		scaled[i] = v * scale
	}

	ww, err := CreateWav(filename, sampleRate)
	if err != nil {
		return err
	}
	if err := ww.WriteSamples(scaled); err != nil {
		ww.Close()
		return err
	}
	return ww.Close()
}
