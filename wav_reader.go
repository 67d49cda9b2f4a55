package pulsestate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrInvalidWav = errors.New("invalid wav file")

// WavReader 16-bit PCM WAV 读取，多声道只取第一个声道
type WavReader struct {
	r          io.ReadSeeker
	closer     io.Closer
	SampleRate int
	Channels   int
	DataSize   int
	remaining  int
}

// OpenWav 打开文件
func OpenWav(filename string) (*WavReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	wr, err := NewWavReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	wr.closer = f
	return wr, nil
}

// NewWavReader 解析 RIFF 头，停在 data 块开头
func NewWavReader(r io.ReadSeeker) (*WavReader, error) {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWav, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWav)
	}

	var channels, sampleRate, bitsPerSample, dataSize int
	var dataStart int64
	foundFmt, foundData := false, false

	for !(foundFmt && foundData) {
		chunk := make([]byte, 8)
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidWav, err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		// 奇数长度的块后面有一个填充字节
		padding := size % 2

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWav)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWav, err)
			}
			if _, err := r.Seek(padding, io.SeekCurrent); err != nil {
				return nil, err
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			foundFmt = true
		case "data":
			pos, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, err
			}
			dataStart, dataSize, foundData = pos, int(size), true
			// fmt 在 data 之后的文件，先跳过数据继续找 fmt
			if !foundFmt {
				if _, err := r.Seek(size+padding, io.SeekCurrent); err != nil {
					return nil, err
				}
			}
		default:
			if _, err := r.Seek(size+padding, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	if !foundFmt || !foundData {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrInvalidWav)
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: only 16-bit PCM supported, got %d", ErrInvalidWav, bitsPerSample)
	}
	if channels < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWav, channels, sampleRate)
	}
	if _, err := r.Seek(dataStart, io.SeekStart); err != nil {
		return nil, err
	}

	return &WavReader{
		r:          r,
		SampleRate: sampleRate,
		Channels:   channels,
		DataSize:   dataSize,
		remaining:  dataSize,
	}, nil
}

// ReadSamples 读取最多 count 帧，归一化到 [-1, 1)
func (wr *WavReader) ReadSamples(count int) ([]float64, error) {
	frameBytes := 2 * wr.Channels
	want := count * frameBytes
	if want > wr.remaining {
		want = wr.remaining - wr.remaining%frameBytes
	}
	if want <= 0 {
		return nil, io.EOF
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(wr.r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	wr.remaining -= n
	if n < frameBytes {
		return nil, io.EOF
	}

	frames := n / frameBytes
	out := make([]float64, frames)
	for i := range out {
		val := int16(binary.LittleEndian.Uint16(buf[i*frameBytes:]))
		out[i] = float64(val) / 32768.0
	}
	return out, nil
}

// ReadAll 读取剩余全部样本，组成以 0 秒起始的序列
func (wr *WavReader) ReadAll() (SampleSeries, error) {
	var samples []float64
	for {
		chunk, err := wr.ReadSamples(4096)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return SampleSeries{}, err
		}
		samples = append(samples, chunk...)
	}
	return NewUniformSeries(samples, float64(wr.SampleRate), 0), nil
}

func (wr *WavReader) Close() error {
	if wr.closer == nil {
		return nil
	}
	return wr.closer.Close()
}

// ReadWavSeries 读取整个 WAV 文件
func ReadWavSeries(filename string) (SampleSeries, error) {
	wr, err := OpenWav(filename)
	if err != nil {
		return SampleSeries{}, err
	}
	defer wr.Close()
	return wr.ReadAll()
}
