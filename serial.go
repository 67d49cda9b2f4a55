package pulsestate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialSensor 从串口读取脉搏传感器的数据流
// 每行一个样本："t,value" 或只有 "value" (此时按 SampleRate 生成时间)
type SerialSensor struct {
	Port       string
	BaudRate   int
	SampleRate float64
	Log        logrus.FieldLogger

	conn    SerialPort
	pending []byte // 还没处理的数据，跨 Acquire 调用保留
	lines   int    // 已收到的非空行数，只有数值的行按它计时
}

// NewSerialSensor 创建串口传感器
func NewSerialSensor(port string, baudRate int, sampleRate float64) *SerialSensor {
	return &SerialSensor{
		Port:       port,
		BaudRate:   baudRate,
		SampleRate: sampleRate,
		Log:        discardLogger(),
	}
}

// Open 打开串口连接
// 读超时让 Acquire 能周期性地检查 ctx；超时没有数据时 Read 返回 io.EOF，
// Acquire 把它当作传感器停止发送
func (s *SerialSensor) Open() error {
	conn, err := serial.OpenPort(&serial.Config{
		Name:        s.Port,
		Baud:        s.BaudRate,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open serial %s: %w", s.Port, err)
	}
	s.conn = conn
	s.pending = nil
	s.lines = 0
	return nil
}

// Close 关闭串口连接
func (s *SerialSensor) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Acquire 读取样本直到 maxSamples 个、ctx 取消或串口 EOF
// ctx 取消时返回已经读到的样本，不视为错误。达到 maxSamples 时没处理完的数据
// 留给下一次调用
func (s *SerialSensor) Acquire(ctx context.Context, maxSamples int) (SampleSeries, error) {
	if s.conn == nil {
		return SampleSeries{}, fmt.Errorf("serial connection not open")
	}

	var series SampleSeries
	skipped := 0
	buf := make([]byte, 1024)

	take := func(raw []byte) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			return
		}
		// 解析失败的行也占一个采样周期
		index := s.lines
		s.lines++
		t, v, err := s.parseLine(line, index)
		if err != nil {
			skipped++
			s.Log.WithError(err).Debug("skip serial line")
			return
		}
		// 传感器重传或时钟回跳，丢弃不递增的样本
		if n := len(series.T); n > 0 && t <= series.T[n-1] {
			skipped++
			return
		}
		series.T = append(series.T, t)
		series.D = append(series.D, v)
	}

	eof := false
loop:
	for maxSamples <= 0 || len(series.T) < maxSamples {
		if idx := bytes.IndexByte(s.pending, '\n'); idx >= 0 {
			take(s.pending[:idx])
			s.pending = s.pending[idx+1:]
			continue
		}
		if eof {
			// 最后一行可能没有换行符
			take(s.pending)
			s.pending = nil
			break
		}

		select {
		case <-ctx.Done():
			break loop
		default:
		}

		n, err := s.conn.Read(buf)
		s.pending = append(s.pending, buf[:n]...)
		if errors.Is(err, io.EOF) {
			eof = true
			continue
		}
		if err != nil {
			return series, fmt.Errorf("read serial %s: %w", s.Port, err)
		}
	}

	s.Log.WithFields(logrus.Fields{
		"samples": len(series.T),
		"skipped": skipped,
	}).Info("serial acquisition finished")
	return series, nil
}

func (s *SerialSensor) parseLine(line string, index int) (float64, float64, error) {
	t, v, err := s.parseFields(line, index)
	if err != nil {
		return 0, 0, err
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, 0, fmt.Errorf("non-finite sample in %q", line)
	}
	return t, v, nil
}

func (s *SerialSensor) parseFields(line string, index int) (float64, float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, 0, fmt.Errorf("empty line")
	}
	fields := strings.Split(line, ",")
	switch len(fields) {
	case 1:
		if s.SampleRate <= 0 {
			return 0, 0, fmt.Errorf("value-only line %q needs a sample rate", line)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return 0, 0, err
		}
		return float64(index) / s.SampleRate, v, nil
	case 2:
		t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return 0, 0, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return 0, 0, err
		}
		return t, v, nil
	}
	return 0, 0, fmt.Errorf("line %q has %d fields", line, len(fields))
}
