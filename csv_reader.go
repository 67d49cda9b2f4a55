package pulsestate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSVSeries 读取 "time,value" 两列的文本
// 第一行如果不是数字就当作表头跳过，# 开头的行是注释
func ReadCSVSeries(r io.Reader) (SampleSeries, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var s SampleSeries
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return SampleSeries{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if len(rec) < 2 {
			return SampleSeries{}, fmt.Errorf("%w: line %d has %d columns, want 2", ErrInvalidInput, line, len(rec))
		}
		t, errT := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		v, errV := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errT != nil || errV != nil {
			if line == 1 && len(s.T) == 0 {
				continue
			}
			return SampleSeries{}, fmt.Errorf("%w: line %d: %q", ErrInvalidInput, line, strings.Join(rec, ","))
		}
		s.T = append(s.T, t)
		s.D = append(s.D, v)
	}
	if err := s.Validate(); err != nil {
		return SampleSeries{}, err
	}
	return s, nil
}

// ReadCSVFile 读取 CSV 文件
func ReadCSVFile(filename string) (SampleSeries, error) {
	f, err := os.Open(filename)
	if err != nil {
		return SampleSeries{}, err
	}
	defer f.Close()
	s, err := ReadCSVSeries(f)
	if err != nil {
		return SampleSeries{}, fmt.Errorf("%s: %w", filename, err)
	}
	return s, nil
}
