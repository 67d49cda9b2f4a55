package pulsestate

import (
	"bufio"
	"fmt"
	"os"

	"pulsestate/Filters"
)

// Tracer 流水线的调试输出接口
// 流水线只依赖这个接口，不关心数据写到哪里
type Tracer interface {
	RecordBeat(b Filters.Beat)
	RecordRate(center, rate float64, state int)
	Close() error
}

// CsvFileDebugger 把节拍和速率写成两张 CSV 表
// <prefix>_beats.csv 和 <prefix>_rates.csv
type CsvFileDebugger struct {
	beatFile, rateFile *os.File
	beats, rates       *bufio.Writer
}

// NewCsvFileDebugger 创建调试输出
func NewCsvFileDebugger(prefix string) (*CsvFileDebugger, error) {
	bf, err := os.Create(prefix + "_beats.csv")
	if err != nil {
		return nil, err
	}
	rf, err := os.Create(prefix + "_rates.csv")
	if err != nil {
		bf.Close()
		return nil, err
	}

	d := &CsvFileDebugger{
		beatFile: bf,
		rateFile: rf,
		beats:    bufio.NewWriter(bf),
		rates:    bufio.NewWriter(rf),
	}
	d.beats.WriteString("Onset,Offset,HighCrossing,UpDuration,DutyCycle,Period,InstantFreq,Amplitude,AmplitudeHigh,AmplitudeLow,Valid\n")
	d.rates.WriteString("Center,Rate,State\n")
	return d, nil
}

// RecordBeat 记录一个节拍
func (d *CsvFileDebugger) RecordBeat(b Filters.Beat) {
	valid := 0
	if b.Valid {
		valid = 1
	}
	fmt.Fprintf(d.beats, "%f,%f,%f,%f,%f,%f,%f,%f,%f,%f,%d\n",
		b.Onset, b.Offset, b.HighCrossing, b.UpDuration, b.DutyCycle, b.Period,
		b.InstantFreq, b.Amplitude, b.AmplitudeHigh, b.AmplitudeLow, valid)
}

// RecordRate 记录一个速率点和它解码出的状态
func (d *CsvFileDebugger) RecordRate(center, rate float64, state int) {
	fmt.Fprintf(d.rates, "%f,%f,%d\n", center, rate, state)
}

// Close 刷新缓冲并关闭文件
func (d *CsvFileDebugger) Close() error {
	var first error
	for _, step := range []func() error{d.beats.Flush, d.rates.Flush, d.beatFile.Close, d.rateFile.Close} {
		if err := step(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NoOpDebugger 空实现，不需要调试输出时使用
type NoOpDebugger struct{}

func (NoOpDebugger) RecordBeat(Filters.Beat)          {}
func (NoOpDebugger) RecordRate(float64, float64, int) {}
func (NoOpDebugger) Close() error                     { return nil }
