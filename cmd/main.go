package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pulsestate"
)

func main() {
	// 1. 解析命令行参数
	envFile := flag.String("env", "", "Optional .env file with PULSE_* settings")
	inputFile := flag.String("file", "", "Input signal (.wav or .csv with time,value columns)")
	serialPort := flag.String("serial", "", "Read time,value lines from a serial pulse sensor")
	samples := flag.Int("samples", 0, "Stop serial acquisition after this many samples (0 = until EOF or Ctrl-C)")
	capture := flag.Duration("capture", 0, "Capture line-in audio for this long")
	states := flag.Int("states", 0, "Number of hidden states (overrides config)")
	emission := flag.String("emission", "", "Emission model: discrete or gaussian (overrides config)")
	seed := flag.Int64("seed", 0, "Random seed for EM initialisation (overrides config)")
	autoThreshold := flag.Bool("auto-threshold", false, "Derive detector thresholds from signal percentiles")
	debugPrefix := flag.String("debug", "", "Write <prefix>_beats.csv and <prefix>_rates.csv")
	metricsFile := flag.String("metrics", "", "Write Prometheus metrics to this textfile")
	flag.Parse()

	// 2. 配置与日志
	cfg, err := pulsestate.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *states > 0 {
		cfg.HMM.States = *states
	}
	if *emission != "" {
		cfg.HMM.Emission = *emission
	}
	if *seed != 0 {
		cfg.HMM.Seed = *seed
	}
	if *autoThreshold {
		cfg.Detector.AutoThreshold = true
	}
	if *serialPort != "" {
		cfg.Acquisition.SerialPort = *serialPort
	}
	if *capture > 0 {
		cfg.Acquisition.Duration = *capture
	}

	logger, err := pulsestate.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	// Ctrl-C 只结束采集，已采到的数据继续处理
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := runArgs{
		input:   *inputFile,
		serial:  *serialPort,
		samples: *samples,
		capture: *capture,
		debug:   *debugPrefix,
		metrics: *metricsFile,
		out:     os.Stdout,
	}
	if err := run(ctx, cfg, logger, args); err != nil {
		logger.WithError(err).Error("pulsestate failed")
		stop()
		os.Exit(1)
	}
}

type runArgs struct {
	input, serial  string
	samples        int
	capture        time.Duration
	debug, metrics string
	out            io.Writer
}

// run 采集并处理信号；出错时也先关闭调试文件再返回
func run(ctx context.Context, cfg *pulsestate.Config, logger *logrus.Logger, args runArgs) error {
	// 3. 采集信号
	var series pulsestate.SampleSeries
	var err error
	switch {
	case args.input != "":
		series, err = readFile(args.input)
	case args.serial != "":
		series, err = readSerial(ctx, cfg, args.samples, logger)
	case args.capture > 0:
		series, err = captureAudio(ctx, cfg, logger)
	default:
		flag.Usage()
		return fmt.Errorf("no input: use -file, -serial or -capture")
	}
	if err != nil {
		return fmt.Errorf("acquisition: %w", err)
	}

	// 4. 运行流水线
	opts := []pulsestate.Option{pulsestate.WithLogger(logger)}
	if args.debug != "" {
		dbg, err := pulsestate.NewCsvFileDebugger(args.debug)
		if err != nil {
			return fmt.Errorf("debug trace: %w", err)
		}
		defer func() {
			if err := dbg.Close(); err != nil {
				logger.WithError(err).Error("close debug trace")
			}
		}()
		opts = append(opts, pulsestate.WithTracer(dbg))
	}

	pipeline, err := pulsestate.NewPipeline(cfg, opts...)
	if err != nil {
		return err
	}
	result, err := pipeline.Run(series)
	if args.metrics != "" {
		// 失败的运行也写出已经记录的指标
		if werr := pipeline.Metrics().WriteTextfile(args.metrics); werr != nil {
			logger.WithError(werr).Error("write metrics")
		}
	}
	if err != nil {
		return err
	}
	return result.WriteSummary(args.out)
}

func readFile(name string) (pulsestate.SampleSeries, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return pulsestate.ReadWavSeries(name)
	case ".csv", ".txt":
		return pulsestate.ReadCSVFile(name)
	}
	return pulsestate.SampleSeries{}, fmt.Errorf("unsupported input %s (want .wav or .csv)", name)
}

func readSerial(ctx context.Context, cfg *pulsestate.Config, limit int, log *logrus.Logger) (pulsestate.SampleSeries, error) {
	sensor := pulsestate.NewSerialSensor(cfg.Acquisition.SerialPort, cfg.Acquisition.BaudRate, cfg.Acquisition.SampleRate)
	sensor.Log = log
	if err := sensor.Open(); err != nil {
		return pulsestate.SampleSeries{}, err
	}
	defer sensor.Close()
	log.WithField("port", cfg.Acquisition.SerialPort).Info("reading serial sensor (Ctrl-C to stop)")
	return sensor.Acquire(ctx, limit)
}

func captureAudio(ctx context.Context, cfg *pulsestate.Config, log *logrus.Logger) (pulsestate.SampleSeries, error) {
	ac, err := pulsestate.NewAudioCapture(cfg.Acquisition.AudioRate, cfg.Acquisition.AudioDevice, log)
	if err != nil {
		return pulsestate.SampleSeries{}, err
	}
	defer ac.Close()
	log.WithField("duration", cfg.Acquisition.Duration.Round(time.Second)).Info("capturing audio")
	return ac.Capture(ctx, cfg.Acquisition.Duration)
}
