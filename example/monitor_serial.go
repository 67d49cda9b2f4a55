package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"pulsestate"
	"pulsestate/Filters"
)

// 串口脉搏传感器的实时监视：每采集一段就检测一次节拍并打印脉率
func main() {
	// 1. 配置串口参数
	// 请根据实际情况修改串口设备名
	portName := flag.String("port", "/dev/ttyUSB0", "Serial device of the pulse sensor")
	baudRate := flag.Int("baud", 115200, "Baud rate")
	sampleRate := flag.Float64("rate", 100, "Sample rate for value-only lines (Hz)")
	window := flag.Duration("window", 10*time.Second, "Length of each analysis window")
	flag.Parse()

	fmt.Printf("Connecting to pulse sensor on %s...\n", *portName)

	// 2. 创建传感器并打开连接
	sensor := pulsestate.NewSerialSensor(*portName, *baudRate, *sampleRate)
	if err := sensor.Open(); err != nil {
		log.Fatalf("Failed to open serial port: %v\n", err)
	}
	defer sensor.Close()
	fmt.Println("Connected. Press Ctrl+C to stop.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := Filters.DefaultDetectorConfig()
	perWindow := int(window.Seconds() * *sampleRate)

	// 3. 循环采集、检测
	start := time.Now()
	for ctx.Err() == nil {
		series, err := sensor.Acquire(ctx, perWindow)
		if err != nil {
			log.Printf("Error reading sensor: %v\n", err)
			break
		}
		if series.Len() == 0 {
			continue
		}

		if sug, err := Filters.SuggestThresholds(series.D, 0.25); err == nil {
			cfg = sug.Apply(cfg)
		}
		beats, err := Filters.Detect(series.T, series.D, cfg)
		if err != nil {
			log.Printf("Error detecting beats: %v\n", err)
			continue
		}

		onsets := Filters.Onsets(beats)
		if len(onsets) < 2 {
			fmt.Printf("[%7.1fs] no pulse\n", time.Since(start).Seconds())
			continue
		}
		rate := float64(len(onsets)-1) / (onsets[len(onsets)-1] - onsets[0])
		fmt.Printf("[%7.1fs] %3d beats, %.1f bpm\n", time.Since(start).Seconds(), len(onsets), rate*60)
	}

	fmt.Println("Bye.")
}
