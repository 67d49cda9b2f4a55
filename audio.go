package pulsestate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// AudioCapture 从声卡 line-in 采集模拟脉搏波形 (例如传感器的模拟输出接到声卡)
type AudioCapture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	SampleRate int

	mu      sync.Mutex
	samples []float64
}

// NewAudioCapture 创建音频捕获，targetDeviceName 为空时用默认设备
func NewAudioCapture(sampleRate int, targetDeviceName string, log logrus.FieldLogger) (*AudioCapture, error) {
	if log == nil {
		log = discardLogger()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	ac := &AudioCapture{ctx: ctx, SampleRate: sampleRate}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if targetDeviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(targetDeviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					log.WithField("device", info.Name()).Info("selected audio device")
					break
				}
			}
		}
	}

	onRecvFrames := func(_, input []byte, framecount uint32) {
		if len(input) == 0 {
			return
		}
		frames := unsafe.Slice((*float32)(unsafe.Pointer(&input[0])), int(framecount))
		ac.mu.Lock()
		for _, v := range frames {
			ac.samples = append(ac.samples, float64(v))
		}
		ac.mu.Unlock()
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init device: %w", err)
	}
	ac.device = device
	// 设备可能不支持请求的采样率
	ac.SampleRate = int(device.SampleRate())
	log.WithField("sample_rate", ac.SampleRate).Info("audio device initialized")

	return ac, nil
}

// Capture 采集 duration 时长，ctx 取消时提前结束并返回已采集的部分
func (ac *AudioCapture) Capture(ctx context.Context, duration time.Duration) (SampleSeries, error) {
	if ac.device == nil {
		return SampleSeries{}, fmt.Errorf("device not initialized")
	}
	ac.mu.Lock()
	ac.samples = ac.samples[:0]
	ac.mu.Unlock()

	if err := ac.device.Start(); err != nil {
		return SampleSeries{}, err
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := ac.device.Stop(); err != nil {
		return SampleSeries{}, err
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()
	return NewUniformSeries(ac.samples, float64(ac.SampleRate), 0), nil
}

// Close 释放设备和上下文
func (ac *AudioCapture) Close() {
	if ac.device != nil {
		ac.device.Uninit()
		ac.device = nil
	}
	if ac.ctx != nil {
		_ = ac.ctx.Uninit()
		ac.ctx.Free()
		ac.ctx = nil
	}
}
