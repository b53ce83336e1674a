package myaudio

import (
	"context"
	"encoding/hex"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// deviceRestartDelay is the pause before restarting a device that stopped unexpectedly.
const deviceRestartDelay = 100 * time.Millisecond

// AudioDeviceInfo describes a capture device.
type AudioDeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

func captureBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func initMalgoContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{captureBackend()}, malgo.ContextConfig{}, func(message string) {
		GetLogger().Debug("malgo", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "malgo_init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

func releaseMalgoContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// ListAudioSources returns the available capture devices.
func ListAudioSources() ([]AudioDeviceInfo, error) {
	ctx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}
	defer releaseMalgoContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "list_capture_devices").
			Build()
	}

	devices := make([]AudioDeviceInfo, 0, len(infos))
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			GetLogger().Warn("skipping device with undecodable id",
				logger.Int("index", i), logger.Error(err))
			continue
		}
		devices = append(devices, AudioDeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// matchesDevice reports whether a device matches the configured name. An
// empty name or "default" selects the system default device.
func matchesDevice(decodedID string, info *malgo.DeviceInfo, want string) bool {
	if want == "" || want == "default" || (runtime.GOOS == "windows" && want == "sysdefault") {
		return info.IsDefault == 1
	}
	return decodedID == want || strings.Contains(info.Name(), want)
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// Capture streams 16 bit mono PCM at conf.SampleRate from a sound card into
// a sink, typically a Chunker.
type Capture struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	name     string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StartCapture opens the named device and starts streaming into sink. meter
// may be nil.
func StartCapture(deviceName string, sink io.Writer, meter *LevelMeter) (*Capture, error) {
	malgoCtx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		releaseMalgoContext(malgoCtx)
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "list_capture_devices").
			Build()
	}

	var selected *malgo.DeviceInfo
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			continue
		}
		if matchesDevice(decodedID, &infos[i], deviceName) {
			selected = &infos[i]
			break
		}
	}
	if selected == nil {
		releaseMalgoContext(malgoCtx)
		return nil, errors.Newf("no capture device matches %q", deviceName).
			Category(errors.CategoryNotFound).
			Context("operation", "select_capture_device").
			Context("available_devices", len(infos)).
			Build()
	}

	c := &Capture{malgoCtx: malgoCtx, name: selected.Name(), done: make(chan struct{})}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = conf.SampleRate
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Capture.DeviceID = selected.ID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			// the chunker logs drops itself
			_, _ = sink.Write(in)
			if meter != nil {
				meter.Update(in)
			}
		},
		Stop: c.onDeviceStop,
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		releaseMalgoContext(malgoCtx)
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "malgo_init_device").
			Context("device", c.name).
			Build()
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		releaseMalgoContext(malgoCtx)
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "malgo_start_device").
			Context("device", c.name).
			Build()
	}

	GetLogger().Info("capture started", logger.String("device", c.name))
	return c, nil
}

// onDeviceStop restarts a device that stopped without Stop being called.
func (c *Capture) onDeviceStop() {
	select {
	case <-c.done:
		return
	default:
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.done:
		case <-time.After(deviceRestartDelay):
			if err := c.device.Start(); err != nil {
				GetLogger().Error("failed to restart capture device",
					logger.String("device", c.name), logger.Error(err))
				return
			}
			GetLogger().Warn("capture device restarted", logger.String("device", c.name))
		}
	}()
}

// Name returns the selected device name.
func (c *Capture) Name() string { return c.name }

// Stop halts capture and releases the device. It is safe to call more than once.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.device.Stop()
		c.wg.Wait()
		c.device.Uninit()
		releaseMalgoContext(c.malgoCtx)
		GetLogger().Info("capture stopped", logger.String("device", c.name))
	})
}

// streamBlockBytes is 50 ms of 16 bit mono PCM.
const streamBlockBytes = conf.SampleRate / 20 * bytesPerSample

// StreamPCM copies raw 16 bit mono PCM at conf.SampleRate from r into sink
// until r is exhausted or ctx is cancelled. meter may be nil.
func StreamPCM(ctx context.Context, r io.Reader, sink io.Writer, meter *LevelMeter) error {
	buf := make([]byte, streamBlockBytes)
	var carry int // odd byte left from the previous read
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[carry:])
		n += carry
		whole := n - n%bytesPerSample
		if whole > 0 {
			if _, werr := sink.Write(buf[:whole]); werr != nil && !errors.Is(werr, ErrBufferFull) {
				return werr
			}
			if meter != nil {
				meter.Update(buf[:whole])
			}
		}
		carry = copy(buf, buf[whole:n])

		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return errors.New(err).
				Category(errors.CategoryAudioSource).
				Context("operation", "stream_pcm").
				Build()
		}
	}
}
