package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// InputDevice describes one available capture device.
type InputDevice struct {
	ID      int
	Name    string
	Default bool
}

// Devices brackets ListInputDevices with PortAudio init/terminate, for
// one-shot enumeration outside a capture session.
func Devices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	defer portaudio.Terminate()
	return ListInputDevices()
}

// ListInputDevices enumerates devices with at least one input channel.
// PortAudio must already be initialized (MicCapturer.Start does this), or
// the caller wraps the call in Initialize/Terminate.
func ListInputDevices() ([]InputDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()

	var inputs []InputDevice
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		inputs = append(inputs, InputDevice{
			ID:      i,
			Name:    dev.Name,
			Default: defaultIn != nil && dev.Name == defaultIn.Name,
		})
	}
	if len(inputs) == 0 {
		return nil, ErrCaptureUnavailable
	}
	return inputs, nil
}

func inputDeviceByID(id int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if id < 0 || id >= len(devices) || devices[id].MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: device %d", ErrCaptureUnavailable, id)
	}
	return devices[id], nil
}
