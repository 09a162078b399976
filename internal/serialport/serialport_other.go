//go:build !linux

package serialport

import (
	"fmt"
	"os"
)

// openPort on other platforms opens the device as-is; line settings must be
// configured beforehand (for example with stty).
func openPort(device string, baud int) (*Port, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Port{f: f, device: device}, nil
}

func (p *Port) flush() error { return nil }
