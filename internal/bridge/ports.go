package bridge

import (
	"io"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialOpener returns an Opener for a physical serial device.
func SerialOpener(device string, baudRate int) Opener {
	return func() (io.ReadCloser, error) {
		port, err := serial.Open(device, &serial.Mode{BaudRate: baudRate})
		if err != nil {
			return nil, err
		}
		log.Infof("[bridge] connected to %s at %d baud", device, baudRate)
		return port, nil
	}
}

// ListPorts logs the serial ports visible on the host. Purely diagnostic,
// run once at startup.
func ListPorts() {
	ports, err := serial.GetPortsList()
	if err != nil {
		log.Errorf("[bridge] could not list serial ports: %v", err)
		return
	}
	if len(ports) == 0 {
		log.Warn("[bridge] no serial ports found")
		return
	}
	log.Info("[bridge] available serial ports:")
	for _, p := range ports {
		log.Infof("[bridge]   %s", p)
	}
}
