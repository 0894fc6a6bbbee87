package midiin

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Input owns the rtmidi driver and one open port, feeding raw messages into
// a Processor.
type Input struct {
	mu     sync.Mutex
	drv    *rtmididrv.Driver
	port   drivers.In
	stopFn func()
}

// NewInput initialises the rtmidi driver. Call Close when done.
func NewInput() (*Input, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midiin: rtmididrv: %w", err)
	}
	return &Input{drv: drv}, nil
}

// Ports lists the names of the available MIDI input ports.
func (in *Input) Ports() ([]string, error) {
	ins, err := in.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midiin: listing ports: %w", err)
	}
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	return names, nil
}

// Listen opens the named port and streams its messages into proc. An empty
// name selects the first available port; a non-empty name matches by
// substring, case-insensitive. Listening while already listening closes the
// previous port first.
func (in *Input) Listen(name string, proc *Processor) error {
	ins, err := in.drv.Ins()
	if err != nil {
		return fmt.Errorf("midiin: listing ports: %w", err)
	}
	if len(ins) == 0 {
		return fmt.Errorf("midiin: no input ports available")
	}

	var found drivers.In
	if name == "" {
		found = ins[0]
	} else {
		for _, p := range ins {
			if strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
				found = p
				break
			}
		}
	}
	if found == nil {
		return fmt.Errorf("midiin: port %q not found", name)
	}

	if err := found.Open(); err != nil {
		return fmt.Errorf("midiin: opening %q: %w", found.String(), err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		proc.Process(msg, time.Now())
	}, midi.HandleError(func(listenErr error) {
		log.Printf("midiin: listener error on %q: %v", found.String(), listenErr)
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("midiin: listening on %q: %w", found.String(), err)
	}

	in.mu.Lock()
	if in.stopFn != nil {
		in.stopFn()
		_ = in.port.Close()
	}
	in.port = found
	in.stopFn = stop
	in.mu.Unlock()

	log.Printf("midiin: listening on %q", found.String())
	return nil
}

// PortName returns the open port's name, or empty when not listening.
func (in *Input) PortName() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.port == nil {
		return ""
	}
	return in.port.String()
}

// Close stops listening and shuts down the driver.
func (in *Input) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopFn != nil {
		in.stopFn()
		in.stopFn = nil
	}
	if in.port != nil {
		_ = in.port.Close()
		in.port = nil
	}
	in.drv.Close()
}
