//go:build darwin

package midi

import (
	"fmt"
	"strings"

	"github.com/youpy/go-coremidi"
)

// portConnection is the piece of a CoreMIDI input connection we need to
// tear down.
type portConnection interface {
	Disconnect()
}

type coreOutput struct {
	client coremidi.Client
	port   coremidi.OutputPort
	dest   coremidi.Destination
}

// OpenOutput connects to the named CoreMIDI destination. An empty name
// picks the first available destination.
func OpenOutput(name string) (Output, error) {
	client, err := coremidi.NewClient("faderbank")
	if err != nil {
		return nil, fmt.Errorf("create midi client: %w", err)
	}
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("list midi destinations: %w", err)
	}
	if len(destinations) == 0 {
		return nil, fmt.Errorf("no midi destinations found")
	}

	dest := destinations[0]
	if name != "" {
		found := false
		for _, d := range destinations {
			if strings.EqualFold(d.Name(), name) {
				dest = d
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("midi destination %q not found", name)
		}
	}

	port, err := coremidi.NewOutputPort(client, "faderbank out")
	if err != nil {
		return nil, fmt.Errorf("create output port: %w", err)
	}
	return &coreOutput{client: client, port: port, dest: dest}, nil
}

func (o *coreOutput) Send(msg []byte) error {
	packet := coremidi.NewPacket(msg, 0)
	_, err := packet.Send(&o.port, &o.dest)
	return err
}

func (o *coreOutput) Close() error {
	return nil
}

type coreInput struct {
	client coremidi.Client
	port   coremidi.InputPort
	conn   portConnection
	events chan CCEvent
}

// OpenInput connects to the named CoreMIDI source and starts decoding
// control-change messages. An empty name picks the first source.
func OpenInput(name string) (Input, error) {
	client, err := coremidi.NewClient("faderbank-in")
	if err != nil {
		return nil, fmt.Errorf("create midi client: %w", err)
	}
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("list midi sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no midi sources found")
	}

	source := sources[0]
	if name != "" {
		found := false
		for _, s := range sources {
			if strings.EqualFold(s.Name(), name) {
				source = s
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("midi source %q not found", name)
		}
	}

	in := &coreInput{client: client, events: make(chan CCEvent, 64)}
	in.port, err = coremidi.NewInputPort(client, "faderbank in", in.handlePacket)
	if err != nil {
		return nil, fmt.Errorf("create input port: %w", err)
	}
	in.conn, err = in.port.Connect(source)
	if err != nil {
		return nil, fmt.Errorf("connect midi source: %w", err)
	}
	return in, nil
}

func (i *coreInput) handlePacket(source coremidi.Source, packet coremidi.Packet) {
	data := packet.Data
	if len(data) < 3 || data[0]&0xF0 != statusControlChange {
		return
	}
	ev := CCEvent{
		Channel:    int(data[0] & 0x0F),
		Controller: int(data[1]),
		Value:      int(data[2]),
	}
	// Drop rather than block; meters tolerate lost samples.
	select {
	case i.events <- ev:
	default:
	}
}

func (i *coreInput) Events() <-chan CCEvent {
	return i.events
}

func (i *coreInput) Close() error {
	if i.conn != nil {
		i.conn.Disconnect()
		i.conn = nil
	}
	close(i.events)
	return nil
}

// ListOutputs returns the available MIDI destinations.
func ListOutputs() ([]DeviceInfo, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, err
	}
	devices := make([]DeviceInfo, len(destinations))
	for i, d := range destinations {
		devices[i] = DeviceInfo{Name: d.Name()}
	}
	return devices, nil
}

// ListInputs returns the available MIDI sources.
func ListInputs() ([]DeviceInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, err
	}
	devices := make([]DeviceInfo, len(sources))
	for i, s := range sources {
		entity := s.Entity()
		devices[i] = DeviceInfo{Name: s.Name(), Manufacturer: entity.Manufacturer()}
	}
	return devices, nil
}
