package player

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Initialize sets up portaudio. It must be called before any portaudio output
// is opened, and Terminate once playback is over.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("player: couldn't initialize portaudio: %w", err)
	}
	return nil
}

func Terminate() {
	_ = portaudio.Terminate()
}

type portaudioOutput struct {
	stream *portaudio.Stream
	buffer []int16
}

// NewPortaudioOutput returns a stereo output on the default device.
func NewPortaudioOutput() Output {
	return &portaudioOutput{
		buffer: make([]int16, framesPerBuffer*2),
	}
}

func (o *portaudioOutput) Open(sampleRate int) error {
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(sampleRate), framesPerBuffer, o.buffer)
	if err != nil {
		return fmt.Errorf("player: couldn't open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("player: couldn't start stream: %w", err)
	}
	o.stream = stream
	return nil
}

func (o *portaudioOutput) Write(samples []int16) error {
	for len(samples) > 0 {
		n := copy(o.buffer, samples)
		// Zero-fill the rest of the buffer
		for i := n; i < len(o.buffer); i++ {
			o.buffer[i] = 0
		}
		samples = samples[n:]
		if err := o.stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (o *portaudioOutput) Close() error {
	if o.stream == nil {
		return nil
	}
	_ = o.stream.Stop()
	err := o.stream.Close()
	o.stream = nil
	return err
}
