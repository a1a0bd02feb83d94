// Voice client for manual end-to-end testing. Captures the microphone and
// plays replies through sox, so it needs sox installed and on PATH.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/spoc-ai/voicebridge/audio"
	"github.com/spoc-ai/voicebridge/client"
	"github.com/spoc-ai/voicebridge/playback"
)

const captureRate = 48000

// soxDevice records from the default input via sox and delivers buffers of
// roughly 100ms.
type soxDevice struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	closed bool
}

func (d *soxDevice) Start(onBuffer func([]float32, float64)) error {
	cmd := exec.Command("sox",
		"-d",
		"-t", "raw",
		"-r", fmt.Sprint(captureRate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("sox stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting sox (is it installed?): %w", err)
	}

	d.mu.Lock()
	d.cmd = cmd
	d.stdout = stdout
	d.mu.Unlock()

	go func() {
		buf := make([]byte, captureRate/10*2) // 100ms of PCM16
		for {
			n, err := io.ReadFull(stdout, buf)
			if err != nil {
				return
			}
			onBuffer(audio.ToFloat32(audio.PCM16FromBytes(buf[:n])), captureRate)
		}
	}()
	return nil
}

func (d *soxDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.stdout != nil {
		d.stdout.Close()
	}
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}
}

// soxSink pipes scheduled samples straight into a sox playback process. The
// pipe plays serially, so frames arriving back-to-back come out gapless and
// the start times reduce to ordering.
type soxSink struct {
	mu     sync.Mutex
	stdin  io.WriteCloser
	cmd    *exec.Cmd
	closed bool
}

func newSoxSink() (*soxSink, error) {
	cmd := exec.Command("sox",
		"-t", "raw",
		"-r", fmt.Sprint(playback.OutputRate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting sox playback: %w", err)
	}
	return &soxSink{stdin: stdin, cmd: cmd}, nil
}

func (s *soxSink) PlayAt(start float64, samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stdin.Write(audio.PCM16Bytes(audio.ToPCM16(samples)))
}

func (s *soxSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stdin.Close()
	s.cmd.Wait()
}

// wallClock measures seconds since program start.
type wallClock struct {
	epoch time.Time
}

func (c wallClock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "Relay websocket URL")
	sayText := flag.String("say", "", "Optional text message to send once connected")
	flag.Parse()

	sink, err := newSoxSink()
	if err != nil {
		log.Fatalf("Failed to create audio player: %v", err)
	}
	defer sink.Close()

	scheduler := playback.NewScheduler(wallClock{epoch: time.Now()}, sink)
	vc := client.NewVoiceClient(*serverURL, &soxDevice{}, scheduler)

	vc.OnStateChange = func(s client.State) {
		log.Printf("📊 State: %s", s)
	}
	vc.OnText = func(text string) {
		fmt.Printf("📝 %s\n", text)
	}
	vc.OnError = func(err error) {
		log.Printf("❌ %v", err)
	}

	log.Printf("🔌 Connecting to %s...", *serverURL)
	if err := vc.Connect(context.Background()); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer vc.Stop()
	log.Println("✅ Connected! Speak into the microphone, Ctrl+C to quit.")

	if *sayText != "" {
		// Give the relay a beat to finish its upstream handshake.
		time.Sleep(2 * time.Second)
		if err := vc.SendText(*sayText); err != nil {
			log.Printf("Failed to send text: %v", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	log.Println("\n👋 Interrupted, closing...")
}
