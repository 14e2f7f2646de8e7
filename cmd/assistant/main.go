// Command assistant runs the visit assistant against the local microphone
// and speakers. Doctor speech is gated locally, streamed to the realtime
// endpoint, and assistant audio plays back through the same duplex device.
//
// Stdin accepts typed doctor input and a few slash commands:
//
//	/objective   preview the Objective section
//	/soap        preview the full SOAP note
//	/finalize    finalize and save the visit
//	/mute        stop auto-creating responses
//	/unmute      resume
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medvoice-ai/medvoice/pkg/audio"
	"github.com/medvoice-ai/medvoice/pkg/orchestrator"
	"github.com/medvoice-ai/medvoice/pkg/realtime"
	"github.com/medvoice-ai/medvoice/pkg/reasoning"
	"github.com/medvoice-ai/medvoice/pkg/session"
	"github.com/medvoice-ai/medvoice/pkg/tools"
	"github.com/medvoice-ai/medvoice/pkg/trace"
	"github.com/medvoice-ai/medvoice/pkg/vad"
)

func main() {
	godotenv.Load()

	patient := flag.Int("patient", 101, "patient id for the visit")
	locale := flag.String("locale", "en", "visit locale")
	halfDuplex := flag.Bool("half-duplex", false, "drop all mic input while the assistant speaks")
	flag.Parse()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	ctx := context.Background()
	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer trace.Shutdown(context.Background())

	snapshots := session.NewStaticSnapshotProvider()
	snapshot, err := snapshots.BuildSnapshot(ctx, *patient)
	if err != nil {
		log.Fatalf("snapshot for patient %d: %v", *patient, err)
	}

	store := session.NewStore()
	sess := store.Create(*patient, os.Getenv("DOCTOR_ID"), *locale, true, snapshot)
	log.Printf("visit session %s for patient %d", sess.ID, *patient)

	playback := audio.NewPlaybackBuffer(audio.DefaultPlaybackBufferConfig())
	duplex, err := audio.NewDuplex(audio.DefaultDuplexConfig(), playback)
	if err != nil {
		log.Fatalf("audio device: %v", err)
	}
	defer duplex.Close()

	gateCfg := vad.DefaultGateConfig()
	gateCfg.HalfDuplexStrict = *halfDuplex
	gate, err := vad.NewGate(gateCfg)
	if err != nil {
		log.Fatalf("vad gate: %v", err)
	}

	queue := audio.NewFrameQueue(30)
	play := &playbackSink{pb: playback}
	ui := &consoleSink{}

	reason := reasoning.NewClient(reasoning.Config{APIKey: apiKey})

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Locale = *locale
	orch := orchestrator.New(orchCfg, orchestrator.Deps{
		Session: sess,
		Reason:  reason,
		Audio:   play,
		UI:      ui,
	})

	clientCfg := realtime.ClientConfig{
		APIKey:  apiKey,
		Session: realtime.DefaultSessionConfig(orchestrator.Instructions, tools.Defs()),
	}
	client := realtime.NewClient(clientCfg, orch)
	bridge := tools.NewBridge(sess, client, reason, ui)
	orch.Bind(client, bridge)

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	// Microphone frames run through the gate on the capture thread; passed
	// frames are handed off into the bounded queue, keeping the callback
	// non-blocking.
	duplex.SetCaptureSink(func(frame []byte) {
		decision := gate.Process(frame, time.Now(), playback.BacklogMs(), play.lastPlaybackAt())
		if decision.BargeIn {
			_, span := trace.InstrumentBargeIn(context.Background(), playback.BacklogMs(), decision.Energy)
			span.End()
			log.Printf("barge-in, cancelling response")
			if err := client.CancelResponse(); err != nil {
				log.Printf("cancel: %v", err)
			}
			playback.Clear()
		}
		if decision.Forward {
			if dropped := queue.Push(frame); dropped {
				log.Printf("outbound queue full, dropped oldest frame")
			}
		}
	})

	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	go func() {
		for {
			frame, ok := queue.Pop(drainCtx)
			if !ok {
				return
			}
			if err := client.SendAudio(frame); err != nil {
				log.Printf("send audio: %v", err)
				continue
			}
			orch.AddUserAudio(len(frame))
		}
	}()

	if err := duplex.Start(); err != nil {
		log.Fatalf("start audio: %v", err)
	}

	go readStdin(ctx, orch)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	duplex.Stop()
	queue.Close()
	stopDrain()
	if err := client.Disconnect(); err != nil {
		log.Printf("disconnect: %v", err)
	}
	bridge.Close()
	orch.Close()
}

// readStdin feeds typed doctor input and slash commands into the session.
func readStdin(ctx context.Context, orch *orchestrator.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/objective":
			orch.ObjectivePreview(ctx)
		case line == "/soap":
			orch.SoapPreview(ctx)
		case line == "/finalize":
			orch.Finalize(ctx, true)
		case line == "/mute":
			orch.SetMuted(true)
		case line == "/unmute":
			orch.SetMuted(false)
		default:
			if _, err := orch.DoctorMessage(ctx, line); err != nil {
				log.Printf("doctor text: %v", err)
			}
		}
	}
}

// playbackSink adapts the playback buffer for the orchestrator and records
// when audio last arrived, which the gate's grace window needs.
type playbackSink struct {
	pb *audio.PlaybackBuffer

	mu   sync.Mutex
	last time.Time
}

func (p *playbackSink) Write(pcm []byte) {
	p.pb.Write(pcm)
	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
}

func (p *playbackSink) Clear() {
	p.pb.Clear()
}

func (p *playbackSink) BacklogMs() int {
	return p.pb.BacklogMs()
}

func (p *playbackSink) lastPlaybackAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// consoleSink prints session events to the terminal.
type consoleSink struct{}

func (consoleSink) AudioDelta(pcm []byte) {}

func (consoleSink) TextDelta(delta string) {
	fmt.Print(delta)
}

func (consoleSink) UserTranscript(text string) {
	fmt.Printf("\n[doctor] %s\n", text)
}

func (consoleSink) ObservationPreview(sessionID, notes string) {
	fmt.Printf("\n--- working notes ---\n%s\n---------------------\n", notes)
}

func (consoleSink) ObjectivePreview(sessionID string, result *reasoning.ObjectiveResult) {
	fmt.Printf("\n--- objective ---\n%s\n-----------------\n", result.Objective)
}

func (consoleSink) SoapPreview(sessionID string, result *reasoning.FinalizeResult) {
	printSoap("soap draft", result)
}

func (consoleSink) SoapResult(sessionID string, result *reasoning.FinalizeResult) {
	printSoap("soap saved", result)
}

func (consoleSink) Status(state string) {
	fmt.Printf("\n[session %s]\n", state)
}

func (consoleSink) Error(scope string, err error) {
	log.Printf("[%s] %v", scope, err)
}

func printSoap(title string, result *reasoning.FinalizeResult) {
	fmt.Printf("\n--- %s ---\n", title)
	fmt.Printf("S: %s\nO: %s\nA: %s\nP: %s\n",
		result.Soap.Subjective, result.Soap.Objective,
		result.Soap.Assessment, result.Soap.Plan)
	if len(result.NextSteps) > 0 {
		fmt.Printf("next: %s\n", strings.Join(result.NextSteps, "; "))
	}
	fmt.Println(strings.Repeat("-", len(title)+8))
}
