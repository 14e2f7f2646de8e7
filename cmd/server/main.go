// Command server runs the browser-facing visit assistant bridge. Each
// WebSocket connection gets its own session, realtime client, orchestrator
// and tool bridge; audio capture and playback happen in the browser.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medvoice-ai/medvoice/pkg/orchestrator"
	"github.com/medvoice-ai/medvoice/pkg/realtime"
	"github.com/medvoice-ai/medvoice/pkg/reasoning"
	"github.com/medvoice-ai/medvoice/pkg/server"
	"github.com/medvoice-ai/medvoice/pkg/session"
	"github.com/medvoice-ai/medvoice/pkg/tools"
	"github.com/medvoice-ai/medvoice/pkg/trace"
)

func main() {
	godotenv.Load()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	ctx := context.Background()
	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer trace.Shutdown(context.Background())

	store := session.NewStore()
	snapshots := session.NewStaticSnapshotProvider()
	reason := reasoning.NewClient(reasoning.Config{APIKey: apiKey})

	factory := func(ctx context.Context, ui *server.UIConn, req server.SessionRequest) (*server.Handle, error) {
		snapshot, err := snapshots.BuildSnapshot(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("snapshot for patient %d: %w", req.PatientID, err)
		}

		sess := store.Create(req.PatientID, req.DoctorID, req.Locale, req.Consent, snapshot)

		orchCfg := orchestrator.DefaultConfig()
		orchCfg.Locale = sess.Locale
		orch := orchestrator.New(orchCfg, orchestrator.Deps{
			Session: sess,
			Reason:  reason,
			UI:      ui,
		})

		client := realtime.NewClient(realtime.ClientConfig{
			APIKey:  apiKey,
			Session: realtime.DefaultSessionConfig(orchestrator.Instructions, tools.Defs()),
		}, orch)
		bridge := tools.NewBridge(sess, client, reason, ui)
		orch.Bind(client, bridge)

		if err := client.Connect(ctx); err != nil {
			store.Delete(sess.ID)
			return nil, fmt.Errorf("realtime connect: %w", err)
		}

		log.Printf("session %s started for patient %d", sess.ID, req.PatientID)
		return &server.Handle{
			SessionID: sess.ID,
			Ingest:    client,
			Control:   orch,
			Close: func() {
				if err := client.Disconnect(); err != nil {
					log.Printf("session %s disconnect: %v", sess.ID, err)
				}
				bridge.Close()
				orch.Close()
				store.Delete(sess.ID)
				log.Printf("session %s closed", sess.ID)
			},
		}, nil
	}

	cfg := server.DefaultConfig()
	if addr := os.Getenv("BRIDGE_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.AuthToken = os.Getenv("BRIDGE_AUTH_TOKEN")

	srv := server.NewBridgeServer(cfg, factory)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server start: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
