package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terravision/gaze-calibration/internal/config"
	"github.com/terravision/gaze-calibration/internal/driver"
	"github.com/terravision/gaze-calibration/internal/logging"
	"github.com/terravision/gaze-calibration/internal/rpc"
	"github.com/terravision/gaze-calibration/internal/state"
	"github.com/terravision/gaze-calibration/internal/transport"
	"google.golang.org/grpc"
)

// #region main
func main() {
	cfg, err := config.Load(os.Getenv("CALIBRATION_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	logger := log.Default()
	model := state.LoadModel(store, cfg.StorageKey, cfg.Model(), logger)
	if cur, err := store.Current(cfg.StorageKey); err == nil {
		err = logging.LogEvent(store.DB(), logging.Event{
			StorageKey: cfg.StorageKey,
			Kind:       logging.KindLoad,
			VersionID:  cur.VersionID,
			Decision:   "commit",
			Reason:     fmt.Sprintf("restored %d samples", model.SampleCount()),
		})
		if err != nil {
			log.Printf("warning: failed to log load: %v", err)
		}
	}

	session := driver.NewSession(model, store, driver.SessionConfig{
		Key:  cfg.StorageKey,
		Gate: cfg.Gate(),
		Eval: cfg.Eval(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Gaze intake and corrected relay over MQTT
	mqttClient, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		log.Fatalf("failed to connect to broker at %s: %v", cfg.MQTTBroker, err)
	}
	defer mqttClient.Disconnect(250)

	source := transport.NewMQTTSource(mqttClient, cfg.TopicGazeRaw, logger)
	if err := source.Start(); err != nil {
		log.Fatalf("gaze source: %v", err)
	}
	relay := transport.NewRelay(mqttClient, session, source, cfg.TopicGazeCorrected, cfg.TopicCalibrationSample, logger)
	if err := relay.Start(); err != nil {
		log.Fatalf("relay: %v", err)
	}
	defer relay.Stop()

	targets := driver.DefaultTargets(float64(cfg.ScreenWidth), float64(cfg.ScreenHeight))

	// Calibration UI
	mux := http.NewServeMux()
	transport.NewWSBridge(session, source, targets, driver.DefaultOptions(), logger).Routes(mux)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
			stop()
		}
	}()

	// Control API
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.GRPCAddr, err)
	}
	grpcSrv := grpc.NewServer()
	rpc.RegisterCalibrationServer(grpcSrv, rpc.NewServer(session))
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("grpc server: %v", err)
			stop()
		}
	}()

	fmt.Println("Gaze Calibration Controller ready.")
	fmt.Printf("  DB: %s | Broker: %s | gRPC: %s | HTTP: %s\n", cfg.DBPath, cfg.MQTTBroker, cfg.GRPCAddr, cfg.HTTPAddr)
	printStatus(session.Status())
	fmt.Println("Commands: calibrate, status, reset, quit")

	go runConsole(ctx, stop, readLines(os.Stdin), session, source, targets)
	<-ctx.Done()

	fmt.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	if v, err := session.Persist(); err != nil {
		log.Printf("warning: failed to persist calibration: %v", err)
	} else {
		fmt.Printf("Saved version %s (%d samples)\n", v.VersionID, v.SampleCount)
	}
}

// #endregion main

// #region console
func printStatus(st driver.Status) {
	fmt.Printf("  key=%s ready=%v samples=%d error=%.2fpx\n", st.StorageKey, st.Ready, st.SampleCount, st.ErrorEstimate)
	if st.Warning {
		fmt.Println("  warning: error estimate above threshold, recalibration advised")
	}
}

// #endregion console
