package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	hsicamera "github.com/e7canasta/hsi-sensor-driver"
	"github.com/e7canasta/hsi-sensor-driver/telemetry"
)

// Version information
const version = "v0.1.0"

func main() {
	host := flag.String("host", "", "Camera IP or hostname (required unless --config)")
	port := flag.Int("port", 0, "Camera port (default 7892)")
	configPath := flag.String("config", "", "YAML configuration file")
	mode := flag.Int("mode", -1, "Acquisition mode index to select (-1 = leave as is)")
	exposure := flag.Int("exposure", -1, "Exposure time in microseconds (-1 = leave as is)")
	gain := flag.Int("gain", -1, "Sensor gain in dB (-1 = leave as is)")
	fps := flag.Int("fps", -1, "Target frame rate in Hz (-1 = leave as is)")
	format := flag.String("format", "", "Pixel format: mono10, mono8, mono10p45, mono10p23, classcolor")
	outputDir := flag.String("output", "", "Directory to save captured frames as raw uint16 LE (optional)")
	maxFrames := flag.Int("max-frames", 0, "Maximum frames to take (0 = unlimited)")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URI for telemetry (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hsi-capture %s\n", version)
		os.Exit(0)
	}

	cfg := hsicamera.DefaultConfig()
	if *configPath != "" {
		loaded, err := hsicamera.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	// Flags override the file.
	if *host != "" {
		cfg.Camera.Host = *host
	}
	if *port != 0 {
		cfg.Camera.Port = *port
	}
	if *mode >= 0 {
		cfg.Capture.Mode = *mode
	}
	if *exposure >= 0 {
		cfg.Capture.ExposureUS = *exposure
	}
	if *gain >= 0 {
		cfg.Capture.GainDB = *gain
	}
	if *fps >= 0 {
		cfg.Capture.Framerate = *fps
	}
	if *format != "" {
		cfg.Capture.PixelFormat = *format
	}
	if *mqttBroker != "" {
		cfg.MQTT.Broker = *mqttBroker
	}

	if cfg.Camera.Host == "" {
		fmt.Fprintf(os.Stderr, "Error: --host or --config is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  hsi-capture --host 192.168.1.90\n")
		fmt.Fprintf(os.Stderr, "  hsi-capture --config camera.yaml --output ./frames --max-frames 100\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║        HSI Capture - Hyperspectral Camera Driver          ║\n")
	fmt.Printf("║                      Version %s                        ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	cam, err := hsicamera.Connect(cfg.Camera)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer cam.Close()

	serial, _ := cam.SerialNumber()
	firmware, _ := cam.FirmwareVersion()
	fmt.Printf("Device:\n")
	fmt.Printf("  Name:          %s\n", cam.DeviceName())
	fmt.Printf("  Serial:        %s\n", serial)
	fmt.Printf("  Firmware:      %s\n", firmware)
	fmt.Printf("  Modes:\n")
	for i, m := range cam.Modes() {
		marker := " "
		if i == cam.Mode() {
			marker = "*"
		}
		fmt.Printf("   %s [%d] %-20s %4dx%-3d  max %d fps\n",
			marker, i, m.Name, m.SpatialPixels, m.SpectralBands, m.MaxFPS)
	}
	fmt.Printf("\n")

	if err := applyCapture(cam, cfg.Capture); err != nil {
		log.Fatalf("Failed to apply capture settings: %v", err)
	}

	// Optional telemetry
	var emitter *telemetry.Emitter
	if cfg.MQTT.Broker != "" {
		emitter, err = telemetry.New(telemetry.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		})
		if err != nil {
			log.Fatalf("Failed to build telemetry emitter: %v", err)
		}
		if err := emitter.Connect(context.Background()); err != nil {
			slog.Warn("Telemetry unavailable, continuing without it", "error", err)
			emitter = nil
		} else {
			defer emitter.Disconnect()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Starting stream...")
	if err := cam.StartStream(ctx); err != nil {
		log.Fatalf("Failed to start stream: %v", err)
	}

	fmt.Printf("Capturing... Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

	startTime := time.Now()
	framesTaken := 0
	framesSaved := 0

	statsTicker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer statsTicker.Stop()

	pollTicker := time.NewTicker(time.Millisecond)
	defer pollTicker.Stop()

loop:
	for {
		select {
		case <-sigChan:
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			break loop

		case <-statsTicker.C:
			printStats(cam.Stats(), time.Since(startTime), framesTaken, framesSaved)
			if emitter != nil {
				if err := emitter.PublishStats(cam.Stats()); err != nil {
					slog.Debug("Stats publish failed", "error", err)
				}
			}

		case <-pollTicker.C:
			frame, ok := cam.LatestFrame()
			if !ok {
				if !cam.Streaming() {
					slog.Warn("Capture loop ended")
					break loop
				}
				continue
			}
			framesTaken++

			fmt.Printf("[%s] Frame #%-6d | Seq: %-8d | %dx%d %s | Trace: %s\n",
				time.Now().Format("15:04:05"),
				framesTaken,
				frame.Seq,
				frame.SpatialPixels,
				frame.Bands,
				frame.Format,
				frame.TraceID,
			)

			if *outputDir != "" {
				if err := saveFrame(*outputDir, frame); err != nil {
					slog.Error("Failed to save frame", "error", err, "seq", frame.Seq)
				} else {
					framesSaved++
				}
			}

			if *maxFrames > 0 && framesTaken >= *maxFrames {
				fmt.Printf("\nReached maximum frames (%d), stopping...\n", *maxFrames)
				break loop
			}
		}
	}

	slog.Info("Stopping stream...")
	cam.StopStream()

	finalStats := cam.Stats()
	uptime := time.Since(startTime)
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", uptime.Round(time.Second))
	fmt.Printf("  Frames Decoded:     %d\n", finalStats.FramesDecoded)
	fmt.Printf("  Frames Taken:       %d\n", framesTaken)
	if *outputDir != "" {
		fmt.Printf("  Frames Saved:       %d\n", framesSaved)
	}
	fmt.Printf("  Frames Evicted:     %d\n", finalStats.FramesEvicted)
	fmt.Printf("  Stalls:             %d\n", finalStats.Stalls)
	fmt.Printf("  Average FPS:        %.2f\n", finalStats.FPSReal)
	fmt.Printf("  Bytes Read:         %.2f MB\n", float64(finalStats.BytesRead)/1024/1024)
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")

	slog.Info("Capture completed")
}

// applyCapture pushes the requested settings to the device. Negative
// values leave the device setting alone.
func applyCapture(cam *hsicamera.Camera, cfg hsicamera.CaptureConfig) error {
	if cfg.Mode >= 0 {
		if err := cam.SetMode(cfg.Mode); err != nil {
			return err
		}
	}
	if cfg.PixelFormat != "" {
		pf, err := hsicamera.ParsePixelFormat(cfg.PixelFormat)
		if err != nil {
			return err
		}
		if err := cam.SetPixelFormat(pf); err != nil {
			return err
		}
	}
	if cfg.ExposureUS >= 0 {
		if err := cam.SetExposure(int32(cfg.ExposureUS)); err != nil {
			return err
		}
	}
	if cfg.GainDB >= 0 {
		if err := cam.SetGain(int32(cfg.GainDB)); err != nil {
			return err
		}
	}
	if cfg.Framerate >= 0 {
		if err := cam.SetFramerate(int32(cfg.Framerate)); err != nil {
			return err
		}
	}
	return nil
}

func printStats(stats hsicamera.Stats, uptime time.Duration, taken, saved int) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Capture Statistics (Uptime: %s)\n", uptime.Round(time.Second))
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ Frames Decoded:     %6d\n", stats.FramesDecoded)
	fmt.Printf("│ Frames Taken:       %6d\n", taken)
	fmt.Printf("│ Frames Saved:       %6d\n", saved)
	fmt.Printf("│ Frames Evicted:     %6d\n", stats.FramesEvicted)
	fmt.Printf("│ Stalls:             %6d\n", stats.Stalls)
	fmt.Printf("│ Real FPS:           %6.2f\n", stats.FPSReal)
	fmt.Printf("│ Bytes Read:         %6.2f MB\n", float64(stats.BytesRead)/1024/1024)
	fmt.Printf("│ Streaming:          %6v\n", stats.Streaming)
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
	fmt.Printf("\n")
}

// saveFrame writes the sample grid as little-endian uint16, row-major.
func saveFrame(outputDir string, frame *hsicamera.Frame) error {
	filename := fmt.Sprintf("frame_%06d_%s.raw",
		frame.Seq, frame.Timestamp.Format("20060102_150405.000"))
	path := filepath.Join(outputDir, filename)

	buf := make([]byte, len(frame.Samples)*2)
	for i, s := range frame.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], s)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
