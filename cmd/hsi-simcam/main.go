// hsi-simcam serves the camera wire protocol on a local port so the
// capture tools can be exercised without hardware.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/hsi-sensor-driver/internal/simcam"
	"github.com/e7canasta/hsi-sensor-driver/internal/wire"
)

const version = "v0.1.0"

func main() {
	listen := flag.String("listen", "127.0.0.1:7892", "Address to serve the camera protocol on")
	spatial := flag.Int("spatial", 640, "Spatial pixels per frame")
	spectral := flag.Int("spectral", 213, "Spectral bands per frame")
	format := flag.String("format", "mono10", "Pixel format: mono10, mono8, mono10p45, mono10p23, classcolor")
	fps := flag.Int("fps", 100, "Simulated frame rate")
	headerDelay := flag.Duration("header-delay", 0, "Delay before the stream header (stall testing)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hsi-simcam %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	pf, err := wire.ParsePixelFormat(*format)
	if err != nil {
		log.Fatalf("Invalid pixel format: %v", err)
	}
	if *fps <= 0 {
		log.Fatalf("Invalid fps: %d", *fps)
	}

	dev := simcam.New(simcam.Config{
		Listen:        *listen,
		Spatial:       *spatial,
		Spectral:      *spectral,
		PixelFormat:   pf,
		FrameInterval: time.Second / time.Duration(*fps),
		HeaderDelay:   *headerDelay,
	})
	if err := dev.Start(); err != nil {
		log.Fatalf("Failed to start simulator: %v", err)
	}

	slog.Info("Simulated camera ready",
		"addr", dev.Addr(),
		"spatial", *spatial,
		"spectral", *spectral,
		"format", pf.String(),
		"fps", *fps,
	)
	fmt.Printf("Press Ctrl+C to stop\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down...\n")
	dev.Close()
}
