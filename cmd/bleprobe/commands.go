package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/beacon"
	"github.com/avetra/bleprobe/internal/config"
	"github.com/avetra/bleprobe/internal/logbuf"
	"github.com/avetra/bleprobe/internal/radio"
	"github.com/avetra/bleprobe/internal/radio/bluez"
	"github.com/avetra/bleprobe/internal/report"
	"github.com/avetra/bleprobe/internal/scan"
	"github.com/avetra/bleprobe/internal/server"
	"github.com/avetra/bleprobe/internal/ui"
)

// Command flags
var (
	identity  string
	adapterID string

	advMode     string
	advPower    string
	advDuration time.Duration

	scanWindow   int
	scanCycles   int
	expectedPkts int
	listenAddr   string
	useDashboard bool

	trailOut string
	txName   string
)

func init() {
	// Common flags shared by both roles (persistent on root)
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "Probe identity: advertised name on the sender, matching key on the receiver")
	rootCmd.PersistentFlags().StringVar(&adapterID, "adapter", "", "Bluetooth adapter id (default from config, usually hci0)")

	rootCmd.AddCommand(advertiseCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

// advertiseCmd runs the sender role
var advertiseCmd = &cobra.Command{
	Use:   "advertise",
	Short: "Broadcast timestamped probe frames",
	Long: `Run the sender role: broadcast a counter and transmit timestamp in a
manufacturer-specific AD structure, once per duty-cycle tick.

The duty-cycle mode sets the tick interval: low-latency (20ms),
balanced (250ms) or low-power (1000ms).`,
	Example: `  # Broadcast with config defaults until interrupted
  bleprobe advertise

  # Fast ticks at high power for a 60 second range walk
  bleprobe advertise --mode low-latency --power high --duration 60s`,
	RunE: runAdvertise,
}

func init() {
	advertiseCmd.Flags().StringVar(&advMode, "mode", "", "Duty-cycle mode: low-latency, balanced, low-power")
	advertiseCmd.Flags().StringVar(&advPower, "power", "", "Tx power level: ultra-low, low, medium, high")
	advertiseCmd.Flags().DurationVar(&advDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
	advertiseCmd.Flags().StringVar(&trailOut, "out", "", "Write the session trail to this file on exit")
}

func runAdvertise(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	name := stringOr(identity, cfg.Identity)
	mode := beacon.ParseMode(stringOr(advMode, cfg.Advertise.Mode))
	power, err := parsePower(stringOr(advPower, cfg.Advertise.Power))
	if err != nil {
		return err
	}

	adapter := bluez.NewAdapter(stringOr(adapterID, cfg.Adapter))
	trail := logbuf.New(cfg.Preferences.TrailLines)
	ctrl := beacon.New(bluez.NewAdvertiser(adapter), name, trail)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx, power, mode); err != nil {
		switch {
		case errors.Is(err, radio.ErrNotSupported):
			return fmt.Errorf("bluetooth adapter unavailable: %w", err)
		case errors.Is(err, radio.ErrPermissionDenied):
			return fmt.Errorf("advertising not permitted for this user: %w", err)
		default:
			return err
		}
	}

	st := ctrl.Status()
	fmt.Printf("Advertising as %q (mode %s, interval %s, power %s)\n",
		name, mode, st.Interval, adv.CodeString(power))
	fmt.Println("Press Ctrl-C to stop.")

	waitForSessionEnd(ctx, ctrl, advDuration)
	ctrl.Stop()

	st = ctrl.Status()
	fmt.Printf("Stopped after %d broadcasts.\n", st.Counter)
	if err := writeTrail(trail, trailOut); err != nil {
		return err
	}
	if st.Err != nil {
		return fmt.Errorf("session aborted: %w", st.Err)
	}
	return nil
}

// waitForSessionEnd blocks until the duration elapses, the context is
// interrupted, or the loop stops itself after a broadcast failure.
func waitForSessionEnd(ctx context.Context, ctrl *beacon.Controller, duration time.Duration) {
	var timeout <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		timeout = t.C
	}

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			return
		case <-tick.C:
			if ctrl.Status().State == beacon.StateStopped {
				return
			}
		}
	}
}

// scanCmd runs the receiver role
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for probe frames and correlate them",
	Long: `Run the receiver role: scan for advertisements whose local name matches
the probe identity, decode the embedded counter and transmit timestamp,
and report the receive/transmit delta plus RSSI.

Scanning runs in fixed-duration cycles. Deltas depend on both devices
having synchronized clocks; skewed clocks show up as negative or large
values and are reported as-is.`,
	Example: `  # Three 10-second scan cycles against the configured identity
  bleprobe scan --cycles 3

  # Watch live on an interactive dashboard
  bleprobe scan --ui

  # Stream results to websocket viewers while scanning
  bleprobe scan --listen :8765`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanWindow, "window", 0, "Scan cycle duration in seconds")
	scanCmd.Flags().IntVar(&scanCycles, "cycles", 0, "Number of scan cycles (0 = until interrupted)")
	scanCmd.Flags().IntVar(&expectedPkts, "expected", 0, "Expected packet count, for the loss estimate")
	scanCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve live results over websocket on this address")
	scanCmd.Flags().BoolVar(&useDashboard, "ui", false, "Show the live dashboard (interactive terminals only)")
	scanCmd.Flags().StringVar(&trailOut, "out", "", "Write the session trail to this file on exit")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	target := stringOr(identity, cfg.Identity)
	window := time.Duration(intOr(scanWindow, cfg.Scan.WindowSeconds)) * time.Second
	cycles := intOr(scanCycles, cfg.Scan.Cycles)
	expected := intOr(expectedPkts, cfg.Scan.ExpectedCount)

	adapter := bluez.NewAdapter(stringOr(adapterID, cfg.Adapter))
	scanner := bluez.NewScanner(adapter)
	trail := logbuf.New(cfg.Preferences.TrailLines)
	engine := scan.NewEngine(target, trail)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Live export over websocket.
	if addr := stringOr(listenAddr, cfg.Preferences.ListenAddr); addr != "" {
		hub := server.NewHub()
		engine.AddObserver(hub.Publish)
		go func() {
			if err := server.Serve(sessionCtx, addr, hub); err != nil {
				fmt.Fprintf(os.Stderr, "live export: %v\n", err)
			}
		}()
	}

	dashboard := useDashboard && ui.IsInteractive()
	var results chan scan.Result
	if dashboard {
		results = make(chan scan.Result, 16)
		engine.AddObserver(func(r scan.Result) {
			select {
			case results <- r:
			default: // dashboard lags, drop rather than stall the engine
			}
		})
	} else {
		engine.AddObserver(printResult)
	}

	events := make(chan radio.AdvEvent, 64)
	scanErr := make(chan error, 1)
	go func() {
		err := scanner.Scan(sessionCtx, events)
		if err != nil && !errors.Is(err, context.Canceled) {
			scanErr <- err
			cancel()
		}
	}()

	runCycles := func() {
		defer cancel()
		for i := 0; cycles == 0 || i < cycles; i++ {
			cycleCtx, cycleCancel := context.WithTimeout(sessionCtx, window)
			engine.Run(cycleCtx, events)
			cycleCancel()
			if sessionCtx.Err() != nil {
				return
			}
		}
	}

	if dashboard {
		go runCycles()
		if err := ui.RunDashboard(sessionCtx, target, results); err != nil {
			cancel()
			return err
		}
		cancel()
	} else {
		fmt.Printf("Scanning for %q (window %s", target, window)
		if cycles > 0 {
			fmt.Printf(", %d cycles", cycles)
		}
		fmt.Println(")")
		runCycles()
	}

	select {
	case err := <-scanErr:
		switch {
		case errors.Is(err, radio.ErrNotSupported):
			return fmt.Errorf("bluetooth adapter unavailable: %w", err)
		case errors.Is(err, radio.ErrPermissionDenied):
			return fmt.Errorf("scanning not permitted for this user: %w", err)
		default:
			return err
		}
	default:
	}

	if err := writeTrail(trail, trailOut); err != nil {
		return err
	}

	// Session summary from the recorded trail.
	records, err := report.Parse(strings.NewReader(trail.Dump()), "session")
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(ui.TitleStyle.Render("SCAN SUMMARY"))
	fmt.Print(report.Summarize(records, target, expected))
	return nil
}

func printResult(r scan.Result) {
	if !r.PayloadFound {
		fmt.Printf("cycle %d: payload absent, rssi %d dBm\n", r.ScanCycle, r.RSSI)
		return
	}
	line := fmt.Sprintf("cycle %d: counter %d, delta %d ms, rssi %d dBm",
		r.ScanCycle, r.Counter, r.DeltaMs, r.RSSI)
	if r.TxPowerAD != adv.TxPowerAbsent {
		line += fmt.Sprintf(", tx power %d dBm", r.TxPowerAD)
	}
	fmt.Println(line)
}

// analyzeCmd summarizes recorded session trails
var analyzeCmd = &cobra.Command{
	Use:   "analyze <trail>...",
	Short: "Summarize recorded scan trails",
	Long: `Parse one or more recorded scan trails and print per-file link
statistics: packet count, counter range, approximate loss, RSSI and
delta distributions. With multiple files a combined summary follows.`,
	Example: `  bleprobe analyze session1.log session2.log --expected 200`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&expectedPkts, "expected", config.DefaultExpectedCount, "Expected packet count per trail")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var all []report.Record
	for _, path := range args {
		records, err := report.ParseFile(path)
		if err != nil {
			return err
		}
		fmt.Print(report.Summarize(records, filepath.Base(path), expectedPkts))
		fmt.Println()
		all = append(all, records...)
	}

	if len(args) > 1 {
		fmt.Print(report.Summarize(all, "ALL FILES", expectedPkts*len(args)))
	}
	return nil
}

// exportCmd converts trails to CSV
var exportCmd = &cobra.Command{
	Use:   "export <trail>...",
	Short: "Convert scan trails to CSV",
	Long: `Parse recorded scan trails and write one CSV file per input, next to
it, with the columns the plotting tooling expects: tx_unix_ms,
rx_unix_ms, payload_counter, delta_ms, rssi_dbm, tx_device_name.`,
	Example: `  bleprobe export session1.log --tx-name tx01`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runExport,
}

func init() {
	exportCmd.Flags().StringVar(&txName, "tx-name", "", "Sender identity stamped on every row (default: configured identity)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	name := stringOr(txName, cfg.Identity)

	for _, path := range args {
		records, err := report.ParseFile(path)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("[WARN] No records in %s, skipping\n", path)
			continue
		}

		base := strings.TrimSuffix(path, filepath.Ext(path))
		outPath := base + ".csv"
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		if err := report.WriteCSV(f, records, name); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("[OK] CSV saved: %s (%d records)\n", outPath, len(records))
	}
	return nil
}

// configCmd manages the configuration file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := config.NewRegistry()
		if identity != "" {
			reg.Identity = identity
		}
		if adapterID != "" {
			reg.Adapter = adapterID
		}
		if err := reg.Save(); err != nil {
			return err
		}
		path, _ := config.GetConfigPath()
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// writeTrail saves the bounded event trail to a file when requested.
func writeTrail(trail *logbuf.Buffer, path string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(trail.Dump()), 0644); err != nil {
		return fmt.Errorf("write trail: %w", err)
	}
	fmt.Printf("Trail written to %s (%d lines)\n", path, trail.Len())
	return nil
}

func stringOr(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func intOr(flag, fallback int) int {
	if flag != 0 {
		return flag
	}
	return fallback
}

func parsePower(s string) (byte, error) {
	switch s {
	case "ultra-low":
		return adv.PowerUltraLow, nil
	case "low":
		return adv.PowerLow, nil
	case "medium":
		return adv.PowerMedium, nil
	case "high", "":
		return adv.PowerHigh, nil
	default:
		return 0, fmt.Errorf("unknown power level %q (want ultra-low, low, medium or high)", s)
	}
}
