// Command rvjit is the thin CLI wrapper around the JIT core, per spec §6:
// `rvjit <guest-binary> [timeout]` loads a raw guest ROM image at a fixed
// physical base, runs it to completion (or until the optional watchdog
// fires), and exits 0 on a tohost-signaled success or 1 on anything else.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rv32dbt/core/internal/guest"
	"github.com/rv32dbt/core/internal/jitcore"
	"github.com/rv32dbt/core/internal/pagealloc"
	"github.com/rv32dbt/core/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rvjit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	romBase := flag.Uint64("rom-base", uint64(guest.RAMBase), "guest physical load address for the ROM image")
	ramSize := flag.Uint64("ram-size", 64<<20, "guest RAM size in bytes")
	tohostAddr := flag.Uint64("tohost", guest.RAMBase+0x1000, "guest physical address of the tohost exit word")
	timeout := flag.Duration("timeout", 0, "wall-clock watchdog (0 disables it)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <guest-binary> [timeout]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	configureLogging(*logLevel)

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return fmt.Errorf("missing guest binary path")
	}
	binPath := args[0]
	if len(args) >= 2 {
		secs, err := time.ParseDuration(args[1] + "s")
		if err == nil {
			*timeout = secs
		}
	}

	rom, err := os.ReadFile(binPath)
	if err != nil {
		return fmt.Errorf("read guest binary: %w", err)
	}
	if uint64(len(rom)) > *ramSize {
		return fmt.Errorf("guest binary (%d bytes) exceeds ram-size (%d bytes)", len(rom), *ramSize)
	}

	ram := make([]byte, *ramSize)
	copy(ram, rom)

	sysCtx := system.NewContext()

	// tohost is carved out of the RAM range, so it must be registered first:
	// Bus.find matches the first device whose range contains the address.
	th := system.NewToHostDevice(uint32(*tohostAddr))
	sysCtx.Bus.AddDevice(th)

	ramDev := guest.NewRAMDevice(uint32(*romBase), ram)
	sysCtx.Bus.AddDevice(ramDev)

	cpu := sysCtx.NewCPU()
	cpu.PC = uint32(*romBase)

	alloc := pagealloc.New()
	hart := jitcore.NewHart(cpu, newEmitter(), alloc, slog.Default())

	var deadline <-chan time.Time
	if *timeout > 0 {
		timer := time.NewTimer(*timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	stopped := false
	stop := func() bool {
		if stopped {
			return true
		}
		if _, exited := th.Exited(); exited {
			stopped = true
			return true
		}
		select {
		case <-deadline:
			stopped = true
			return true
		default:
			return false
		}
	}

	if err := hart.Run(stop); err != nil {
		return fmt.Errorf("hart run: %w", err)
	}

	reason, exited := th.Exited()
	if !exited {
		return fmt.Errorf("guest did not signal exit before the watchdog fired")
	}
	if exit, ok := system.IsExit(reason); ok && exit.Code == 0 {
		return nil
	}
	if exit, ok := system.IsExit(reason); ok {
		return fmt.Errorf("guest exited with code %d", exit.Code)
	}
	return reason
}

func configureLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
