// Entry point for our CP/M emulator.
//
// With a path to a .COM file we load it into the TPA and run it; with
// no arguments we load the system image CPM.SYS and cold-boot into
// the CCP it contains, rebooting after every warm boot.

package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/skx/cpmbox/cpm"
	"github.com/skx/cpmbox/version"
)

// systemImage is the image we boot when no program is named.
const systemImage = "CPM.SYS"

func main() {

	// Parse the command-line flags.
	input := flag.String("input", "term", "the name of the console input driver to use")
	output := flag.String("output", "ansi", "the name of the console output driver to use")
	logPath := flag.String("log-path", "", "redirect diagnostic output to the given file")
	biosBase := flag.String("bios", "FC00", "the base address of the BIOS jump table, in hex")
	showVersion := flag.Bool("version", false, "show our version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Print(version.GetVersionBanner())
		return
	}

	// Setup our logging level - default to warnings or higher.
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)

	// But show "everything" if $DEBUG is non-empty.
	if os.Getenv("DEBUG") != "" {
		lvl.Set(slog.LevelDebug)
	}

	// Diagnostics go to stderr, or to the log-file when one was
	// requested.
	var logWriter *os.File = os.Stderr
	if *logPath != "" {
		var err error
		logWriter, err = os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %s\n", *logPath, err)
			os.Exit(1)
		}
		defer logWriter.Close()
	}

	log := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: lvl,
	}))

	bios, err := strconv.ParseUint(*biosBase, 16, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse BIOS address %s: %s\n", *biosBase, err)
		os.Exit(1)
	}

	// Create the emulator.
	machine, err := cpm.New(log,
		cpm.WithInputDriver(*input),
		cpm.WithOutputDriver(*output),
		cpm.WithBiosAddress(uint16(bios)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create emulator: %s\n", err)
		os.Exit(1)
	}
	defer machine.Cleanup()

	args := flag.Args()

	// With no program we boot the system image, forever: each warm
	// boot reloads it, the way real hardware re-reads the system
	// tracks.
	if len(args) == 0 {
		for {
			err = machine.LoadSystemImage(systemImage)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s\n", err)
				os.Exit(1)
			}

			err = machine.Execute([]string{})
			if err == nil || errors.Is(err, cpm.ErrBoot) || errors.Is(err, cpm.ErrExit) {
				continue
			}

			fmt.Fprintf(os.Stderr, "error running %s: %s\n", systemImage, err)
			os.Exit(1)
		}
	}

	// Otherwise run the named program, once.
	err = machine.LoadBinary(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	err = machine.Execute(args[1:])
	if err != nil && !errors.Is(err, cpm.ErrBoot) && !errors.Is(err, cpm.ErrExit) {
		fmt.Fprintf(os.Stderr, "error running %s: %s\n", args[0], err)
		os.Exit(1)
	}
}
