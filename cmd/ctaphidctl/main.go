// ctaphidctl is a small CLI driver for the CTAPHID transport: it resolves a
// FIDO HID device by vendor/product ID, runs INIT, optionally winks the
// device, and fires off a CTAP2 GetInfo request to exercise the CBOR
// exchange loop end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/go-ctaphid/ctaphid/pkg/ctaphid"
	"github.com/go-ctaphid/ctaphid/pkg/hidlink"
	"github.com/go-ctaphid/ctaphid/pkg/session"
	"github.com/go-ctaphid/ctaphid/pkg/sessionopts"
)

// getInfoSubcommand is the CTAP2 authenticatorGetInfo subcommand byte.
const getInfoSubcommand = 0x04

func main() {
	var (
		vid     = flag.Uint("vid", 0, "USB vendor ID (0 = any)")
		pid     = flag.Uint("pid", 0, "USB product ID (0 = any)")
		path    = flag.String("path", "", "open this HID path directly, skipping discovery")
		verbose = flag.Bool("v", false, "trace every CTAPHID frame")
		color   = flag.Bool("color", false, "colorize non-standard status diagnostics")
	)
	flag.Parse()

	lvl := new(slog.LevelVar)
	if *verbose {
		lvl.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	if err := run(logger, *vid, *pid, *path, *color); err != nil {
		logger.Error("ctaphidctl failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, vid, pid uint, path string, color bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := []sessionopts.Option{
		sessionopts.WithLogger(logger),
		sessionopts.WithContext(ctx),
		sessionopts.WithVendorProduct(uint16(vid), uint16(pid)),
		sessionopts.WithColorDiagnostics(color),
	}

	var sess *session.Session
	var err error
	if path != "" {
		sess, err = session.Open(path, opts...)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if err := sess.Init(); err != nil {
			_ = sess.Close()
			return fmt.Errorf("init: %w", err)
		}
	} else {
		locator := hidlink.DefaultLocator(ctx)
		sess, err = session.Select(ctx, locator, opts...)
		if err != nil {
			return fmt.Errorf("select device: %w", err)
		}
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Wink(); err != nil {
		logger.Warn("wink failed", "err", err)
	}

	req, err := cbor.Marshal(struct{}{})
	if err != nil {
		return fmt.Errorf("encode getInfo request: %w", err)
	}

	status, resp, err := sess.ExchangeCBOR(ctx, getInfoSubcommand, req, false)
	if err != nil {
		return fmt.Errorf("getInfo exchange: %w", err)
	}
	if status != ctaphid.StatusOK {
		return fmt.Errorf("getInfo returned status %s", status)
	}

	fmt.Print(sess.Report())
	fmt.Printf("GetInfo response: %d bytes\n", len(resp))
	return nil
}
