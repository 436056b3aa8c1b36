// Package session provides the CTAPHID Exchange façade: a Session owns one
// HID link across its whole lifetime, runs the INIT handshake once, and
// then lets callers drive WINK and CBOR requests over the resulting
// channel, draining keepalives and classifying the terminating status
// byte along the way.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-ctaphid/ctaphid/pkg/ctaphid"
	"github.com/go-ctaphid/ctaphid/pkg/hidlink"
	"github.com/go-ctaphid/ctaphid/pkg/sessionopts"
	"github.com/go-ctaphid/ctaphid/pkg/trace"
)

// PromptFunc is called exactly once per Exchange the first time a device
// signals UpNeeded, to surface a "touch your security key" style prompt.
// The default implementation writes to standard output.
type PromptFunc func(msg string)

// Session owns one opened HID link end to end: the channel allocated by
// Init, the capabilities it declared, and every WINK/CBOR exchange run
// against it until Close.
type Session struct {
	link   hidlink.Link
	logger *slog.Logger
	prompt PromptFunc

	nonceSource    io.Reader
	initTimeout    time.Duration
	commandTimeout time.Duration
	colorDiag      bool

	path      string
	vendorID  uint16
	productID uint16

	mu           sync.Mutex
	cid          ctaphid.ChannelID
	capabilities ctaphid.Capabilities
	observedWink *bool
	open         bool
}

// Open opens the HID device at path and wraps it in a closed Session; call
// Init before any other exchange. Re-opening a path whose previous Session
// was not Closed will fail at the OS layer, matching the exclusive-owner
// resource model of the underlying HID handle.
func Open(path string, opts ...sessionopts.Option) (*Session, error) {
	link, err := hidlink.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}

	s := New(link, opts...)
	s.path = path
	return s, nil
}

// New wraps an already-opened Link in a Session. Use this when the caller
// (or a test) owns device discovery and opening directly.
func New(link hidlink.Link, opts ...sessionopts.Option) *Session {
	oo := sessionopts.NewOptions(opts...)

	s := &Session{
		link:           link,
		logger:         oo.Logger,
		prompt:         defaultPrompt,
		nonceSource:    oo.NonceSource,
		initTimeout:    oo.InitTimeout,
		commandTimeout: oo.CommandTimeout,
		colorDiag:      oo.ColorDiagnostics,
		vendorID:       oo.VendorID,
		productID:      oo.ProductID,
		open:           true,
	}
	return s
}

func defaultPrompt(msg string) {
	fmt.Println(msg)
}

// newTracer stamps a fresh correlation ID for one handshake or exchange, so
// verbose logs from concurrent sessions sharing a bus can be told apart.
func (s *Session) newTracer() *trace.Tracer {
	return trace.New(s.logger)
}

// SetPrompt overrides the callback used to surface the one-shot "touch
// your security key" message during a CBOR keepalive drain.
func (s *Session) SetPrompt(fn PromptFunc) {
	if fn == nil {
		fn = defaultPrompt
	}
	s.prompt = fn
}

// Init runs the CTAPHID_INIT handshake and adopts the allocated channel
// and declared capabilities. It may be called again on the same Session
// (after a fresh Open) to re-initialize idempotently.
func (s *Session) Init() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return errClosed
	}
	s.mu.Unlock()

	res, err := ctaphid.Init(s.link, s.newTracer().Observer, s.initTimeout, s.nonceSource)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cid = res.CID
	s.capabilities = res.Capabilities
	s.observedWink = nil
	s.mu.Unlock()

	s.logger.Debug("ctaphid init complete",
		"cid", res.CID,
		"wink", res.Capabilities.Wink,
		"cbor", res.Capabilities.CBOR,
		"msg", res.Capabilities.Msg,
	)
	return nil
}

// Capabilities returns the booleans declared by the last successful Init.
func (s *Session) Capabilities() ctaphid.Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

// Wink sends a WINK command and records whether the device actually
// responded the way an optional command should: a zero-length WINK reply.
// A failure here does not necessarily mean the session is unusable, so the
// outcome is recorded rather than treated as fatal by the caller.
func (s *Session) Wink() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return errClosed
	}
	s.mu.Unlock()

	observed := false
	s.mu.Lock()
	s.observedWink = &observed
	cid := s.cid
	declaredWink := s.capabilities.Wink
	s.mu.Unlock()

	obs := s.newTracer().Observer
	if err := ctaphid.SendCommand(s.link, obs, cid, ctaphid.CommandWink, nil); err != nil {
		return err
	}

	cmd, payload, err := ctaphid.ReceiveCommand(s.link, obs, cid, s.commandTimeout)
	if err != nil {
		return err
	}
	if cmd != ctaphid.CommandWink {
		return fmt.Errorf("ctaphid: wink: %w", ctaphid.ErrInvalidCommand)
	}
	if len(payload) != 0 {
		return fmt.Errorf("ctaphid: wink: %w", ctaphid.ErrInvalidLength)
	}

	observed = true
	s.mu.Lock()
	s.observedWink = &observed
	s.mu.Unlock()

	if declaredWink != observed {
		s.logger.Warn("wink capability mismatch",
			"declared", declaredWink, "observed", observed)
	}
	return nil
}

// exchangeState tags where a CBOR exchange is in its keepalive drain, per
// the AwaitingFirst/DrainingKeepalive/Complete/Failed state machine.
type exchangeState int

const (
	stateAwaitingFirst exchangeState = iota
	stateDrainingKeepalive
	stateComplete
	stateFailed
)

func (s exchangeState) String() string {
	switch s {
	case stateAwaitingFirst:
		return "awaiting-first"
	case stateDrainingKeepalive:
		return "draining-keepalive"
	case stateComplete:
		return "complete"
	default:
		return "failed"
	}
}

// ExchangeCBOR sends a single-byte subcommand followed by cborPayload as a
// CTAPHID_CBOR request, drains any keepalive frames the device sends while
// it waits for user presence, and returns the classified status plus the
// response payload (valid only when the status is StatusOK).
//
// expectUserPresence is a diagnostic hint: it is compared against whether
// an UpNeeded keepalive was actually observed, and a mismatch is logged
// but never fails the exchange.
func (s *Session) ExchangeCBOR(ctx context.Context, sub byte, cborPayload []byte, expectUserPresence bool) (ctaphid.StatusCode, []byte, error) {
	if 1+len(cborPayload) > ctaphid.MaxPayload {
		return 0, nil, fmt.Errorf("ctaphid: cbor request: %w", ctaphid.ErrInvalidLength)
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return 0, nil, errClosed
	}
	cid := s.cid
	s.mu.Unlock()

	send := make([]byte, 1+len(cborPayload))
	send[0] = sub
	copy(send[1:], cborPayload)

	tracer := s.newTracer()
	if err := ctaphid.SendCommand(s.link, tracer.Observer, cid, ctaphid.CommandCBOR, send); err != nil {
		return 0, nil, err
	}

	state := stateAwaitingFirst
	promptedUP := false

	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		cmd, payload, err := ctaphid.ReceiveCommand(s.link, tracer.Observer, cid, s.commandTimeout)
		if err != nil {
			state = stateFailed
			return 0, nil, err
		}

		s.logger.Debug("cbor exchange state", "exchange_id", tracer.ID, "state", state, "command", cmd)

		switch cmd {
		case ctaphid.CommandKeepalive:
			state = stateDrainingKeepalive
			if len(payload) != 1 {
				state = stateFailed
				return 0, nil, fmt.Errorf("ctaphid: keepalive: %w", ctaphid.ErrOther)
			}

			switch ctaphid.KeepaliveStatus(payload[0]) {
			case ctaphid.KeepaliveProcessing:
				// loop; still waiting on the device.
			case ctaphid.KeepaliveUpNeeded:
				if !promptedUP {
					promptedUP = true
					s.prompt("touch your security key")
				}
			default:
				state = stateFailed
				return 0, nil, fmt.Errorf("ctaphid: keepalive byte 0x%02x: %w", payload[0], ctaphid.ErrOther)
			}
			continue

		case ctaphid.CommandCBOR:
			state = stateComplete
			if len(payload) == 0 {
				return 0, nil, fmt.Errorf("ctaphid: cbor response: %w", ctaphid.ErrInvalidLength)
			}

			status, class := ctaphid.Classify(payload[0])
			switch class {
			case ctaphid.ClassKnown:
				if status == ctaphid.StatusOK {
					if expectUserPresence != promptedUP {
						s.logger.Warn("user presence expectation mismatch",
							"expected", expectUserPresence, "observed", promptedUP)
					}
					return status, payload[1:], nil
				}
				return status, nil, &ctaphid.CTAPError{StatusCode: status}

			case ctaphid.ClassDeprecatedRemoved, ctaphid.ClassExtensionSpecific, ctaphid.ClassVendorSpecific:
				s.logDiagnostic(status, class)
				return status, nil, fmt.Errorf("ctaphid: %s status 0x%02x: %w", class, byte(status), ctaphid.ErrOther)

			default: // ClassUnspecified
				return status, nil, fmt.Errorf("ctaphid: %w: 0x%02x", ctaphid.ErrUnspecifiedStatus, byte(status))
			}

		default:
			state = stateFailed
			return 0, nil, fmt.Errorf("ctaphid: cbor exchange: %w", ctaphid.ErrInvalidCommand)
		}
	}
}

func (s *Session) logDiagnostic(status ctaphid.StatusCode, class ctaphid.StatusClass) {
	marker := fmt.Sprintf("[%s]", class)
	if s.colorDiag {
		marker = "\033[33m" + marker + "\033[0m"
	}
	s.logger.Warn(marker+" non-standard CTAP2 status",
		"status", fmt.Sprintf("0x%02x", byte(status)), "class", class.String())
}

// Report renders a human-readable summary of the session's identity and
// declared/observed capabilities, the Go counterpart of printing a
// device's vendor/product ID and capability flags after a probe.
func (s *Session) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b []byte
	b = fmt.Appendf(b, "Vendor ID: 0x%04x\n", s.vendorID)
	b = fmt.Appendf(b, "Product ID: 0x%04x\n", s.productID)
	b = fmt.Appendf(b, "Channel ID: %s\n", s.cid)

	if s.observedWink != nil {
		if *s.observedWink {
			b = fmt.Append(b, "The optional command WINK worked.\n")
		} else {
			b = fmt.Append(b, "The optional command WINK did not work.\n")
		}
		if *s.observedWink != s.capabilities.Wink {
			b = fmt.Append(b, "WARNING: reported WINK capability did not match the observed response.\n")
		}
	}

	if s.capabilities.CBOR {
		b = fmt.Append(b, "The CBOR capability was set.\n")
	} else {
		b = fmt.Append(b, "The CBOR capability was NOT set.\n")
	}
	if s.capabilities.Msg {
		b = fmt.Append(b, "The MSG capability was set.\n")
	} else {
		b = fmt.Append(b, "The MSG capability was NOT set.\n")
	}

	return string(b)
}

// Close releases the underlying HID handle. It is safe to call more than
// once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	return s.link.Close()
}

var errClosed = errors.New("session: use of closed session")
