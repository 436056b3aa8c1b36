package ctaphid

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// Observer renders a verbose hex trace of every frame the transport sends
// or receives. It is nil-safe: a nil *Observer disables tracing entirely,
// so hot-path callers can unconditionally call Trace without branching on
// whether verbose logging is enabled.
//
// The hex scratch buffer is sized once and reused across calls so tracing
// does not allocate per frame; only the final slog Attr strings do, which
// slog itself buffers before a write.
type Observer struct {
	logger *slog.Logger
	scratch [2 * ContCapacity]byte
}

// NewObserver returns an Observer that writes frame traces to logger at
// debug level. A nil logger disables tracing, same as a nil *Observer.
func NewObserver(logger *slog.Logger) *Observer {
	if logger == nil {
		return nil
	}
	return &Observer{logger: logger}
}

// Trace logs one frame. direction is a short arrow such as ">>" or "<<".
func (o *Observer) Trace(direction string, f *Frame) {
	if o == nil || o.logger == nil || !o.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	if f.IsInit() {
		n := hex.Encode(o.scratch[:], f.Data)
		o.logger.Debug("ctaphid frame",
			"dir", direction,
			"cid", f.CID.String(),
			"type", hexByte(f.Type),
			"len", f.BCNT,
			"payload", string(o.scratch[:n]),
		)
		return
	}

	n := hex.Encode(o.scratch[:], f.Data)
	o.logger.Debug("ctaphid frame",
		"dir", direction,
		"cid", f.CID.String(),
		"seq", hexByte(f.Type),
		"payload", string(o.scratch[:n]),
	)
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}
