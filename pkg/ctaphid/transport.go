package ctaphid

import (
	"time"

	"github.com/samber/lo"
)

// HidLink is the raw HID report pipe this transport segments messages
// over. Device discovery, USB enumeration, and the actual byte-level
// read/write syscalls are the caller's concern; the transport only needs
// these two operations.
type HidLink interface {
	// Write performs a single HID report write. A short write (less than
	// the full report) is treated as fatal by the transport.
	Write(report []byte) (int, error)
	// Read blocks for up to timeout waiting for one HID input report. It
	// returns (0, nil) on timeout, (n, nil) with n == len(report) on
	// success, and (0, err) on a fatal I/O error.
	Read(report []byte, timeout time.Duration) (int, error)
}

// SendCommand segments data into one init frame followed by as many
// continuation frames as needed and writes them to link on channel cid.
func SendCommand(link HidLink, obs *Observer, cid ChannelID, cmd Command, data []byte) error {
	if len(data) > MaxPayload {
		return newTransportError(ErrInvalidLength, cmd, 0)
	}

	head := &Frame{
		CID:  cid,
		Type: initPacketBit | byte(cmd),
		BCNT: uint16(len(data)),
		Data: lo.Slice(data, 0, InitCapacity),
	}
	if err := writeFrame(link, obs, head); err != nil {
		return newTransportError(err, cmd, 0)
	}

	if len(data) <= InitCapacity {
		return nil
	}

	chunks := lo.Chunk(data[InitCapacity:], ContCapacity)
	for i, chunk := range chunks {
		cont := &Frame{
			CID:  cid,
			Type: byte(i),
			Data: chunk,
		}
		if err := writeFrame(link, obs, cont); err != nil {
			return newTransportError(err, cmd, 0)
		}
	}

	return nil
}

func writeFrame(link HidLink, obs *Observer, f *Frame) error {
	obs.Trace(">>", f)

	buf := EncodeFrame(f)
	n, err := link.Write(buf[:])
	if err != nil {
		return ErrOther
	}
	if n != len(buf) {
		return ErrShortWrite
	}
	return nil
}

// ReceiveCommand reassembles one command response addressed to cid,
// waiting no longer than timeout for the whole message. Frames on other
// channels are noise from other initiators and are skipped without
// consuming the deadline's budget any further than the read that observed
// them.
func ReceiveCommand(link HidLink, obs *Observer, cid ChannelID, timeout time.Duration) (Command, []byte, error) {
	deadline := time.Now().Add(timeout)

	var head *Frame
	for {
		f, err := receiveFrame(link, obs, deadline)
		if err != nil {
			return 0, nil, err
		}
		if f.CID != cid || !f.IsInit() {
			continue
		}
		head = f
		break
	}

	if head.Command() == CommandError {
		if len(head.Data) == 0 {
			return 0, nil, newTransportError(ErrOther, CommandError, 0)
		}
		code := HIDError(head.Data[0])
		return 0, nil, &DeviceError{Code: code}
	}

	total := int(head.BCNT)
	if total > MaxPayload {
		return 0, nil, newTransportError(ErrInvalidLength, head.Command(), 0)
	}

	data := make([]byte, 0, total)
	n := min(total, InitCapacity)
	data = append(data, head.Data[:n]...)
	remaining := total - n

	var wantSeq byte
	for remaining > 0 {
		f, err := receiveFrame(link, obs, deadline)
		if err != nil {
			return 0, nil, err
		}
		if f.CID != cid {
			continue
		}
		if f.IsInit() {
			return 0, nil, newTransportError(ErrInvalidSeq, head.Command(), f.Type)
		}
		if f.Seq() != wantSeq {
			return 0, nil, newTransportError(ErrInvalidSeq, head.Command(), f.Type)
		}
		wantSeq++

		n = min(remaining, ContCapacity)
		data = append(data, f.Data[:n]...)
		remaining -= n
	}

	return head.Command(), data, nil
}



// receiveFrame reads exactly one frame with the remaining time until
// deadline, failing Timeout immediately without touching the HidLink if
// the budget is already exhausted.
func receiveFrame(link HidLink, obs *Observer, deadline time.Time) (*Frame, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, ErrTimeout
	}

	var raw [reportSize]byte
	n, err := link.Read(raw[:], remaining)
	if err != nil {
		return nil, ErrOther
	}
	if n == 0 {
		return nil, ErrTimeout
	}

	f := DecodeFrame(&raw)
	obs.Trace("<<", f)
	return f, nil
}
