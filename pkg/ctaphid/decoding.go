package ctaphid

import "encoding/binary"

// DecodeFrame reads a 64-byte HID report body (no leading report-ID byte;
// that is stripped at the HidLink boundary) into a Frame. The returned
// Data slice always holds the frame's full capacity (57 or 59 bytes); it
// is the caller's job to know, from the declared message length, how many
// of those bytes are real payload versus sender-side 0xEE padding.
func DecodeFrame(raw *[reportSize]byte) *Frame {
	f := &Frame{
		CID:  ChannelID(binary.BigEndian.Uint32(raw[0:4])),
		Type: raw[4],
	}

	if f.IsInit() {
		f.BCNT = payloadLen(raw[5], raw[6])
		f.Data = append([]byte(nil), raw[7:reportSize]...)
	} else {
		f.Data = append([]byte(nil), raw[5:reportSize]...)
	}

	return f
}
