package ctaphid

import "encoding/binary"

// EncodeFrame packs f into a 65-byte HID report: a leading report-ID byte
// (always 0x00, unnumbered reports) followed by the 64-byte frame. cid is
// serialized big-endian. Unused trailing payload bytes are padded with
// 0xEE.
func EncodeFrame(f *Frame) [1 + reportSize]byte {
	var buf [1 + reportSize]byte

	binary.BigEndian.PutUint32(buf[1:5], uint32(f.CID))
	buf[5] = f.Type

	var n int
	if f.IsInit() {
		binary.BigEndian.PutUint16(buf[6:8], f.BCNT)
		n = copy(buf[8:], f.Data)
		fill(buf[8+n:], fillByte)
	} else {
		n = copy(buf[6:], f.Data)
		fill(buf[6+n:], fillByte)
	}

	return buf
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
