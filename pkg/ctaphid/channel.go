package ctaphid

import (
	"crypto/subtle"
	"encoding/binary"
	"io"
	"time"
)

// InitResult is the outcome of a successful Init handshake.
type InitResult struct {
	CID          ChannelID
	Capabilities Capabilities
}

// Init runs the three-stage CTAPHID_INIT handshake on the broadcast
// channel: send an 8-byte nonce, then loop receiving single frames until
// one comes back on the broadcast channel, carrying CTAPHID_INIT, a
// 17-byte payload, and our own nonce echoed in the first 8 bytes. Any
// other frame observed in the meantime is discarded and the loop
// continues on the same deadline; Init never resends.
//
// nonceSource supplies the 8 challenge bytes. Production callers pass
// crypto/rand.Reader; tests pass a seeded source for reproducibility. The
// nonce only correlates our request with the device's response on a
// shared bus — it carries no cryptographic weight.
func Init(link HidLink, obs *Observer, timeout time.Duration, nonceSource io.Reader) (*InitResult, error) {
	nonce := make([]byte, initNonceSize)
	if _, err := io.ReadFull(nonceSource, nonce); err != nil {
		return nil, newTransportError(ErrOther, CommandInit, 0)
	}

	if err := SendCommand(link, obs, BroadcastCID, CommandInit, nonce); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := receiveFrame(link, obs, deadline)
		if err != nil {
			return nil, err
		}

		if !accept(f, nonce) {
			continue
		}

		cid := ChannelID(binary.BigEndian.Uint32(f.Data[8:12]))
		caps := capabilitiesFromByte(f.Data[16])

		return &InitResult{CID: cid, Capabilities: caps}, nil
	}
}

func accept(f *Frame, nonce []byte) bool {
	if f.CID != BroadcastCID || !f.IsInit() || f.Command() != CommandInit {
		return false
	}
	if f.BCNT != initResponseSize {
		return false
	}
	return subtle.ConstantTimeCompare(f.Data[:initNonceSize], nonce) == 1
}
