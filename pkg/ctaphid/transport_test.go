package ctaphid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveSeconds() time.Duration {
	return 5 * time.Second
}

func TestSendReceive_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 57, 58, 59, 116, 200, MaxPayload}

	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i % 251)
		}

		link := &mockLink{}
		cid := ChannelID(0x01020304)

		require.NoError(t, SendCommand(link, nil, cid, CommandPing, payload))

		// Echo every written frame straight back as the response.
		for _, w := range link.writes {
			var body [64]byte
			copy(body[:], w[1:])
			link.reads = append(link.reads, body)
		}

		cmd, data, err := ReceiveCommand(link, nil, cid, fiveSeconds())
		require.NoError(t, err)
		assert.Equal(t, CommandPing, cmd)
		assert.Equal(t, payload, data)
	}
}

func TestSendCommand_SegmentationBoundary(t *testing.T) {
	cases := []struct {
		size   int
		frames int
	}{
		{0, 1},
		{57, 1},
		{58, 2},
		{116, 2},
		{117, 3},
		{200, 4},
		{MaxPayload, 129},
	}

	for _, tc := range cases {
		link := &mockLink{}
		payload := make([]byte, tc.size)
		require.NoError(t, SendCommand(link, nil, BroadcastCID, CommandPing, payload))
		assert.Len(t, link.writes, tc.frames, "payload size %d", tc.size)

		frames := link.writtenFrames()
		for i, f := range frames[1:] {
			assert.Equal(t, byte(i), f.Seq())
		}
	}
}

func TestSendCommand_LengthCeiling(t *testing.T) {
	link := &mockLink{}
	err := SendCommand(link, nil, BroadcastCID, CommandPing, make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrInvalidLength)
	assert.Empty(t, link.writes)
}

func TestReceiveCommand_LengthCeiling(t *testing.T) {
	link := &mockLink{}
	link.queue(&Frame{
		CID:  1,
		Type: initPacketBit | byte(CommandCBOR),
		BCNT: MaxPayload + 1,
		Data: make([]byte, InitCapacity),
	})

	_, _, err := ReceiveCommand(link, nil, 1, fiveSeconds())
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestReceiveCommand_Timeout(t *testing.T) {
	link := &mockLink{}
	_, _, err := ReceiveCommand(link, nil, 1, 0)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestReceiveCommand_ChannelIsolation(t *testing.T) {
	link := &mockLink{}
	cid := ChannelID(0x11111111)
	other := ChannelID(0x22222222)

	// Foreign init frame interleaved before our message starts.
	link.queue(&Frame{CID: other, Type: initPacketBit | byte(CommandPing), BCNT: 1, Data: []byte{0xAA}})

	link.queue(&Frame{CID: cid, Type: initPacketBit | byte(CommandPing), BCNT: 70, Data: make([]byte, InitCapacity)})
	// Foreign frame interleaved between continuations.
	link.queue(&Frame{CID: other, Type: initPacketBit | byte(CommandPing), BCNT: 1, Data: []byte{0xBB}})
	link.queue(&Frame{CID: cid, Type: 0x00, Data: make([]byte, ContCapacity)})

	cmd, data, err := ReceiveCommand(link, nil, cid, fiveSeconds())
	require.NoError(t, err)
	assert.Equal(t, CommandPing, cmd)
	assert.Len(t, data, 70)
}

func TestReceiveCommand_MidMessageInitOnOurChannelIsInvalidSeq(t *testing.T) {
	link := &mockLink{}
	cid := ChannelID(1)

	link.queue(&Frame{CID: cid, Type: initPacketBit | byte(CommandPing), BCNT: 70, Data: make([]byte, InitCapacity)})
	link.queue(&Frame{CID: cid, Type: initPacketBit | byte(CommandPing), BCNT: 5, Data: make([]byte, InitCapacity)})

	_, _, err := ReceiveCommand(link, nil, cid, fiveSeconds())
	require.ErrorIs(t, err, ErrInvalidSeq)
}

func TestReceiveCommand_SeqMismatch(t *testing.T) {
	link := &mockLink{}
	cid := ChannelID(1)

	link.queue(&Frame{CID: cid, Type: initPacketBit | byte(CommandPing), BCNT: 120, Data: make([]byte, InitCapacity)})
	link.queue(&Frame{CID: cid, Type: 0x01, Data: make([]byte, ContCapacity)}) // should be seq 0

	_, _, err := ReceiveCommand(link, nil, cid, fiveSeconds())
	require.ErrorIs(t, err, ErrInvalidSeq)
}

func TestReceiveCommand_DeviceErrorFrame(t *testing.T) {
	link := &mockLink{}
	cid := ChannelID(1)

	link.queue(&Frame{
		CID:  cid,
		Type: initPacketBit | byte(CommandError),
		BCNT: 1,
		Data: []byte{byte(HIDErrInvalidChannel)},
	})

	_, _, err := ReceiveCommand(link, nil, cid, fiveSeconds())
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, HIDErrInvalidChannel, devErr.Code)
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestMultiFramePing_200Bytes(t *testing.T) {
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}

	link := &mockLink{}
	cid := ChannelID(42)
	require.NoError(t, SendCommand(link, nil, cid, CommandPing, payload))
	require.Len(t, link.writes, 4)

	frames := link.writtenFrames()
	assert.Len(t, frames[0].Data, InitCapacity)
	assert.Len(t, frames[1].Data, ContCapacity)
	assert.Len(t, frames[2].Data, ContCapacity)
	assert.Len(t, frames[3].Data, ContCapacity)
	assert.Equal(t, byte(0), frames[1].Seq())
	assert.Equal(t, byte(1), frames[2].Seq())
	assert.Equal(t, byte(2), frames[3].Seq())

	for _, w := range link.writes {
		var body [64]byte
		copy(body[:], w[1:])
		link.reads = append(link.reads, body)
	}

	_, data, err := ReceiveCommand(link, nil, cid, fiveSeconds())
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}
