//go:build windows

package hidlink

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/Microsoft/go-winio"
)

// NamedPipePath is the well-known pipe a host-side HID relay listens on.
// It stands in for direct hidapi access on Windows builds that don't (or
// can't) link the cgo backend, the same role the teacher's hidproxy bridge
// plays.
const NamedPipePath = `\\.\pipe\ctaphid`

type pipeCommand byte

const (
	pipeCmdWrite     pipeCommand = 1
	pipeCmdRead      pipeCommand = 2
	pipeCmdEnumerate pipeCommand = 3
	pipeCmdOpen      pipeCommand = 4
)

// NamedPipeLink is a Link that forwards HID report I/O across a named pipe
// to a relay process holding the real device handle.
type NamedPipeLink struct {
	conn io.ReadWriteCloser
}

// OpenPath connects to the named-pipe relay and asks it to open the HID
// device at path, giving this build the same entry point as the hidapi
// backend's OpenPath.
func OpenPath(path string) (*NamedPipeLink, error) {
	return DialNamedPipe(context.Background(), path)
}

// DialNamedPipe connects to the relay and asks it to open path.
func DialNamedPipe(ctx context.Context, path string) (*NamedPipeLink, error) {
	conn, err := winio.DialPipeContext(ctx, NamedPipePath)
	if err != nil {
		return nil, err
	}

	l := &NamedPipeLink{conn: conn}
	if err := l.send(pipeCmdOpen, []byte(path)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := l.recv(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return l, nil
}

func (l *NamedPipeLink) Write(report []byte) (int, error) {
	if err := l.send(pipeCmdWrite, report); err != nil {
		return 0, err
	}
	if _, err := l.recv(); err != nil {
		return 0, err
	}
	return len(report), nil
}

func (l *NamedPipeLink) Read(report []byte, timeout time.Duration) (int, error) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(timeout.Milliseconds()))
	if err := l.send(pipeCmdRead, payload); err != nil {
		return 0, err
	}

	data, err := l.recv()
	if err != nil {
		return 0, err
	}
	// An empty relay response means the underlying device read timed out.
	return copy(report, data), nil
}

func (l *NamedPipeLink) Close() error {
	return l.conn.Close()
}

func (l *NamedPipeLink) send(cmd pipeCommand, data []byte) error {
	header := make([]byte, 3)
	header[0] = byte(cmd)
	binary.BigEndian.PutUint16(header[1:], uint16(len(data)))
	if _, err := l.conn.Write(header); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := l.conn.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (l *NamedPipeLink) recv() ([]byte, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(l.conn, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(header[1:])
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(l.conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// NamedPipeLocator resolves devices through the relay's enumeration
// command instead of a local hidapi call.
func NamedPipeLocator(ctx context.Context) *RetryLocator {
	return &RetryLocator{Enumerate: func(vid, pid uint16) ([]DeviceInfo, error) {
		conn, err := winio.DialPipeContext(ctx, NamedPipePath)
		if err != nil {
			return nil, err
		}
		defer func() { _ = conn.Close() }()

		l := &NamedPipeLink{conn: conn}
		payload := make([]byte, 4)
		binary.BigEndian.PutUint16(payload[0:2], vid)
		binary.BigEndian.PutUint16(payload[2:4], pid)
		if err := l.send(pipeCmdEnumerate, payload); err != nil {
			return nil, err
		}

		data, err := l.recv()
		if err != nil {
			return nil, err
		}
		return decodeDeviceInfos(data), nil
	}}
}

// DefaultLocator returns this platform's natural Locator: the named-pipe
// relay, since direct hidapi cgo linkage is not assumed on Windows builds.
func DefaultLocator(ctx context.Context) *RetryLocator {
	return NamedPipeLocator(ctx)
}

// decodeDeviceInfos parses a flat, fixed-width encoding of DeviceInfo
// records the relay emits: path length (2 bytes BE) + path bytes, then
// vid/pid/usagePage/usage (2 bytes BE each), repeated.
func decodeDeviceInfos(data []byte) []DeviceInfo {
	var infos []DeviceInfo
	for len(data) >= 2 {
		pathLen := int(binary.BigEndian.Uint16(data[:2]))
		data = data[2:]
		if len(data) < pathLen+8 {
			break
		}
		info := DeviceInfo{Path: string(data[:pathLen])}
		data = data[pathLen:]
		info.VendorID = binary.BigEndian.Uint16(data[0:2])
		info.ProductID = binary.BigEndian.Uint16(data[2:4])
		info.UsagePage = binary.BigEndian.Uint16(data[4:6])
		info.Usage = binary.BigEndian.Uint16(data[6:8])
		data = data[8:]
		infos = append(infos, info)
	}
	return infos
}
