package session

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/go-ctaphid/ctaphid/pkg/hidlink"
	"github.com/go-ctaphid/ctaphid/pkg/sessionopts"
)

// ErrNoDevices is returned by Select when device discovery produced no
// candidate paths to race.
var ErrNoDevices = errors.New("session: no FIDO devices found")

// Select opens and initializes the single device locator resolves, or every
// path in opts.Paths if set, racing their INIT handshakes and returning the
// Session of whichever responds first. Every other opened Session is
// closed. A device found through locator reports the vendor and product ID
// that discovery found. This generalizes the "first responder wins" pattern
// used to let a user pick among several plugged-in security keys by
// touching one, applied here to CTAPHID's own channel handshake rather than
// a higher-layer CTAP2 selection command.
func Select(ctx context.Context, locator hidlink.Locator, opts ...sessionopts.Option) (*Session, error) {
	oo := sessionopts.NewOptions(opts...)

	paths := oo.Paths
	var resolved *hidlink.DeviceInfo
	if paths == nil {
		if locator == nil {
			return nil, ErrNoDevices
		}
		info, err := locator.Resolve(ctx, oo.VendorID, oo.ProductID)
		if err != nil {
			return nil, err
		}
		paths = []string{info.Path}
		resolved = &info
	}

	if len(paths) == 0 {
		return nil, ErrNoDevices
	}

	if len(paths) == 1 {
		s, err := Open(paths[0], opts...)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			s.vendorID = resolved.VendorID
			s.productID = resolved.ProductID
		}
		if err := s.Init(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}

	sessions := make([]*Session, 0, len(paths))
	for _, p := range paths {
		s, err := Open(p, opts...)
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	if len(sessions) == 0 {
		return nil, ErrNoDevices
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan mo.Either[*Session, error], len(sessions))
	var wg sync.WaitGroup
	var once sync.Once

	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()

			err := s.Init()
			if raceCtx.Err() != nil {
				return
			}

			once.Do(func() {
				cancel()
				if err != nil {
					results <- mo.Right[*Session, error](err)
					return
				}
				results <- mo.Left[*Session, error](s)
			})
		}(s)
	}

	wg.Wait()
	close(results)

	winner, hasResult := <-results
	if !hasResult {
		return nil, ErrNoDevices
	}

	if err, isErr := winner.Right(); isErr {
		lo.ForEach(sessions, func(s *Session, _ int) { _ = s.Close() })
		return nil, err
	}

	selected := winner.MustLeft()
	lo.ForEach(sessions, func(s *Session, _ int) {
		if s != selected {
			_ = s.Close()
		}
	})
	return selected, nil
}
