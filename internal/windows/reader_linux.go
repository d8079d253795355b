//go:build linux

package windows

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// x11Reader enumerates windows through the EWMH client list. The X connection
// is established lazily on the first List call so that constructing a reader
// in a headless environment does not fail until enumeration is attempted.
type x11Reader struct {
	mu      sync.Mutex
	xu      *xgbutil.XUtil
	connErr error
}

func newReader() Reader {
	return &x11Reader{}
}

func (r *x11Reader) conn() (*xgbutil.XUtil, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.xu != nil {
		return r.xu, nil
	}
	if r.connErr != nil {
		return nil, r.connErr
	}
	xu, err := xgbutil.NewConn()
	if err != nil {
		// No display server means we can never enumerate windows in this
		// process; report it as a capability refusal so the caller degrades
		// to remote-only operation instead of retrying every poll.
		r.connErr = fmt.Errorf("connecting to X server: %v: %w", err, ErrCapabilityDenied)
		return nil, r.connErr
	}
	r.xu = xu
	return r.xu, nil
}

func (r *x11Reader) List() ([]WindowDescriptor, error) {
	xu, err := r.conn()
	if err != nil {
		return nil, err
	}

	clients, err := ewmh.ClientListGet(xu)
	if err != nil {
		return nil, fmt.Errorf("listing X clients: %w", err)
	}

	descs := make([]WindowDescriptor, 0, len(clients))
	for _, id := range clients {
		title, err := ewmh.WmNameGet(xu, id)
		if err != nil || title == "" {
			title, _ = icccm.WmNameGet(xu, id)
		}
		title = strings.TrimSpace(title)

		var owner string
		if wmClass, err := icccm.WmClassGet(xu, id); err == nil {
			owner = strings.TrimSpace(wmClass.Class)
		}

		if title == "" && owner == "" {
			continue
		}
		descs = append(descs, WindowDescriptor{Title: title, OwnerName: owner})
	}
	return descs, nil
}
