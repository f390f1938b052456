package dahuaapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

const streamReadSize = 4096

// StreamEvents attaches to the device event manager and hands every chunk
// read to cb until the stream ends or ctx is cancelled.  The per-call
// timeout does not apply; only the optional idle timeout does.  A clean end
// of stream returns nil.
func (c *Live) StreamEvents(ctx context.Context, codes []string, channel int, cb EventCallback) error {
	path := fmt.Sprintf("/cgi-bin/eventManager.cgi?action=attach&codes=[%s]&heartbeat=5", strings.Join(codes, ","))
	url := c.base + path

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "building event stream request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return newTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}

	logging.Logger(ctx).Infof("attached to event stream on %s for %v", c.address, codes)

	var idle *time.Timer
	var idleFired int32
	if c.streamIdleTimeout > 0 {
		idle = time.AfterFunc(c.streamIdleTimeout, func() {
			atomic.StoreInt32(&idleFired, 1)
			cancel()
		})
		defer idle.Stop()
	}

	buf := make([]byte, streamReadSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Reset(c.streamIdleTimeout)
			}

			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			cb(chunk, channel)
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			if atomic.LoadInt32(&idleFired) == 1 {
				return newTransportError(url, errors.Wrap(context.DeadlineExceeded, "event stream idle"))
			}
			return newTransportError(url, err)
		}
	}
}

// PostAudio uploads an already encoded clip to the device speaker.  The
// encoding is the device audio type, eg. AAC or G.711A.
func (c *Live) PostAudio(ctx context.Context, channel int, data []byte, encoding string) error {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	path := fmt.Sprintf("/cgi-bin/audio.cgi?action=postAudio&httptype=singlepart&channel=%d", channel)
	if _, err := c.do(ctx, http.MethodPost, path, data, "Audio/"+encoding); err != nil {
		return errors.Wrap(err, "posting audio")
	}

	return nil
}
