package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/teleop-relay/metrics"
)

const (
	// Per-read buffer of a relay loop.
	bufferSize = 64 * 1024

	// Messages up to this size are handed to the loop's inspector.
	inspectLimit = 16
)

// Inspector observes every complete message small enough to be a token.
// It runs before the message is flushed to the destination.
type Inspector func(messageType int, payload []byte)

// bridge is the frame relay loop for one source connection.
//
// gorilla/websocket does not expose raw frames, so a message is streamed
// read by read into a single outbound message. The message and its type
// survive, but the destination writer re-chunks it into frames of its own
// buffer size, so fragment boundaries do not. A message cut short at the
// source is never completed at the destination; the destination is closed
// instead.
type bridge struct {
	src     *Peer
	resolve func() *Peer
	label   string
	inspect Inspector
	log     *zap.Logger
	metrics *metrics.Collector
	buf     []byte
}

func newBridge(src *Peer, resolve func() *Peer, label string, log *zap.Logger, m *metrics.Collector) *bridge {
	return &bridge{
		src:     src,
		resolve: resolve,
		label:   label,
		log:     log,
		metrics: m,
		buf:     make([]byte, bufferSize),
	}
}

// run copies messages from src until it closes or fails. The destination is
// re-resolved for every message.
func (b *bridge) run() error {
	for {
		mt, r, err := b.src.conn.NextReader()
		if err != nil {
			return err
		}
		if err := b.relayMessage(mt, r); err != nil {
			return err
		}
	}
}

func (b *bridge) relayMessage(mt int, r io.Reader) error {
	dst := b.resolve()
	if dst == b.src || !dst.Open() {
		dst = nil
	}

	// The writer is opened on the first chunk so a source that fails before
	// sending anything leaves the destination untouched.
	var (
		w    *messageWriter
		head [inspectLimit]byte
		size int
	)

	for {
		n, rerr := r.Read(b.buf)
		if n > 0 {
			if size < inspectLimit {
				copy(head[size:], b.buf[:n])
			}
			size += n
			if w == nil && dst != nil {
				if w = b.open(dst, mt); w == nil {
					dst = nil
				}
			}
			if w != nil {
				if _, werr := w.Write(b.buf[:n]); werr != nil {
					b.abandon(w, dst, "write failed", werr)
					w, dst = nil, nil
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if w != nil {
				b.abandon(w, dst, "source lost mid-message", rerr)
			}
			b.metrics.FrameDropped(b.label)
			return rerr
		}
	}

	if w == nil && dst != nil {
		w = b.open(dst, mt)
	}

	if b.inspect != nil && size <= inspectLimit {
		b.inspect(mt, head[:size])
	}

	if w == nil {
		b.metrics.FrameDropped(b.label)
		b.log.Debug("message dropped", zap.String("label", b.label), zap.Int("bytes", size))
		return nil
	}

	if err := w.Close(); err != nil {
		b.log.Info("destination write failed", zap.String("label", b.label), zap.Error(err))
		dst.Close(websocket.CloseGoingAway, "write failed")
		b.metrics.FrameDropped(b.label)
		return nil
	}
	b.metrics.FrameForwarded(b.label, w.n)
	return nil
}

func (b *bridge) open(dst *Peer, mt int) *messageWriter {
	w, err := dst.nextWriter(mt)
	if err != nil {
		b.log.Debug("destination not writable", zap.String("label", b.label), zap.Error(err))
		return nil
	}
	return w
}

// abandon gives up on a destination mid-message. The peer is closed before
// its write lock is released so the unfinished message is never flushed as
// complete. Its own loop sees the close on its next read and clears its slot.
func (b *bridge) abandon(w *messageWriter, dst *Peer, reason string, err error) {
	b.log.Info("abandoning destination", zap.String("label", b.label), zap.String("reason", reason), zap.Error(err))
	dst.Close(websocket.CloseGoingAway, reason)
	w.discard()
}

// isNormalClose reports whether err ends a loop the expected way: a close
// frame, an abrupt peer disconnect, or a local close or cancellation.
func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.Canceled)
}

