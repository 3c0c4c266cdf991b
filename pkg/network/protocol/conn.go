package protocol

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/katedas/pkg/log"
)

// ErrAcceptFailed means the connection can no longer accept streams.
var ErrAcceptFailed = errors.New("failed to accept stream")

// StreamConn is the transport connection a ProtocolConn runs on.
type StreamConn interface {
	OpenStream(ctx context.Context) (quic.Stream, error)
	AcceptStream() (quic.Stream, error)
	PeerKey() ed25519.PublicKey
	Context() context.Context
	Close() error
}

// ProtocolConn prefixes outbound streams with their kind and dispatches
// inbound streams to the registered handlers.
type ProtocolConn struct {
	conn     StreamConn
	registry *Registry
}

func NewProtocolConn(conn StreamConn, registry *Registry) *ProtocolConn {
	return &ProtocolConn{conn: conn, registry: registry}
}

func (pc *ProtocolConn) Conn() StreamConn { return pc.conn }

// OpenStream opens a stream and writes its kind byte.
func (pc *ProtocolConn) OpenStream(ctx context.Context, kind StreamKind) (quic.Stream, error) {
	stream, err := pc.conn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeWithContext(ctx, stream, []byte{byte(kind)}); err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	return stream, nil
}

// AcceptStream accepts one inbound stream and hands it to its handler in a
// new goroutine.
func (pc *ProtocolConn) AcceptStream() error {
	stream, err := pc.conn.AcceptStream()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcceptFailed, err)
	}

	var kind [1]byte
	if _, err := io.ReadFull(stream, kind[:]); err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		return fmt.Errorf("failed to read stream kind: %w", err)
	}
	handler, err := pc.registry.GetHandler(StreamKind(kind[0]))
	if err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		return err
	}

	go func() {
		if err := handler.HandleStream(pc.conn.Context(), stream, pc.conn.PeerKey()); err != nil {
			log.Network.Debug().Err(err).Stringer("kind", StreamKind(kind[0])).Msg("stream handler failed")
		}
	}()
	return nil
}

func (pc *ProtocolConn) Close() error {
	return pc.conn.Close()
}

func writeWithContext(ctx context.Context, stream quic.Stream, p []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := stream.Write(p)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
