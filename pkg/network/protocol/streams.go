package protocol

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"
)

// StreamKind is the first byte written on every stream.
type StreamKind byte

const (
	StreamKindHeaderAnnouncement StreamKind = 128
	StreamKindCellRequest        StreamKind = 200
	StreamKindRowRequest         StreamKind = 201
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindHeaderAnnouncement:
		return "header-announcement"
	case StreamKindCellRequest:
		return "cell-request"
	case StreamKindRowRequest:
		return "row-request"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// StreamHandler serves one inbound stream of a registered kind.
type StreamHandler interface {
	HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error
}

// Registry maps stream kinds to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[StreamKind]StreamHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[StreamKind]StreamHandler)}
}

func (r *Registry) RegisterHandler(kind StreamKind, handler StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

func (r *Registry) GetHandler(kind StreamKind) (StreamHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", kind)
	}
	return handler, nil
}
