package handlers

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/pkg/log"
)

// Announcement is a header received from a peer.
type Announcement struct {
	Header block.Header
	From   ed25519.PublicKey
}

// HeaderAnnouncementHandler receives CE-128 header announcements and
// forwards them on a channel.
//
//	--> Header
//	--> FIN
type HeaderAnnouncementHandler struct {
	out chan<- Announcement
}

func NewHeaderAnnouncementHandler(out chan<- Announcement) *HeaderAnnouncementHandler {
	return &HeaderAnnouncementHandler{out: out}
}

func (h *HeaderAnnouncementHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	defer stream.Close()

	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return fmt.Errorf("failed to read header announcement: %w", err)
	}
	header, err := block.DecodeHeader(msg.Content)
	if err != nil {
		return err
	}
	log.Network.Debug().Uint32("number", header.Number).Msg("header announced")

	select {
	case h.out <- Announcement{Header: header, From: peerKey}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HeaderAnnouncer sends CE-128 announcements.
type HeaderAnnouncer struct{}

func NewHeaderAnnouncer() *HeaderAnnouncer {
	return &HeaderAnnouncer{}
}

func (a *HeaderAnnouncer) Announce(ctx context.Context, stream quic.Stream, header block.Header) error {
	b, err := header.Bytes()
	if err != nil {
		return err
	}
	if err := WriteMessageWithContext(ctx, stream, b); err != nil {
		return fmt.Errorf("failed to send header: %w", err)
	}
	return stream.Close()
}
