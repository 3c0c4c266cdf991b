package handlers

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/katedas/internal/sampling"
)

// CellServer answers encoded cell requests.
type CellServer interface {
	HandleCellRequest(ctx context.Context, msg []byte) ([]byte, error)
}

// CellRequestHandler serves CE-200 cell requests.
//
//	--> CellRequest
//	--> FIN
//	<-- CellResponse
//	<-- FIN
type CellRequestHandler struct {
	server CellServer
}

func NewCellRequestHandler(server CellServer) *CellRequestHandler {
	return &CellRequestHandler{server: server}
}

func (h *CellRequestHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		stream.CancelRead(0)
		return fmt.Errorf("failed to read cell request: %w", err)
	}
	resp, err := h.server.HandleCellRequest(ctx, msg.Content)
	if err != nil {
		return fmt.Errorf("failed to answer cell request: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, resp); err != nil {
		return fmt.Errorf("failed to write cell response: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// CellRequester sends CE-200 requests.
type CellRequester struct{}

func NewCellRequester() *CellRequester {
	return &CellRequester{}
}

// RequestCells writes req on stream and reads the peer's response.
func (r *CellRequester) RequestCells(ctx context.Context, stream quic.Stream, req sampling.CellRequest) (sampling.CellResponse, error) {
	b, err := sampling.EncodeRequest(req)
	if err != nil {
		return sampling.CellResponse{}, err
	}
	if err := WriteMessageWithContext(ctx, stream, b); err != nil {
		return sampling.CellResponse{}, fmt.Errorf("failed to send cell request: %w", err)
	}
	if err := stream.Close(); err != nil {
		return sampling.CellResponse{}, fmt.Errorf("failed to close stream: %w", err)
	}

	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return sampling.CellResponse{}, fmt.Errorf("failed to read cell response: %w", err)
	}
	return sampling.DecodeResponse(msg.Content)
}
