// Package mocks holds testify mocks of the QUIC connection and stream
// interfaces and of stream handlers.
package mocks

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/mock"
)

// Stream mocks quic.Stream.
type Stream struct {
	mock.Mock
}

func NewMockQuicStream() *Stream {
	return &Stream{}
}

func (m *Stream) Read(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *Stream) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *Stream) Close() error {
	return m.Called().Error(0)
}

func (m *Stream) CancelRead(code quic.StreamErrorCode) {
	m.Called(code)
}

func (m *Stream) CancelWrite(code quic.StreamErrorCode) {
	m.Called(code)
}

func (m *Stream) SetReadDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *Stream) SetWriteDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *Stream) SetDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *Stream) StreamID() quic.StreamID {
	return m.Called().Get(0).(quic.StreamID)
}

// Context defaults to context.Background when no value is configured.
func (m *Stream) Context() context.Context {
	if ctx, ok := m.Called().Get(0).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// ExpectFrameRead queues the two reads of one length prefixed frame.
func (m *Stream) ExpectFrameRead(content []byte) {
	size := binary.LittleEndian.AppendUint32(nil, uint32(len(content)))
	m.On("Read", mock.Anything).Run(fill(size)).Return(len(size), nil).Once()
	if len(content) > 0 {
		m.On("Read", mock.Anything).Run(fill(content)).Return(len(content), nil).Once()
	}
}

// ExpectFrameWrite queues the two writes of one length prefixed frame.
func (m *Stream) ExpectFrameWrite(content []byte) {
	size := binary.LittleEndian.AppendUint32(nil, uint32(len(content)))
	m.On("Write", size).Return(len(size), nil).Once()
	m.On("Write", content).Return(len(content), nil).Once()
}

// fill copies v into the buffer passed to Read.
func fill(v []byte) func(args mock.Arguments) {
	return func(args mock.Arguments) {
		copy(args.Get(0).([]byte), v)
	}
}

// Connection mocks quic.Connection.
type Connection struct {
	mock.Mock
}

func NewMockQuicConnection() *Connection {
	return &Connection{}
}

func (m *Connection) AcceptStream(ctx context.Context) (quic.Stream, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(quic.Stream)
	return s, args.Error(1)
}

func (m *Connection) AcceptUniStream(ctx context.Context) (quic.ReceiveStream, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(quic.ReceiveStream)
	return s, args.Error(1)
}

func (m *Connection) OpenStream() (quic.Stream, error) {
	args := m.Called()
	s, _ := args.Get(0).(quic.Stream)
	return s, args.Error(1)
}

func (m *Connection) OpenStreamSync(ctx context.Context) (quic.Stream, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(quic.Stream)
	return s, args.Error(1)
}

func (m *Connection) OpenUniStream() (quic.SendStream, error) {
	args := m.Called()
	s, _ := args.Get(0).(quic.SendStream)
	return s, args.Error(1)
}

func (m *Connection) OpenUniStreamSync(ctx context.Context) (quic.SendStream, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(quic.SendStream)
	return s, args.Error(1)
}

func (m *Connection) LocalAddr() net.Addr {
	addr, _ := m.Called().Get(0).(net.Addr)
	return addr
}

func (m *Connection) RemoteAddr() net.Addr {
	addr, _ := m.Called().Get(0).(net.Addr)
	return addr
}

func (m *Connection) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	return m.Called(code, reason).Error(0)
}

func (m *Connection) ConnectionState() quic.ConnectionState {
	return m.Called().Get(0).(quic.ConnectionState)
}

func (m *Connection) Context() context.Context {
	if ctx, ok := m.Called().Get(0).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func (m *Connection) SendDatagram(b []byte) error {
	return m.Called(b).Error(0)
}

func (m *Connection) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// StreamHandler mocks protocol.StreamHandler.
type StreamHandler struct {
	mock.Mock
}

func NewMockStreamHandler() *StreamHandler {
	return &StreamHandler{}
}

func (m *StreamHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	return m.Called(ctx, stream, peerKey).Error(0)
}
