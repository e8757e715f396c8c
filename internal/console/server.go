package console

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/firmwarefinder/firmstore"
	"github.com/jackc/pgproto3/v2"
)

// Server speaks the PostgreSQL simple-query protocol so operators can
// inspect and repair the catalog with psql. Only the simple query flow is
// implemented; no authentication, no TLS, so bind it to localhost.
type Server struct {
	listener net.Listener
	executor *Executor
	logger   firmstore.Logger
}

// NewServer creates a console server over the shard set
func NewServer(shards *firmstore.ShardSet, catalog *firmstore.Catalog, logger firmstore.Logger) *Server {
	if logger == nil {
		logger = &firmstore.NoOpLogger{}
	}
	return &Server{
		executor: NewExecutor(shards, catalog),
		logger:   logger,
	}
}

// Listen binds the server to addr ("127.0.0.1:5432", or ":0" for tests)
func (s *Server) Listen(addr string) error {
	var err error
	s.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.Info("console listening", map[string]interface{}{"addr": s.listener.Addr().String()})
	return nil
}

// Addr returns the bound address; valid after Listen
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until the listener is closed
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go s.handleConnection(ctx, conn)
	}
}

// Close stops accepting connections
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := s.handleSSLRequest(conn); err != nil {
		s.logger.Warn("console startup failed", map[string]interface{}{"error": err.Error()})
		return
	}

	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)

	for {
		msg, err := backend.Receive()
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("console receive failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			s.handleQuery(ctx, conn, m.String)
		case *pgproto3.Terminate:
			return
		default:
			s.logger.Debug("unhandled console message", map[string]interface{}{"type": fmt.Sprintf("%T", msg)})
		}
	}
}

// handleSSLRequest reads the first startup message and declines SSL
// negotiation (magic 80877103) before the real startup arrives.
func (s *Server) handleSSLRequest(conn net.Conn) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	msgLen := int(binary.BigEndian.Uint32(header))
	msg := make([]byte, msgLen-4)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	if msgLen == 8 && binary.BigEndian.Uint32(msg) == 80877103 {
		if _, err := conn.Write([]byte{'N'}); err != nil {
			return fmt.Errorf("write SSL response: %w", err)
		}
		// Client sends the regular startup next
		return s.handleSSLRequest(conn)
	}

	return s.processStartupMessage(conn, msg)
}

func (s *Server) processStartupMessage(conn net.Conn, msg []byte) error {
	if len(msg) < 4 {
		return fmt.Errorf("startup message too short")
	}

	buf := make([]byte, 0, 256)

	// AuthenticationOk
	buf = append(buf, 'R')
	buf = appendInt32(buf, 8)
	buf = appendInt32(buf, 0)

	buf = appendParameterStatus(buf, "server_version", "15.0 (firmstore)")
	buf = appendParameterStatus(buf, "client_encoding", "UTF8")
	buf = appendParameterStatus(buf, "server_encoding", "UTF8")
	buf = appendParameterStatus(buf, "DateStyle", "ISO, MDY")
	buf = appendParameterStatus(buf, "TimeZone", "UTC")
	buf = appendParameterStatus(buf, "integer_datetimes", "on")

	// BackendKeyData
	buf = append(buf, 'K')
	buf = appendInt32(buf, 12)
	buf = appendInt32(buf, 1)
	buf = appendInt32(buf, 1)

	// ReadyForQuery (idle)
	buf = append(buf, 'Z')
	buf = appendInt32(buf, 5)
	buf = append(buf, 'I')

	_, err := conn.Write(buf)
	return err
}

func (s *Server) handleQuery(ctx context.Context, conn net.Conn, query string) {
	buf := make([]byte, 0, 512)

	switch {
	case query == "SELECT version()" || query == "SELECT version();":
		buf = appendRowDescription(buf, []string{"version"})
		buf = appendDataRow(buf, []string{"firmstore console - PostgreSQL compatible"})
		buf = appendCommandComplete(buf, "SELECT 1")

	default:
		result, err := s.executor.Execute(ctx, query)
		if err != nil {
			buf = appendError(buf, err.Error())
		} else {
			if len(result.Columns) > 0 {
				buf = appendRowDescription(buf, result.Columns)
				for _, row := range result.Rows {
					buf = appendDataRow(buf, row)
				}
			}
			buf = appendCommandComplete(buf, result.Message)
		}
	}

	buf = append(buf, 'Z')
	buf = appendInt32(buf, 5)
	buf = append(buf, 'I')

	if _, err := conn.Write(buf); err != nil {
		s.logger.Warn("console write failed", map[string]interface{}{"error": err.Error()})
	}
}

// Wire message builders. Everything is sent as text (OID 25).

const textOID = 25

func appendInt32(buf []byte, v int32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendInt16(buf []byte, v int16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendParameterStatus(buf []byte, name, value string) []byte {
	msgLen := 4 + len(name) + 1 + len(value) + 1
	buf = append(buf, 'S')
	buf = appendInt32(buf, int32(msgLen))
	buf = appendString(buf, name)
	buf = appendString(buf, value)
	return buf
}

func appendRowDescription(buf []byte, names []string) []byte {
	msgLen := 4 + 2
	for _, name := range names {
		msgLen += len(name) + 1 + 18
	}

	buf = append(buf, 'T')
	buf = appendInt32(buf, int32(msgLen))
	buf = appendInt16(buf, int16(len(names)))

	for _, name := range names {
		buf = appendString(buf, name)
		buf = appendInt32(buf, 0)       // table OID
		buf = appendInt16(buf, 0)       // column attr number
		buf = appendInt32(buf, textOID) // data type OID
		buf = appendInt16(buf, -1)      // data type size
		buf = appendInt32(buf, -1)      // type modifier
		buf = appendInt16(buf, 0)       // format code (text)
	}
	return buf
}

func appendDataRow(buf []byte, values []string) []byte {
	msgLen := 4 + 2
	for _, v := range values {
		msgLen += 4 + len(v)
	}

	buf = append(buf, 'D')
	buf = appendInt32(buf, int32(msgLen))
	buf = appendInt16(buf, int16(len(values)))

	for _, v := range values {
		buf = appendInt32(buf, int32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

func appendCommandComplete(buf []byte, tag string) []byte {
	msgLen := 4 + len(tag) + 1
	buf = append(buf, 'C')
	buf = appendInt32(buf, int32(msgLen))
	buf = appendString(buf, tag)
	return buf
}

func appendError(buf []byte, message string) []byte {
	severity := "ERROR"
	msgLen := 4 + 1 + len(severity) + 1 + 1 + len(message) + 1 + 1
	buf = append(buf, 'E')
	buf = appendInt32(buf, int32(msgLen))
	buf = append(buf, 'S')
	buf = appendString(buf, severity)
	buf = append(buf, 'M')
	buf = appendString(buf, message)
	buf = append(buf, 0)
	return buf
}
