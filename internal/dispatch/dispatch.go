// Package dispatch wires the Coordinator's wire protocol to
// internal/coordinator.Service: one goroutine per TCP connection, one
// wrap()-style span/log/correlation envelope per request, following the same
// shape as the teacher's HTTP handler wrapper (Coordinator §6).
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/hyperlockd/internal/coordinator"
	"pkt.systems/hyperlockd/internal/correlation"
	"pkt.systems/hyperlockd/internal/svcfields"
	"pkt.systems/hyperlockd/internal/uuidv7"
	"pkt.systems/hyperlockd/internal/wire"
	"pkt.systems/pslog"
)

// Config configures a Server.
type Config struct {
	Service        *coordinator.Service
	Logger         pslog.Logger
	TracingEnabled bool
}

// Server accepts TCP connections and dispatches framed requests to a
// coordinator.Service.
type Server struct {
	svc            *coordinator.Service
	logger         pslog.Logger
	tracer         trace.Tracer
	tracingEnabled bool

	wg sync.WaitGroup
}

// New constructs a Server.
func New(cfg Config) *Server {
	return &Server{
		svc:            cfg.Service,
		logger:         svcfields.WithSubsystem(cfg.Logger, "dispatch"),
		tracer:         otel.Tracer("pkt.systems/hyperlockd/dispatch"),
		tracingEnabled: cfg.TracingEnabled,
	}
}

// Serve accepts connections on ln until ctx is done or ln is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log := s.logger.With("remote_addr", remote)
	log.Debug("connection accepted")
	defer log.Debug("connection closed")

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := wire.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("frame read failed", "error", err)
			}
			return
		}
		req, err := wire.DecodeRequest(payload)
		if err != nil {
			log.Warn("malformed request", "error", err)
			return
		}

		resp := s.dispatch(ctx, remote, req)
		out := wire.EncodeResponse(req.Op, resp)
		if err := wire.WriteFrame(writer, out); err != nil {
			log.Debug("frame write failed", "error", err)
			return
		}
	}
}

// dispatch runs one request through a span/log/correlation envelope
// (mirroring the teacher's httpapi wrap()) and delegates to the matching
// coordinator.Service method.
func (s *Server) dispatch(ctx context.Context, remote string, req wire.Request) wire.Response {
	start := time.Now()
	sys := "dispatch." + req.Op.String()
	ctx = correlation.Ensure(ctx)
	ctx = correlation.Set(ctx, uuidv7.NewString())

	var span trace.Span
	if s.tracingEnabled {
		ctx, span = s.tracer.Start(ctx, "hyperlockd.op."+req.Op.String(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("hyperlockd.op", req.Op.String()),
				attribute.Int64("hyperlockd.session_id", int64(req.SessionID)),
			),
		)
		defer span.End()
	}

	log := svcfields.WithSubsystem(s.logger, sys).With(
		"req_id", req.RequestID,
		"remote_addr", remote,
		"correlation_id", correlation.ID(ctx),
	)
	log.Trace("request.start")

	resp := s.invoke(ctx, req)
	resp.RequestID = req.RequestID

	elapsed := time.Since(start)
	if resp.ErrorCode != 0 {
		if span != nil {
			span.SetStatus(codes.Error, resp.Detail)
		}
		log.Debug("request.error", "elapsed", elapsed, "error_code", resp.ErrorCode, "detail", resp.Detail)
	} else {
		log.Trace("request.complete", "elapsed", elapsed)
	}
	return resp
}

func failureCode(err error) (uint16, string) {
	if err == nil {
		return 0, ""
	}
	var f coordinator.Failure
	if errors.As(err, &f) {
		return uint16(f.Code), f.Detail
	}
	return uint16(coordinator.ErrIOError), err.Error()
}
