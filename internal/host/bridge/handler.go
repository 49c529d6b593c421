package bridge

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/host"
)

// Handler serves one bridge client at a time. Each connection gets a fresh
// transport from newTransport; a single goroutine applies the client's
// commands to it and forwards everything it polls.
type Handler struct {
	newTransport func() host.Transport
	pollInterval time.Duration
	logger       log.Log
	upgrader     websocket.Upgrader
	busy         int32
}

func NewHandler(newTransport func() host.Transport, pollInterval time.Duration, logger log.Log) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	if pollInterval <= 0 {
		pollInterval = time.Millisecond
	}
	return &Handler{
		newTransport: newTransport,
		pollInterval: pollInterval,
		logger:       logger.Named("bridge_handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !atomic.CompareAndSwapInt32(&h.busy, 0, 1) {
		http.Error(w, "host already in use", http.StatusConflict)
		return
	}
	defer atomic.StoreInt32(&h.busy, 0)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	h.logger.Info("bridge client connected", log.String("remote", remote))
	h.serve(conn)
	h.logger.Info("bridge client disconnected", log.String("remote", remote))
}

func (h *Handler) serve(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := h.newTransport()
	defer func() {
		if err := t.Close(); err != nil {
			h.logger.Warn("transport close failed", log.Error(err))
		}
	}()

	frames := make(chan frame)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := decodeFrame(data)
			if err != nil {
				h.logger.Warn("bad frame from client", log.Error(err))
				continue
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	opened := false
	for {
		select {
		case f, ok := <-frames:
			if !ok || f.Type == frameClose {
				return
			}
			var err error
			if !opened && f.Type != frameOpen {
				err = errors.Wrapf(host.ErrNotOpen, "%s before open", f.Type)
			} else {
				err = h.apply(ctx, t, f)
			}
			if err != nil {
				h.logger.Warn("command failed", log.String("type", f.Type), log.String("frame_id", f.ID), log.Error(err))
				if !opened {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
						time.Now().Add(time.Second))
					return
				}
				continue
			}
			if f.Type == frameOpen {
				opened = true
			}
		case <-ticker.C:
			if !opened {
				continue
			}
			if err := h.forward(ctx, t, conn); err != nil {
				h.logger.Warn("forwarding stopped", log.Error(err))
				return
			}
		}
	}
}

// forward writes every message the transport has pending.
func (h *Handler) forward(ctx context.Context, t host.Transport, conn *websocket.Conn) error {
	for {
		msg, err := t.Poll(ctx)
		if err != nil {
			if errors.Is(err, host.ErrMalformedMessage) {
				continue
			}
			return err
		}
		if msg == nil {
			return nil
		}
		data, err := encodeFrame(messageFrame(msg))
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return errors.Wrap(err, "failed to write message frame")
		}
	}
}

func (h *Handler) apply(ctx context.Context, t host.Transport, f frame) error {
	switch f.Type {
	case frameOpen:
		return t.Open(ctx, f.Name)
	case frameRegisterEvent:
		return t.RegisterEvent(f.Event, f.Name)
	case frameBindInput:
		return t.BindInput(f.Trigger, f.Event)
	case frameSetInputEnabled:
		return t.SetInputEnabled(f.Enabled)
	case frameRegisterDataField:
		return t.RegisterDataField(f.Definition, f.Name, f.Unit, f.DataType)
	case frameRequestData:
		cadence, err := host.ParseCadence(f.Cadence)
		if err != nil {
			return err
		}
		return t.RequestData(f.Request, f.Definition, f.Object, cadence)
	case frameCreateObject:
		if f.Pose == nil {
			return errors.Wrap(host.ErrMalformedMessage, "create_object without pose")
		}
		return t.CreateObject(f.Name, *f.Pose, f.Request)
	case frameSetData:
		if err := f.verify(); err != nil {
			return err
		}
		return t.SetData(f.Definition, f.Object, f.Raw)
	default:
		return errors.Wrapf(host.ErrMalformedMessage, "unknown command %q", f.Type)
	}
}
