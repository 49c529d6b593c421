// Package bridge carries the host protocol over a websocket. Client is a
// host.Transport for a simulator reachable through a bridge process, and
// Handler is that process's side: it exposes any host.Transport to one
// websocket client at a time.
package bridge

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/host"
)

var _ host.Transport = (*Client)(nil)

type Config struct {
	URL          string        `yaml:"url" env:"URL"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// MaxMessageSize limits inbound frames, in bytes.
	MaxMessageSize int64 `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	// QueueSize bounds the messages read ahead of Poll.
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

func DefaultConfig() Config {
	return Config{
		URL:            "ws://127.0.0.1:8765/host",
		DialTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		MaxMessageSize: 64 << 10,
		QueueSize:      256,
	}
}

type inbound struct {
	msg host.Message
	err error
}

// Client is a websocket host.Transport. Commands are written synchronously;
// a reader goroutine queues host messages for Poll, which never blocks.
type Client struct {
	cfg    Config
	logger log.Log

	conn    *websocket.Conn
	writeMu sync.Mutex
	opened  int32
	closed  int32

	inbox chan inbound
	stop  chan struct{}
	done  chan struct{}
}

func NewClient(cfg Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Client{
		cfg:    cfg,
		logger: logger.Named("bridge"),
		inbox:  make(chan inbound, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *Client) Open(ctx context.Context, sessionName string) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return host.ErrClosed
	}
	if !atomic.CompareAndSwapInt32(&c.opened, 0, 1) {
		return host.ErrAlreadyOpen
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.DialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		atomic.StoreInt32(&c.opened, 0)
		return errors.Wrapf(err, "failed to dial %s", c.cfg.URL)
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.conn = conn

	f := newFrame(frameOpen)
	f.Name = sessionName
	if err := c.write(f); err != nil {
		_ = conn.Close()
		atomic.StoreInt32(&c.opened, 0)
		return err
	}

	go c.readLoop()
	c.logger.Info("bridge connected", log.String("url", c.cfg.URL), log.String("session", sessionName))
	return nil
}

func (c *Client) RegisterEvent(id host.EventID, name string) error {
	f := newFrame(frameRegisterEvent)
	f.Event, f.Name = id, name
	return c.send(f)
}

func (c *Client) BindInput(trigger string, id host.EventID) error {
	f := newFrame(frameBindInput)
	f.Trigger, f.Event = trigger, id
	return c.send(f)
}

func (c *Client) SetInputEnabled(enabled bool) error {
	f := newFrame(frameSetInputEnabled)
	f.Enabled = enabled
	return c.send(f)
}

func (c *Client) RegisterDataField(def host.DefinitionID, name, unit string, typ host.DataType) error {
	f := newFrame(frameRegisterDataField)
	f.Definition, f.Name, f.Unit, f.DataType = def, name, unit, typ
	return c.send(f)
}

func (c *Client) RequestData(req host.RequestID, def host.DefinitionID, object host.ObjectID, cadence host.Cadence) error {
	f := newFrame(frameRequestData)
	f.Request, f.Definition, f.Object, f.Cadence = req, def, object, cadence.String()
	return c.send(f)
}

func (c *Client) CreateObject(asset string, pose host.InitPosition, req host.RequestID) error {
	f := newFrame(frameCreateObject)
	f.Name, f.Pose, f.Request = asset, &pose, req
	return c.send(f)
}

func (c *Client) SetData(def host.DefinitionID, object host.ObjectID, raw []byte) error {
	f := newFrame(frameSetData)
	f.Definition, f.Object = def, object
	f.setRaw(raw)
	return c.send(f)
}

// Poll returns the next queued message, or nil when none is pending. A
// broken connection is reported once the queue ahead of it is drained.
func (c *Client) Poll(ctx context.Context) (host.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	select {
	case in := <-c.inbox:
		return in.msg, in.err
	default:
		return nil, nil
	}
}

func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&c.opened) == 0 {
		return nil
	}

	_ = c.write(newFrame(frameClose))
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	close(c.stop)
	err := c.conn.Close()
	<-c.done
	c.logger.Info("bridge closed")
	if err != nil {
		return errors.Wrap(err, "failed to close connection")
	}
	return nil
}

func (c *Client) usable() error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return host.ErrClosed
	}
	if atomic.LoadInt32(&c.opened) == 0 {
		return host.ErrNotOpen
	}
	return nil
}

func (c *Client) send(f frame) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.write(f)
}

func (c *Client) write(f frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "failed to write %s frame", f.Type)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.push(inbound{err: errors.Wrap(err, "failed to read frame")})
			}
			return
		}
		if typ != websocket.TextMessage {
			c.push(inbound{err: errors.Wrap(host.ErrMalformedMessage, "expected text frame")})
			continue
		}

		f, err := decodeFrame(data)
		if err != nil {
			c.push(inbound{err: err})
			continue
		}
		msg, err := f.message()
		c.push(inbound{msg: msg, err: err})
	}
}

// push blocks while the queue is full so no host message is lost.
func (c *Client) push(in inbound) {
	if len(c.inbox) == cap(c.inbox) {
		c.logger.Warn("bridge queue full, reader waiting", log.Int("size", cap(c.inbox)))
	}
	select {
	case c.inbox <- in:
	case <-c.stop:
	}
}
