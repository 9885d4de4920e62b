package coordinator

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Transport reads holding registers from one Modbus slave.
type Transport interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	Close() error
}

// Dialer opens a Transport to host:port for a slave id.
type Dialer func(host string, port int, slaveID byte, timeout time.Duration) (Transport, error)

// DialTCP connects a Modbus TCP transport.
func DialTCP(host string, port int, slaveID byte, timeout time.Duration) (Transport, error) {
	handler := modbus.NewTCPClientHandler(net.JoinHostPort(host, strconv.Itoa(port)))
	handler.Timeout = timeout
	handler.SlaveId = slaveID
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", host, port, err)
	}
	return &tcpTransport{handler: handler, client: modbus.NewClient(handler)}, nil
}

type tcpTransport struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func (t *tcpTransport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return t.client.ReadHoldingRegisters(address, quantity)
}

func (t *tcpTransport) Close() error {
	return t.handler.Close()
}

// connection dials lazily and drops the transport after failures so the
// next poll reconnects.
type connection struct {
	dial    Dialer
	host    string
	port    int
	slaveID byte
	timeout time.Duration

	mu        sync.Mutex
	transport Transport
}

func (c *connection) get() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		return c.transport, nil
	}
	t, err := c.dial(c.host, c.port, c.slaveID, c.timeout)
	if err != nil {
		return nil, err
	}
	c.transport = t
	return t, nil
}

func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// Close closes the current transport, if any. It is safe to call repeatedly.
func (c *connection) Close() error {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Close()
}
