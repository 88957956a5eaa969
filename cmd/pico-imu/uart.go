//go:build rp2040 || rp2350

package main

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"tinycore-go/services/bridge"
)

var errClosed = errors.New("uart: closed")

// uartConn adapts a uartx UART to the io.ReadWriteCloser the bridge wants.
// Close cancels pending reads; the hardware stays configured.
type uartConn struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *uartConn) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, errClosed
	}
	n, err := c.u.RecvSomeContext(c.ctx, p)
	if err != nil && c.ctx.Err() != nil {
		return n, errClosed
	}
	return n, err
}

func (c *uartConn) Write(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, errClosed
	}
	return c.u.Write(p)
}

func (c *uartConn) Close() error {
	c.cancel()
	return nil
}

// uartFor picks the peripheral that owns the TX pin on RP2.
func uartFor(tx int) *uartx.UART {
	switch tx {
	case 4, 8, 20, 24:
		return uartx.UART1
	}
	return uartx.UART0
}

func dialUART(ctx context.Context, u bridge.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartFor(u.TxPin)
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithCancel(ctx)
	return &uartConn{u: hw, ctx: cctx, cancel: cancel}, nil
}
