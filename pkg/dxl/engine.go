// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Config holds the per-connection protocol parameters. They are fixed for the
// lifetime of a Conn.
type Config struct {
	// Revision selects the wire format.
	Revision Revision
	// Multiplicity is the number of frames a request produces on the wire:
	// 0 = nothing is read back, 1 = the status frame, 2 = an echo of the
	// request followed by the status frame.
	Multiplicity int
	// EchoSize is the number of bytes discarded before the status frame when
	// Multiplicity is 2. Zero means the encoded length of the request, which
	// is what a transceiver that loops transmitted bytes back produces.
	EchoSize int
	// StatusReturnLevel mirrors the devices' status return level register.
	// Instructions the level does not answer complete without a reply.
	StatusReturnLevel StatusReturnLevel
	// Logger receives tx/rx traces at debug level. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultConfig returns the configuration for a plain bus: one status frame
// per request, every instruction answered.
func DefaultConfig(rev Revision) Config {
	return Config{
		Revision:          rev,
		Multiplicity:      1,
		StatusReturnLevel: ReturnAll,
	}
}

// Validate checks the configuration values
func (c Config) Validate() error {
	if !c.Revision.Valid() {
		return fmt.Errorf("%w: unknown revision %d", ErrConfig, uint8(c.Revision))
	}
	if c.Multiplicity < 0 || c.Multiplicity > 2 {
		return fmt.Errorf("%w: multiplicity %d (valid 0-2)", ErrConfig, c.Multiplicity)
	}
	if c.EchoSize < 0 {
		return fmt.Errorf("%w: negative echo size %d", ErrConfig, c.EchoSize)
	}
	if c.StatusReturnLevel > ReturnAll {
		return fmt.Errorf("%w: status return level %d (valid 0-2)", ErrConfig, c.StatusReturnLevel)
	}
	return nil
}

// Conn executes request/status transactions over a Transport it owns
// exclusively. Transactions run one at a time in call order; Conn is not
// safe for concurrent use, callers sharing one must serialize access.
type Conn struct {
	tr    Transport
	cfg   Config
	log   zerolog.Logger
	stats *Statistics
}

// NewConn creates a connection over tr.
func NewConn(tr Transport, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("protocol", cfg.Revision.String()).Logger()
	}
	return &Conn{
		tr:    tr,
		cfg:   cfg,
		log:   log,
		stats: NewStatistics(),
	}, nil
}

// Revision returns the wire format of the connection
func (c *Conn) Revision() Revision {
	return c.cfg.Revision
}

// Config returns the connection configuration
func (c *Conn) Config() Config {
	return c.cfg
}

// Stats returns the connection's transaction statistics
func (c *Conn) Stats() *Statistics {
	return c.stats
}

// Transport returns the underlying transport
func (c *Conn) Transport() Transport {
	return c.tr
}

// expectsReply decides whether a status frame follows the request.
func (c *Conn) expectsReply(id uint8, inst Instruction) bool {
	if c.cfg.Multiplicity == 0 || id == BroadcastID {
		return false
	}
	switch c.cfg.StatusReturnLevel {
	case ReturnPingOnly:
		return inst == InstPing
	case ReturnRead:
		return inst == InstPing || inst.isReadLike()
	default:
		return true
	}
}

// Transact executes one request/response exchange. n is the number of
// parameter bytes the status frame must carry (AnyLength to accept any).
//
// It returns nil, nil when no reply is expected: broadcast requests,
// multiplicity 0, or an instruction the status return level leaves
// unanswered. A status carrying a hardware alarm is not an error; check
// Status.Alarm or Status.Err. Nothing is retried.
func (c *Conn) Transact(id uint8, inst Instruction, params []byte, n int) (*Status, error) {
	frame, err := EncodeRequest(c.cfg.Revision, id, inst, params)
	if err != nil {
		return nil, err
	}

	status, err := c.exchange(id, inst, frame, n)
	c.stats.Update(status, err)

	if err != nil {
		c.log.Warn().Err(err).Uint8("id", id).Stringer("inst", inst).Msg("transaction failed")
		return nil, err
	}
	if status != nil && status.Alarm.Active() {
		c.log.Warn().Uint8("id", id).Stringer("alarm", status.Alarm).Msg("device alarm")
	}
	return status, nil
}

func (c *Conn) exchange(id uint8, inst Instruction, frame []byte, n int) (*Status, error) {
	c.log.Debug().Uint8("id", id).Stringer("inst", inst).Hex("tx", frame).Msg("request")

	if err := c.tr.WriteFrame(frame); err != nil {
		return nil, err
	}

	if c.cfg.Multiplicity == 2 {
		size := c.cfg.EchoSize
		if size == 0 {
			size = len(frame)
		}
		echo, err := c.tr.ReadExact(size)
		if err != nil {
			return nil, err
		}
		c.log.Trace().Hex("echo", echo).Msg("discarded")
	}

	if !c.expectsReply(id, inst) {
		return nil, nil
	}

	status, err := c.readStatus(n)
	if err != nil {
		return nil, err
	}
	if status.ID != id {
		return nil, fmt.Errorf("%w: sent to %d, reply from %d", ErrIDMismatch, id, status.ID)
	}
	return status, nil
}

// readStatus reads the header, then the remainder the header declares, and
// decodes the frame.
func (c *Conn) readStatus(n int) (*Status, error) {
	rev := c.cfg.Revision

	header, err := c.tr.ReadExact(HeaderSize(rev))
	if err != nil {
		return nil, err
	}
	length, err := DeclaredLength(rev, header)
	if err != nil {
		return nil, err
	}
	rest, err := c.tr.ReadExact(length)
	if err != nil {
		return nil, err
	}

	frame := append(header, rest...)
	c.log.Debug().Hex("rx", frame).Msg("status")
	return DecodeStatus(rev, frame, n)
}
