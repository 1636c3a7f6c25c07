// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// addressParams marshals a register address followed by a length or data
// according to the revision's field width: one byte each in v1, two bytes
// little-endian in v2.
func (c *Conn) addressParams(addr uint16, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrAddressRange, length)
	}
	if c.cfg.Revision == V1 {
		if addr > 0xFF || length > 0xFF {
			return nil, fmt.Errorf("%w: address %d length %d (v1 max 255)", ErrAddressRange, addr, length)
		}
		return []byte{uint8(addr), uint8(length)}, nil
	}
	if length > 0xFFFF {
		return nil, fmt.Errorf("%w: length %d", ErrAddressRange, length)
	}
	p := make([]byte, 4)
	binary.LittleEndian.PutUint16(p[0:2], addr)
	binary.LittleEndian.PutUint16(p[2:4], uint16(length))
	return p, nil
}

func (c *Conn) writeParams(addr uint16, data []byte) ([]byte, error) {
	if c.cfg.Revision == V1 {
		if addr > 0xFF {
			return nil, fmt.Errorf("%w: address %d (v1 max 255)", ErrAddressRange, addr)
		}
		return append([]byte{uint8(addr)}, data...), nil
	}
	p := make([]byte, 2, 2+len(data))
	binary.LittleEndian.PutUint16(p, addr)
	return append(p, data...), nil
}

// Ping checks whether a device answers. v2 devices also report model number
// and firmware version. Returns nil, nil when the connection reads nothing
// back (multiplicity 0).
func (c *Conn) Ping(id uint8) (*PingInfo, error) {
	if id == BroadcastID {
		return nil, fmt.Errorf("%w: ping to broadcast id", ErrUnsupported)
	}

	n := 0
	if c.cfg.Revision == V2 {
		n = 3
	}
	status, err := c.Transact(id, InstPing, nil, n)
	if err != nil || status == nil {
		return nil, err
	}

	info := &PingInfo{ID: status.ID, Alarm: status.Alarm}
	if c.cfg.Revision == V2 {
		info.ModelNumber = binary.LittleEndian.Uint16(status.Params[0:2])
		info.Firmware = status.Params[2]
	}
	return info, nil
}

// Read reads length bytes starting at addr. The address is a composed
// token; any model-specific paging is the caller's concern.
func (c *Conn) Read(id uint8, addr uint16, length int) ([]byte, error) {
	if id == BroadcastID {
		return nil, fmt.Errorf("%w: read from broadcast id", ErrUnsupported)
	}
	params, err := c.addressParams(addr, length)
	if err != nil {
		return nil, err
	}
	status, err := c.Transact(id, InstRead, params, length)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, fmt.Errorf("%w: read needs a reply but none is configured", ErrConfig)
	}
	return status.Params, nil
}

// ReadStatus is Read returning the whole status, so the caller can inspect
// the alarm byte alongside the data.
func (c *Conn) ReadStatus(id uint8, addr uint16, length int) (*Status, error) {
	if id == BroadcastID {
		return nil, fmt.Errorf("%w: read from broadcast id", ErrUnsupported)
	}
	params, err := c.addressParams(addr, length)
	if err != nil {
		return nil, err
	}
	return c.Transact(id, InstRead, params, length)
}

// Write writes data starting at addr. The status is nil when the device is
// not expected to reply.
func (c *Conn) Write(id uint8, addr uint16, data []byte) (*Status, error) {
	params, err := c.writeParams(addr, data)
	if err != nil {
		return nil, err
	}
	return c.Transact(id, InstWrite, params, 0)
}

// RegWrite stages a write that takes effect on Action.
func (c *Conn) RegWrite(id uint8, addr uint16, data []byte) (*Status, error) {
	params, err := c.writeParams(addr, data)
	if err != nil {
		return nil, err
	}
	return c.Transact(id, InstRegWrite, params, 0)
}

// Action executes writes staged with RegWrite. Usually sent to BroadcastID.
func (c *Conn) Action(id uint8) (*Status, error) {
	return c.Transact(id, InstAction, nil, 0)
}

// Reboot restarts a device (v2 only).
func (c *Conn) Reboot(id uint8) (*Status, error) {
	if c.cfg.Revision != V2 {
		return nil, fmt.Errorf("%w: reboot on %s", ErrUnsupported, c.cfg.Revision)
	}
	return c.Transact(id, InstReboot, nil, 0)
}

// FactoryReset restores the control table defaults. mode is one of
// ResetAll, ResetExceptID, ResetExceptIDBaud and is ignored by v1 devices.
func (c *Conn) FactoryReset(id uint8, mode uint8) (*Status, error) {
	var params []byte
	if c.cfg.Revision == V2 {
		params = []byte{mode}
	}
	return c.Transact(id, InstFactoryReset, params, 0)
}

// Clear resets device state selected by params (v2 only), e.g. the
// multi-turn position counter.
func (c *Conn) Clear(id uint8, params []byte) (*Status, error) {
	if c.cfg.Revision != V2 {
		return nil, fmt.Errorf("%w: clear on %s", ErrUnsupported, c.cfg.Revision)
	}
	return c.Transact(id, InstClear, params, 0)
}

// SyncWrite writes width bytes at addr on several devices with one broadcast
// frame. Devices are encoded in ascending id order.
func (c *Conn) SyncWrite(addr uint16, width int, data map[uint8][]byte) error {
	params, err := c.addressParams(addr, width)
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(data))
	for id, d := range data {
		if len(d) != width {
			return fmt.Errorf("%w: id %d has %d bytes, width is %d", ErrLengthMismatch, id, len(d), width)
		}
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, id := range ids {
		params = append(params, uint8(id))
		params = append(params, data[uint8(id)]...)
	}

	_, err = c.Transact(BroadcastID, InstSyncWrite, params, 0)
	return err
}

// ReadUint8 reads a one-byte register
func (c *Conn) ReadUint8(id uint8, addr uint16) (uint8, error) {
	b, err := c.Read(id, addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a two-byte little-endian register
func (c *Conn) ReadUint16(id uint8, addr uint16) (uint16, error) {
	b, err := c.Read(id, addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a four-byte little-endian register
func (c *Conn) ReadUint32(id uint8, addr uint16) (uint32, error) {
	b, err := c.Read(id, addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteUint8 writes a one-byte register
func (c *Conn) WriteUint8(id uint8, addr uint16, v uint8) (*Status, error) {
	return c.Write(id, addr, []byte{v})
}

// WriteUint16 writes a two-byte little-endian register
func (c *Conn) WriteUint16(id uint8, addr uint16, v uint16) (*Status, error) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return c.Write(id, addr, b)
}

// WriteUint32 writes a four-byte little-endian register
func (c *Conn) WriteUint32(id uint8, addr uint16, v uint32) (*Status, error) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return c.Write(id, addr, b)
}
