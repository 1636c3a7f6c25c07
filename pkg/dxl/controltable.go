// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed tables/default.toml
var defaultTable string

// Access modes of a control table field
const (
	AccessRead      = "r"
	AccessReadWrite = "rw"
)

// Field locates one named register of a model.
type Field struct {
	Address uint16 `toml:"address"`
	Size    int    `toml:"size"`
	Access  string `toml:"access"`
}

// Writable reports whether the field accepts writes
func (f Field) Writable() bool {
	return f.Access == AccessReadWrite
}

// Model is the control table of one device model.
type Model struct {
	Name        string           `toml:"-"`
	Revision    Revision         `toml:"revision"`
	ModelNumber uint16           `toml:"model_number"`
	Fields      map[string]Field `toml:"fields"`
}

// Field returns the named field
func (m *Model) Field(name string) (Field, error) {
	f, ok := m.Fields[strings.ToLower(name)]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, m.Name, name)
	}
	return f, nil
}

// FieldNames returns the field names sorted by address
func (m *Model) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.Fields[names[i]].Address < m.Fields[names[j]].Address
	})
	return names
}

// ControlTable maps model names to their register layouts.
type ControlTable struct {
	Models map[string]*Model `toml:"models"`
}

// ParseControlTable parses a control table from TOML text.
func ParseControlTable(data string) (*ControlTable, error) {
	var t ControlTable
	if _, err := toml.Decode(data, &t); err != nil {
		return nil, fmt.Errorf("parse control table: %w", err)
	}
	if err := t.normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadControlTable reads a control table from a TOML file.
func LoadControlTable(path string) (*ControlTable, error) {
	var t ControlTable
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("load control table: %w", err)
	}
	if err := t.normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultControlTable returns the built-in table.
func DefaultControlTable() *ControlTable {
	t, err := ParseControlTable(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("dxl: built-in control table: %v", err))
	}
	return t
}

// normalize fills in names and validates every field.
func (t *ControlTable) normalize() error {
	models := make(map[string]*Model, len(t.Models))
	for name, m := range t.Models {
		if m == nil {
			continue
		}
		m.Name = name
		if !m.Revision.Valid() {
			return fmt.Errorf("%w: model %s has revision %d", ErrConfig, name, m.Revision)
		}
		fields := make(map[string]Field, len(m.Fields))
		for fname, f := range m.Fields {
			if f.Size != 1 && f.Size != 2 && f.Size != 4 {
				return fmt.Errorf("%w: %s.%s has size %d (valid 1, 2, 4)", ErrConfig, name, fname, f.Size)
			}
			if m.Revision == V1 && f.Address > 0xFF {
				return fmt.Errorf("%w: %s.%s address %d exceeds v1 range", ErrConfig, name, fname, f.Address)
			}
			switch f.Access {
			case "":
				f.Access = AccessReadWrite
			case AccessRead, AccessReadWrite:
			default:
				return fmt.Errorf("%w: %s.%s has access %q", ErrConfig, name, fname, f.Access)
			}
			fields[strings.ToLower(fname)] = f
		}
		m.Fields = fields
		models[strings.ToLower(name)] = m
	}
	t.Models = models
	return nil
}

// Model returns the named model (case-insensitive).
func (t *ControlTable) Model(name string) (*Model, error) {
	m, ok := t.Models[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// ModelByNumber finds a model by the number a v2 ping reports.
func (t *ControlTable) ModelByNumber(rev Revision, number uint16) (*Model, error) {
	for _, m := range t.Models {
		if m.Revision == rev && m.ModelNumber == number {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: model number %d (%s)", ErrUnknownModel, number, rev)
}

// Registers is a named-field accessor for devices of one model.
type Registers struct {
	conn  *Conn
	model *Model
}

// NewRegisters binds a model's control table to a connection of the same
// revision.
func NewRegisters(conn *Conn, model *Model) (*Registers, error) {
	if conn.Revision() != model.Revision {
		return nil, fmt.Errorf("%w: model %s uses %s, connection uses %s",
			ErrConfig, model.Name, model.Revision, conn.Revision())
	}
	return &Registers{conn: conn, model: model}, nil
}

// Model returns the bound model
func (r *Registers) Model() *Model {
	return r.model
}

// Get reads a field as an unsigned value.
func (r *Registers) Get(id uint8, name string) (uint32, error) {
	f, err := r.model.Field(name)
	if err != nil {
		return 0, err
	}
	b, err := r.conn.Read(id, f.Address, f.Size)
	if err != nil {
		return 0, err
	}
	return decodeValue(b), nil
}

// GetSigned reads a field and sign-extends it to its width.
func (r *Registers) GetSigned(id uint8, name string) (int32, error) {
	f, err := r.model.Field(name)
	if err != nil {
		return 0, err
	}
	v, err := r.Get(id, name)
	if err != nil {
		return 0, err
	}
	switch f.Size {
	case 1:
		return int32(int8(v)), nil
	case 2:
		return int32(int16(v)), nil
	default:
		return int32(v), nil
	}
}

// Set writes a field. Read-only fields are rejected before anything is sent.
func (r *Registers) Set(id uint8, name string, value uint32) (*Status, error) {
	f, err := r.model.Field(name)
	if err != nil {
		return nil, err
	}
	if !f.Writable() {
		return nil, fmt.Errorf("%w: %s.%s", ErrReadOnly, r.model.Name, name)
	}
	if f.Size < 4 && value >= 1<<(8*f.Size) {
		return nil, fmt.Errorf("%w: value %d does not fit %s.%s (%d bytes)",
			ErrAddressRange, value, r.model.Name, name, f.Size)
	}
	return r.conn.Write(id, f.Address, encodeValue(value, f.Size))
}

func decodeValue(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b)
	}
}

func encodeValue(v uint32, size int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b[:size]
}
