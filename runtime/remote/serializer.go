package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Parameter is one positional command parameter.
type Parameter struct {
	Name   string `json:"name,omitempty"`
	Value  any    `json:"value"`
	DbType string `json:"dbType,omitempty"`
}

// Command is one SQL statement with its parameters.
type Command struct {
	SQL        string      `json:"sql"`
	Parameters []Parameter `json:"parameters,omitempty"`
	QueryHints []string    `json:"queryHints,omitempty"`
}

// Values returns the parameter values in order.
func (c Command) Values() []any {
	values := make([]any, len(c.Parameters))
	for i, p := range c.Parameters {
		values[i] = p.Value
	}
	return values
}

// NewCommand creates a command with positional parameter values.
func NewCommand(sql string, args ...any) Command {
	cmd := Command{SQL: sql}
	for _, a := range args {
		cmd.Parameters = append(cmd.Parameters, Parameter{Value: a})
	}
	return cmd
}

// Payload is the unit a transport round-trips: one or more commands
// tagged with the protocol version.
type Payload struct {
	Version  string    `json:"version"`
	Commands []Command `json:"commands"`
}

// ResultSet is a materialized reader result.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Encode serializes commands into one payload.
func Encode(commands ...Command) ([]byte, error) {
	if len(commands) == 0 {
		return nil, errors.New("encode: no commands")
	}
	data, err := json.Marshal(Payload{Version: ProtocolVersion, Commands: commands})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode. Numbers decode as
// json.Number so integer parameters keep their precision.
func Decode(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := CheckProtocol(p.Version); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(p.Commands) == 0 {
		return nil, errors.New("decode: payload has no commands")
	}
	for i := range p.Commands {
		for j, prm := range p.Commands[i].Parameters {
			p.Commands[i].Parameters[j].Value = normalizeNumber(prm.Value)
		}
	}
	return &p, nil
}

// normalizeNumber turns integral json.Numbers into int64 and the rest
// into float64, which database/sql drivers accept.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// DecodeResultSet parses a reader result.
func DecodeResultSet(data []byte) (*ResultSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rs ResultSet
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}
	for _, row := range rs.Rows {
		for i, v := range row {
			row[i] = normalizeNumber(v)
		}
	}
	return &rs, nil
}

// Scalar wraps a scalar result on the wire.
type Scalar struct {
	Value any `json:"value"`
}

// DecodeScalar parses a Scalar and returns its value.
func DecodeScalar(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var s Scalar
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scalar: %w", err)
	}
	return normalizeNumber(s.Value), nil
}
