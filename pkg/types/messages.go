// Package types holds the JSON frames exchanged over the relay socket.
//
// Client -> relay -> other clients
// GRID_UPDATE:
//
//	type: "GRID_UPDATE"
//	grid: [[{ value: string, edges: { top, bottom, left, right: bool } }]]
//	owner: string
//	id: string   // "" for a grid that was never saved
//
// Relay -> client
// ERROR:
//
//	type: "ERROR"
//	error: string
//
// Any other type is reserved and ignored by receivers.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/gridsync/internal/grid"
)

type MessageType string

const (
	TypeGridUpdate MessageType = "GRID_UPDATE"
	TypeError      MessageType = "ERROR"
)

type Message struct {
	Type  MessageType `json:"type"`
	Grid  grid.Grid   `json:"grid,omitempty"`
	Owner string      `json:"owner,omitempty"`
	ID    string      `json:"id"`
	Error string      `json:"error,omitempty"`
}

// NewGridUpdate copies g so later edits to the caller's grid cannot leak into
// a message that is still queued for sending.
func NewGridUpdate(id, owner string, g grid.Grid) Message {
	return Message{Type: TypeGridUpdate, Grid: g.Clone(), Owner: owner, ID: id}
}

func NewError(reason string) Message {
	return Message{Type: TypeError, Error: reason}
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
