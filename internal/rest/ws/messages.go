package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type Message struct {
	Event string `json:"event"`
}

// UserID accepts both "42" and 42 on the wire.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or a number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("user id must be an integer: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

type MessageJoinRequest struct {
	Message
	UserID UserID `json:"user_id"`
	Jwt    string `json:"jwt"`
}

type MessageJoinedResponse struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

type MessageErrorResponse struct {
	Reason string `json:"reason"`
}
