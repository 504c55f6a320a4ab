package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event names published by the user service on the user.events exchange.
const (
	EventUserRegistered = "user.registered"
	EventWalletDeposit  = "user.wallet.deposit"
)

// EventEnvelope is the wire-level wrapper around a domain event. The data
// object is decoded into exactly one typed payload selected by the Event
// discriminator.
type EventEnvelope struct {
	Event     string
	Timestamp time.Time
	Service   string

	Registration *RegistrationPayload
	Deposit      *DepositPayload

	raw json.RawMessage
}

// RegistrationPayload carries the user.registered event data.
type RegistrationPayload struct {
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
}

// DepositPayload carries the user.wallet.deposit event data.
type DepositPayload struct {
	UserID        int64   `json:"user_id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Amount        float64 `json:"amount"`
	WalletBalance float64 `json:"wallet_balance"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// DecodeError reports a message body that could not be decoded into a known
// event envelope. Messages failing this way are rejected without requeue.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode envelope: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireEnvelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Service   string          `json:"service"`
}

// DecodeEnvelope parses a broker message body into a typed EventEnvelope.
// Unknown event names and malformed payloads are a DecodeError; a missing or
// unparsable timestamp is tolerated and left as the zero time.
func DecodeEnvelope(body []byte) (*EventEnvelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if wire.Event == "" {
		return nil, &DecodeError{Reason: "missing event field"}
	}

	env := &EventEnvelope{
		Event:   wire.Event,
		Service: wire.Service,
		raw:     wire.Data,
	}
	if ts, err := time.Parse(time.RFC3339, wire.Timestamp); err == nil {
		env.Timestamp = ts
	}

	switch wire.Event {
	case EventUserRegistered:
		var p RegistrationPayload
		if err := json.Unmarshal(wire.Data, &p); err != nil {
			return nil, &DecodeError{Reason: "invalid user.registered payload", Err: err}
		}
		env.Registration = &p
	case EventWalletDeposit:
		var p DepositPayload
		if err := json.Unmarshal(wire.Data, &p); err != nil {
			return nil, &DecodeError{Reason: "invalid user.wallet.deposit payload", Err: err}
		}
		env.Deposit = &p
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown event %q", wire.Event)}
	}

	return env, nil
}

// UserID returns the event's user identifier as a string, or "" if the
// payload carried none.
func (e *EventEnvelope) UserID() string {
	switch {
	case e.Registration != nil && e.Registration.UserID != 0:
		return strconv.FormatInt(e.Registration.UserID, 10)
	case e.Deposit != nil && e.Deposit.UserID != 0:
		return strconv.FormatInt(e.Deposit.UserID, 10)
	}
	return ""
}

// UserName returns the user name from whichever payload is present.
func (e *EventEnvelope) UserName() string {
	switch {
	case e.Registration != nil:
		return e.Registration.Name
	case e.Deposit != nil:
		return e.Deposit.Name
	}
	return ""
}

// UserEmail returns the user email from whichever payload is present.
func (e *EventEnvelope) UserEmail() string {
	switch {
	case e.Registration != nil:
		return e.Registration.Email
	case e.Deposit != nil:
		return e.Deposit.Email
	}
	return ""
}

// Data returns the original event data object as a generic map, for storage
// on the notification record and for collaborator payloads.
func (e *EventEnvelope) Data() map[string]interface{} {
	if len(e.raw) == 0 {
		return map[string]interface{}{}
	}
	data := map[string]interface{}{}
	if err := json.Unmarshal(e.raw, &data); err != nil {
		return map[string]interface{}{}
	}
	return data
}
