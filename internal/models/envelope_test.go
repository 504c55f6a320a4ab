package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeRegistration(t *testing.T) {
	body := []byte(`{
		"event": "user.registered",
		"data": {"user_id": 1, "name": "Ann", "email": "ann@x.com"},
		"timestamp": "2024-01-01T00:00:00Z",
		"service": "user-service"
	}`)

	env, err := DecodeEnvelope(body)
	require.NoError(t, err)

	assert.Equal(t, EventUserRegistered, env.Event)
	assert.Equal(t, "user-service", env.Service)
	require.NotNil(t, env.Registration)
	assert.Nil(t, env.Deposit)
	assert.Equal(t, int64(1), env.Registration.UserID)
	assert.Equal(t, "Ann", env.Registration.Name)
	assert.Equal(t, "ann@x.com", env.Registration.Email)
	assert.Equal(t, "1", env.UserID())
	assert.Equal(t, "Ann", env.UserName())
	assert.Equal(t, "ann@x.com", env.UserEmail())
	assert.Equal(t, 2024, env.Timestamp.Year())
}

func TestDecodeEnvelopeDeposit(t *testing.T) {
	body := []byte(`{
		"event": "user.wallet.deposit",
		"data": {"user_id": 7, "name": "Bob", "email": "bob@x.com", "amount": 250.5, "wallet_balance": 1000.5},
		"timestamp": "2024-06-01T10:30:00Z",
		"service": "user-service"
	}`)

	env, err := DecodeEnvelope(body)
	require.NoError(t, err)

	require.NotNil(t, env.Deposit)
	assert.Nil(t, env.Registration)
	assert.Equal(t, 250.5, env.Deposit.Amount)
	assert.Equal(t, 1000.5, env.Deposit.WalletBalance)
	assert.Equal(t, "7", env.UserID())
}

func TestDecodeEnvelopeUnknownEvent(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"event": "user.deleted", "data": {}}`))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Error(), "user.deleted")
}

func TestDecodeEnvelopeInvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecodeEnvelopeMissingEvent(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"data": {"user_id": 1}}`))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.True(t, errors.As(err, &decodeErr))
}

func TestDecodeEnvelopeMalformedPayload(t *testing.T) {
	// user_id must be numeric for a registration event.
	_, err := DecodeEnvelope([]byte(`{
		"event": "user.registered",
		"data": {"user_id": {"nested": true}}
	}`))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecodeEnvelopeBadTimestampTolerated(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{
		"event": "user.registered",
		"data": {"user_id": 1, "name": "Ann", "email": "ann@x.com"},
		"timestamp": "not-a-timestamp"
	}`))
	require.NoError(t, err)
	assert.True(t, env.Timestamp.IsZero())
}

func TestEnvelopeData(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{
		"event": "user.registered",
		"data": {"user_id": 1, "name": "Ann", "email": "ann@x.com", "extra": "kept"}
	}`))
	require.NoError(t, err)

	data := env.Data()
	assert.Equal(t, "Ann", data["name"])
	assert.Equal(t, "kept", data["extra"])
}
