package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTradingAccountHidesCredentialsInJSON(t *testing.T) {
	account := TradingAccount{
		AccountNumber:   "70001",
		Password:        "sealed",
		BridgeSessionID: "handle-1",
	}

	out, err := json.Marshal(account)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "handle-1")
	assert.NotContains(t, string(out), "sealed")

	raw, err := bson.Marshal(account)
	require.NoError(t, err)
	var stored bson.M
	require.NoError(t, bson.Unmarshal(raw, &stored))
	assert.Equal(t, "handle-1", stored["bridge_session_id"])
	assert.Equal(t, "sealed", stored["password"])
}
