package lobby

import (
	"context"
	"errors"
	"testing"

	"github.com/jason-s-yu/lobbyd/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyEnv(verdict string, err error) (*testEnv, *client) {
	e := newTestEnv()
	e.svc.Policy = &fakePolicy{verdict: verdict, err: err}
	return e, e.connect()
}

func TestPolicyHonest(t *testing.T) {
	_, cl := policyEnv(policy.VerdictHonest, nil)
	ok, err := cl.CheckPolicyConformity(context.Background(), 1, "honest", 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, cl.cancelCount())
}

func TestPolicyFraudulentUnknownPlayer(t *testing.T) {
	e, cl := policyEnv(policy.VerdictFraudulent, nil)
	ok, err := cl.CheckPolicyConformity(context.Background(), 999, "fraudulent", 100)

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Fatal)
	assert.False(t, ok)
	assert.Equal(t, 1, cl.cancelCount())
	assert.Zero(t, e.store.banCount())
}

func TestPolicyFraudulentBans(t *testing.T) {
	e, cl := policyEnv(policy.VerdictFraudulent, nil)
	e.store.addAccount(1, "cheater")

	ok, err := cl.CheckPolicyConformity(context.Background(), 1, "fraudulent", 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, cl.cancelCount())

	require.Equal(t, 1, e.store.banCount())
	ban := e.store.bans[0]
	assert.Equal(t, 1, ban.PlayerID)
	assert.Equal(t, 1, ban.AuthorID)
	assert.Equal(t, "Auto-banned because of fraudulent login attempt", ban.Reason)
	assert.Nil(t, ban.ExpiresAt)
}

func TestPolicyRefusals(t *testing.T) {
	for _, verdict := range []string{policy.VerdictVM, policy.VerdictAlreadyAssociated, "something_new"} {
		t.Run(verdict, func(t *testing.T) {
			e, cl := policyEnv(verdict, nil)
			e.store.addAccount(1, "p")
			ok, err := cl.CheckPolicyConformity(context.Background(), 1, verdict, 100)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 1, cl.cancelCount())
			assert.Zero(t, e.store.banCount())
		})
	}
}

func TestPolicyServerFailureRefusesLogin(t *testing.T) {
	_, cl := policyEnv("", errors.New("connection refused"))
	ok, err := cl.CheckPolicyConformity(context.Background(), 1, "x", 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, cl.cancelCount())
}

func TestHelloRunsPolicyGate(t *testing.T) {
	e, cl := policyEnv(policy.VerdictVM, nil)
	e.store.addAccount(1, "p")
	cl.send(map[string]interface{}{"command": "hello", "token": tokenFor(1), "unique_id": "vm"})

	assert.False(t, cl.Authenticated())
	assert.Equal(t, 0, e.svc.Players.Count())
	assert.Equal(t, 1, cl.cancelCount())
	assert.Empty(t, cl.drain())
}

func TestHelloUnknownPlayerIsFatal(t *testing.T) {
	e, cl := policyEnv(policy.VerdictFraudulent, nil)
	cl.send(map[string]interface{}{"command": "hello", "token": tokenFor(1), "unique_id": "x"})

	assert.False(t, cl.Authenticated())
	assert.Equal(t, 0, e.svc.Players.Count())
	assert.Equal(t, 1, cl.cancelCount())
	assert.Equal(t, "error", cl.only(t)["style"])
}
