package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAliceLifecycle walks one account from registration through a password
// change.
func TestAliceLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := models.ClientInfo{Address: "192.0.2.10", Label: "laptop"}

	reg, err := h.creds.Register(ctx, "alice", []byte(alicePassword), client)
	require.NoError(t, err)

	login, err := h.creds.Login(ctx, "alice", []byte(alicePassword), client)
	require.NoError(t, err)
	require.NotNil(t, login.Session)
	assert.NotEmpty(t, login.Session.ID)
	assert.Equal(t, reg.VaultKey, login.VaultKey)

	require.NoError(t, h.creds.ChangePassword(ctx, login.UserID, []byte(alicePassword), []byte(newPassword)))

	_, err = h.sessions.VerifySession(ctx, login.Session.ID)
	assert.ErrorIs(t, err, common.ErrSession)

	_, err = h.creds.Login(ctx, "alice", []byte(alicePassword), client)
	assert.ErrorIs(t, err, common.ErrAuthentication)

	relogin, err := h.creds.Login(ctx, "alice", []byte(newPassword), client)
	require.NoError(t, err)
	assert.Equal(t, login.VaultKey, relogin.VaultKey)

	assert.Equal(t, []string{
		models.ActionRegister,
		models.ActionLogin,
		models.ActionPasswordChange,
		models.ActionLoginFailure,
		models.ActionLogin,
	}, h.db.auditActions(reg.UserID))
}
