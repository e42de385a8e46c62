package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/service"
)

func TestVerify_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.register("idem@x.com")
	require.NoError(t, err)
	key := h.keys.last()

	first, err := h.svc.VerifyAccount(ctx, key)
	require.NoError(t, err)
	assert.False(t, first.AlreadyConfirmed)
	before := h.account(t, res.AccountID)

	h.clock.Advance(time.Hour)
	again, err := h.svc.VerifyAccount(ctx, key)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyConfirmed)

	after := h.account(t, res.AccountID)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.True(t, after.EmailConfirmed)
}

func TestVerify_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	res, err := h.register("exp@x.com")
	require.NoError(t, err)

	h.clock.Advance(model.VerificationWindow + time.Second)
	_, err = h.svc.VerifyAccount(context.Background(), h.keys.last())
	assert.ErrorIs(t, err, service.ErrTokenInvalid)
	assert.Equal(t, service.CodeTokenInvalid, service.CodeOf(err))
	assert.False(t, h.account(t, res.AccountID).EmailConfirmed)
}

func TestVerify_JustInsideWindow(t *testing.T) {
	h := newHarness(t)
	_, err := h.register("edge@x.com")
	require.NoError(t, err)

	h.clock.Advance(model.VerificationWindow - time.Second)
	_, err = h.svc.VerifyAccount(context.Background(), h.keys.last())
	assert.NoError(t, err)
}

func TestVerify_AcceptedAtWindowEnd(t *testing.T) {
	h := newHarness(t)
	res, err := h.register("end@x.com")
	require.NoError(t, err)

	h.clock.Advance(model.VerificationWindow)
	_, err = h.svc.VerifyAccount(context.Background(), h.keys.last())
	require.NoError(t, err)
	assert.True(t, h.account(t, res.AccountID).EmailConfirmed)
}

func TestVerify_DashedEmail(t *testing.T) {
	h := newHarness(t)
	res, err := h.register("mary-jane@ex-ample.com")
	require.NoError(t, err)

	_, err = h.svc.VerifyAccount(context.Background(), h.keys.last())
	require.NoError(t, err)
	assert.True(t, h.account(t, res.AccountID).EmailConfirmed)
}

func TestVerify_RejectsGarbageAndForgedTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.register("f@x.com")
	require.NoError(t, err)

	_, err = h.svc.VerifyAccount(ctx, "garbage")
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	// Well formed but not issued for any account.
	forged, err := h.codec.Encode("f@x.com", uuid.NewString())
	require.NoError(t, err)
	_, err = h.svc.VerifyAccount(ctx, forged)
	assert.ErrorIs(t, err, service.ErrTokenInvalid)
}

func TestVerify_MirrorsOntoProjection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.register("p@x.com")
	require.NoError(t, err)

	// A lost projection is rebuilt from the account row.
	require.NoError(t, h.docs.Delete(ctx, res.AccountID))
	_, err = h.svc.VerifyAccount(ctx, h.keys.last())
	require.NoError(t, err)

	doc, err := h.docs.FindByAccountID(ctx, res.AccountID)
	require.NoError(t, err)
	assert.True(t, doc.EmailConfirmed)
	require.NotNil(t, doc.Role)
	assert.Equal(t, model.RoleStudent, doc.Role.Name)
}
