package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequiredScreens(t *testing.T) {
	assert.Equal(t, 1, RequiredScreens(PackageSingle))
	assert.Equal(t, 1, RequiredScreens(PackageCustom))
	assert.Equal(t, 3, RequiredScreens(PackageTriple))
	assert.Equal(t, 10, RequiredScreens(PackageTen))
	assert.Equal(t, 0, RequiredScreens("MEGA"))
	assert.Equal(t, 0, RequiredScreens(""))
}

func TestWaitlistTransitions(t *testing.T) {
	allowed := [][2]string{
		{WaitlistStatusWaiting, WaitlistStatusInvited},
		{WaitlistStatusWaiting, WaitlistStatusCancelled},
		{WaitlistStatusInvited, WaitlistStatusClaimed},
		{WaitlistStatusInvited, WaitlistStatusExpired},
		{WaitlistStatusInvited, WaitlistStatusCancelled},
		// losing the capacity race puts the request back in the queue
		{WaitlistStatusInvited, WaitlistStatusWaiting},
		// admin reset out of a terminal state
		{WaitlistStatusExpired, WaitlistStatusWaiting},
		{WaitlistStatusCancelled, WaitlistStatusWaiting},
	}
	for _, edge := range allowed {
		assert.True(t, CanTransitionWaitlist(edge[0], edge[1]), "%s -> %s should be allowed", edge[0], edge[1])
	}

	denied := [][2]string{
		{WaitlistStatusWaiting, WaitlistStatusClaimed}, // must be invited first
		{WaitlistStatusWaiting, WaitlistStatusExpired},
		{WaitlistStatusClaimed, WaitlistStatusWaiting}, // claimed is final
		{WaitlistStatusClaimed, WaitlistStatusCancelled},
		{WaitlistStatusExpired, WaitlistStatusInvited}, // reset goes via WAITING
		{WaitlistStatusCancelled, WaitlistStatusInvited},
	}
	for _, edge := range denied {
		assert.False(t, CanTransitionWaitlist(edge[0], edge[1]), "%s -> %s should be rejected", edge[0], edge[1])
	}
}

func TestInviteExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var req WaitlistRequest
	assert.False(t, req.InviteExpired(now), "no deadline means nothing to expire")

	deadline := now.Add(time.Hour)
	req.InviteExpiresAt = &deadline
	assert.False(t, req.InviteExpired(now))
	assert.True(t, req.InviteExpired(deadline), "the deadline itself counts as expired")
	assert.True(t, req.InviteExpired(deadline.Add(time.Second)))
}
