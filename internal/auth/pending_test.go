package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalQueueRegisterAndList(t *testing.T) {
	q := NewApprovalQueue(4)
	id, err := q.Register("1.2.3.4")
	require.NoError(t, err)

	list := q.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "1.2.3.4", list[0].FromIP)
}

func TestApprovalQueueFullRejectsRegister(t *testing.T) {
	q := NewApprovalQueue(1)
	_, err := q.Register("a")
	require.NoError(t, err)
	_, err = q.Register("b")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestApprovalQueueApproveWakesWaiter(t *testing.T) {
	q := NewApprovalQueue(4)
	id, err := q.Register("1.2.3.4")
	require.NoError(t, err)

	info := &NewUserInfo{ID: 9, Token: "tok"}
	done := make(chan struct{})
	var gotErr error
	var gotInfo *NewUserInfo
	go func() {
		gotInfo, gotErr = q.Wait(context.Background(), id, time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool { return q.resolveApprove(id, info) }, time.Second, time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after approval")
	}
	require.NoError(t, gotErr)
	assert.Equal(t, info, gotInfo)

	assert.Empty(t, q.List())
}

func TestApprovalQueueDenyWakesWaiterWithErrDenied(t *testing.T) {
	q := NewApprovalQueue(4)
	id, err := q.Register("1.2.3.4")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, werr := q.Wait(context.Background(), id, time.Second)
		done <- werr
	}()

	require.Eventually(t, func() bool { return q.Deny(id) }, time.Second, time.Millisecond)

	select {
	case werr := <-done:
		assert.ErrorIs(t, werr, ErrDenied)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after deny")
	}
}

func TestApprovalQueueWaitTimesOut(t *testing.T) {
	q := NewApprovalQueue(4)
	id, err := q.Register("1.2.3.4")
	require.NoError(t, err)

	_, err = q.Wait(context.Background(), id, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPendingTimedOut)
	assert.Empty(t, q.List())
}

func TestApprovalQueueUnknownIDFailsWait(t *testing.T) {
	q := NewApprovalQueue(4)
	_, err := q.Wait(context.Background(), 999, time.Second)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
