package service

import (
	"context"
	"testing"
	"time"

	"TG_group_guardian/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSweeperRun(t *testing.T) {
	verification := new(mocks.MockVerification)
	ticked := make(chan struct{}, 16)
	verification.On("SweepExpired", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	}).Return(nil)

	s := NewSweeper(verification, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("sweeper never ticked")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

func TestSweeperRun_KeepsTickingAfterError(t *testing.T) {
	verification := new(mocks.MockVerification)
	ticked := make(chan struct{}, 16)
	verification.On("SweepExpired", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	}).Return(assert.AnError)

	s := NewSweeper(verification, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-ticked:
		case <-time.After(time.Second):
			t.Fatal("sweeper stopped after a failed pass")
		}
	}
}
