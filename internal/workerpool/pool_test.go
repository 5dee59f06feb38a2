package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubmitRunsJobAndDeliversResult(t *testing.T) {
	p := New(2, 4)
	defer p.Close()

	out, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case res := <-out:
		if res.Err != nil {
			t.Fatalf("unexpected job error: %v", res.Err)
		}
		if res.Value.(int) != 42 {
			t.Fatalf("expected 42, got %v", res.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestSubmitPropagatesJobError(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	wantErr := errors.New("hash failed")
	out, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res := <-out
	if res.Err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, res.Err)
	}
}

func TestSubmitFailsWhenQueueFull(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	// Occupy the single worker so the queue backs up.
	if _, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		close(started)
		<-block
		return nil, nil
	}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	<-started
	// Fill the one queue slot.
	if _, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if _, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); err == nil {
		t.Fatal("expected queue-full error")
	}

	close(block)
}

func TestSubmitAfterCloseFails(t *testing.T) {
	p := New(1, 1)
	p.Close()

	if _, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); err == nil {
		t.Fatal("expected error submitting to closed pool")
	}
}

func TestCloseDrainsInFlightJobs(t *testing.T) {
	p := New(2, 2)

	done := make(chan struct{})
	_, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		close(done)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran before Close")
	}
	p.Close()
}
