package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dumacp/go-lorabridge/internal/protocol"
)

func TestTrySendDropsNewest(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		sends    int
	}{
		{"outbound", DefaultOutboundCapacity, 6},
		{"inbound", DefaultInboundCapacity, 13},
		{"single slot", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.name, tt.capacity)
			for i := 0; i < tt.sends; i++ {
				ok := q.TrySend(protocol.Ack{Seq: uint8(i)})
				if want := i < tt.capacity; ok != want {
					t.Errorf("TrySend(#%d) = %v, want %v", i, ok, want)
				}
			}
			if q.Len() != tt.capacity {
				t.Errorf("Len() = %d, want %d", q.Len(), tt.capacity)
			}
			if got, want := q.Dropped(), uint64(tt.sends-tt.capacity); got != want {
				t.Errorf("Dropped() = %d, want %d", got, want)
			}
			for i := 0; i < tt.capacity; i++ {
				msg, ok := q.TryRecv()
				if !ok {
					t.Fatalf("TryRecv(#%d) empty", i)
				}
				if msg != (protocol.Ack{Seq: uint8(i)}) {
					t.Errorf("TryRecv(#%d) = %v, want Ack{seq=%d}", i, msg, i)
				}
			}
			if _, ok := q.TryRecv(); ok {
				t.Error("TryRecv() on drained queue returned a message")
			}
		})
	}
}

func TestNewMinimumCapacity(t *testing.T) {
	if got := New("x", 0).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1", got)
	}
}

func TestRecv(t *testing.T) {
	q := New("test", 2)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.TrySend(protocol.Text{Seq: 1, Text: "HI"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := q.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if msg != (protocol.Text{Seq: 1, Text: "HI"}) {
		t.Errorf("Recv() = %v", msg)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestInitLinksOnce(t *testing.T) {
	out, in := InitLinks(3, 4)
	out2, in2 := InitLinks(7, 8)
	if out != out2 || in != in2 {
		t.Fatal("InitLinks() returned a different pair on second call")
	}
	if out.Cap() != 3 || in.Cap() != 4 {
		t.Errorf("caps = %d/%d, want 3/4", out.Cap(), in.Cap())
	}
	lo, li := Links()
	if lo != out || li != in {
		t.Error("Links() does not match InitLinks()")
	}
}
