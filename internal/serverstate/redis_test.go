package serverstate

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if st := store.Load(); st.Status != "not_ready" {
		t.Fatalf("initial status %q", st.Status)
	}
	want := State{Status: "ready", Generation: 3, PID: 1234, StartedAt: time.Now().UTC().Truncate(time.Second)}
	store.Store(want)
	got := store.Load()
	if got.Status != want.Status || got.Generation != want.Generation || got.PID != want.PID {
		t.Fatalf("loaded %+v, want %+v", got, want)
	}
}

func TestRedisStoreURLSchemes(t *testing.T) {
	mr := miniredis.RunT(t)
	if _, err := NewRedisStore("redis://" + mr.Addr()); err != nil {
		t.Fatalf("redis:// scheme: %v", err)
	}
	if _, err := NewRedisStore("http://" + mr.Addr()); err == nil {
		t.Fatal("invalid scheme accepted")
	}
}

func TestLocalStateDrain(t *testing.T) {
	Set(State{Status: "ready", Generation: 1})
	StartDrain()
	if st := Get(); st.Status != "draining" || st.Generation != 1 {
		t.Fatalf("drain snapshot %+v", st)
	}
	if !IsDraining() {
		t.Fatal("IsDraining false after StartDrain")
	}
}
