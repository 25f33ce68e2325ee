package srtp

import "testing"

func TestReplayWindowSequential(t *testing.T) {
	var w replayWindow
	for i := uint64(0); i < 200; i++ {
		if err := w.check(i); err != nil {
			t.Fatalf("check(%d): unexpected error %v", i, err)
		}
	}
}

func TestReplayWindowRejectsDuplicate(t *testing.T) {
	var w replayWindow
	must(t, w.check(10))
	if err := w.check(10); err != ErrReplay {
		t.Fatalf("want ErrReplay, got %v", err)
	}
}

func TestReplayWindowAcceptsReorderWithinWindow(t *testing.T) {
	var w replayWindow
	must(t, w.check(100))
	must(t, w.check(95))
	if err := w.check(95); err != ErrReplay {
		t.Fatalf("replayed 95 should be rejected, got %v", err)
	}
}

func TestReplayWindowRejectsTooOld(t *testing.T) {
	var w replayWindow
	must(t, w.check(1000))
	if err := w.check(900); err != ErrReplay {
		t.Fatalf("want ErrReplay for index older than window, got %v", err)
	}
}

func TestReplayWindowAdvancesPastWindowWidth(t *testing.T) {
	var w replayWindow
	must(t, w.check(0))
	must(t, w.check(1000)) // shift > 64, bitmap resets
	if err := w.check(999); err != nil {
		t.Fatalf("999 should be within the new window, got %v", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
