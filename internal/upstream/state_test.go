package upstream

import (
	"testing"
	"time"
)

func TestBackoffSchedule(t *testing.T) {
	want := []int{2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		got := backoffFor(i + 1).Seconds()
		if int(got) != w {
			t.Errorf("backoffFor(%d) = %v, want %ds", i+1, got, w)
		}
	}
}

func TestBackoffForZeroOrNegativeTreatedAsOne(t *testing.T) {
	if backoffFor(0) != backoffFor(1) {
		t.Fatal("backoffFor(0) should behave like backoffFor(1)")
	}
}

// TestBackoffResetScenario is spec.md §8 scenario 5, literally: an
// upstream session fails four times, succeeds on the fifth attempt,
// streams for 11 seconds, fails again — the next wait must be 2s, not 32s.
func TestBackoffResetScenario(t *testing.T) {
	n := 0
	for i := 0; i < 4; i++ {
		n = nextReconnectCount(n, 0, false) // four quick failures
	}
	if n != 4 {
		t.Fatalf("expected counter 4 after four failures, got %d", n)
	}

	n = nextReconnectCount(n, 11*time.Second, true) // stable stream, then fails
	if n != 0 {
		t.Fatalf("expected counter reset to 0 after stable stream, got %d", n)
	}

	if got := backoffFor(n + 1); got != 2*time.Second {
		t.Fatalf("expected next wait 2s after reset, got %v", got)
	}
}

func TestReconnectCapExceeded(t *testing.T) {
	if !exceedsReconnectCap(51, 50) {
		t.Fatal("expected 51 to exceed cap of 50")
	}
	if exceedsReconnectCap(50, 50) {
		t.Fatal("expected 50 to not exceed cap of 50")
	}
}

func TestUnstableStreamIncrementsEvenIfMessagesReceived(t *testing.T) {
	n := nextReconnectCount(3, 2*time.Second, true) // streamed too briefly
	if n != 4 {
		t.Fatalf("expected increment to 4 for a too-brief stream, got %d", n)
	}
}
