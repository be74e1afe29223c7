package detector

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestPIDProbe_ExitStatus(t *testing.T) {
	requireUnix(t)
	ctx := context.Background()

	if !(PIDProbe{Command: []string{"true"}}).Alive(ctx, "1") {
		t.Fatalf("exit 0 should read as alive")
	}
	if (PIDProbe{Command: []string{"false"}}).Alive(ctx, "1") {
		t.Fatalf("non-zero exit should read as not alive")
	}
	if (PIDProbe{Command: []string{"sh", "-c", "exit 3", "probe"}}).Alive(ctx, "1") {
		t.Fatalf("exit 3 should read as not alive")
	}
}

func TestPIDProbe_EmptyPID(t *testing.T) {
	if (PIDProbe{Command: []string{"true"}}).Alive(context.Background(), "") {
		t.Fatalf("empty pid must never be alive")
	}
}

func TestPIDProbe_LaunchFailureAssumesAlive(t *testing.T) {
	p := PIDProbe{Command: []string{"__definitely_not_exists__"}}
	if !p.Alive(context.Background(), "12345") {
		t.Fatalf("a probe that cannot be launched must answer alive")
	}
}

func TestPIDProbe_InterruptedWaitAssumesAlive(t *testing.T) {
	requireUnix(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p := PIDProbe{Command: []string{"sh", "-c", "sleep 5", "probe"}}
	if !p.Alive(ctx, "12345") {
		t.Fatalf("an interrupted probe must answer alive")
	}
}

func TestPIDProbe_KillZero(t *testing.T) {
	requireUnix(t)
	ctx := context.Background()
	p := PIDProbe{}
	if !p.Alive(ctx, strconv.Itoa(os.Getpid())) {
		t.Fatalf("own pid should be alive")
	}
	// pid max on linux is 4194304; anything above cannot exist
	if p.Alive(ctx, "99999999") {
		t.Fatalf("out of range pid should not be alive")
	}
}
