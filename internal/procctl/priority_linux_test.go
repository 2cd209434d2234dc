package procctl

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestGetNiceMatchesSelf(t *testing.T) {
	want, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		t.Fatalf("Getpriority: %v", err)
	}
	got, err := getNice(os.Getpid())
	if err != nil {
		t.Fatalf("getNice: %v", err)
	}
	if got != 20-want {
		t.Errorf("getNice = %d, want %d", got, 20-want)
	}
	if got < -20 || got > 19 {
		t.Errorf("nice %d out of range", got)
	}
}
