package procctl

import "golang.org/x/sys/unix"

// getNice converts the raw getpriority(2) result, which the linux syscall
// returns as 20-nice, back into the -20..19 range.
func getNice(pid int) (int, error) {
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, pid)
	if err != nil {
		return 0, err
	}
	return 20 - prio, nil
}
