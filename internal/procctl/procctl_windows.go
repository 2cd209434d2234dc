//go:build windows

package procctl

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/hostwarden/internal/model"
)

var errUnsupported = errors.New("process control is not supported on windows")

// OS is unavailable on windows; every operation fails.
type OS struct {
	SampleWindow time.Duration
}

func NewOS(window time.Duration) *OS { return &OS{SampleWindow: window} }

func isESRCH(error) bool { return false }

func (o *OS) Measure(context.Context, int) (model.ProcessSnapshot, error) {
	return model.ProcessSnapshot{}, errUnsupported
}
func (o *OS) Priority(context.Context, int) (int, error)  { return 0, errUnsupported }
func (o *OS) SetPriority(context.Context, int, int) error { return errUnsupported }
func (o *OS) Signal(context.Context, int, Signal) error   { return errUnsupported }
func (o *OS) Alive(context.Context, int) (bool, error)    { return false, errUnsupported }
