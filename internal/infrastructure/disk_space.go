package infrastructure

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
)

// diskReserve is kept free on the volume after a download lands.
const diskReserve = 100 * domain.MiB

// SpaceChecker reports whether a directory's volume can hold a file
type SpaceChecker interface {
	Check(dir string, size int64) error
}

// DiskSpaceChecker checks free space with gopsutil
type DiskSpaceChecker struct{}

// Check returns a TooLarge error when dir's volume cannot hold size bytes plus a reserve.
// Failures to read usage are ignored; the write itself will surface them.
func (DiskSpaceChecker) Check(dir string, size int64) error {
	if size <= 0 {
		return nil
	}

	usage, err := disk.Usage(dir)
	if err != nil {
		return nil
	}

	if int64(usage.Free) < size+diskReserve {
		return domain.NewError(domain.KindTooLarge,
			"not enough disk space: need %s, %s available",
			format.Bytes(size), format.Bytes(int64(usage.Free)))
	}
	return nil
}

// noSpaceCheck disables the pre-flight, used when no checker is configured.
type noSpaceCheck struct{}

func (noSpaceCheck) Check(string, int64) error { return nil }
