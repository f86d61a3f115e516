package infrastructure

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/keygen-sh/machineid"
)

// DeviceID returns an app-scoped identifier for this machine. The raw
// machine id never leaves the host; machineid.ProtectedID hashes it with
// appID. When the platform id is unavailable a hash of the host name is
// used instead.
func DeviceID(appID string) string {
	id, err := machineid.ProtectedID(appID)
	if err == nil && id != "" {
		return id
	}

	GetLogger().Warn("machine id unavailable, using fallback device id",
		slog.String("error", fmt.Sprint(err)))
	return fallbackDeviceID(appID)
}

func fallbackDeviceID(appID string) string {
	hostInfo := fmt.Sprintf("%s-%s-%s", appID, runtime.GOOS, runtime.GOARCH)
	if hostname, err := os.Hostname(); err == nil {
		hostInfo = fmt.Sprintf("%s-%s", hostInfo, hostname)
	}

	hash := sha256.Sum256([]byte(hostInfo))
	return fmt.Sprintf("%x", hash)
}
