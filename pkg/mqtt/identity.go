package mqtt

import (
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
)

// ClientID derives a stable client identity from the machine so a
// device keeps the same broker session across restarts. When no
// machine ID is available it falls back to the process ID.
func ClientID(prefix string) string {
	id, err := machineid.ProtectedID("sport.go")
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, os.Getpid())
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return prefix + "-" + id
}
