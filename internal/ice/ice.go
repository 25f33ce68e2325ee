package ice

import (
	"flag"

	"github.com/lanikai/srtpice/internal/logging"
)

const defaultStunServer = "stun2.l.google.com:19302"

// log is the package-level leveled logger for internal/ice, tagged so
// LOGLEVEL=ice=debug (or LOGLEVEL=ice=trace for maximum verbosity) overrides its
// level independently of other packages, per the teacher's
// internal/ice/mdns.WithTag pattern.
var log = logging.DefaultLogger.WithTag("ice")

var (
	// Whether or not to allow IPv6 ICE candidates
	flagEnableIPv6 bool

	// Host:port of STUN server
	flagStunServer string
)

func init() {
	flag.BoolVar(&flagEnableIPv6, "6", false, "Allow use of IPv6")
	flag.StringVar(&flagStunServer, "stunServer", defaultStunServer, "STUN server address")
}
