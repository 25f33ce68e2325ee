package ice

import (
	"os"

	"github.com/rs/zerolog"
)

// events is a structured, machine-parseable log for the small set of
// high-value ICE lifecycle transitions: pair selection, role conflicts,
// and nomination. It sits alongside the teacher's free-form `log`
// logger rather than replacing it, mirroring how SilvaMendes-go-rtpengine
// layers a zerolog.Logger next to its own engine state for exactly the
// events an operator would want to alert on.
var events = zerolog.New(os.Stderr).With().
	Timestamp().
	Str("component", "ice").
	Logger()
