// Package domain defines the core types and interfaces for the drone
// voice client. All other packages depend on domain; domain depends on nothing.
package domain

import "fmt"

// VoiceCommand is an action the operator can trigger by voice.
// The numeric codes are stable and match the flight protocol flags.
type VoiceCommand int

const (
	Unknown          VoiceCommand = 0
	TakeOff          VoiceCommand = 1
	Land             VoiceCommand = 2
	EmergencyLanding VoiceCommand = 4
)

// Commands lists every known command in declaration order.
var Commands = []VoiceCommand{Unknown, TakeOff, Land, EmergencyLanding}

// String returns the symbolic name of the command.
func (c VoiceCommand) String() string {
	switch c {
	case Unknown:
		return "Unknown"
	case TakeOff:
		return "TakeOff"
	case Land:
		return "Land"
	case EmergencyLanding:
		return "EmergencyLanding"
	default:
		return fmt.Sprintf("VoiceCommand(%d)", int(c))
	}
}

// Description returns the human-readable label shown to the operator.
// Values without a registered label fall back to String.
func (c VoiceCommand) Description() string {
	switch c {
	case Unknown:
		return "Unknown"
	case TakeOff:
		return "Takeoff"
	case Land:
		return "Land"
	case EmergencyLanding:
		return "Emergency Landing"
	default:
		return c.String()
	}
}

// Code returns the stable numeric code.
func (c VoiceCommand) Code() int { return int(c) }

// Describe is the lookup used by the display and the log.
func Describe(c VoiceCommand) string { return c.Description() }

// commandNames maps symbolic names to commands.
var commandNames = map[string]VoiceCommand{
	"Unknown":          Unknown,
	"TakeOff":          TakeOff,
	"Land":             Land,
	"EmergencyLanding": EmergencyLanding,
}

// ParseVoiceCommand converts a symbolic name (as written in config files)
// to a VoiceCommand. Returns false for unrecognized names.
func ParseVoiceCommand(name string) (VoiceCommand, bool) {
	c, ok := commandNames[name]
	return c, ok
}
