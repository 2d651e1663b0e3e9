// Package sym defines canonical glyphs for jobtrail subsystems and system
// markers. These symbols are stable across CLI output and documentation.
package sym

// Subsystem symbols used as visual markers in CLI output.
const (
	Track  = "⌬" // track — candidates, applications, interviews
	Remind = "✦" // remind — reminder scheduling and delivery
	Audit  = "⊨" // audit — append-only change trail
	Pulse  = "꩜" // pulse — async jobs and the supervisor ticker
	DB     = "⊔" // database/storage layer
)

// SymbolToCommand maps each subsystem glyph to its CLI command name.
var SymbolToCommand = map[string]string{
	Track:  "track",
	Remind: "remind",
	Audit:  "audit",
	Pulse:  "pulse",
	DB:     "db",
}

// CommandToSymbol is the reverse mapping of SymbolToCommand.
var CommandToSymbol = map[string]string{}

func init() {
	for symbol, cmd := range SymbolToCommand {
		CommandToSymbol[cmd] = symbol
	}
}
