package h5

import "fmt"

// Link-control payloads are literal byte pairs (plus, for the two
// SYNC_CONFIG variants, a third configuration byte) used exclusively
// during link establishment. WAKEUP/WOKEN/SLEEP are documented here
// for completeness against the Three-Wire UART standard but are never
// sent or acted on: this link never enters a sleep/wake low-power
// state.
var (
	LinkControlSync               = []byte{0x01, 0x7E}
	LinkControlSyncResponse       = []byte{0x02, 0x7D}
	LinkControlSyncConfig         = []byte{0x03, 0xFC, ConfigByte}
	LinkControlSyncConfigResponse = []byte{0x04, 0x7B, ConfigByte}
	LinkControlWakeup             = []byte{0x05, 0xFA}
	LinkControlWoken              = []byte{0x06, 0xF9}
	LinkControlSleep              = []byte{0x07, 0x78}
)

// ConfigByte is the third byte of SYNC_CONFIG/SYNC_CONFIG_RESPONSE:
// sliding-window-size = 1, no out-of-frame control, data-integrity
// bit (bit 4) set, version 0.
const ConfigByte = 0x11

// DescribeLinkControl renders a link-control payload as a
// human-readable string for trace logging, decoding the config byte's
// sub-fields the way the original's hciPacketLinkControlToString did.
func DescribeLinkControl(payload []byte) string {
	switch {
	case matches(payload, LinkControlSync):
		return "SYNC"
	case matches(payload, LinkControlSyncResponse):
		return "SYNC_RESPONSE"
	case len(payload) >= 2 && payload[0] == LinkControlSyncConfig[0] && payload[1] == LinkControlSyncConfig[1]:
		return fmt.Sprintf("SYNC_CONFIG(%s)", describeConfig(payload))
	case len(payload) >= 2 && payload[0] == LinkControlSyncConfigResponse[0] && payload[1] == LinkControlSyncConfigResponse[1]:
		return fmt.Sprintf("SYNC_CONFIG_RESPONSE(%s)", describeConfig(payload))
	case matches(payload, LinkControlWakeup):
		return "WAKEUP"
	case matches(payload, LinkControlWoken):
		return "WOKEN"
	case matches(payload, LinkControlSleep):
		return "SLEEP"
	default:
		return fmt.Sprintf("UNKNOWN(% X)", payload)
	}
}

func describeConfig(payload []byte) string {
	if len(payload) < 3 {
		return "no config byte"
	}
	cfg := payload[2]
	window := cfg & 0x07
	oof := cfg&0x08 != 0
	integrity := cfg&0x10 != 0
	version := (cfg >> 5) & 0x07
	return fmt.Sprintf("window=%d oof=%v integrity=%v version=%d", window, oof, integrity, version)
}

func matches(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
