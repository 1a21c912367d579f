package format

import "strconv"

// HumanizeBitrate renders a bits-per-second figure with a decimal SI
// prefix (e.g. "2.5 Mbit/s"). Zero reads as "unlimited".
func HumanizeBitrate(bps uint64) string {
	if bps == 0 {
		return "unlimited"
	}
	const unit = 1000
	if bps < unit {
		return strconv.FormatUint(bps, 10) + " bit/s"
	}
	div, exp := uint64(unit), 0
	for n := bps / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	var buf [24]byte
	s := strconv.AppendFloat(buf[:0], float64(bps)/float64(div), 'f', 1, 64)
	return string(s) + " " + []string{"kbit/s", "Mbit/s", "Gbit/s", "Tbit/s"}[exp]
}
