package ds3231

// toBCD converts 0-99 to packed BCD.
func toBCD(dec uint8) uint8 {
	return dec + 6*(dec/10)
}

// fromBCD converts packed BCD to binary.
func fromBCD(bcd uint8) uint8 {
	return bcd - 6*(bcd>>4)
}

// hourFromReg decodes the hour register, in either 12 or 24 hour mode, to
// 0-23.
func hourFromReg(r uint8) uint8 {
	if r&hour12 == 0 {
		return fromBCD(r & 0x3F)
	}
	h := fromBCD(r & 0x1F)
	if h == 12 {
		h = 0
	}
	if r&hourPM != 0 {
		h += 12
	}
	return h
}
