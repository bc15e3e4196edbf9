package model

// DefaultChannelmA is the current drawn by one SK6812/WS2812 channel at full
// scale.
const DefaultChannelmA = 20.0

// Power dims a frame before it is shown.
type Power struct {
	// Brightness scales every LED, 0 to 1. Zero means full brightness.
	Brightness float64
	// WhiteCap caps R+G+B of each LED, in full scale channels (3 is no cap).
	// Zero disables the cap.
	WhiteCap float64
	// ChannelmA is the current of one channel at full scale. Defaults to
	// DefaultChannelmA.
	ChannelmA float64
	// BudgetmA is the supply budget for the whole strip. Zero disables the
	// limit.
	BudgetmA float64
}

// Apply dims s in place: brightness, then the per LED white cap, then the
// global current budget.
func (p Power) Apply(s Strip) {
	if p.Brightness > 0 && p.Brightness < 1 {
		for i := range s {
			s[i] = s[i].Scale(p.Brightness)
		}
	}
	if p.WhiteCap > 0 && p.WhiteCap < 3 {
		limit := p.WhiteCap * 255
		for i, c := range s {
			if sum := float64(c.R) + float64(c.G) + float64(c.B); sum > limit {
				s[i] = c.Scale(limit / sum)
			}
		}
	}
	if p.BudgetmA <= 0 {
		return
	}
	if total := p.Current(s); total > p.BudgetmA {
		scale := p.BudgetmA / total
		for i := range s {
			s[i] = s[i].Scale(scale)
		}
	}
}

// Current estimates the current s draws in mA.
func (p Power) Current(s Strip) float64 {
	chanmA := p.ChannelmA
	if chanmA <= 0 {
		chanmA = DefaultChannelmA
	}
	var sum float64
	for _, c := range s {
		sum += float64(c.R) + float64(c.G) + float64(c.B)
	}
	return sum / 255 * chanmA
}
