package session

// PendingLink holds at most one calendar link taken from a tool response
// until the next assistant reply picks it up. A new deposit replaces an
// unconsumed one.
type PendingLink struct {
	link    string
	present bool
}

// Deposit stores link and reports whether an unconsumed link was replaced.
func (p *PendingLink) Deposit(link string) (overwrote bool) {
	overwrote = p.present
	p.link = link
	p.present = true
	return overwrote
}

// ConsumeIfPresent returns the pending link and empties the slot.
func (p *PendingLink) ConsumeIfPresent() (string, bool) {
	if !p.present {
		return "", false
	}
	link := p.link
	p.link = ""
	p.present = false
	return link, true
}
