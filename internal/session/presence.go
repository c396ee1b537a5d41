package session

type PresenceState int

const (
	Idle PresenceState = iota
	Waiting
)

func (s PresenceState) String() string {
	if s == Waiting {
		return "waiting"
	}
	return "idle"
}

// Presence tracks whether a reply is awaited. There is no timeout: without a
// reply or a transport error it stays Waiting.
type Presence struct {
	state    PresenceState
	onChange func(PresenceState)
}

// NewPresence starts Idle. onChange, if set, sees every actual transition.
func NewPresence(onChange func(PresenceState)) *Presence {
	return &Presence{onChange: onChange}
}

func (p *Presence) State() PresenceState { return p.state }

func (p *Presence) OnUserSend() { p.set(Waiting) }

func (p *Presence) OnAssistantReply() { p.set(Idle) }

func (p *Presence) OnTransportError() { p.set(Idle) }

func (p *Presence) set(next PresenceState) {
	if p.state == next {
		return
	}
	p.state = next
	if p.onChange != nil {
		p.onChange(next)
	}
}
