package ui

import "cloudweave/internal/job"

// envelopeMsg carries one notification from the machine's inbox.
type envelopeMsg struct {
	Env job.Envelope
}

type inboxClosedMsg struct{}
