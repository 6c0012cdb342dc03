package identity

import (
	"fmt"

	"github.com/jaevor/go-nanoid"
)

const (
	participantIDPrefix = "user-"
	messageIDPrefix     = "msg-"
	displayNamePrefix   = "Anon-"

	// 12 chars of 64-symbol alphabet is 72 bits.
	participantIDLength = 12
	messageIDLength     = 16
	displayNameLength   = 4

	base36Upper = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type Generator struct {
	participantID func() string
	messageID     func() string
	displayName   func() string
}

func NewGenerator() (*Generator, error) {
	participantID, err := nanoid.Standard(participantIDLength)
	if err != nil {
		return nil, fmt.Errorf("participant id generator: %w", err)
	}
	messageID, err := nanoid.Standard(messageIDLength)
	if err != nil {
		return nil, fmt.Errorf("message id generator: %w", err)
	}
	displayName, err := nanoid.CustomASCII(base36Upper, displayNameLength)
	if err != nil {
		return nil, fmt.Errorf("display name generator: %w", err)
	}
	return &Generator{
		participantID: participantID,
		messageID:     messageID,
		displayName:   displayName,
	}, nil
}

func (g *Generator) NewParticipantID() string {
	return participantIDPrefix + g.participantID()
}

func (g *Generator) NewMessageID() string {
	return messageIDPrefix + g.messageID()
}

// NewDisplayName returns a cosmetic label like "Anon-7QZ2". Collisions are allowed.
func (g *Generator) NewDisplayName() string {
	return displayNamePrefix + g.displayName()
}
