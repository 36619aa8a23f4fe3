package validation

import (
	"fmt"
	"unicode"

	"pairchat/internal/constants"
	"pairchat/internal/errors"
	"pairchat/internal/models"
)

// ValidateIdentityName validates an identity name from the wire before it is
// looked up in the directory.
func ValidateIdentityName(name string) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidEvent, "identity name cannot be empty").
			WithUserMessage("Invalid username.")
	}

	if len(name) > constants.MaxIdentityNameLength {
		return errors.New(errors.ErrCodeInvalidEvent,
			fmt.Sprintf("identity name too long (max %d characters)", constants.MaxIdentityNameLength)).
			WithUserMessage("Invalid username.")
	}

	for _, char := range name {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return errors.New(errors.ErrCodeInvalidEvent,
				"identity name must contain only letters, numbers, underscores, and dashes").
				WithUserMessage("Invalid username.")
		}
	}

	return nil
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.New(errors.ErrCodeInvalidEvent, "message ID cannot be empty").
			WithUserMessage("Invalid message data.")
	}

	if len(messageID) > constants.MaxMessageIDLength {
		return errors.New(errors.ErrCodeInvalidEvent,
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength)).
			WithUserMessage("Invalid message data.")
	}

	for _, char := range messageID {
		if char == '\x00' || char == '\n' || char == '\r' || char == '\t' {
			return errors.New(errors.ErrCodeInvalidEvent, "message ID contains invalid characters").
				WithUserMessage("Invalid message data.")
		}
	}

	return nil
}

// ValidatePayload validates a message payload beyond the union shape check:
// size bounds on text and attachment count.
func ValidatePayload(p models.Payload) error {
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidEvent, "invalid message payload").
			WithUserMessage("Invalid message data.")
	}

	if p.Kind == models.PayloadText && len(p.Text) > constants.MaxTextLength {
		return errors.New(errors.ErrCodeInvalidEvent,
			fmt.Sprintf("message text too long (max %d bytes)", constants.MaxTextLength)).
			WithUserMessage("Invalid message data.")
	}

	if p.Kind == models.PayloadFiles {
		if len(p.Files) > constants.MaxAttachments {
			return errors.New(errors.ErrCodeInvalidEvent,
				fmt.Sprintf("too many attachments (max %d)", constants.MaxAttachments)).
				WithUserMessage("Invalid message data.")
		}
		for i, f := range p.Files {
			if f.Data == "" {
				return errors.New(errors.ErrCodeInvalidEvent,
					fmt.Sprintf("attachment %d has no data", i)).
					WithUserMessage("Invalid message data.")
			}
		}
	}

	return nil
}
