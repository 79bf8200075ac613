package agent

import (
	"errors"
	"fmt"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

// ErrHistoryMismatch reports persisted history shorter than the batch
// being submitted as new. Appending anyway would silently duplicate or
// lose messages, so assembly fails loudly instead.
var ErrHistoryMismatch = errors.New("prior history shorter than pending batch")

// AssembleHistory builds the ordered prompt for one LLM request: one
// system message, then the portion of persisted history that predates
// the pending batch, then the pending messages verbatim. The pending
// messages are already persisted on arrival, so they form the tail of
// prior and are replaced by the buffered copies to preserve arrival
// order exactly.
func AssembleHistory(systemPrompt string, prior, pending []providers.Message) ([]providers.Message, error) {
	if len(prior) < len(pending) {
		return nil, fmt.Errorf("%w: %d prior < %d pending", ErrHistoryMismatch, len(prior), len(pending))
	}

	assembled := make([]providers.Message, 0, 1+len(prior))
	assembled = append(assembled, providers.Message{
		Role:    providers.RoleSystem,
		Content: systemPrompt,
	})
	assembled = append(assembled, prior[:len(prior)-len(pending)]...)
	assembled = append(assembled, pending...)
	return assembled, nil
}
