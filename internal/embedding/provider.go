package embedding

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/synapse/internal/domain"
)

var ErrEmptyInput = errors.New("embedding input is empty")

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	// ProviderNone disables embeddings; the graph store then ranks by full-text search.
	ProviderNone = "none"
)

// NewClient maps EMBEDDING_PROVIDER to a client. ProviderNone yields a nil
// client and no error.
func NewClient(provider, apiKey string) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderNone:
		return nil, nil
	case ProviderMock:
		return NewMockClient(), nil
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai embedding provider")
		}
		return NewOpenAIClient(apiKey), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q (want %s, %s or %s)", provider, ProviderOpenAI, ProviderMock, ProviderNone)
}
