package rpc

import "fmt"

const DefaultMaxDepth = 1000

type ValidationServiceConfig struct {
	AvailableProviders []string
	MaxDepth           int
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}
	return &ValidationService{
		config: config,
	}
}

func (s *ValidationService) IsSupportedProvider(provider string) bool {
	for _, p := range s.config.AvailableProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// ValidateDepth accepts 0 (whole book) up to the configured maximum.
func (s *ValidationService) ValidateDepth(depth int) error {
	if depth < 0 || depth > s.config.MaxDepth {
		return fmt.Errorf("max_depth must be between 0 and %d, got %d", s.config.MaxDepth, depth)
	}
	return nil
}
