package records

import "github.com/erp/client/internal/domain/offline"

// Validator is implemented by records that can be checked before a mutation
type Validator interface {
	Validate() error
}

func validateCode(kind, code string) error {
	if code == "" {
		return offline.NewDomainError("INVALID_CODE", kind+" code cannot be empty")
	}
	if len(code) > 50 {
		return offline.NewDomainError("INVALID_CODE", kind+" code cannot exceed 50 characters")
	}
	for _, r := range code {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return offline.NewDomainError("INVALID_CODE", kind+" code can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

func validateName(kind, name string) error {
	if name == "" {
		return offline.NewDomainError("INVALID_NAME", kind+" name cannot be empty")
	}
	if len(name) > 200 {
		return offline.NewDomainError("INVALID_NAME", kind+" name cannot exceed 200 characters")
	}
	return nil
}
