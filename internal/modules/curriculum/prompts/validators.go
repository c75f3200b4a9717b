package prompts

import (
	"fmt"
	"strings"
)

type Validator func(Input) error

func RequireNonEmpty(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if get == nil {
			return fmt.Errorf("validator for %s: getter is nil", field)
		}
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("%s required", field)
		}
		return nil
	}
}

func RequireSubUnit() Validator {
	return func(in Input) error {
		if in.SubUnit < 1 || in.SubUnit > 4 {
			return fmt.Errorf("sub-unit must be 1..4, got %d", in.SubUnit)
		}
		return nil
	}
}

func RequireUnit() Validator {
	return func(in Input) error {
		if in.Unit < 1 {
			return fmt.Errorf("unit must be positive, got %d", in.Unit)
		}
		return nil
	}
}
