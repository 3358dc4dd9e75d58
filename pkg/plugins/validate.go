package plugins

import "fmt"

// LoadMember is the name of the activation member every plugin must export
const LoadMember = "load"

// Activation extracts the activation function from an imported module. The
// member must be callable with a Host; any other shape is a contract violation.
func Activation(module Module) (ActivateFunc, error) {
	raw, ok := module.Lookup(LoadMember)
	if !ok || raw == nil {
		return nil, ErrNoLoadFunction
	}

	var fn ActivateFunc
	switch v := raw.(type) {
	case ActivateFunc:
		fn = v
	case func(Host) error:
		fn = v
	case func(Host):
		if v != nil {
			fn = func(h Host) error {
				v(h)
				return nil
			}
		}
	case *ActivateFunc:
		if v != nil {
			fn = *v
		}
	case *func(Host) error:
		if v != nil {
			fn = *v
		}
	default:
		return nil, fmt.Errorf("%w: load member has type %T", ErrNoLoadFunction, raw)
	}

	if fn == nil {
		return nil, ErrNoLoadFunction
	}
	return fn, nil
}
