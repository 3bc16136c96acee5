package eventfilter

import (
	"fmt"

	"hyperwatch/internal/domain"
)

// remove applies a remove action: without an element the key is deleted;
// with one, the element is removed from the list or map stored at key. When
// met is set the list holds named entries and the entry called element goes.
func remove(ev domain.Event, a domain.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Element == nil {
		delete(ev, a.Key)
		return nil
	}

	switch target := ev[a.Key].(type) {
	case []any:
		if domain.Truthy(a.Met) {
			for i, item := range target {
				if m, ok := item.(map[string]any); ok && domain.ValuesEqual(m["name"], a.Element) {
					ev[a.Key] = without(target, i)
					return nil
				}
			}
			return nil
		}
		for i, item := range target {
			if domain.ValuesEqual(item, a.Element) {
				ev[a.Key] = without(target, i)
				return nil
			}
		}
		if _, numeric := domain.ToFloat(a.Element); numeric {
			idx, _ := domain.ToInt(a.Element)
			if idx >= 0 && int(idx) < len(target) {
				ev[a.Key] = without(target, int(idx))
			}
		}
		return nil
	case map[string]any:
		delete(target, fmt.Sprint(a.Element))
		return nil
	case nil:
		return fmt.Errorf("%w: remove: key %s not present", domain.ErrMalformedAction, a.Key)
	default:
		return fmt.Errorf("%w: remove: key %s holds neither a list nor a map", domain.ErrMalformedAction, a.Key)
	}
}

func without(list []any, i int) []any {
	out := make([]any, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
