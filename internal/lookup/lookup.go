// Package lookup implements the lookup binder: rewriting a resolved
// record's lookup fields into the platform's
// "<NavigationName>@odata.bind": "/<entity-set>(<guid>)" wire form before
// it is dispatched as a create/update operation.
package lookup

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dynamics-transfer/internal/value"
)

// Binding describes how one lookup field is wired to the platform: its
// schema-cased navigation property name and the target entity set (plural,
// URL form) it binds into.
type Binding struct {
	NavigationName  string
	TargetEntitySet string
}

// BindingContext maps a lookup field's logical name to its Binding. It is
// rebuilt from metadata on demand and lives for one transform cycle.
type BindingContext map[string]Binding

// Bind rewrites fields:
//   - a field present in ctx whose value is Null is omitted entirely;
//   - a field present in ctx whose value is a Guid (or a string parsable as
//     one) becomes "<NavigationName>@odata.bind": "/<entity-set>(<guid>)",
//     and the original key is dropped;
//   - any other field (not in ctx, or in ctx but not Guid/Null) is retained
//     under its original key, converted via Value->JSON.
func Bind(ctx BindingContext, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, raw := range fields {
		v := value.FromJSON(raw)
		binding, isLookup := ctx[key]
		if !isLookup {
			out[key] = v.ToJSON()
			continue
		}
		if v.IsNull() {
			continue
		}
		if guid, ok := asGuid(v); ok {
			bindKey := binding.NavigationName + "@odata.bind"
			out[bindKey] = fmt.Sprintf("/%s(%s)", binding.TargetEntitySet, guid.String())
			continue
		}
		out[key] = v.ToJSON()
	}
	return out
}

func asGuid(v value.Value) (uuid.UUID, bool) {
	if v.Kind == value.KindGuid {
		return v.Guid, true
	}
	if v.Kind == value.KindString {
		if id, err := uuid.Parse(strings.TrimSpace(v.Str)); err == nil {
			return id, true
		}
	}
	return uuid.UUID{}, false
}
