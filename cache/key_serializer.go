package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the serializer producing
// "namespace::part::part" keys.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins namespace and the rendered parts with KeySeparator.
func (defaultKeySerializer) SerializeKey(namespace string, parts ...any) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, namespace)
	for _, part := range parts {
		segments = append(segments, serializePart(part))
	}
	return strings.Join(segments, KeySeparator)
}

// NamespacePrefix returns the prefix shared by every key of namespace.
func (defaultKeySerializer) NamespacePrefix(namespace string) string {
	return namespace + KeySeparator
}

func serializePart(v any) string {
	switch p := v.(type) {
	case nil:
		return "nil"
	case string:
		return p
	case fmt.Stringer:
		return p.String()
	case []string:
		return "[" + strings.Join(p, ",") + "]"
	case map[string]string:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + p[k]
		}
		return "{" + strings.Join(pairs, ",") + "}"
	}
	return fmt.Sprintf("%v", v)
}
