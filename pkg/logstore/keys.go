package logstore

import (
	"strings"

	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
)

const (
	dimensionTag   = "tag"
	dimensionGroup = "group"
)

// Keys builds the storage layout:
//
//	<prefix>:logs:<id>                     -> encoded StoredLogEntry
//	<prefix>:index:tag:<tag>:<id>          -> id
//	<prefix>:index:group:<group>:<id>      -> id
//
// Ids never contain ':', so the id is always the last key segment.
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	return Keys{prefix: strings.TrimSuffix(prefix, ":")}
}

func (k Keys) Log(id string) string {
	return k.prefix + ":logs:" + id
}

func (k Keys) logPrefix() string {
	return k.prefix + ":logs:"
}

func (k Keys) LogPattern() string {
	return kvstore.EscapePattern(k.logPrefix()) + "*"
}

// IDFromLogKey returns the id of a primary key
func (k Keys) IDFromLogKey(key string) (string, bool) {
	if !strings.HasPrefix(key, k.logPrefix()) {
		return "", false
	}
	return strings.TrimPrefix(key, k.logPrefix()), true
}

func (k Keys) indexPrefix(dimension string) string {
	return k.prefix + ":index:" + dimension + ":"
}

func (k Keys) TagIndex(tag string, id string) string {
	return k.indexPrefix(dimensionTag) + tag + ":" + id
}

func (k Keys) GroupIndex(group string, id string) string {
	return k.indexPrefix(dimensionGroup) + group + ":" + id
}

// IndexPattern matches every index key of both dimensions
func (k Keys) IndexPattern() string {
	return kvstore.EscapePattern(k.prefix+":index:") + "*"
}

// TagIndexPattern matches every tag index key
func (k Keys) TagIndexPattern() string {
	return kvstore.EscapePattern(k.indexPrefix(dimensionTag)) + "*"
}

// GroupIndexPattern matches every group index key
func (k Keys) GroupIndexPattern() string {
	return kvstore.EscapePattern(k.indexPrefix(dimensionGroup)) + "*"
}

// TagPattern matches the index keys of one tag (and of tags that extend it with ':';
// callers filter those with TagFromIndexKey)
func (k Keys) TagPattern(tag string) string {
	return kvstore.EscapePattern(k.indexPrefix(dimensionTag)+tag+":") + "*"
}

// GroupPattern matches the index keys of an exact group, or of every group starting
// with prefix when prefixMatch is set
func (k Keys) GroupPattern(group string, prefixMatch bool) string {
	if prefixMatch {
		return kvstore.EscapePattern(k.indexPrefix(dimensionGroup)+group) + "*"
	}
	return kvstore.EscapePattern(k.indexPrefix(dimensionGroup)+group+":") + "*"
}

// IDFromIndexKey returns the trailing id segment of an index key
func IDFromIndexKey(key string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return key
	}
	return key[i+1:]
}

func (k Keys) valueFromIndexKey(dimension string, key string) (string, bool) {
	prefix := k.indexPrefix(dimension)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(key, prefix)
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}

// GroupFromIndexKey returns the full group of a group index key
func (k Keys) GroupFromIndexKey(key string) (string, bool) {
	return k.valueFromIndexKey(dimensionGroup, key)
}

// TagFromIndexKey returns the tag of a tag index key
func (k Keys) TagFromIndexKey(key string) (string, bool) {
	return k.valueFromIndexKey(dimensionTag, key)
}
