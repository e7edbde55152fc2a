package cache

import "strings"

// Separator joins the segments of a cache key. Keys are otherwise opaque.
const Separator = ":"

// KeyAll is the key of the full listing of a resource, e.g. "products:all".
func KeyAll(resource string) string { return resource + Separator + "all" }

// KeyItem is the key of one item, e.g. "product:42".
func KeyItem(resource, id string) string { return resource + Separator + id }

// Key joins arbitrary segments with Separator.
func Key(parts ...string) string { return strings.Join(parts, Separator) }
