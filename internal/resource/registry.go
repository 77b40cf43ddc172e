// Package resource implements whole-collection CRUD over the blog's named resources.
//
// Every resource is persisted as one JSON value in a kv.Store under its name.
// List resources hold an ordered array of items; singleton resources hold one
// object. Mutations read the whole value, change it in memory and write it
// back. There is no locking: concurrent writers race and the last write wins.
package resource

// Kind distinguishes array-valued resources from single-object resources.
type Kind int

const (
	// KindList is an ordered collection of items addressed by id.
	KindList Kind = iota
	// KindSingleton is a single object that is overwritten whole.
	KindSingleton
)

// String returns a readable kind name.
func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindSingleton:
		return "singleton"
	default:
		return "unknown"
	}
}

// Resource describes one allow-listed resource.
type Resource struct {
	Name string // Public name used in URLs and as the store key.
	Kind Kind   // Storage shape.
}

// SettingsName is the only singleton resource.
const SettingsName = "settings"

// registry lists the allow-listed resources in display order.
var registry = []Resource{
	{Name: "articles", Kind: KindList},
	{Name: "categories", Kind: KindList},
	{Name: "tags", Kind: KindList},
	{Name: "comments", Kind: KindList},
	{Name: "guestbook", Kind: KindList},
	{Name: "users", Kind: KindList},
	{Name: "images", Kind: KindList},
	{Name: "music", Kind: KindList},
	{Name: "videos", Kind: KindList},
	{Name: "links", Kind: KindList},
	{Name: "apps", Kind: KindList},
	{Name: "resumes", Kind: KindList},
	{Name: "events", Kind: KindList},
	{Name: SettingsName, Kind: KindSingleton},
}

// registryByName indexes registry for Lookup.
var registryByName = func() map[string]Resource {
	out := make(map[string]Resource, len(registry))
	for _, res := range registry {
		out[res.Name] = res
	}
	return out
}()

// Lookup resolves an allow-listed resource by exact name.
func Lookup(name string) (Resource, bool) {
	res, ok := registryByName[name]
	return res, ok
}

// All returns the allow-listed resources in display order.
func All() []Resource {
	out := make([]Resource, len(registry))
	copy(out, registry)
	return out
}

// Names returns the allow-listed resource names in display order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for _, res := range registry {
		out = append(out, res.Name)
	}
	return out
}
