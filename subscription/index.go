// Package subscription resolves change events to the communities that want them.
package subscription

import (
	"sort"

	"mod-update-notifier/db"
	"mod-update-notifier/diff"

	mapset "github.com/deckarep/golang-set/v2"
)

// Index is an immutable view of community preferences built once per cycle.
// Subscriptions are inverted so resolving an event only touches the servers
// that subscribed to its mod or owner, plus the ones without subscriptions.
type Index struct {
	servers    []db.Server // sorted by server id
	unfiltered []int       // positions of deliverable servers without subscriptions
	bySlug     map[string]mapset.Set[int]
	byOwner    map[string]mapset.Set[int]
}

// NewIndex builds an index. Servers without an updates channel are never
// resolved and subscriptions for unknown servers are ignored.
func NewIndex(servers []db.Server, modSubs []db.SubscribedMod, authorSubs []db.SubscribedAuthor) *Index {
	idx := &Index{
		servers: append([]db.Server(nil), servers...),
		bySlug:  make(map[string]mapset.Set[int]),
		byOwner: make(map[string]mapset.Set[int]),
	}
	sort.Slice(idx.servers, func(i, j int) bool { return idx.servers[i].ServerID < idx.servers[j].ServerID })

	deliverable := make(map[int64]int, len(idx.servers))
	for i, srv := range idx.servers {
		if srv.UpdatesChannel != nil {
			deliverable[srv.ServerID] = i
		}
	}

	subscribed := mapset.NewThreadUnsafeSet[int]()
	add := func(m map[string]mapset.Set[int], key string, serverID int64) {
		i, ok := deliverable[serverID]
		if !ok {
			return
		}
		set, ok := m[key]
		if !ok {
			set = mapset.NewThreadUnsafeSet[int]()
			m[key] = set
		}
		set.Add(i)
		subscribed.Add(i)
	}
	for _, s := range modSubs {
		add(idx.bySlug, s.ModName, s.ServerID)
	}
	for _, s := range authorSubs {
		add(idx.byOwner, s.AuthorName, s.ServerID)
	}

	for i, srv := range idx.servers {
		if srv.UpdatesChannel != nil && !subscribed.Contains(i) {
			idx.unfiltered = append(idx.unfiltered, i)
		}
	}
	return idx
}

// FromCommunities builds an index from a community store load.
func FromCommunities(c db.Communities) *Index {
	return NewIndex(c.Servers, c.Mods, c.Authors)
}

// Servers returns every indexed server in id order.
func (idx *Index) Servers() []db.Server {
	return idx.servers
}

// Resolve returns the servers that should be notified about ev, ordered by
// server id. A server qualifies when it has an updates channel and either
// has no subscriptions at all or subscribes to the mod or its owner.
// Metadata-only changes additionally require the server's opt-in.
func (idx *Index) Resolve(ev diff.ChangeEvent) []db.Server {
	hits := mapset.NewThreadUnsafeSet[int]()
	if set, ok := idx.bySlug[ev.Slug]; ok {
		hits = hits.Union(set)
	}
	if set, ok := idx.byOwner[ev.Owner]; ok {
		hits = hits.Union(set)
	}

	positions := append(hits.ToSlice(), idx.unfiltered...)
	sort.Ints(positions)

	var out []db.Server
	for _, i := range positions {
		srv := idx.servers[i]
		if ev.Kind == diff.MetadataChanged && !srv.NotifyMetadata {
			continue
		}
		out = append(out, srv)
	}
	return out
}
