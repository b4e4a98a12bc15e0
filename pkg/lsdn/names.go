/*
Copyright 2019 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lsdn

import (
	lru "github.com/hashicorp/golang-lru"
)

// nameTableCacheSize bounds the LRU sitting in front of each names table's
// map lookup, consulted by the SettingsByName/NetByName/PhysByName/
// VirtByName lookups. The validator itself does not look objects up by
// name.
const nameTableCacheSize = 256

// names is a unique-string registry scoped to a namespace (a context's
// settings/nets/physes, or a single net's virts), grounded on
// netmodel/private/names.h's lsdn_names/lsdn_name pair. Lookup is O(1)
// average via the backing map; the LRU in front is kept in step with the
// map on every set and remove, so it never changes a lookup's result. It is
// kept to mirror the teacher's caching idiom; the map itself is unbounded.
type names struct {
	byName map[string]interface{}
	cache  *lru.Cache
}

func newNames() *names {
	cache, err := lru.New(nameTableCacheSize)
	if err != nil {
		panic(err)
	}
	return &names{
		byName: make(map[string]interface{}),
		cache:  cache,
	}
}

// set registers obj under name, returning ErrDuplicate if the name is
// already in use by a different object. Mirrors lsdn_name_set.
func (n *names) set(name string, obj interface{}) error {
	if existing, ok := n.byName[name]; ok && existing != obj {
		return ErrDuplicate
	}
	n.byName[name] = obj
	n.cache.Add(name, obj)
	return nil
}

// remove drops name from the table, the removal lsdn_names's own doc
// comment says is a TODO in the C library; Go's map makes it trivial so we
// provide it directly, used when an object is renamed or freed.
func (n *names) remove(name string) {
	delete(n.byName, name)
	n.cache.Remove(name)
}

// search looks up name, mirroring lsdn_names_search. It consults the LRU
// first and falls back to the backing map, refreshing the cache on a miss.
func (n *names) search(name string) (interface{}, bool) {
	if v, ok := n.cache.Get(name); ok {
		return v, true
	}
	v, ok := n.byName[name]
	if ok {
		n.cache.Add(name, v)
	}
	return v, ok
}
