// Package kv provides a small key-value store abstraction with in-memory and
// Redis-backed implementations.
//
// Backends register themselves on import:
//
//	import _ "github.com/leafsii/leafsii-farm/pkg/kv/memory"
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.MSet(ctx, map[string][]byte{
//		"farm:state":  stateJSON,
//		"farm:pool:1": poolJSON,
//	})
//
// MSet is atomic in both backends, which is what lets a farm operation commit
// every record it touched in one write. The in-memory store is meant for
// development and tests; the Redis adapter wraps go-redis/v9.
package kv
