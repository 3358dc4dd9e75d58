// Package plugins loads third-party extensions into a quire host.
//
// # Overview
//
// The Loader takes resolved plugin paths and, for each one, detects the
// packaging convention from the nearest plugin.yaml, imports the entry file,
// checks that it exports a load member, and calls it with the Host. Every
// step is isolated per plugin: a failure is logged and recorded in that
// plugin's Result and the batch moves on.
//
// # Conventions
//
// native (default): a Go shared object built with -buildmode=plugin. The
// object must export
//
//	func Load(host plugins.Host) error
//
// rpc: an executable speaking the go-plugin net/rpc protocol. Its main calls
//
//	plugins.Serve(map[string]plugins.Member{
//		"load": func(info plugins.HostInfo) error { ... },
//	})
//
// # Manifest
//
//	id: search-index
//	name: Search Index
//	version: 1.2.0
//	convention: rpc
//	main: bin/search-index
//
// # Messages
//
// Each load attempt logs exactly one of:
//
//	info:  Loaded plugin <path>
//	error: The plugin <path> could not be loaded
//	error: Invalid structure in plugin <path>, no load function found
//
// # Usage Example
//
//	loader := plugins.NewLoader(log, plugins.WithConcurrency(4))
//	results := loader.Load(ctx, app, []string{"/plugins/search-index"})
//	for _, res := range results {
//		if !res.OK() {
//			fmt.Println(res.Path, res.Status)
//		}
//	}
package plugins
