package common

const (
	ComponentWatcher   = "watcher"
	ComponentStore     = "store"
	ComponentNotify    = "notify"
	ComponentNames     = "name-registry"
	ComponentKeys      = "key-registry"
	ComponentNotes     = "note-indexer"
	ComponentRequests  = "request-indexer"
	ComponentHomeCoin  = "home-coin-indexer"
	ComponentForeign   = "foreign-coin-indexer"
	ComponentEth       = "eth-indexer"
	ComponentBridge    = "bridge-indexer"
	ComponentRPC       = "rpc"
	ComponentSubmitter = "tx-submitter"
	ComponentBundler   = "bundler"
)

var AllComponents = map[string]struct{}{
	ComponentWatcher:   {},
	ComponentStore:     {},
	ComponentNotify:    {},
	ComponentNames:     {},
	ComponentKeys:      {},
	ComponentNotes:     {},
	ComponentRequests:  {},
	ComponentHomeCoin:  {},
	ComponentForeign:   {},
	ComponentEth:       {},
	ComponentBridge:    {},
	ComponentRPC:       {},
	ComponentSubmitter: {},
	ComponentBundler:   {},
}
