// Package memo provides time-bounded memoization for expensive queries.
//
// A Value wraps a Supplier with a TTL. Values are owned by whatever object
// needs the cached result and live as long as that owner; there is no
// package-level cache state. A Registry maps preset names such as
// "short-lived-stat" or "static" to TTLs so that owners pick a policy per
// value at construction time.
//
//	procs := memo.New(listProcesses, registry.TTL(memo.PolicyShortLivedStat),
//		memo.WithName("processes"),
//		memo.WithLogger(logger))
//
//	snapshot, err := procs.Get(ctx)
package memo
