// Package route holds the data model shared by generated route tables and
// the router runtime.
//
// Generated code registers table functions into a Catalog from init():
//
//	func init() {
//		route.DefaultCatalog.RegisterRoot("app", func(idx route.GroupIndex) error {
//			return idx.AddGroup("user", userGroup)
//		})
//	}
//
// At start-up the router walks the catalog, records every group loader and
// interceptor, and materializes a group's metadata only when one of its paths
// is first resolved. Nothing in this package discovers types at runtime;
// every target is constructed through the Factory attached to its Meta.
package route
