// Package registry implements weft package management: the pkg.weft
// manifest, zip packaging, publishing to and unpublishing from registries,
// and vendoring published packages into a workspace's __weft__ directory.
package registry
