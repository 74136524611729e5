// Package resolve settles every open question about an import target
// before any worker is created: which namespace and volume to use, whether
// they must be created, the storage class and capacity for fresh volumes,
// and the merge policy for existing ones. The artifact naming convention
// (volume@namespace plus the archive extension) seeds the suggestions.
package resolve
