package types

import (
	"fmt"
	"strings"
)

// VolumeRef identifies a persistent volume claim by name and namespace.
// It is the parsed form of the "volume@namespace" convention used on the
// command line and in exported artifact names. Parsing happens once at the
// boundary; everything downstream works with the value type.
type VolumeRef struct {
	Name      string
	Namespace string
}

// ParseVolumeRef parses "name" or "name@namespace". When no namespace is
// present the supplied default is used.
func ParseVolumeRef(s, defaultNamespace string) (VolumeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return VolumeRef{}, fmt.Errorf("empty volume reference")
	}

	name, ns, found := strings.Cut(s, "@")
	if !found {
		ns = defaultNamespace
	}
	if name == "" {
		return VolumeRef{}, fmt.Errorf("invalid volume reference %q: missing volume name", s)
	}
	if strings.Contains(ns, "@") {
		return VolumeRef{}, fmt.Errorf("invalid volume reference %q: multiple '@' separators", s)
	}
	if ns == "" {
		ns = "default"
	}

	return VolumeRef{Name: name, Namespace: ns}, nil
}

// String renders the canonical "name@namespace" form.
func (r VolumeRef) String() string {
	return r.Name + "@" + r.Namespace
}

// ArtifactName returns the file or directory name an export of this volume
// produces: "{volume}@{namespace}.{ext}", or a bare "{volume}@{namespace}"
// directory for the plain-directory format.
func (r VolumeRef) ArtifactName(format Format) string {
	ext := format.Ext()
	if ext == "" {
		return r.String()
	}
	return r.String() + "." + ext
}
