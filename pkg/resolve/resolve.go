package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pvcship/pvcship/pkg/archive"
	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/prompt"
	"github.com/pvcship/pvcship/pkg/quantity"
	"github.com/pvcship/pvcship/pkg/types"
)

// Options carries the request-level inputs to resolution. Explicit values
// win over anything derived from the source name or the cluster.
type Options struct {
	// DefaultNamespace is the fallback when the artifact name carries no
	// usable namespace fragment.
	DefaultNamespace string
	// Merge, when set, skips the merge/clear decision for existing volumes.
	Merge types.MergePolicy
}

// Resolver turns an import source path into a fully determined target.
// Every ambiguity is settled here, through prompts when a human is
// available, so that nothing downstream ever has to ask.
type Resolver struct {
	gw       kubectl.Gateway
	prompter prompt.Prompter
}

// NewResolver creates a target resolver.
func NewResolver(gw kubectl.Gateway, prompter prompt.Prompter) *Resolver {
	return &Resolver{gw: gw, prompter: prompter}
}

// SuggestTarget derives a volume/namespace suggestion from the artifact
// name. "data@prod.tgz" suggests volume "data" in namespace "prod"; the
// namespace fragment is adopted only when that namespace exists in the
// cluster. The returned namespace falls back to defaultNamespace.
func (r *Resolver) SuggestTarget(ctx context.Context, source, defaultNamespace string) (types.VolumeRef, error) {
	base := archive.StripSuffix(filepath.Base(filepath.Clean(source)))

	volume := base
	namespace := defaultNamespace
	if name, ns, ok := strings.Cut(base, "@"); ok && ns != "" {
		volume = name
		exists, err := r.namespaceExists(ctx, ns)
		if err != nil {
			return types.VolumeRef{}, err
		}
		if exists {
			namespace = ns
		}
	}

	return types.VolumeRef{Name: sanitizeName(volume), Namespace: namespace}, nil
}

// Resolve walks the full decision chain for one import source:
// namespace, volume, storage class and capacity for fresh volumes, and
// the merge policy for existing ones. In a non-interactive run it accepts
// only unambiguous suggestions and returns a ResolutionError otherwise.
func (r *Resolver) Resolve(ctx context.Context, source string, opts Options) (*types.ResolvedTarget, error) {
	suggested, err := r.SuggestTarget(ctx, source, opts.DefaultNamespace)
	if err != nil {
		return nil, err
	}
	if suggested.Name == "" {
		return nil, &types.ResolutionError{Reason: fmt.Sprintf("cannot derive a volume name from %q", source)}
	}

	estimate, err := archive.EstimateSize(source)
	if err != nil {
		return nil, fmt.Errorf("estimating size of %s: %w", source, err)
	}

	target := &types.ResolvedTarget{EstimatedBytes: estimate}

	target.Volume.Namespace, target.NewNamespace, err = r.resolveNamespace(ctx, suggested.Namespace)
	if err != nil {
		return nil, err
	}

	var exists bool
	target.Volume.Name, exists, err = r.resolveVolume(ctx, suggested.Name, target)
	if err != nil {
		return nil, err
	}

	if exists {
		target.Merge, err = r.resolveMerge(target.Volume, opts.Merge)
		if err != nil {
			return nil, err
		}
		return target, nil
	}

	target.NewVolume = true
	// Fresh volumes get cleared before extraction so filesystem artifacts
	// like lost+found never survive into the imported tree.
	target.Merge = types.MergePolicyClear

	target.StorageClass, err = r.resolveStorageClass(ctx)
	if err != nil {
		return nil, err
	}
	target.CapacityBytes, err = r.resolveCapacity(estimate)
	if err != nil {
		return nil, err
	}

	log.WithVolume(target.Volume.String()).Debug().
		Str("storage_class", target.StorageClass).
		Str("capacity", quantity.FormatGi(target.CapacityBytes)).
		Bool("new_namespace", target.NewNamespace).
		Msg("resolved fresh volume target")
	return target, nil
}

func (r *Resolver) resolveNamespace(ctx context.Context, suggested string) (string, bool, error) {
	namespace := suggested
	if r.prompter.Interactive() {
		answer, err := r.prompter.Input("Import into namespace", suggested)
		if err != nil {
			return "", false, err
		}
		namespace = answer
	}
	if namespace == "" {
		return "", false, &types.ResolutionError{Reason: "no target namespace"}
	}

	exists, err := r.namespaceExists(ctx, namespace)
	if err != nil {
		return "", false, err
	}
	if exists {
		return namespace, false, nil
	}

	create, err := r.prompter.Confirm(fmt.Sprintf("Namespace %q does not exist. Create it?", namespace), true)
	if err != nil {
		return "", false, err
	}
	if !create {
		return "", false, &types.ResolutionError{Reason: fmt.Sprintf("namespace %q does not exist", namespace)}
	}
	return namespace, true, nil
}

func (r *Resolver) resolveVolume(ctx context.Context, suggested string, target *types.ResolvedTarget) (string, bool, error) {
	name := suggested
	if r.prompter.Interactive() {
		answer, err := r.prompter.Input("Import into volume", suggested)
		if err != nil {
			return "", false, err
		}
		name = sanitizeName(answer)
	}
	if name == "" {
		return "", false, &types.ResolutionError{Reason: "no target volume"}
	}

	// A namespace that does not exist yet cannot hold the volume either,
	// so the lookup only makes sense in an existing one. Creating the
	// volume still needs its own confirmation.
	if !target.NewNamespace {
		pvc, err := r.gw.GetPVC(ctx, name, target.Volume.Namespace)
		if err != nil {
			return "", false, err
		}
		if pvc != nil {
			return name, true, nil
		}
	}

	create, err := r.prompter.Confirm(fmt.Sprintf("Volume %q does not exist. Create it?", name), true)
	if err != nil {
		return "", false, err
	}
	if !create {
		return "", false, &types.ResolutionError{Reason: fmt.Sprintf("volume %q does not exist", name)}
	}
	return name, false, nil
}

func (r *Resolver) resolveMerge(volume types.VolumeRef, explicit types.MergePolicy) (types.MergePolicy, error) {
	if explicit == types.MergePolicyMerge || explicit == types.MergePolicyClear {
		return explicit, nil
	}
	if !r.prompter.Interactive() {
		return "", &types.ResolutionError{
			Reason: fmt.Sprintf("volume %s already holds data; pass an explicit merge or clear choice", volume),
		}
	}

	answer, err := r.prompter.Select(
		fmt.Sprintf("Volume %s exists and may contain data", volume),
		[]string{string(types.MergePolicyMerge), string(types.MergePolicyClear)},
		string(types.MergePolicyMerge),
	)
	if err != nil {
		return "", err
	}
	return types.MergePolicy(answer), nil
}

func (r *Resolver) resolveStorageClass(ctx context.Context) (string, error) {
	classes, err := r.gw.ListStorageClasses(ctx)
	if err != nil {
		return "", err
	}
	if len(classes) == 0 {
		return "", &types.ResolutionError{Reason: "cluster has no storage classes"}
	}

	def := ""
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Name)
		if c.Default {
			def = c.Name
		}
	}

	if !r.prompter.Interactive() {
		if def == "" {
			return "", &types.ResolutionError{Reason: "cluster has no default storage class"}
		}
		return def, nil
	}
	return r.prompter.Select("Storage class for the new volume", names, def)
}

func (r *Resolver) resolveCapacity(estimate int64) (int64, error) {
	suggested := quantity.SuggestCapacity(estimate)
	if !r.prompter.Interactive() {
		return suggested, nil
	}

	answer, err := r.prompter.Input("Capacity for the new volume", quantity.FormatGi(suggested))
	if err != nil {
		return 0, err
	}
	capacity, err := quantity.Parse(answer)
	if err != nil {
		return 0, &types.ResolutionError{Reason: fmt.Sprintf("invalid capacity %q: %v", answer, err)}
	}
	if capacity < estimate {
		log.Logger.Warn().
			Str("capacity", quantity.FormatGi(capacity)).
			Str("estimate", quantity.FormatGi(estimate)).
			Msg("chosen capacity is below the source size estimate")
	}
	return capacity, nil
}

func (r *Resolver) namespaceExists(ctx context.Context, name string) (bool, error) {
	namespaces, err := r.gw.ListNamespaces(ctx)
	if err != nil {
		return false, err
	}
	for _, ns := range namespaces {
		if ns == name {
			return true, nil
		}
	}
	return false, nil
}

// sanitizeName coerces a string into a DNS-1123 label so derived volume
// names are always valid claim names.
func sanitizeName(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == ' ':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 63 {
		out = strings.Trim(out[:63], "-")
	}
	return out
}
