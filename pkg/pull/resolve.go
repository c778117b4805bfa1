package pull

import (
	"context"
	"fmt"

	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/remote"
	"github.com/mirrorstore/objsync/pkg/store"
)

// resolveRoots implements spec §4.6 steps 3-4: turn the CLI's positional
// arguments (or the configured/summary branch list, if none were given)
// into commit roots to scan, a map of refs to update on success, and the
// list of branches that are already up to date.
func resolveRoots(ctx context.Context, s store.Store, rc *remote.Client, opts Options) (roots []objid.ID, refUpdates map[string]objid.Checksum, unchanged []string, err error) {
	refUpdates = make(map[string]objid.Checksum)

	var rawCommits []objid.Checksum
	branchTargets := make(map[string]objid.Checksum)

	if len(opts.Roots) > 0 {
		for _, arg := range opts.Roots {
			if objid.IsValid(arg) {
				csum, err := objid.ParseChecksum(arg)
				if err != nil {
					return nil, nil, nil, err
				}
				rawCommits = append(rawCommits, csum)
				continue
			}
			csum, err := rc.FetchBranchHead(ctx, arg)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("resolve branch %q: %w", arg, err)
			}
			branchTargets[arg] = csum
		}
	} else if len(opts.ConfiguredBranches) > 0 {
		for _, branch := range opts.ConfiguredBranches {
			csum, err := rc.FetchBranchHead(ctx, branch)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("resolve configured branch %q: %w", branch, err)
			}
			branchTargets[branch] = csum
		}
	} else {
		entries, err := rc.FetchSummary(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fetch summary: %w", err)
		}
		for _, e := range entries {
			branchTargets[e.RefName] = e.Checksum
		}
	}

	for _, csum := range rawCommits {
		roots = append(roots, objid.New(csum, objid.Commit))
	}

	for branch, csum := range branchTargets {
		existing, ok, err := s.ResolveRev(ctx, opts.Remote, branch)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve local ref %s/%s: %w", opts.Remote, branch, err)
		}
		if ok && existing == csum {
			unchanged = append(unchanged, branch)
			continue
		}
		roots = append(roots, objid.New(csum, objid.Commit))
		refUpdates[branch] = csum
	}

	return roots, refUpdates, unchanged, nil
}
