package hooks

import (
	"context"
	"fmt"

	"github.com/rivermark/scmcore/internal/blobstore"
	"github.com/rivermark/scmcore/scmtypes"
)

// NewOversizedBinaryHook returns a file hook rejecting binary content
// over maxBytes that isn't already marked git-lfs, fetching and
// classifying the change's content through store. Grounded on the
// teacher's setCompressionDetails, whose filetype-sniffing result is
// exactly what feeds a "large binary content belongs in LFS" policy
// (spec.md §4.4's file-hook slot). A change whose content was never
// ingested into store is accepted rather than rejected: this hook
// polices content size/kind, not content availability.
func NewOversizedBinaryHook(store blobstore.Store, maxBytes int64) FileHookFunc {
	return func(ctx context.Context, path scmtypes.Path, change scmtypes.FileChange, csId scmtypes.ChangesetId, bookmark string, pushvars map[string][]byte) (Outcome, error) {
		c, ok := change.(scmtypes.Change)
		if !ok || c.GitLfs {
			return Accepted(), nil
		}

		content, err := store.Get(ctx, c.ContentId)
		if err != nil {
			return Accepted(), nil
		}
		if int64(len(content)) <= maxBytes {
			return Accepted(), nil
		}
		if blobstore.IsLikelyBinary(content) {
			return Rejected(fmt.Sprintf("%s: binary content over %d bytes must use git-lfs", path.String(), maxBytes)), nil
		}
		return Accepted(), nil
	}
}
