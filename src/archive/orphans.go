package archive

import (
	"context"

	"git.listhouse.net/lhn/lhn/src/blobstore"
	"git.listhouse.net/lhn/lhn/src/db"
	"git.listhouse.net/lhn/lhn/src/jobs"
	"git.listhouse.net/lhn/lhn/src/logging"
	"git.listhouse.net/lhn/lhn/src/oops"
)

// SweepOrphanedBlobs scans the blob store for orphaned blobs: bytes that
// were written but never got their metadata, because the archiver died
// between the two steps. Orphans are reported, not deleted; cleanup is a
// human decision.
//
// The sweep cannot see blobs that were uploaded twice with full metadata,
// as happens when a topic-creation race is retried after the first
// attempt's uploads. Those duplicates look exactly like originals.
func SweepOrphanedBlobs(conn db.ConnOrTx, blobs blobstore.Store) *jobs.Job {
	job := jobs.New("orphaned blob sweep")

	go func() {
		defer job.Finish()
		defer logging.LogPanics(&job.Logger)

		orphans, err := FindOrphanedBlobs(job.Ctx, blobs)
		if err != nil {
			job.Logger.Error().Err(err).Msg("orphaned blob sweep failed")
			return
		}

		numFiles, err := db.QueryOneScalar[int](job.Ctx, conn,
			`
			SELECT COUNT(*)
			FROM file
			`,
		)
		if err != nil {
			job.Logger.Error().Err(err).Msg("failed to count attachment metadata rows")
			return
		}

		job.Logger.Info().
			Int("orphans", len(orphans)).
			Int("file_rows", numFiles).
			Msg("orphaned blob sweep finished")
	}()

	return job
}

// FindOrphanedBlobs returns the handles of every blob with no descriptive
// metadata. Each one is also logged at warn level as it is found.
func FindOrphanedBlobs(ctx context.Context, blobs blobstore.Store) ([]string, error) {
	log := logging.ExtractLogger(ctx)

	handles, err := blobs.List(ctx)
	if err != nil {
		return nil, oops.New(err, "failed to list blobs")
	}

	var orphans []string
	for _, handle := range handles {
		select {
		case <-ctx.Done():
			return orphans, ctx.Err()
		default:
		}

		blob, err := blobs.Get(ctx, handle)
		if err != nil {
			return nil, oops.New(err, "failed to fetch blob %s", handle)
		}
		// Title is only ever written by SetMetadata and is never empty for a
		// real attachment, so its absence means the metadata step never ran.
		// Content type is no signal; the backend may default one on upload.
		if blob.Metadata.Title == "" {
			log.Warn().
				Str("handle", handle).
				Int("size", blob.Size).
				Msg("blob has bytes but no metadata; it is unreachable from the archive")
			orphans = append(orphans, handle)
		}
	}
	return orphans, nil
}
