package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"git.listhouse.net/lhn/lhn/src/archive"
	"git.listhouse.net/lhn/lhn/src/blobstore"
	"git.listhouse.net/lhn/lhn/src/config"
	"git.listhouse.net/lhn/lhn/src/db"
	"git.listhouse.net/lhn/lhn/src/email"
	"git.listhouse.net/lhn/lhn/src/listhouse"
	"git.listhouse.net/lhn/lhn/src/logging"
	"github.com/jpillora/backoff"
	"github.com/spf13/cobra"
)

func init() {
	var groupID, siteID, listTitle, senderID string
	var useMailDate bool

	storeCommand := &cobra.Command{
		Use:   "store <message file>",
		Short: "Archive one raw email message ('-' reads from stdin)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			defer logging.LogPanics(nil)
			ctx := context.Background()

			raw, err := readMessage(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				os.Exit(1)
			}

			msg, err := email.Parse(raw, email.Origin{
				GroupID:     groupID,
				SiteID:      siteID,
				ListTitle:   listTitle,
				SenderID:    senderID,
				UseMailDate: useMailDate,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				os.Exit(1)
			}

			conn := db.NewConn()
			defer conn.Close(ctx)

			blobs, err := blobstore.NewS3Store(ctx, config.Config.Spaces)
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				os.Exit(1)
			}

			postID, fileIDs, err := storeWithRetry(ctx, archive.NewPostStore(conn, blobs), msg)
			var dup *archive.DuplicatePostError
			if errors.As(err, &dup) {
				fmt.Printf("Post %s was already archived; nothing to do.\n", dup.PostID)
				return
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Archived post %s with %d attachment(s).\n", postID, len(fileIDs))
			for _, fileID := range fileIDs {
				fmt.Printf("  %s\n", fileID)
			}
		},
	}
	storeCommand.Flags().StringVar(&groupID, "group", "", "Group id the message arrived through")
	storeCommand.Flags().StringVar(&siteID, "site", "", "Site id the group belongs to")
	storeCommand.Flags().StringVar(&listTitle, "list-title", "", "Display title of the mailing list")
	storeCommand.Flags().StringVar(&senderID, "sender", "", "Resolved sender id (defaults to the From address)")
	storeCommand.Flags().BoolVar(&useMailDate, "use-mail-date", false, "Trust the message's own Date header")
	storeCommand.MarkFlagRequired("group")
	storeCommand.MarkFlagRequired("site")

	sweepCommand := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Report blobs that have bytes but no metadata",
		Run: func(cmd *cobra.Command, args []string) {
			defer logging.LogPanics(nil)
			ctx := context.Background()

			conn := db.NewConn()
			defer conn.Close(ctx)

			blobs, err := blobstore.NewS3Store(ctx, config.Config.Spaces)
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				os.Exit(1)
			}

			job := archive.SweepOrphanedBlobs(conn, blobs)
			<-job.Finished()
		},
	}

	fixTopicCommand := &cobra.Command{
		Use:   "fix-topic <topic id> <group id> <site id>",
		Short: "Recompute a topic's post pointers and count from its posts",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			defer logging.LogPanics(nil)
			ctx := context.Background()

			conn := db.NewConn()
			defer conn.Close(ctx)

			err := archive.FixTopicPostPointers(ctx, conn, args[0], args[1], args[2])
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Done.")
		},
	}

	listhouse.ListhouseCommand.AddCommand(storeCommand)
	listhouse.ListhouseCommand.AddCommand(sweepCommand)
	listhouse.ListhouseCommand.AddCommand(fixTopicCommand)
}

func readMessage(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

/*
Two archivers racing to create the same topic both see no topic row and both
insert; the loser gets a duplicate topic error. Retrying re-runs the
aggregation, which now finds the winner's row and updates it instead. The
retry re-uploads the attachments; the first attempt's blobs remain behind
with full metadata, where the orphan sweep cannot distinguish them.
Duplicate posts are not retried; redelivery of the same message is a no-op
by design of the post id.
*/
func storeWithRetry(ctx context.Context, store *archive.PostStore, msg *email.Message) (string, []string, error) {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	for {
		postID, fileIDs, err := store.Store(ctx, msg)
		var dupTopic *archive.DuplicateTopicError
		if errors.As(err, &dupTopic) && b.Attempt() < 5 {
			d := b.Duration()
			logging.ExtractLogger(ctx).Warn().
				Str("topic_id", dupTopic.TopicID).
				Dur("backoff", d).
				Msg("lost the race to create the topic; retrying")
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}
		}
		return postID, fileIDs, err
	}
}
