package migrations

import (
	"context"
	"time"

	"git.listhouse.net/lhn/lhn/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(CreateArchiveTables{})
}

type CreateArchiveTables struct{}

func (m CreateArchiveTables) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC))
}

func (m CreateArchiveTables) Name() string {
	return "CreateArchiveTables"
}

func (m CreateArchiveTables) Description() string {
	return "Creates the post, topic, and file tables"
}

func (m CreateArchiveTables) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE post (
			post_id VARCHAR(32) PRIMARY KEY,
			topic_id VARCHAR(32) NOT NULL,
			group_id TEXT NOT NULL,
			site_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			in_reply_to TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL,
			date TIMESTAMP WITH TIME ZONE NOT NULL,
			body TEXT NOT NULL,
			htmlbody TEXT NOT NULL DEFAULT '',
			header TEXT NOT NULL DEFAULT '',
			has_attachments BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX post_topic_key ON post (topic_id, group_id, site_id);
		CREATE INDEX post_date ON post (date);
		CREATE INDEX post_user_id ON post (user_id);

		CREATE TABLE topic (
			topic_id VARCHAR(32) NOT NULL,
			group_id TEXT NOT NULL,
			site_id TEXT NOT NULL,
			original_subject TEXT NOT NULL,
			first_post_id VARCHAR(32) NOT NULL,
			last_post_id VARCHAR(32) NOT NULL,
			last_post_date TIMESTAMP WITH TIME ZONE NOT NULL,
			num_posts INTEGER NOT NULL,

			PRIMARY KEY (topic_id, group_id, site_id)
		);

		CREATE INDEX topic_last_post_date ON topic (last_post_date);

		CREATE TABLE file (
			file_id VARCHAR(32) NOT NULL,
			mime_type TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			date TIMESTAMP WITH TIME ZONE NOT NULL,
			post_id VARCHAR(32) NOT NULL,
			topic_id VARCHAR(32) NOT NULL
		);

		CREATE INDEX file_post_id ON file (post_id);
		CREATE INDEX file_file_id ON file (file_id);
	`)
	return err
}

func (m CreateArchiveTables) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		DROP TABLE file;
		DROP TABLE topic;
		DROP TABLE post;
	`)
	return err
}
