package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"git.listhouse.net/lhn/lhn/src/config"
	"git.listhouse.net/lhn/lhn/src/logging"
	"git.listhouse.net/lhn/lhn/src/oops"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3Store keeps attachment bytes in an S3-compatible bucket. Metadata lives
// in x-amz-meta-* entries on the object itself; there is no external search
// index behind Reindex for this backend.
type S3Store struct {
	client *s3.Client
	bucket string
}

var _ Store = &S3Store{}

func NewS3Store(ctx context.Context, cfg config.SpacesConfig) (*S3Store, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""),
		),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: cfg.Endpoint,
			}, nil
		})),
	)
	if err != nil {
		return nil, oops.New(err, "failed to load blob storage config")
	}
	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Add(ctx context.Context, content []byte) (string, error) {
	handle := uuid.New().String()

	upload := func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    &handle,
			Body:   bytes.NewReader(content),
		})
		return err
	}

	err := upload()
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
			_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: &s.bucket,
			})
			if err != nil {
				return "", oops.New(err, "failed to create attachments bucket")
			}

			err = upload()
			if err != nil {
				return "", oops.New(err, "failed to upload attachment")
			}
		} else {
			return "", oops.New(err, "failed to upload attachment")
		}
	}

	return handle, nil
}

func (s *S3Store) Get(ctx context.Context, handle string) (*Blob, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &handle,
	})
	if err != nil {
		return nil, oops.New(err, "failed to fetch attachment %s", handle)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, oops.New(err, "failed to read attachment %s", handle)
	}

	blob := &Blob{
		Handle:   handle,
		Size:     len(content),
		Content:  content,
		Metadata: metadataFromObject(aws.ToString(out.ContentType), out.Metadata),
	}
	return blob, nil
}

func (s *S3Store) SetMetadata(ctx context.Context, handle string, meta Metadata) error {
	// S3 objects are immutable; replacing metadata means copying the object
	// onto itself with a new metadata set.
	copySource := fmt.Sprintf("%s/%s", s.bucket, handle)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            &s.bucket,
		Key:               &handle,
		CopySource:        &copySource,
		ContentType:       &meta.ContentType,
		Metadata:          metadataToObject(meta),
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return oops.New(err, "failed to set metadata on attachment %s", handle)
	}
	return nil
}

func (s *S3Store) Reindex(ctx context.Context, handle string) error {
	// There is no search index behind this backend; verify the object is
	// visible so a lost write surfaces here rather than at read time.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &handle,
	})
	if err != nil {
		return oops.New(err, "failed to reindex attachment %s", handle)
	}
	logging.ExtractLogger(ctx).Debug().Str("handle", handle).Msg("reindexed attachment")
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var handles []string
	var continuationToken *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, oops.New(err, "failed to list attachments")
		}
		for _, obj := range out.Contents {
			handles = append(handles, aws.ToString(obj.Key))
		}
		if !out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}
	return handles, nil
}

func metadataToObject(meta Metadata) map[string]string {
	return map[string]string{
		"title":     meta.Title,
		"tags":      strings.Join(meta.Tags, ","),
		"group-ids": strings.Join(meta.GroupIDs, ","),
		"creator":   meta.Creator,
		"topic":     meta.Topic,
	}
}

func metadataFromObject(contentType string, obj map[string]string) Metadata {
	return Metadata{
		ContentType: contentType,
		Title:       obj["title"],
		Tags:        splitNonEmpty(obj["tags"]),
		GroupIDs:    splitNonEmpty(obj["group-ids"]),
		Creator:     obj["creator"],
		Topic:       obj["topic"],
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
