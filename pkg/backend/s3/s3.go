// Package s3 implements the capability interface over an S3 bucket
// (or S3-compatible storage).
//
// Key Design
// ==========
//
// The bucket mirrors the tree using canonical encoded path strings:
//
//	Node            S3 Key
//	--------------------------------------------
//	file /a/b.txt   <prefix>a/b.txt
//	dir  /a/c       <prefix>a/c/   (zero-byte marker)
//
// Directory markers make empty directories representable. Directories
// that exist only implicitly (some object lives under their prefix)
// are still reported, so trees written by other tools stay browsable.
//
// S3 has no atomic rename; Rename is copy-then-delete and a crash in
// between can leave both names visible. Listings use the "/" delimiter
// so one level costs one paged request.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Config holds the settings of an S3 backend.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the bucket name. The bucket must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys, for
	// example "vnodefs/data/".
	KeyPrefix string
}

// ClientOptions configures NewClient for AWS or S3-compatible
// endpoints.
type ClientOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle addresses buckets as <endpoint>/<bucket> instead of
	// virtual-hosted style, required by MinIO and most self-hosted
	// S3 implementations.
	UsePathStyle bool
}

// NewClient builds an S3 client from opts. Static credentials are
// used when both keys are set, otherwise the default AWS credential
// chain applies.
func NewClient(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, verr.NewUnavailable("loading AWS configuration: "+err.Error(), "/")
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// Backend is the S3-backed backend.
type Backend struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// New creates an S3 backend and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, verr.NewInvalidPath("S3 client is required", "/")
	}
	if cfg.Bucket == "" {
		return nil, verr.NewInvalidPath("bucket name is required", "/")
	}
	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, verr.NewUnavailable("accessing bucket "+cfg.Bucket+": "+err.Error(), "/")
	}
	return &Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// fileKey returns the object key of path as a file. Root has no file
// key, callers handle it before mapping.
func (b *Backend) fileKey(path vpath.Path) string {
	raw := path.String()
	raw = strings.TrimPrefix(raw, "/")
	raw = strings.TrimSuffix(raw, "/")
	return b.keyPrefix + raw
}

// dirKey returns the marker key of path as a directory. The root
// directory maps to the bare key prefix.
func (b *Backend) dirKey(path vpath.Path) string {
	if path.IsRoot() {
		return b.keyPrefix
	}
	return b.fileKey(path) + "/"
}

// pathFromKey converts an object key back into a node path.
func (b *Backend) pathFromKey(key string) (vpath.Path, error) {
	rel := strings.TrimPrefix(key, b.keyPrefix)
	return vpath.Parse("/" + rel)
}

// isNotFound reports whether an S3 error means the object is absent.
// GetObject reports *types.NoSuchKey while HeadObject reports
// *types.NotFound, so both are checked.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// wrapErr maps an S3 failure into the shared taxonomy.
func wrapErr(err error, pathStr string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isNotFound(err) {
		return verr.NewNotFound(pathStr)
	}
	return verr.NewUnavailable(err.Error(), pathStr)
}

// statObject performs a HEAD request, returning absent=true when the
// key does not exist.
func (b *Backend) statObject(ctx context.Context, key string) (*s3.HeadObjectOutput, bool, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return out, false, nil
}

// hasChildren reports whether any object lives under prefix.
func (b *Backend) hasChildren(ctx context.Context, prefix string) (bool, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return false, err
	}
	for _, obj := range out.Contents {
		if obj.Key != nil && *obj.Key != prefix {
			return true, nil
		}
	}
	return len(out.Contents) > 1, nil
}

// dirExists reports whether path names a directory, either via an
// explicit marker or implicitly through descendants.
func (b *Backend) dirExists(ctx context.Context, path vpath.Path) (bool, error) {
	if path.IsRoot() {
		return true, nil
	}
	marker := b.dirKey(path)
	_, absent, err := b.statObject(ctx, marker)
	if err != nil {
		return false, err
	}
	if !absent {
		return true, nil
	}
	return b.hasChildren(ctx, marker)
}

func objMeta(size *int64, modTime *time.Time, kind vnode.NodeKind) vnode.NodeMetadata {
	meta := vnode.NodeMetadata{Kind: kind}
	if kind == vnode.KindFile && size != nil {
		meta.Size = *size
	}
	if modTime != nil {
		meta.ModTime = *modTime
	}
	return meta
}

func dirMeta(modTime *time.Time) vnode.NodeMetadata {
	return objMeta(nil, modTime, vnode.KindDirectory)
}

// Stat returns the metadata of the node at path. Files are resolved
// first; a directory marker or an implicit prefix resolves second.
func (b *Backend) Stat(ctx context.Context, path vpath.Path) (*vnode.NodeMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path.IsRoot() {
		meta := dirMeta(nil)
		return &meta, nil
	}
	head, absent, err := b.statObject(ctx, b.fileKey(path))
	if err != nil {
		return nil, wrapErr(err, path.String())
	}
	if !absent {
		meta := objMeta(head.ContentLength, head.LastModified, vnode.KindFile)
		return &meta, nil
	}
	marker, absent, err := b.statObject(ctx, b.dirKey(path))
	if err != nil {
		return nil, wrapErr(err, path.String())
	}
	if !absent {
		meta := dirMeta(marker.LastModified)
		return &meta, nil
	}
	implicit, err := b.hasChildren(ctx, b.dirKey(path))
	if err != nil {
		return nil, wrapErr(err, path.String())
	}
	if implicit {
		meta := dirMeta(nil)
		return &meta, nil
	}
	return nil, verr.NewNotFound(path.String())
}

// Read returns the full content of the file at path.
func (b *Backend) Read(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path.IsRoot() {
		return nil, verr.NewIsADirectory(path.String())
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fileKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			isDir, dirErr := b.dirExists(ctx, path)
			if dirErr == nil && isDir {
				return nil, verr.NewIsADirectory(path.String())
			}
		}
		return nil, wrapErr(err, path.String())
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapErr(err, path.String())
	}
	return data, nil
}

// List returns the entries of the directory at path, one delimiter
// level deep, sorted by name. S3 returns keys in lexicographic key
// order, which matches name order within one level.
func (b *Backend) List(ctx context.Context, path vpath.Path) ([]vnode.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !path.IsRoot() {
		if _, absent, err := b.statObject(ctx, b.fileKey(path)); err != nil {
			return nil, wrapErr(err, path.String())
		} else if !absent {
			return nil, verr.NewNotADirectory(path.String())
		}
		exists, err := b.dirExists(ctx, path)
		if err != nil {
			return nil, wrapErr(err, path.String())
		}
		if !exists {
			return nil, verr.NewNotFound(path.String())
		}
	}

	prefix := b.dirKey(path)
	entries := make([]vnode.DirEntry, 0)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err, path.String())
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				continue
			}
			child, err := b.pathFromKey(*obj.Key)
			if err != nil {
				continue
			}
			entries = append(entries, vnode.DirEntry{
				Name: child.Base(),
				Meta: objMeta(obj.Size, obj.LastModified, vnode.KindFile),
			})
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			child, err := b.pathFromKey(strings.TrimSuffix(*cp.Prefix, "/"))
			if err != nil {
				continue
			}
			entries = append(entries, vnode.DirEntry{
				Name: child.Base(),
				Meta: dirMeta(nil),
			})
		}
	}
	return entries, nil
}

// putObject uploads data at key.
func (b *Backend) putObject(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

var _ vnode.Backend = (*Backend)(nil)
