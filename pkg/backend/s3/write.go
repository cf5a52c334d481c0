package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// S3 allows at most 1000 objects per DeleteObjects request.
const deleteBatchSize = 1000

// Write stores data as the full content of the file at path. Append
// mode is read-modify-write and concurrent appends to the same key
// are last-write-wins.
func (b *Backend) Write(ctx context.Context, path vpath.Path, data []byte, opts vnode.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		return verr.NewIsADirectory(path.String())
	}
	isDir, err := b.dirExists(ctx, path)
	if err != nil {
		return wrapErr(err, path.String())
	}
	if isDir {
		return verr.NewIsADirectory(path.String())
	}
	parentOK, err := b.dirExists(ctx, path.Parent())
	if err != nil {
		return wrapErr(err, path.String())
	}
	if !parentOK {
		return verr.NewNotFound(path.Parent().String())
	}

	key := b.fileKey(path)
	_, absent, err := b.statObject(ctx, key)
	if err != nil {
		return wrapErr(err, path.String())
	}
	if absent && !opts.CreateIfMissing {
		return verr.NewNotFound(path.String())
	}

	content := data
	if !opts.Truncate && !absent {
		prev, err := b.Read(ctx, path)
		if err != nil {
			return err
		}
		content = append(prev, data...)
	}
	if err := b.putObject(ctx, key, content); err != nil {
		return wrapErr(err, path.String())
	}
	return nil
}

// CreateDir creates the directory at path by writing a zero-byte
// marker object.
func (b *Backend) CreateDir(ctx context.Context, path vpath.Path, opts vnode.CreateDirOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		if opts.Recursive {
			return nil
		}
		return verr.NewAlreadyExists(path.String())
	}
	if _, absent, err := b.statObject(ctx, b.fileKey(path)); err != nil {
		return wrapErr(err, path.String())
	} else if !absent {
		return verr.NewAlreadyExists(path.String())
	}
	exists, err := b.dirExists(ctx, path)
	if err != nil {
		return wrapErr(err, path.String())
	}

	if opts.Recursive {
		cur := vpath.Root()
		for _, seg := range path.Segments() {
			cur = cur.Join(seg)
			// A file object occupying an intermediate name blocks the
			// chain; writing a marker next to it would let the same key
			// exist as both file and directory.
			if _, absent, err := b.statObject(ctx, b.fileKey(cur)); err != nil {
				return wrapErr(err, cur.String())
			} else if !absent {
				return verr.NewNotADirectory(cur.String())
			}
			if err := b.putObject(ctx, b.dirKey(cur), nil); err != nil {
				return wrapErr(err, cur.String())
			}
		}
		return nil
	}

	if exists {
		return verr.NewAlreadyExists(path.String())
	}
	parentOK, err := b.dirExists(ctx, path.Parent())
	if err != nil {
		return wrapErr(err, path.String())
	}
	if !parentOK {
		return verr.NewNotFound(path.Parent().String())
	}
	if err := b.putObject(ctx, b.dirKey(path), nil); err != nil {
		return wrapErr(err, path.String())
	}
	return nil
}

// Remove deletes the node at path.
func (b *Backend) Remove(ctx context.Context, path vpath.Path, opts vnode.RemoveOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path.IsRoot() {
		return verr.NewInvalidPath("cannot remove the root directory", path.String())
	}

	fileK := b.fileKey(path)
	if _, absent, err := b.statObject(ctx, fileK); err != nil {
		return wrapErr(err, path.String())
	} else if !absent {
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(fileK),
		}); err != nil {
			return wrapErr(err, path.String())
		}
		return nil
	}

	isDir, err := b.dirExists(ctx, path)
	if err != nil {
		return wrapErr(err, path.String())
	}
	if !isDir {
		return verr.NewNotFound(path.String())
	}
	prefix := b.dirKey(path)
	nonEmpty, err := b.hasChildren(ctx, prefix)
	if err != nil {
		return wrapErr(err, path.String())
	}
	if nonEmpty && !opts.Recursive {
		return verr.NewNotEmpty(path.String())
	}
	return b.deletePrefix(ctx, prefix, path.String())
}

// deletePrefix removes the marker at prefix and every object below
// it, in batches.
func (b *Backend) deletePrefix(ctx context.Context, prefix, pathStr string) error {
	keys, err := b.listKeys(ctx, prefix, pathStr)
	if err != nil {
		return err
	}
	keys = append(keys, prefix)
	for i := 0; i < len(keys); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-i)
		for _, key := range keys[i:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		if _, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		}); err != nil {
			return wrapErr(err, pathStr)
		}
	}
	return nil
}

// listKeys returns every object key strictly below prefix.
func (b *Backend) listKeys(ctx context.Context, prefix, pathStr string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err, pathStr)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// Rename moves the node at from to to by copying and then deleting.
// The two names can both be visible while the copy is in flight.
func (b *Backend) Rename(ctx context.Context, from, to vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from.IsRoot() {
		return verr.NewInvalidPath("cannot rename the root directory", from.String())
	}
	if to.IsRoot() {
		return verr.NewAlreadyExists(to.String())
	}
	if to.HasPrefix(from) && !from.Equal(to) {
		return verr.NewInvalidPath("cannot move a directory into its own subtree", to.String())
	}

	srcMeta, err := b.Stat(ctx, from)
	if err != nil {
		return err
	}
	if from.Equal(to) {
		return nil
	}
	if _, err := b.Stat(ctx, to); err == nil {
		return verr.NewAlreadyExists(to.String())
	} else if !verr.HasCode(err, verr.ErrNotFound) {
		return err
	}
	parentOK, err := b.dirExists(ctx, to.Parent())
	if err != nil {
		return wrapErr(err, to.String())
	}
	if !parentOK {
		return verr.NewNotFound(to.Parent().String())
	}

	if srcMeta.Kind != vnode.KindDirectory {
		if err := b.copyObject(ctx, b.fileKey(from), b.fileKey(to)); err != nil {
			return wrapErr(err, from.String())
		}
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.fileKey(from)),
		}); err != nil {
			return wrapErr(err, from.String())
		}
		return nil
	}

	srcPrefix := b.dirKey(from)
	dstPrefix := b.dirKey(to)
	keys, err := b.listKeys(ctx, srcPrefix, from.String())
	if err != nil {
		return err
	}
	if err := b.putObject(ctx, dstPrefix, nil); err != nil {
		return wrapErr(err, to.String())
	}
	for _, key := range keys {
		dst := dstPrefix + key[len(srcPrefix):]
		if err := b.copyObject(ctx, key, dst); err != nil {
			return wrapErr(err, from.String())
		}
	}
	return b.deletePrefix(ctx, srcPrefix, from.String())
}

func (b *Backend) copyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(b.bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	return err
}
