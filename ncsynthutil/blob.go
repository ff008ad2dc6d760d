/*
Copyright © 2019 the ncsynth authors.
This file is part of ncsynth.

ncsynth is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncsynth is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncsynth.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncsynthutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
)

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name'.
// The accepted providers are "file" for a directory on the local
// filesystem, "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("ncsynthutil: opening bucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Host)
	case "gs":
		return gsBucket(ctx, u.Host)
	case "s3":
		return s3Bucket(ctx, u.Host)
	default:
		return nil, fmt.Errorf("ncsynthutil: opening bucket: invalid provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. Credentials are taken from the
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables and
// the region from AWS_REGION.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name)
}

// uploader writes output destined for blob storage to a local
// temporary file and copies it to the bucket afterwards.
type uploader struct {
	// files are pairs of a local path and the blob URL it should be
	// uploaded to.
	files [][2]string
	dir   string

	log logrus.FieldLogger

	// newBackOff returns the retry policy for each upload.
	newBackOff func() backoff.BackOff
}

func newUploader(log logrus.FieldLogger) *uploader {
	return &uploader{
		log:        log,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// localPath returns path if it is a local file and otherwise a
// temporary file that will be uploaded to path by upload.
func (u *uploader) localPath(path string) (string, error) {
	if !IsBlob(path) {
		return path, nil
	}
	if u.dir == "" {
		dir, err := ioutil.TempDir("", "ncsynth")
		if err != nil {
			return "", fmt.Errorf("ncsynthutil: creating temporary output directory: %v", err)
		}
		u.dir = dir
	}
	local := filepath.Join(u.dir, fmt.Sprintf("%d_%s", len(u.files), filepath.Base(path)))
	u.files = append(u.files, [2]string{local, path})
	return local, nil
}

// cleanup removes the temporary directory, if any.
func (u *uploader) cleanup() {
	if u.dir == "" {
		return
	}
	if err := os.RemoveAll(u.dir); err != nil {
		u.log.WithError(err).Warnf("ncsynthutil: removing temporary directory %s", u.dir)
	}
}

// upload copies the temporary files to blob storage, retrying failed
// copies.
func (u *uploader) upload(ctx context.Context) error {
	for _, f := range u.files {
		local, remote := f[0], f[1]
		err := backoff.RetryNotify(
			func() error { return uploadFile(ctx, local, remote) },
			backoff.WithContext(u.newBackOff(), ctx),
			func(err error, d time.Duration) {
				u.log.WithError(err).Warnf("ncsynthutil: upload of %s failed; retrying in %v", remote, d)
			},
		)
		if err != nil {
			return err
		}
		u.log.WithField("url", remote).Info("ncsynthutil: uploaded output file")
	}
	return nil
}

func uploadFile(ctx context.Context, local, remote string) error {
	r, err := os.Open(local)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("ncsynthutil: opening file '%s' for upload: %v", local, err))
	}
	defer r.Close()
	u, err := url.Parse(remote)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("ncsynthutil: parsing url '%s' for upload: %v", remote, err))
	}
	bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return fmt.Errorf("ncsynthutil: opening bucket to upload file '%s': %v", remote, err)
	}
	w, err := bucket.NewWriter(ctx, strings.TrimPrefix(u.Path, "/"), &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("ncsynthutil: opening writer to upload file '%s': %v", remote, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("ncsynthutil: uploading file '%s' to '%s': %v", local, remote, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ncsynthutil: uploading file '%s' to '%s': %v", local, remote, err)
	}
	return nil
}
