package archive

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

const defaultS3Region = "us-east-1"

// S3Config describes the bucket that receives archived artifacts.
type S3Config struct {
	// BucketURL is s3://bucket[/prefix].
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
}

// commandRunner executes an external command and returns its combined output.
type commandRunner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// S3Uploader copies artifacts to S3 with the AWS CLI. Objects are keyed
// <prefix>/<kind>/<YYYY>/<MM>/<file> so snapshots and history databases land
// in separate, month-partitioned folders that lifecycle rules can target.
type S3Uploader struct {
	bucket   string
	prefix   string
	region   string
	endpoint string
	env      []string
	run      commandRunner
}

// NewS3Uploader validates cfg and checks that the aws CLI is installed.
// Without static credentials the CLI's own credential chain is used.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	u, err := newS3Uploader(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, fmt.Errorf("s3: aws cli not found in PATH")
	}
	return u, nil
}

func newS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}

	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if (access == "") != (secret == "") {
		return nil, fmt.Errorf("s3: access key and secret key must be set together")
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultS3Region
	}

	env := []string{"AWS_DEFAULT_REGION=" + region}
	if access != "" {
		env = append(env, "AWS_ACCESS_KEY_ID="+access, "AWS_SECRET_ACCESS_KEY="+secret)
		if token := strings.TrimSpace(cfg.SessionToken); token != "" {
			env = append(env, "AWS_SESSION_TOKEN="+token)
		}
	}

	return &S3Uploader{
		bucket:   bucket,
		prefix:   prefix,
		region:   region,
		endpoint: endpointURL(cfg.Endpoint, cfg.UseSSL),
		env:      env,
		run:      execRunner,
	}, nil
}

// Upload copies one archived artifact to the bucket.
func (u *S3Uploader) Upload(ctx context.Context, art Artifact) error {
	dest := u.objectURL(art)
	out, err := u.run(ctx, u.env, "aws", u.copyArgs(art, dest)...)
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w: %s", dest, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u *S3Uploader) objectURL(art Artifact) string {
	key := path.Join(art.Kind, art.Taken.UTC().Format("2006/01"), filepath.Base(art.Path))
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	return "s3://" + u.bucket + "/" + key
}

func (u *S3Uploader) copyArgs(art Artifact, dest string) []string {
	args := []string{
		"s3", "cp", art.Path, dest,
		"--region", u.region,
		"--content-type", art.ContentType(),
		"--only-show-errors",
	}
	if u.endpoint != "" {
		args = append(args, "--endpoint-url", u.endpoint)
	}
	return args
}

// endpointURL adds a scheme to a bare host[:port] endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func parseS3BucketURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket url must use the s3:// scheme")
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("s3: bucket url has no bucket name")
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
