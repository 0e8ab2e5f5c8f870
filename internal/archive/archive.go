// Package archive keeps timestamped copies of run artifacts.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultKeepLast = 30

// Config controls where archive copies go and how many are kept.
type Config struct {
	Dir      string
	KeepLast int

	BucketURL      string
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool
}

// Source writes a point-in-time copy of itself to dstPath.
type Source interface {
	SnapshotTo(dstPath string) error
}

// Artifact is one archived copy.
type Artifact struct {
	Path  string    // local copy inside Dir
	Kind  string    // archive prefix, e.g. "satis" or "satis-history"
	Taken time.Time // archive time, UTC
}

// ContentType returns the media type of the artifact's file.
func (a Artifact) ContentType() string {
	switch strings.ToLower(filepath.Ext(a.Path)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

// Uploader ships an archived artifact off the host.
type Uploader interface {
	Upload(ctx context.Context, art Artifact) error
}

// FileSource archives an existing file by copying it.
type FileSource string

// SnapshotTo copies the file to dstPath. dstPath only appears once the copy
// is complete.
func (f FileSource) SnapshotTo(dstPath string) error {
	return copyFile(string(f), dstPath)
}

// Archiver copies artifacts into Dir and prunes old copies.
type Archiver struct {
	cfg      Config
	uploader Uploader
	now      func() time.Time
	logger   zerolog.Logger
}

// New initializes an archiver. It returns nil when no directory is configured.
func New(cfg Config, logger zerolog.Logger) (*Archiver, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, nil
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	return &Archiver{
		cfg:      cfg,
		uploader: uploader,
		now:      time.Now,
		logger:   logger.With().Str("component", "archive").Logger(),
	}, nil
}

// Archive stores one copy of src as <prefix>-YYYYMMDD-HHMMSS<ext>, uploads it
// when a bucket is configured, and prunes copies with the same prefix and
// extension beyond KeepLast. It returns the local path of the new copy.
func (a *Archiver) Archive(ctx context.Context, prefix, ext string, src Source) (string, error) {
	taken := a.now().UTC()
	fileName := fmt.Sprintf("%s-%s%s", prefix, taken.Format("20060102-150405"), ext)
	localPath := filepath.Join(a.cfg.Dir, fileName)

	if err := src.SnapshotTo(localPath); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	a.logger.Info().Str("path", localPath).Msg("archived artifact")

	if a.uploader != nil {
		art := Artifact{Path: localPath, Kind: prefix, Taken: taken}
		if err := a.uploader.Upload(ctx, art); err != nil {
			return localPath, fmt.Errorf("upload: %w", err)
		}
		a.logger.Info().Str("file", fileName).Msg("uploaded artifact")
	}

	if err := prune(a.cfg.Dir, prefix, ext, a.cfg.KeepLast); err != nil {
		return localPath, fmt.Errorf("prune archive: %w", err)
	}
	return localPath, nil
}

func prune(dir, prefix, ext string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-[0-9]*"+ext))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		// timestamp is embedded in filename and lexical sort matches chronology
		return matches[i] > matches[j]
	})

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func copyFile(srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), "."+filepath.Base(dstPath)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, src); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dstPath)
}
