package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ProjectArtemis/rovio/artifacts"
	"github.com/ProjectArtemis/rovio/config"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/pointcloud"
)

// Publisher receives every artifact set the node builds, in sequence order.
type Publisher interface {
	Publish(ctx context.Context, set *artifacts.Set) error
}

// MemoryPublisher keeps published sets in memory.
type MemoryPublisher struct {
	mu   sync.Mutex
	sets []*artifacts.Set
}

// Publish implements Publisher.
func (mp *MemoryPublisher) Publish(ctx context.Context, set *artifacts.Set) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.sets = append(mp.sets, set)
	return nil
}

// Sets returns the sets published so far.
func (mp *MemoryPublisher) Sets() []*artifacts.Set {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]*artifacts.Set(nil), mp.sets...)
}

// Recorded file names.
const (
	PoseFile       = "pose.jsonl"
	OdometryFile   = "odometry.jsonl"
	SummaryFile    = "summary.jsonl"
	TransformsFile = "transforms.jsonl"
	RaysFile       = "rays.jsonl"
)

// FileRecorder is a Publisher that appends every message as a JSON line to a rotating file per
// stream and optionally writes each landmark cloud to its own PCD file.
type FileRecorder struct {
	mu      sync.Mutex
	dir     string
	clouds  bool
	streams map[string]*lumberjack.Logger
	logger  logging.Logger
}

// NewFileRecorder creates the output directory and the stream files.
func NewFileRecorder(cfg config.Output, logger logging.Logger) (*FileRecorder, error) {
	if cfg.Dir == "" {
		return nil, errors.New("no output directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "cannot create output directory %s", cfg.Dir)
	}
	fr := &FileRecorder{
		dir:     cfg.Dir,
		clouds:  cfg.Clouds,
		streams: map[string]*lumberjack.Logger{},
		logger:  logger,
	}
	for _, name := range []string{PoseFile, OdometryFile, SummaryFile, TransformsFile, RaysFile} {
		fr.streams[name] = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	}
	return fr, nil
}

// Publish implements Publisher.
func (fr *FileRecorder) Publish(ctx context.Context, set *artifacts.Set) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	writes := []struct {
		stream string
		msg    interface{}
	}{
		{PoseFile, set.Pose},
		{OdometryFile, set.Odometry},
		{SummaryFile, set.Summary},
		{RaysFile, set.Rays},
	}
	for _, tf := range set.Transforms {
		writes = append(writes, struct {
			stream string
			msg    interface{}
		}{TransformsFile, tf})
	}
	for _, w := range writes {
		if err := writeLine(fr.streams[w.stream], w.msg); err != nil {
			return errors.Wrapf(err, "cannot record %s", w.stream)
		}
	}
	if fr.clouds && set.Cloud.Cloud != nil {
		return fr.writeCloud(set)
	}
	return nil
}

func (fr *FileRecorder) writeCloud(set *artifacts.Set) (err error) {
	path := filepath.Join(fr.dir, CloudFile(set.Seq))
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create cloud file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.ToPCD(set.Cloud.Cloud, f, pointcloud.PCDBinary)
}

// CloudFile is the name of the PCD file recorded for sequence number seq.
func CloudFile(seq uint32) string {
	return fmt.Sprintf("cloud_%06d.pcd", seq)
}

// Close closes every stream file.
func (fr *FileRecorder) Close() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	var err error
	for name, stream := range fr.streams {
		if closeErr := stream.Close(); closeErr != nil {
			err = multierr.Combine(err, errors.Wrapf(closeErr, "closing %s", name))
		}
	}
	fr.logger.Debugw("recorder closed", "dir", fr.dir)
	return err
}

func writeLine(w io.Writer, msg interface{}) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}

var (
	_ Publisher = (*MemoryPublisher)(nil)
	_ Publisher = (*FileRecorder)(nil)
	_ io.Closer = (*FileRecorder)(nil)
)

