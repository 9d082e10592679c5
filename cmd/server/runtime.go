package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelpush.ai/internal/persistence/archive"
	"voxelpush.ai/internal/persistence/indexdb"
	"voxelpush.ai/internal/persistence/objstore"
	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/tuning"
)

func loadTuning(path string, logger *log.Logger) (tuning.Tuning, error) {
	tune, err := tuning.Load(path)
	if err == nil {
		return tune, nil
	}
	if os.IsNotExist(err) {
		logger.Printf("tuning not found (%s); using defaults", path)
		return tuning.Defaults(), nil
	}
	return tune, err
}

func openIndex(target, dataDir string, logger *log.Logger) (indexdb.Index, error) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "off", "none", "disabled":
		logger.Printf("index disabled")
		return nil, nil
	case "":
		target = filepath.Join(dataDir, "index", "index.sqlite")
	}
	return indexdb.Open(target)
}

// mirrorFromEnv builds the optional object-store mirror. It stays nil
// unless VP_MIRROR is true.
func mirrorFromEnv(dataDir string, logger *log.Logger) (*objstore.Mirror, error) {
	if !envBool("VP_MIRROR", false) {
		return nil, nil
	}
	client, err := objstore.New(objstore.Config{
		Endpoint:        os.Getenv("VP_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("VP_MIRROR_BUCKET"),
		Region:          os.Getenv("VP_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("VP_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("VP_MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	return objstore.NewMirror(client, dataDir, objstore.MirrorOptions{
		Prefix:  os.Getenv("VP_MIRROR_PREFIX"),
		Workers: envInt("VP_MIRROR_WORKERS", 2),
		Logger:  logger,
	}), nil
}

// sessionSaver writes session files and archives cleared levels. Exports
// go through the stage input channel, so it is safe to use from any
// goroutine.
type sessionSaver struct {
	stage.NopObserver

	inputs  chan<- stage.Input
	dataDir string
	idx     indexdb.Index
	mirror  *objstore.Mirror
	logger  *log.Logger

	cleared chan string
}

func newSessionSaver(inputs chan<- stage.Input, dataDir string, idx indexdb.Index, mirror *objstore.Mirror, logger *log.Logger) *sessionSaver {
	return &sessionSaver{
		inputs:  inputs,
		dataDir: dataDir,
		idx:     idx,
		mirror:  mirror,
		logger:  logger,
		cleared: make(chan string, 8),
	}
}

func (s *sessionSaver) currentPath() string {
	return filepath.Join(s.dataDir, "sessions", "current.snap.zst")
}

// OnRecord runs on the stage goroutine; the export itself must wait until
// the turn is over, so it is handed to run.
func (s *sessionSaver) OnRecord(r stage.Record) {
	if r.Kind != stage.RecordTurn || !r.GoalReached {
		return
	}
	select {
	case s.cleared <- r.LevelID:
	default:
		s.logger.Printf("clear archive dropped level=%s", r.LevelID)
	}
}

func (s *sessionSaver) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.cleared:
			sess, err := s.export(ctx)
			if err != nil {
				s.logger.Printf("clear archive level=%s: %v", id, err)
				continue
			}
			if sess.Header.LevelID != id || !sess.Header.Cleared {
				s.logger.Printf("clear archive level=%s: stage moved on to %s", id, sess.Header.LevelID)
				continue
			}
			path := filepath.Join(s.dataDir, "sessions", fmt.Sprintf("%s-%d.snap.zst", id, time.Now().UTC().Unix()))
			if err := s.write(path, sess); err != nil {
				s.logger.Printf("clear archive level=%s: %v", id, err)
				continue
			}
			archived, ok, err := archive.ArchiveClearedLevel(s.dataDir, path, sess)
			if err != nil {
				s.logger.Printf("clear archive level=%s: %v", id, err)
				continue
			}
			if !ok {
				continue
			}
			s.logger.Printf("archived level=%s turn=%d path=%s", id, sess.Header.Turn, archived)
			if s.idx != nil {
				s.idx.RecordClear(id, sess.Header.Turn, archived)
			}
			s.mirror.Enqueue(archived)
			s.mirror.Enqueue(filepath.Join(filepath.Dir(archived), "meta.json"))
		}
	}
}

func (s *sessionSaver) export(ctx context.Context) (snapshot.SessionV1, error) {
	reply := make(chan stage.Reply, 1)
	select {
	case s.inputs <- stage.Input{Kind: stage.InputExport, Reply: reply}:
	case <-ctx.Done():
		return snapshot.SessionV1{}, ctx.Err()
	}
	select {
	case rep := <-reply:
		if rep.Err != nil {
			return snapshot.SessionV1{}, rep.Err
		}
		return *rep.Session, nil
	case <-ctx.Done():
		return snapshot.SessionV1{}, ctx.Err()
	}
}

// Save exports the running stage to the current session file.
func (s *sessionSaver) Save(ctx context.Context) (string, snapshot.Header, error) {
	sess, err := s.export(ctx)
	if err != nil {
		return "", snapshot.Header{}, err
	}
	path := s.currentPath()
	return path, sess.Header, s.write(path, sess)
}

func (s *sessionSaver) write(path string, sess snapshot.SessionV1) error {
	if err := snapshot.WriteSession(path, sess); err != nil {
		return err
	}
	if s.idx != nil {
		s.idx.RecordSession(path, sess.Header)
	}
	s.mirror.Enqueue(path)
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
