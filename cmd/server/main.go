package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelpush.ai/internal/persistence/indexdb"
	persistlog "voxelpush.ai/internal/persistence/log"
	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		packPath   = flag.String("pack", "./levels/pack.yaml", "level pack manifest")
		levelID    = flag.String("level", "", "level id to start on (default: first level of the pack)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (defaults when missing)")
		indexDSN   = flag.String("index_dsn", "", "index target: sqlite path, postgres:// url, or off (default: <data>/index/index.sqlite)")

		resumePath   = flag.String("resume", "", "session file to resume (optional)")
		resumeLatest = flag.Bool("resume_latest", true, "resume <data>/sessions/current.snap.zst if present (when -resume is empty)")
		saveOnExit   = flag.Bool("save_on_exit", true, "write <data>/sessions/current.snap.zst on shutdown")

		remoteControl = flag.Bool("remote_control", false, "let non-loopback ws clients take the controller role")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	_ = os.MkdirAll(*dataDir, 0o755)

	tune, err := loadTuning(*tuningPath, logger)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	base, err := stage.ConfigFromTuning(tune)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	pack, err := level.LoadManifest(*packPath)
	if err != nil {
		logger.Fatalf("load pack: %v", err)
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openIndex(*indexDSN, *dataDir, logger)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		if err := idx.UpsertLevels(context.Background(), pack); err != nil {
			logger.Printf("index: upsert levels: %v", err)
		}
	}

	mirror, err := mirrorFromEnv(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	defer mirror.Close()

	logOpts := persistlog.LoggerOptions{}
	if mirror != nil {
		logOpts.RotateLayout = "2006-01-02-15-04" // 1-minute segments to lower RPO.
		logOpts.OnClose = mirror.Enqueue
	}
	turnLog := persistlog.NewTurnLoggerWithOptions(*dataDir, logOpts)
	auditLog := persistlog.NewAuditLoggerWithOptions(*dataDir, logOpts)

	hub := ws.NewHub()
	saver := newSessionSaver(nil, *dataDir, idx, mirror, logger)
	obs := stage.Observers{turnLog, auditLog, hub, saver}
	if idx != nil {
		obs = append(obs, idx)
	}
	s := stage.New(base, obs)
	s.SetLoader(stage.PackLoader(pack, base))
	saver.inputs = s.Inputs()
	hub.View = s.View

	resume := strings.TrimSpace(*resumePath)
	if resume == "" && *resumeLatest {
		if _, err := os.Stat(saver.currentPath()); err == nil {
			resume = saver.currentPath()
		}
	}
	if resume != "" {
		sess, err := snapshot.ReadSession(resume)
		if err != nil {
			logger.Fatalf("read session: %v", err)
		}
		if err := s.Resume(sess, base); err != nil {
			logger.Fatalf("resume session: %v", err)
		}
		logger.Printf("resumed level=%s turn=%d from %s", s.LevelID(), s.Turn(), filepath.Base(resume))
	} else {
		lv, cfg, err := stage.PackLoader(pack, base)("", *levelID)
		if err != nil {
			logger.Fatalf("level: %v", err)
		}
		if err := s.Load(lv, cfg); err != nil {
			logger.Fatalf("load level: %v", err)
		}
		logger.Printf("loaded level=%s trigger=%s", lv.ID, cfg.Trigger)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go saver.run(ctx)
	stageDone := make(chan struct{})
	go func() {
		defer close(stageDone)
		if err := s.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("stage stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, metricsSource{
			view:   queryView(r.Context(), s.Inputs()),
			hub:    hub,
			idx:    idx,
			mirror: mirror,
		})
	})

	if envBool("VP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			v := queryView(r.Context(), s.Inputs())
			if v == nil {
				http.Error(rw, "stage busy", http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(v)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			path, h, err := saver.Save(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path, "level_id": h.LevelID, "turn": h.Turn})
		})
	} else {
		logger.Printf("admin endpoints disabled (VP_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VP_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(s.Inputs(), hub, logger, ws.Options{RemoteControl: *remoteControl}).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}

	<-stageDone
	// Run has returned, so the stage can be used directly.
	if *saveOnExit {
		if sess, err := s.Export(); err != nil {
			logger.Printf("save on exit: %v", err)
		} else if err := saver.write(saver.currentPath(), sess); err != nil {
			logger.Printf("save on exit: %v", err)
		} else {
			logger.Printf("saved level=%s turn=%d", sess.Header.LevelID, sess.Header.Turn)
		}
	}
	closeAll(logger, turnLog, auditLog, idx)
}

func closeAll(logger *log.Logger, turnLog *persistlog.TurnLogger, auditLog *persistlog.AuditLogger, idx indexdb.Index) {
	if err := turnLog.Err(); err != nil {
		logger.Printf("turn log: %v", err)
	}
	if err := auditLog.Err(); err != nil {
		logger.Printf("audit log: %v", err)
	}
	_ = turnLog.Close()
	_ = auditLog.Close()
	if idx != nil {
		st := idx.Stats()
		if st.DropRecordTotal+st.WriteFailTotal > 0 {
			logger.Printf("index: dropped=%d write_failures=%d", st.DropRecordTotal, st.WriteFailTotal)
		}
		_ = idx.Close()
	}
}

// queryView asks the running stage for a view. It returns nil when the
// stage does not answer in time.
func queryView(ctx context.Context, inputs chan<- stage.Input) *stage.View {
	reply := make(chan stage.Reply, 1)
	select {
	case inputs <- stage.Input{Kind: stage.InputQuery, Reply: reply}:
	case <-time.After(time.Second):
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case rep := <-reply:
		return rep.View
	case <-time.After(time.Second):
		return nil
	case <-ctx.Done():
		return nil
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
