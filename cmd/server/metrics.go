package main

import (
	"fmt"
	"io"

	"voxelpush.ai/internal/persistence/indexdb"
	"voxelpush.ai/internal/persistence/objstore"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/transport/ws"
)

type metricsSource struct {
	view   *stage.View // nil when the stage did not answer
	hub    *ws.Hub
	idx    indexdb.Index
	mirror *objstore.Mirror
}

// writeMetrics emits the Prometheus text exposition format.
func writeMetrics(w io.Writer, m metricsSource) {
	if v := m.view; v != nil {
		fmt.Fprintf(w, "# HELP voxelpush_stage_turn Turn counter of the current level.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_stage_turn gauge\n")
		fmt.Fprintf(w, "voxelpush_stage_turn{level=%q} %d\n", v.LevelID, v.State.Turn)

		fmt.Fprintf(w, "# HELP voxelpush_stage_undo_depth Undo snapshots held for the current level.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_stage_undo_depth gauge\n")
		fmt.Fprintf(w, "voxelpush_stage_undo_depth{level=%q} %d\n", v.LevelID, v.UndoDepth)

		fmt.Fprintf(w, "# HELP voxelpush_stage_entities Registered entities.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_stage_entities gauge\n")
		fmt.Fprintf(w, "voxelpush_stage_entities{level=%q} %d\n", v.LevelID, len(v.State.Entities))

		fmt.Fprintf(w, "# HELP voxelpush_stage_over Whether the level is won (1) or lost (-1).\n")
		fmt.Fprintf(w, "# TYPE voxelpush_stage_over gauge\n")
		over := 0
		switch {
		case v.State.GoalReached:
			over = 1
		case v.State.Lost:
			over = -1
		}
		fmt.Fprintf(w, "voxelpush_stage_over{level=%q} %d\n", v.LevelID, over)
	}

	if m.hub != nil {
		fmt.Fprintf(w, "# HELP voxelpush_ws_sessions Connected websocket sessions.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_ws_sessions gauge\n")
		fmt.Fprintf(w, "voxelpush_ws_sessions %d\n", m.hub.Sessions())

		fmt.Fprintf(w, "# HELP voxelpush_ws_dropped_total Messages dropped on full session queues.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_ws_dropped_total counter\n")
		fmt.Fprintf(w, "voxelpush_ws_dropped_total %d\n", m.hub.Dropped())
	}

	if m.idx != nil {
		st := m.idx.Stats()
		fmt.Fprintf(w, "# HELP voxelpush_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_index_queue_depth gauge\n")
		fmt.Fprintf(w, "voxelpush_index_queue_depth %d\n", st.QueueDepth)

		fmt.Fprintf(w, "# HELP voxelpush_index_dropped_total Index rows dropped on a full queue.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_index_dropped_total counter\n")
		fmt.Fprintf(w, "voxelpush_index_dropped_total{kind=%q} %d\n", "record", st.DropRecordTotal)
		fmt.Fprintf(w, "voxelpush_index_dropped_total{kind=%q} %d\n", "session", st.DropSessionTotal)
		fmt.Fprintf(w, "voxelpush_index_dropped_total{kind=%q} %d\n", "clear", st.DropClearTotal)

		fmt.Fprintf(w, "# HELP voxelpush_index_write_fail_total Failed index transactions.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_index_write_fail_total counter\n")
		fmt.Fprintf(w, "voxelpush_index_write_fail_total %d\n", st.WriteFailTotal)
	}

	if m.mirror != nil {
		st := m.mirror.Stats()
		fmt.Fprintf(w, "# HELP voxelpush_mirror_queue_depth Object store mirror backlog.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_mirror_queue_depth gauge\n")
		fmt.Fprintf(w, "voxelpush_mirror_queue_depth %d\n", st.QueueDepth)

		fmt.Fprintf(w, "# HELP voxelpush_mirror_uploads_total Mirror uploads by result.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_mirror_uploads_total counter\n")
		fmt.Fprintf(w, "voxelpush_mirror_uploads_total{result=%q} %d\n", "ok", st.UploadedTotal)
		fmt.Fprintf(w, "voxelpush_mirror_uploads_total{result=%q} %d\n", "failed", st.FailedTotal)
		fmt.Fprintf(w, "voxelpush_mirror_uploads_total{result=%q} %d\n", "dropped", st.DroppedTotal)

		fmt.Fprintf(w, "# HELP voxelpush_mirror_last_upload_unix Unix time of the last successful upload.\n")
		fmt.Fprintf(w, "# TYPE voxelpush_mirror_last_upload_unix gauge\n")
		fmt.Fprintf(w, "voxelpush_mirror_last_upload_unix %d\n", st.LastUploadUnix)
	}
}
