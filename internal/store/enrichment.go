package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Chapter and tag sources.
const (
	ChapterSourceSignals = "signals"
	TagSourceCLIPrefix   = "cli:"
)

// ReplaceVideoTags replaces the tag set a source produced for a video.
func (s *Store) ReplaceVideoTags(ctx context.Context, videoID, source string, tags []string) (int, error) {
	ctx = ensureContext(ctx)
	written := 0
	err := s.withTx(ctx, func(tx txExecer) error {
		written = 0
		if _, err := tx.ExecContext(ctx, `DELETE FROM video_tags WHERE video_id = ? AND source = ?`, videoID, source); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		now := nowString()
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO video_tags (video_id, tag, source, created_at) VALUES (?, ?, ?, ?)
                 ON CONFLICT DO NOTHING`,
				videoID, tag, source, now,
			)
			if err != nil {
				return fmt.Errorf("insert tag: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ListVideoTags returns a video's tags in name order.
func (s *Store) ListVideoTags(ctx context.Context, videoID string) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tag FROM video_tags WHERE video_id = ? ORDER BY tag`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ReplaceVideoChapters replaces every chapter a source produced for a video.
// transcriptID may be empty.
func (s *Store) ReplaceVideoChapters(ctx context.Context, videoID, transcriptID, source string, chapters []ChapterInput) (int, error) {
	ctx = ensureContext(ctx)
	written := 0
	err := s.withTx(ctx, func(tx txExecer) error {
		written = 0
		if _, err := tx.ExecContext(ctx, `DELETE FROM video_chapters WHERE video_id = ? AND source = ?`, videoID, source); err != nil {
			return fmt.Errorf("clear chapters: %w", err)
		}
		now := nowString()
		for _, ch := range chapters {
			var signals any
			if len(ch.Signals) > 0 {
				encoded, err := json.Marshal(ch.Signals)
				if err != nil {
					return fmt.Errorf("encode signals: %w", err)
				}
				signals = string(encoded)
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO video_chapters (id, video_id, transcript_id, start_ms, end_ms, title, source, signals_json, confidence, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT (video_id, source, start_ms) DO NOTHING`,
				newID(), videoID, nullableString(transcriptID), ch.StartMs, ch.EndMs, ch.Title, source,
				signals, clampedConfidence(ch.Confidence), now,
			)
			if err != nil {
				return fmt.Errorf("insert chapter: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ListVideoChapters returns chapters of a video ordered by start; source "" means all.
func (s *Store) ListVideoChapters(ctx context.Context, videoID, source string) ([]Chapter, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, video_id, transcript_id, start_ms, end_ms, title, source, signals_json, confidence
        FROM video_chapters WHERE video_id = ?`
	args := []any{videoID}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY start_ms, source`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()
	var chapters []Chapter
	for rows.Next() {
		var (
			ch                    Chapter
			transcriptID, signals sql.NullString
			conf                  sql.NullFloat64
		)
		if err := rows.Scan(&ch.ID, &ch.VideoID, &transcriptID, &ch.StartMs, &ch.EndMs, &ch.Title, &ch.Source, &signals, &conf); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		ch.TranscriptID = transcriptID.String
		ch.Confidence = nullFloatPtr(conf)
		if signals.Valid {
			_ = json.Unmarshal([]byte(signals.String), &ch.Signals)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// DeleteSignificantMarks removes all marks of a video.
func (s *Store) DeleteSignificantMarks(ctx context.Context, videoID string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM significant_marks WHERE video_id = ?`, videoID)
	if err != nil {
		return 0, fmt.Errorf("delete marks: %w", err)
	}
	return res.RowsAffected()
}

// InsertSignificantMarks appends marks for a video.
func (s *Store) InsertSignificantMarks(ctx context.Context, videoID string, marks []MarkInput) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)
	written := 0
	err := s.withTx(ctx, func(tx txExecer) error {
		written = 0
		now := nowString()
		for _, mark := range marks {
			var metadata any
			if len(mark.Metadata) > 0 {
				encoded, err := encodeJSON(mark.Metadata)
				if err != nil {
					return err
				}
				metadata = encoded
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO significant_marks (id, video_id, timestamp_ms, mark_type, confidence, description, metadata_json, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				newID(), videoID, mark.TimestampMs, mark.MarkType, clampUnit(mark.Confidence),
				nullableString(mark.Description), metadata, now,
			); err != nil {
				return fmt.Errorf("insert mark: %w", err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ListSignificantMarks returns a video's marks ordered by timestamp.
func (s *Store) ListSignificantMarks(ctx context.Context, videoID string) ([]SignificantMark, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, timestamp_ms, mark_type, confidence, description, metadata_json
         FROM significant_marks WHERE video_id = ? ORDER BY timestamp_ms, mark_type`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer rows.Close()
	var marks []SignificantMark
	for rows.Next() {
		var (
			mark                  SignificantMark
			description, metadata sql.NullString
		)
		if err := rows.Scan(&mark.ID, &mark.VideoID, &mark.TimestampMs, &mark.MarkType, &mark.Confidence, &description, &metadata); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		mark.Description = description.String
		mark.Metadata = rawJSON(metadata)
		marks = append(marks, mark)
	}
	return marks, rows.Err()
}

// UpsertContextItem stores an external context record keyed on (entity, source, source id).
func (s *Store) UpsertContextItem(ctx context.Context, in ContextItemInput) error {
	payload, err := encodeJSON(in.Payload)
	if err != nil {
		return fmt.Errorf("upsert context item: %w", err)
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO context_items (id, entity_id, source, source_id, title, snippet, url, payload_json, fetched_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (entity_id, source, source_id) DO UPDATE SET
             title = excluded.title, snippet = excluded.snippet, url = excluded.url,
             payload_json = excluded.payload_json, fetched_at = excluded.fetched_at`,
		newID(), in.EntityID, in.Source, in.SourceID, in.Title, in.Snippet, nullableString(in.URL), payload, nowString(),
	); err != nil {
		return fmt.Errorf("upsert context item: %w", err)
	}
	return nil
}

// ListContextItems returns context records attached to a video's entities.
func (s *Store) ListContextItems(ctx context.Context, videoID string) ([]ContextItem, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.entity_id, c.source, c.source_id, c.title, c.snippet, c.url, c.fetched_at
         FROM context_items c JOIN entities e ON e.id = c.entity_id
         WHERE e.video_id = ? ORDER BY e.canonical_name, c.source`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list context items: %w", err)
	}
	defer rows.Close()
	var items []ContextItem
	for rows.Next() {
		var (
			item      ContextItem
			url       sql.NullString
			fetchedAt string
		)
		if err := rows.Scan(&item.ID, &item.EntityID, &item.Source, &item.SourceID, &item.Title, &item.Snippet, &url, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan context item: %w", err)
		}
		item.URL = url.String
		if t, err := parseTimeString(fetchedAt); err == nil {
			item.FetchedAt = t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertFrameAnalyses appends frame analysis spans for a video.
func (s *Store) InsertFrameAnalyses(ctx context.Context, videoID string, frames []FrameAnalysis) (int, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)
	written := 0
	err := s.withTx(ctx, func(tx txExecer) error {
		written = 0
		for _, f := range frames {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO frame_analyses (video_id, start_ms, end_ms, scene_type, text_overlay, phash, description)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				videoID, f.StartMs, f.EndMs, nullableString(f.SceneType), nullableString(f.TextOverlay),
				nullableString(f.PHash), nullableString(f.Description),
			); err != nil {
				return fmt.Errorf("insert frame analysis: %w", err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ListFrameAnalyses returns a video's frame analyses ordered by start.
func (s *Store) ListFrameAnalyses(ctx context.Context, videoID string) ([]FrameAnalysis, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, end_ms, scene_type, text_overlay, phash, description
         FROM frame_analyses WHERE video_id = ? ORDER BY start_ms, id`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list frame analyses: %w", err)
	}
	defer rows.Close()
	var frames []FrameAnalysis
	for rows.Next() {
		var (
			f                                  FrameAnalysis
			scene, overlay, phash, description sql.NullString
		)
		if err := rows.Scan(&f.StartMs, &f.EndMs, &scene, &overlay, &phash, &description); err != nil {
			return nil, fmt.Errorf("scan frame analysis: %w", err)
		}
		f.SceneType = scene.String
		f.TextOverlay = overlay.String
		f.PHash = phash.String
		f.Description = description.String
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
