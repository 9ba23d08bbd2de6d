package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ClearEntitiesForVideo removes entities of a video together with their mentions
// and context items.
func (s *Store) ClearEntitiesForVideo(ctx context.Context, videoID string) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx txExecer) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_mentions WHERE video_id = ?`, videoID); err != nil {
			return fmt.Errorf("clear mentions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE video_id = ?`, videoID); err != nil {
			return fmt.Errorf("clear entities: %w", err)
		}
		return nil
	})
}

// UpsertEntity inserts an entity keyed on (video, type, canonical name), merging
// aliases into any existing row without duplicates.
func (s *Store) UpsertEntity(ctx context.Context, videoID, entityType, canonical string, aliases []string) (*Entity, error) {
	ctx = ensureContext(ctx)
	entityType = strings.TrimSpace(entityType)
	canonical = strings.TrimSpace(canonical)
	if videoID == "" || entityType == "" || canonical == "" {
		return nil, errors.New("upsert entity: video, type and canonical name are required")
	}
	var entity *Entity
	err := s.withTx(ctx, func(tx txExecer) error {
		var id, existing, createdAt string
		err := tx.QueryRowContext(ctx,
			`SELECT id, aliases_json, created_at FROM entities WHERE video_id = ? AND type = ? AND canonical_name = ?`,
			videoID, entityType, canonical,
		).Scan(&id, &existing, &createdAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = newID()
			createdAt = nowString()
			merged := mergeAliases(nil, aliases)
			encoded, _ := json.Marshal(merged)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entities (id, video_id, type, canonical_name, aliases_json, created_at)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				id, videoID, entityType, canonical, string(encoded), createdAt,
			); err != nil {
				return fmt.Errorf("insert entity: %w", err)
			}
			entity = &Entity{ID: id, VideoID: videoID, Type: entityType, CanonicalName: canonical, Aliases: merged}
		case err != nil:
			return fmt.Errorf("load entity: %w", err)
		default:
			var current []string
			_ = json.Unmarshal([]byte(existing), &current)
			merged := mergeAliases(current, aliases)
			encoded, _ := json.Marshal(merged)
			if _, err := tx.ExecContext(ctx,
				`UPDATE entities SET aliases_json = ? WHERE id = ?`, string(encoded), id,
			); err != nil {
				return fmt.Errorf("update entity aliases: %w", err)
			}
			entity = &Entity{ID: id, VideoID: videoID, Type: entityType, CanonicalName: canonical, Aliases: merged}
		}
		if t, err := parseTimeString(createdAt); err == nil {
			entity.CreatedAt = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func mergeAliases(current, extra []string) []string {
	seen := make(map[string]struct{}, len(current)+len(extra))
	out := make([]string, 0, len(current)+len(extra))
	for _, list := range [][]string{current, extra} {
		for _, alias := range list {
			alias = strings.TrimSpace(alias)
			if alias == "" {
				continue
			}
			if _, ok := seen[alias]; ok {
				continue
			}
			seen[alias] = struct{}{}
			out = append(out, alias)
		}
	}
	return out
}

// InsertEntityMentions stores mentions in one transaction and returns the count written.
func (s *Store) InsertEntityMentions(ctx context.Context, mentions []MentionInput) (int, error) {
	if len(mentions) == 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)
	inserted := 0
	err := s.withTx(ctx, func(tx txExecer) error {
		inserted = 0
		now := nowString()
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO entity_mentions (id, video_id, entity_id, cue_id, start_ms, end_ms, surface, confidence, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare mention insert: %w", err)
		}
		defer stmt.Close()
		for _, m := range mentions {
			if _, err := stmt.ExecContext(ctx,
				newID(), m.VideoID, m.EntityID, m.CueID, m.StartMs, m.EndMs, m.Surface, clampedConfidence(m.Confidence), now,
			); err != nil {
				return fmt.Errorf("insert mention: %w", err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListEntitiesForVideo returns a video's entities with their mention counts,
// most mentioned first.
func (s *Store) ListEntitiesForVideo(ctx context.Context, videoID string) ([]Entity, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.video_id, e.type, e.canonical_name, e.aliases_json, e.created_at, COUNT(m.id)
         FROM entities e LEFT JOIN entity_mentions m ON m.entity_id = e.id
         WHERE e.video_id = ?
         GROUP BY e.id
         ORDER BY COUNT(m.id) DESC, e.canonical_name`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return scanEntities(rows)
}

// ListEntitiesInWindow returns up to limit entities mentioned within
// [startMs, endMs], picked by mention count and returned in name order.
func (s *Store) ListEntitiesInWindow(ctx context.Context, videoID string, startMs, endMs int64, limit int) ([]Entity, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, type, canonical_name, aliases_json, created_at, mentions FROM (
             SELECT e.id, e.video_id, e.type, e.canonical_name, e.aliases_json, e.created_at, COUNT(m.id) AS mentions
             FROM entity_mentions m JOIN entities e ON e.id = m.entity_id
             WHERE m.video_id = ? AND m.start_ms <= ? AND m.end_ms >= ?
             GROUP BY e.id
             ORDER BY mentions DESC, e.canonical_name
             LIMIT ?
         ) ORDER BY canonical_name`,
		videoID, endMs, startMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entities in window: %w", err)
	}
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]Entity, error) {
	defer rows.Close()
	var entities []Entity
	for rows.Next() {
		var (
			e                  Entity
			aliases, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.VideoID, &e.Type, &e.CanonicalName, &aliases, &createdAt, &e.MentionCount); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		_ = json.Unmarshal([]byte(aliases), &e.Aliases)
		if t, err := parseTimeString(createdAt); err == nil {
			e.CreatedAt = t
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
