package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const videoColumns = `id, provider, provider_video_id, url, title, channel_name, duration_ms,
    thumbnail_url, created_at, updated_at`

func scanVideo(scanner rowScanner) (*Video, error) {
	var (
		video                     Video
		title, channel, thumbnail sql.NullString
		duration                  sql.NullInt64
		createdAt, updatedAt      string
	)
	if err := scanner.Scan(
		&video.ID, &video.Provider, &video.ProviderVideoID, &video.URL,
		&title, &channel, &duration, &thumbnail, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	video.Title = title.String
	video.ChannelName = channel.String
	video.ThumbnailURL = thumbnail.String
	video.DurationMs = nullIntPtr(duration)
	if t, err := parseTimeString(createdAt); err == nil {
		video.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		video.UpdatedAt = t
	}
	return &video, nil
}

// UpsertVideo registers a video by (provider, provider_video_id). An existing
// row keeps its id; non-empty metadata replaces stored values.
func (s *Store) UpsertVideo(ctx context.Context, provider, providerVideoID, url string, meta VideoMetadata) (*Video, error) {
	provider = strings.TrimSpace(provider)
	providerVideoID = strings.TrimSpace(providerVideoID)
	if provider == "" || providerVideoID == "" {
		return nil, errors.New("upsert video: provider and provider video id are required")
	}
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO videos (id, provider, provider_video_id, url, title, channel_name, duration_ms,
             thumbnail_url, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (provider, provider_video_id) DO UPDATE SET
             url = excluded.url,
             title = COALESCE(excluded.title, videos.title),
             channel_name = COALESCE(excluded.channel_name, videos.channel_name),
             duration_ms = COALESCE(excluded.duration_ms, videos.duration_ms),
             thumbnail_url = COALESCE(excluded.thumbnail_url, videos.thumbnail_url),
             updated_at = excluded.updated_at`,
		newID(), provider, providerVideoID, url,
		nullableString(meta.Title), nullableString(meta.ChannelName), nullableInt64(meta.DurationMs),
		nullableString(meta.ThumbnailURL), now, now,
	); err != nil {
		return nil, fmt.Errorf("upsert video: %w", err)
	}
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE provider = ? AND provider_video_id = ?`,
		provider, providerVideoID,
	)
	video, err := scanVideo(row)
	if err != nil {
		return nil, fmt.Errorf("reload video: %w", err)
	}
	return video, nil
}

// GetVideo fetches a video by id. A missing video yields nil, nil.
func (s *Store) GetVideo(ctx context.Context, id string) (*Video, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return video, nil
}

// ListVideos returns all videos, newest first.
func (s *Store) ListVideos(ctx context.Context) ([]*Video, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()
	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// UpdateVideoMetadata applies the non-empty fields of meta.
func (s *Store) UpdateVideoMetadata(ctx context.Context, id string, meta VideoMetadata) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE videos SET
             title = COALESCE(?, title),
             channel_name = COALESCE(?, channel_name),
             duration_ms = COALESCE(?, duration_ms),
             thumbnail_url = COALESCE(?, thumbnail_url),
             updated_at = ?
         WHERE id = ?`,
		nullableString(meta.Title), nullableString(meta.ChannelName), nullableInt64(meta.DurationMs),
		nullableString(meta.ThumbnailURL), nowString(), id,
	); err != nil {
		return fmt.Errorf("update video metadata: %w", err)
	}
	return nil
}
