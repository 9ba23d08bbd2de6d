package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ReplaceDiarization stores a diarization run for one transcript. Speakers are
// upserted by (video, key) so operator labels survive; the transcript's segments
// and cue attributions are replaced wholesale.
func (s *Store) ReplaceDiarization(ctx context.Context, in DiarizationWrite) (DiarizationCounts, error) {
	ctx = ensureContext(ctx)
	if in.VideoID == "" || in.TranscriptID == "" {
		return DiarizationCounts{}, errors.New("replace diarization: video and transcript are required")
	}
	var counts DiarizationCounts
	err := s.withTx(ctx, func(tx txExecer) error {
		counts = DiarizationCounts{}
		now := nowString()
		speakerIDs := make(map[string]string, len(in.Speakers))
		for _, sp := range in.Speakers {
			key := strings.TrimSpace(sp.Key)
			if key == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO video_speakers (id, video_id, key, label, source, created_at, updated_at)
                 VALUES (?, ?, ?, NULL, ?, ?, ?)
                 ON CONFLICT (video_id, key) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`,
				newID(), in.VideoID, key, in.Source, now, now,
			); err != nil {
				return fmt.Errorf("upsert speaker %s: %w", key, err)
			}
			var id string
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM video_speakers WHERE video_id = ? AND key = ?`, in.VideoID, key,
			).Scan(&id); err != nil {
				return fmt.Errorf("load speaker %s: %w", key, err)
			}
			if _, seen := speakerIDs[key]; !seen {
				counts.Speakers++
			}
			speakerIDs[key] = id
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cue_speakers WHERE transcript_id = ?`, in.TranscriptID); err != nil {
			return fmt.Errorf("clear cue speakers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM speaker_segments WHERE transcript_id = ?`, in.TranscriptID); err != nil {
			return fmt.Errorf("clear speaker segments: %w", err)
		}

		for _, sp := range in.Speakers {
			id, ok := speakerIDs[strings.TrimSpace(sp.Key)]
			if !ok {
				continue
			}
			for _, seg := range sp.Segments {
				if seg.EndMs <= seg.StartMs {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO speaker_segments (video_id, transcript_id, speaker_id, start_ms, end_ms, confidence, source)
                     VALUES (?, ?, ?, ?, ?, ?, ?)`,
					in.VideoID, in.TranscriptID, id, seg.StartMs, seg.EndMs, clampedConfidence(seg.Confidence), in.Source,
				); err != nil {
					return fmt.Errorf("insert speaker segment: %w", err)
				}
				counts.Segments++
			}
		}

		for _, assignment := range in.CueAssignments {
			id, ok := speakerIDs[strings.TrimSpace(assignment.SpeakerKey)]
			if !ok || assignment.CueID == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cue_speakers (cue_id, transcript_id, speaker_id, confidence, source)
                 VALUES (?, ?, ?, ?, ?)`,
				assignment.CueID, in.TranscriptID, id, clampedConfidence(assignment.Confidence), in.Source,
			); err != nil {
				return fmt.Errorf("insert cue speaker: %w", err)
			}
			counts.CueAssignments++
		}
		return nil
	})
	if err != nil {
		return DiarizationCounts{}, err
	}
	return counts, nil
}

func clampedConfidence(value *float64) any {
	if value == nil {
		return nil
	}
	return clampUnit(*value)
}

// ListSpeakers returns the speakers known for a video.
func (s *Store) ListSpeakers(ctx context.Context, videoID string) ([]Speaker, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, key, label, source FROM video_speakers WHERE video_id = ? ORDER BY key`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}
	defer rows.Close()
	var speakers []Speaker
	for rows.Next() {
		var (
			sp    Speaker
			label sql.NullString
		)
		if err := rows.Scan(&sp.ID, &sp.VideoID, &sp.Key, &label, &sp.Source); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		sp.Label = label.String
		speakers = append(speakers, sp)
	}
	return speakers, rows.Err()
}

// SetSpeakerLabel assigns a human label to a speaker.
func (s *Store) SetSpeakerLabel(ctx context.Context, videoID, key, label string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE video_speakers SET label = ?, updated_at = ? WHERE video_id = ? AND key = ?`,
		nullableString(strings.TrimSpace(label)), nowString(), videoID, key,
	); err != nil {
		return fmt.Errorf("set speaker label: %w", err)
	}
	return nil
}

// ListSpeakerSegments returns a video's stored segments ordered by start.
func (s *Store) ListSpeakerSegments(ctx context.Context, videoID string) ([]SpeakerSegment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT seg.speaker_id, sp.key, seg.start_ms, seg.end_ms, seg.confidence
         FROM speaker_segments seg JOIN video_speakers sp ON sp.id = seg.speaker_id
         WHERE seg.video_id = ? ORDER BY seg.start_ms, seg.end_ms`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list speaker segments: %w", err)
	}
	defer rows.Close()
	var segments []SpeakerSegment
	for rows.Next() {
		var (
			seg  SpeakerSegment
			conf sql.NullFloat64
		)
		if err := rows.Scan(&seg.SpeakerID, &seg.SpeakerKey, &seg.StartMs, &seg.EndMs, &conf); err != nil {
			return nil, fmt.Errorf("scan speaker segment: %w", err)
		}
		seg.Confidence = nullFloatPtr(conf)
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// CueSpeakerKeys maps cue id to speaker key for a transcript.
func (s *Store) CueSpeakerKeys(ctx context.Context, transcriptID string) (map[string]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT cs.cue_id, sp.key FROM cue_speakers cs JOIN video_speakers sp ON sp.id = cs.speaker_id
         WHERE cs.transcript_id = ?`,
		transcriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cue speakers: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var cueID, key string
		if err := rows.Scan(&cueID, &key); err != nil {
			return nil, err
		}
		out[cueID] = key
	}
	return out, rows.Err()
}
