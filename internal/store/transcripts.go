package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Cue and chunk rows get name-based ids so re-running a stage rewrites the same rows.
var artifactNamespace = uuid.MustParse("6f1c7a52-3c1e-4d8a-9a47-2b8f0c7e5d11")

func artifactID(kind, parent string, idx int) string {
	return uuid.NewSHA1(artifactNamespace, []byte(kind+":"+parent+":"+strconv.Itoa(idx))).String()
}

const transcriptColumns = `id, video_id, language, source, is_generated, provider_payload, fetched_at`

func scanTranscript(scanner rowScanner) (*Transcript, error) {
	var (
		tr        Transcript
		generated int
		payload   sql.NullString
		fetchedAt string
	)
	if err := scanner.Scan(&tr.ID, &tr.VideoID, &tr.Language, &tr.Source, &generated, &payload, &fetchedAt); err != nil {
		return nil, err
	}
	tr.IsGenerated = generated != 0
	tr.ProviderPayload = rawJSON(payload)
	if t, err := parseTimeString(fetchedAt); err == nil {
		tr.FetchedAt = t
	}
	return &tr, nil
}

// CreateTranscriptIfMissing returns the transcript for (video, language, source),
// inserting it first when absent. created reports whether a row was inserted.
func (s *Store) CreateTranscriptIfMissing(ctx context.Context, in NewTranscript) (*Transcript, bool, error) {
	language := strings.TrimSpace(in.Language)
	source := strings.TrimSpace(in.Source)
	if in.VideoID == "" || language == "" || source == "" {
		return nil, false, errors.New("create transcript: video, language and source are required")
	}
	payload, err := encodeJSON(in.ProviderPayload)
	if err != nil {
		return nil, false, fmt.Errorf("create transcript: %w", err)
	}
	generated := 0
	if in.IsGenerated {
		generated = 1
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO transcripts (id, video_id, language, source, is_generated, provider_payload, fetched_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (video_id, language, source) DO NOTHING`,
		newID(), in.VideoID, language, source, generated, payload, nowString(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("create transcript: %w", err)
	}
	affected, _ := res.RowsAffected()

	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transcriptColumns+` FROM transcripts WHERE video_id = ? AND language = ? AND source = ?`,
		in.VideoID, language, source,
	)
	tr, err := scanTranscript(row)
	if err != nil {
		return nil, false, fmt.Errorf("reload transcript: %w", err)
	}
	return tr, affected == 1, nil
}

// LatestTranscript returns the most recently fetched transcript of a video, or nil.
func (s *Store) LatestTranscript(ctx context.Context, videoID string) (*Transcript, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transcriptColumns+` FROM transcripts WHERE video_id = ? ORDER BY fetched_at DESC, id LIMIT 1`,
		videoID,
	)
	tr, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest transcript: %w", err)
	}
	return tr, nil
}

// InsertCues stores cues keyed on (transcript_id, idx). Existing rows are left
// untouched so a repeated delivery inserts nothing. It returns the number of new rows.
func (s *Store) InsertCues(ctx context.Context, videoID, transcriptID string, cues []CueInput) (int, error) {
	if len(cues) == 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)
	inserted := 0
	err := s.withTx(ctx, func(tx txExecer) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO transcript_cues (id, video_id, transcript_id, idx, start_ms, end_ms, text, norm_text)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (transcript_id, idx) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare cue insert: %w", err)
		}
		defer stmt.Close()
		for _, cue := range cues {
			res, err := stmt.ExecContext(ctx,
				artifactID("cue", transcriptID, cue.Idx), videoID, transcriptID,
				cue.Idx, cue.StartMs, cue.EndMs, cue.Text, cue.NormText,
			)
			if err != nil {
				return fmt.Errorf("insert cue %d: %w", cue.Idx, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListCues returns a transcript's cues ordered by idx.
func (s *Store) ListCues(ctx context.Context, transcriptID string) ([]Cue, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transcript_id, idx, start_ms, end_ms, text, norm_text
         FROM transcript_cues WHERE transcript_id = ? ORDER BY idx`,
		transcriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cues: %w", err)
	}
	defer rows.Close()
	var cues []Cue
	for rows.Next() {
		var cue Cue
		if err := rows.Scan(&cue.ID, &cue.TranscriptID, &cue.Idx, &cue.StartMs, &cue.EndMs, &cue.Text, &cue.NormText); err != nil {
			return nil, fmt.Errorf("scan cue: %w", err)
		}
		cues = append(cues, cue)
	}
	return cues, rows.Err()
}

// RebuildChunks replaces the chunk set of a transcript. Chunk ids derive from the
// transcript and position, so identical input yields identical rows; embeddings of
// chunks whose text changed are dropped along with chunks past the new tail.
func (s *Store) RebuildChunks(ctx context.Context, transcriptID string, chunks []ChunkInput) ([]Chunk, error) {
	ctx = ensureContext(ctx)
	out := make([]Chunk, 0, len(chunks))
	err := s.withTx(ctx, func(tx txExecer) error {
		out = out[:0]
		keep := make([]any, 0, len(chunks)+1)
		keep = append(keep, transcriptID)
		for i, chunk := range chunks {
			id := artifactID("chunk", transcriptID, i)
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM embeddings WHERE chunk_id = ?
                 AND EXISTS (SELECT 1 FROM transcript_chunks c WHERE c.id = ? AND c.text != ?)`,
				id, id, chunk.Text,
			); err != nil {
				return fmt.Errorf("drop stale embeddings: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transcript_chunks (id, transcript_id, start_ms, end_ms, cue_start_idx, cue_end_idx, text, token_estimate)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT (id) DO UPDATE SET
                     start_ms = excluded.start_ms, end_ms = excluded.end_ms,
                     cue_start_idx = excluded.cue_start_idx, cue_end_idx = excluded.cue_end_idx,
                     text = excluded.text, token_estimate = excluded.token_estimate`,
				id, transcriptID, chunk.StartMs, chunk.EndMs, chunk.CueStartIdx, chunk.CueEndIdx,
				chunk.Text, chunk.TokenEstimate,
			); err != nil {
				return fmt.Errorf("upsert chunk %d: %w", i, err)
			}
			keep = append(keep, id)
			out = append(out, Chunk{
				ID:            id,
				TranscriptID:  transcriptID,
				StartMs:       chunk.StartMs,
				EndMs:         chunk.EndMs,
				CueStartIdx:   chunk.CueStartIdx,
				CueEndIdx:     chunk.CueEndIdx,
				Text:          chunk.Text,
				TokenEstimate: chunk.TokenEstimate,
			})
		}
		query := `DELETE FROM transcript_chunks WHERE transcript_id = ?`
		if len(chunks) > 0 {
			query += ` AND id NOT IN (` + makePlaceholders(len(chunks)) + `)`
		}
		if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
			return fmt.Errorf("trim chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListChunks returns a transcript's chunks in cue order.
func (s *Store) ListChunks(ctx context.Context, transcriptID string) ([]Chunk, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transcript_id, start_ms, end_ms, cue_start_idx, cue_end_idx, text, token_estimate
         FROM transcript_chunks WHERE transcript_id = ? ORDER BY cue_start_idx, start_ms`,
		transcriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.TranscriptID, &c.StartMs, &c.EndMs, &c.CueStartIdx, &c.CueEndIdx, &c.Text, &c.TokenEstimate); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// UpsertEmbedding stores a chunk vector under its model id.
func (s *Store) UpsertEmbedding(ctx context.Context, in EmbeddingInput) error {
	if len(in.Vector) == 0 {
		return errors.New("upsert embedding: empty vector")
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO embeddings (transcript_id, chunk_id, model_id, dimensions, vector, text_hash, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (chunk_id, model_id) DO UPDATE SET
             dimensions = excluded.dimensions, vector = excluded.vector,
             text_hash = excluded.text_hash, created_at = excluded.created_at`,
		in.TranscriptID, in.ChunkID, in.ModelID, len(in.Vector), encodeVector(in.Vector), in.TextHash, nowString(),
	); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// CountEmbeddings counts stored vectors for a transcript and model.
func (s *Store) CountEmbeddings(ctx context.Context, transcriptID, modelID string) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM embeddings WHERE transcript_id = ? AND model_id = ?`,
		transcriptID, modelID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// LoadEmbedding returns the stored vector of a chunk, or nil when absent.
func (s *Store) LoadEmbedding(ctx context.Context, chunkID, modelID string) ([]float32, error) {
	ctx = ensureContext(ctx)
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE chunk_id = ? AND model_id = ?`, chunkID, modelID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding: %w", err)
	}
	return decodeVector(blob), nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
