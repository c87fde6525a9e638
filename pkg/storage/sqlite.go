package storage

import (
	"context"
	stdsql "database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// SQLite is the embedded Storage implementation. Its pool holds a
// single connection, so reads and writes are serialized.
type SQLite struct {
	db *stdsql.DB
}

// Open creates (or attaches to) the sqlite database at path, running any
// pending migrations. A single connection is used for all reads and writes; SetMaxOpenConns
// caps the pool so modernc's driver — which does not support concurrent
// writers — never attempts one.
func Open(ctx context.Context, path string) (*SQLite, error) {
	db, err := stdsql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// --- memory operations ---

func (s *SQLite) StoreMemory(ctx context.Context, note models.MemoryNote) (ids.MemoryId, error) {
	if note.ID.IsZero() {
		note.ID = ids.NewMemoryId()
	}
	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	if note.LastAccessed.IsZero() {
		note.LastAccessed = now
	}

	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return ids.MemoryId{}, fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, namespace, type, title, content, tags, importance,
			embedding, access_count, created_at, updated_at, last_accessed, archived, archive_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID.String(), note.Namespace.String(), string(note.Type), note.Title, note.Content,
		string(tags), note.Importance, encodeEmbedding(note.Embedding), note.AccessCount,
		note.CreatedAt.Format(time.RFC3339Nano), note.UpdatedAt.Format(time.RFC3339Nano),
		note.LastAccessed.Format(time.RFC3339Nano), boolToInt(note.Archived), note.ArchiveReason)
	if err != nil {
		return ids.MemoryId{}, wrapStorageErr("store_memory", err)
	}
	return note.ID, nil
}

func (s *SQLite) GetMemory(ctx context.Context, id ids.MemoryId) (models.MemoryNote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, namespace, type, title, content, tags, importance,
		embedding, access_count, created_at, updated_at, last_accessed, archived, archive_reason
		FROM memories WHERE id = ?`, id.String())
	note, err := scanMemory(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return models.MemoryNote{}, ErrNotFound
	}
	if err != nil {
		return models.MemoryNote{}, wrapStorageErr("get_memory", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id.String()); err != nil {
		return models.MemoryNote{}, wrapStorageErr("get_memory: touch access", err)
	}
	return note, nil
}

func (s *SQLite) UpdateMemory(ctx context.Context, id ids.MemoryId, patch Partial) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339Nano)}

	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *patch.Importance)
	}
	if patch.Tags != nil {
		tags, err := json.Marshal(patch.Tags)
		if err != nil {
			return fmt.Errorf("marshaling tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(tags))
	}
	if patch.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, boolToInt(*patch.Archived))
	}

	args = append(args, id.String())
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapStorageErr("update_memory", err)
	}
	return requireOneRow(res, ErrNotFound)
}

func (s *SQLite) ArchiveMemory(ctx context.Context, id ids.MemoryId, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET archived = 1, archive_reason = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return wrapStorageErr("archive_memory", err)
	}
	return requireOneRow(res, ErrNotFound)
}

func (s *SQLite) ListRecent(ctx context.Context, ns ids.Namespace, limit int) ([]models.MemoryNote, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, namespace, type, title, content, tags, importance,
		embedding, access_count, created_at, updated_at, last_accessed, archived, archive_reason
		FROM memories WHERE namespace = ? AND archived = 0 ORDER BY updated_at DESC LIMIT ?`,
		ns.String(), limit)
	if err != nil {
		return nil, wrapStorageErr("list_recent", err)
	}
	defer rows.Close()

	var out []models.MemoryNote
	for rows.Next() {
		note, err := scanMemory(rows)
		if err != nil {
			return nil, wrapStorageErr("list_recent: scan", err)
		}
		out = append(out, note)
	}
	return out, wrapStorageErr("list_recent: rows", rows.Err())
}

// Search implements hybrid keyword+semantic+graph scoring. Keyword
// relevance comes from FTS5 bm25; semantic relevance is cosine
// similarity against the query embedding supplied by the caller via
// SearchQuery.QueryEmbedding (the embedding computation itself is an
// LlmClient-adjacent concern outside Storage); graph relevance is the
// normalized link strength between a candidate and the rest of the
// candidate pool.
func (s *SQLite) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	// Oversample candidates beyond the requested limit so graph-boost
	// re-ranking has something to work with.
	candidateLimit := limit * 4

	ftsQuery := ftsEscape(q.Query)
	var rows *stdsql.Rows
	var err error
	if ftsQuery != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id, m.namespace, m.type, m.title, m.content, m.tags, m.importance,
				m.embedding, m.access_count, m.created_at, m.updated_at, m.last_accessed,
				m.archived, m.archive_reason, bm25(memories_fts) AS rank
			FROM memories_fts
			JOIN memories m ON m.id = memories_fts.id
			WHERE memories_fts MATCH ?
			ORDER BY rank LIMIT ?`, ftsQuery, candidateLimit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, namespace, type, title, content, tags, importance, embedding,
				access_count, created_at, updated_at, last_accessed, archived, archive_reason, 0.0 AS rank
			FROM memories ORDER BY updated_at DESC LIMIT ?`, candidateLimit)
	}
	if err != nil {
		return nil, wrapStorageErr("search", err)
	}
	defer rows.Close()

	var candidates []memCandidate
	var minRank, maxRank float64
	first := true
	for rows.Next() {
		note, rank, err := scanMemoryWithRank(rows)
		if err != nil {
			return nil, wrapStorageErr("search: scan", err)
		}
		if !matchesFilters(note, q) {
			continue
		}
		if first {
			minRank, maxRank = rank, rank
			first = false
		} else {
			if rank < minRank {
				minRank = rank
			}
			if rank > maxRank {
				maxRank = rank
			}
		}
		candidates = append(candidates, memCandidate{note: note, rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageErr("search: rows", err)
	}

	graphScores, err := s.graphScores(ctx, candidates)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		keyword := normalizeRank(c.rank, minRank, maxRank)
		semantic := cosineSimilarity(c.note.Embedding, q.QueryEmbedding)
		graph := graphScores[c.note.ID]

		relevance := models.HybridScore(keyword, semantic, graph, c.note.Namespace.Boost())
		results = append(results, models.SearchResult{
			Memory:    c.note,
			Relevance: relevance,
			Keyword:   keyword,
			Semantic:  semantic,
			Graph:     graph,
		})
	}

	sortResultsByRelevance(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLite) Link(ctx context.Context, source, target ids.MemoryId, kind string, strength float64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_links (source, target, kind, strength, reason) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, target, kind) DO UPDATE SET strength = excluded.strength, reason = excluded.reason`,
		source.String(), target.String(), kind, strength, reason)
	if err != nil {
		return wrapStorageErr("link", err)
	}
	return nil
}

func (s *SQLite) Neighbors(ctx context.Context, id ids.MemoryId, depth int, minStrength float64) ([]ids.MemoryId, error) {
	if depth <= 0 {
		depth = 1
	}
	frontier := map[string]bool{id.String(): true}
	seen := map[string]bool{id.String(): true}
	var out []ids.MemoryId

	for d := 0; d < depth && len(frontier) > 0; d++ {
		next := map[string]bool{}
		for node := range frontier {
			rows, err := s.db.QueryContext(ctx, `
				SELECT target FROM memory_links WHERE source = ? AND strength >= ?
				UNION
				SELECT source FROM memory_links WHERE target = ? AND strength >= ?`,
				node, minStrength, node, minStrength)
			if err != nil {
				return nil, wrapStorageErr("neighbors", err)
			}
			for rows.Next() {
				var neighbor string
				if err := rows.Scan(&neighbor); err != nil {
					rows.Close()
					return nil, wrapStorageErr("neighbors: scan", err)
				}
				if !seen[neighbor] {
					seen[neighbor] = true
					next[neighbor] = true
					if id2, err := ids.ParseMemoryId(neighbor); err == nil {
						out = append(out, id2)
					}
				}
			}
			rows.Close()
		}
		frontier = next
	}
	return out, nil
}

// --- event log operations ---

func (s *SQLite) AppendEvent(ctx context.Context, ev models.Event) (ids.EventId, error) {
	if ev.EventID.IsZero() {
		ev.EventID = ids.NewEventId()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return ids.EventId{}, fmt.Errorf("marshaling event payload: %w", err)
	}

	var workItemID stdsql.NullString
	if ev.WorkItemID != nil {
		workItemID = stdsql.NullString{String: ev.WorkItemID.String(), Valid: true}
	}

	var nextSeq int64
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM events`).Scan(&nextSeq)
	if err != nil {
		return ids.EventId{}, wrapStorageErr("append_event: seq", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, seq, timestamp, kind, agent_id, work_item_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID.String(), nextSeq, ev.Timestamp.Format(time.RFC3339Nano), string(ev.Kind),
		ev.AgentID.String(), workItemID, string(payload))
	if err != nil {
		return ids.EventId{}, wrapStorageErr("append_event", err)
	}
	return ev.EventID, nil
}

func (s *SQLite) EventsSince(ctx context.Context, since ids.EventId, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	var sinceSeq int64
	if !since.IsZero() {
		if err := s.db.QueryRowContext(ctx, `SELECT seq FROM events WHERE event_id = ?`, since.String()).Scan(&sinceSeq); err != nil && !errors.Is(err, stdsql.ErrNoRows) {
			return nil, wrapStorageErr("events_since: resolve cursor", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, timestamp, kind, agent_id, work_item_id, payload
		FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`, sinceSeq, limit)
	if err != nil {
		return nil, wrapStorageErr("events_since", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var eventID, timestamp, kind, agentID string
		var workItemID stdsql.NullString
		var payload string
		if err := rows.Scan(&eventID, &timestamp, &kind, &agentID, &workItemID, &payload); err != nil {
			return nil, wrapStorageErr("events_since: scan", err)
		}
		if ev.EventID, err = ids.ParseEventId(eventID); err != nil {
			return nil, fmt.Errorf("events_since: %w", err)
		}
		if ev.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
			return nil, fmt.Errorf("events_since: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		if ev.AgentID, err = ids.ParseAgentId(agentID); err != nil {
			return nil, fmt.Errorf("events_since: %w", err)
		}
		if workItemID.Valid {
			wid, err := ids.ParseWorkItemId(workItemID.String)
			if err != nil {
				return nil, fmt.Errorf("events_since: %w", err)
			}
			ev.WorkItemID = &wid
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("events_since: unmarshaling payload: %w", err)
		}
		out = append(out, ev)
	}
	return out, wrapStorageErr("events_since: rows", rows.Err())
}

// --- work item CRUD ---

func (s *SQLite) CreateWorkItem(ctx context.Context, wi models.WorkItem) error {
	return s.upsertWorkItem(ctx, wi, true)
}

func (s *SQLite) UpdateWorkItem(ctx context.Context, wi models.WorkItem) error {
	return s.upsertWorkItem(ctx, wi, false)
}

func (s *SQLite) upsertWorkItem(ctx context.Context, wi models.WorkItem, insert bool) error {
	specJSON, err := json.Marshal(wi.Spec)
	if err != nil {
		return fmt.Errorf("marshaling spec: %w", err)
	}
	depsJSON, err := json.Marshal(idStrings(wi.Dependencies))
	if err != nil {
		return fmt.Errorf("marshaling dependencies: %w", err)
	}

	var assignedAgent, parent stdsql.NullString
	if wi.AssignedAgent != nil {
		assignedAgent = stdsql.NullString{String: wi.AssignedAgent.String(), Valid: true}
	}
	if wi.Parent != nil {
		parent = stdsql.NullString{String: wi.Parent.String(), Valid: true}
	}
	var completedAt stdsql.NullString
	if wi.CompletedAt != nil {
		completedAt = stdsql.NullString{String: wi.CompletedAt.Format(time.RFC3339Nano), Valid: true}
	}

	now := time.Now().UTC()
	wi.UpdatedAt = now

	if insert {
		if wi.CreatedAt.IsZero() {
			wi.CreatedAt = now
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO work_items (id, phase, state, spec, priority, dependencies, assigned_agent,
				parent, namespace, review_attempt, created_at, updated_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			wi.ID.String(), string(wi.Phase), string(wi.State), string(specJSON), wi.Priority,
			string(depsJSON), assignedAgent, parent, wi.Namespace.String(), wi.ReviewAttempt,
			wi.CreatedAt.Format(time.RFC3339Nano), wi.UpdatedAt.Format(time.RFC3339Nano), completedAt)
		if err != nil {
			return wrapStorageErr("create_work_item", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE work_items SET phase = ?, state = ?, spec = ?, priority = ?, dependencies = ?,
			assigned_agent = ?, parent = ?, namespace = ?, review_attempt = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(wi.Phase), string(wi.State), string(specJSON), wi.Priority, string(depsJSON),
		assignedAgent, parent, wi.Namespace.String(), wi.ReviewAttempt, wi.UpdatedAt.Format(time.RFC3339Nano),
		completedAt, wi.ID.String())
	if err != nil {
		return wrapStorageErr("update_work_item", err)
	}
	return requireOneRow(res, ErrNotFound)
}

func (s *SQLite) GetWorkItem(ctx context.Context, id ids.WorkItemId) (models.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, phase, state, spec, priority, dependencies,
		assigned_agent, parent, namespace, review_attempt, created_at, updated_at, completed_at
		FROM work_items WHERE id = ?`, id.String())
	wi, err := scanWorkItem(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return models.WorkItem{}, ErrNotFound
	}
	if err != nil {
		return models.WorkItem{}, wrapStorageErr("get_work_item", err)
	}
	return wi, nil
}

func (s *SQLite) ListWorkItems(ctx context.Context, ns ids.Namespace, states []models.State) ([]models.WorkItem, error) {
	query := `SELECT id, phase, state, spec, priority, dependencies, assigned_agent, parent,
		namespace, review_attempt, created_at, updated_at, completed_at FROM work_items WHERE namespace = ?`
	args := []any{ns.String()}
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, st := range states {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " AND state IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY priority ASC, created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStorageErr("list_work_items", err)
	}
	defer rows.Close()

	var out []models.WorkItem
	for rows.Next() {
		wi, err := scanWorkItem(rows)
		if err != nil {
			return nil, wrapStorageErr("list_work_items: scan", err)
		}
		out = append(out, wi)
	}
	return out, wrapStorageErr("list_work_items: rows", rows.Err())
}

func (s *SQLite) ListActiveNamespaces(ctx context.Context) ([]ids.Namespace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT namespace FROM work_items WHERE state NOT IN (?, ?)`,
		string(models.StateComplete), string(models.StateFailed))
	if err != nil {
		return nil, wrapStorageErr("list_active_namespaces", err)
	}
	defer rows.Close()

	var out []ids.Namespace
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, wrapStorageErr("list_active_namespaces: scan", err)
		}
		ns, err := ids.ParseNamespace(raw)
		if err != nil {
			return nil, wrapStorageErr("list_active_namespaces: parse", err)
		}
		out = append(out, ns)
	}
	return out, wrapStorageErr("list_active_namespaces: rows", rows.Err())
}

// --- helpers ---

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// cosineSimilarity returns a value in [0,1]; either vector being nil
// (no query embedding supplied, or memory has none stored) yields 0
// rather than an error, since semantic matching is best-effort.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

func normalizeRank(rank, min, max float64) float64 {
	if max == min {
		if rank == 0 {
			return 0
		}
		return 1
	}
	// bm25 is more negative for better matches; invert and normalize.
	return (max - rank) / (max - min)
}

// memCandidate is a search-candidate row paired with its raw FTS5 bm25
// rank, before namespace boosting and graph re-ranking are applied.
type memCandidate struct {
	note models.MemoryNote
	rank float64
}

// graphScores computes, for each candidate, the normalized total link
// strength connecting it to every other candidate in the pool.
func (s *SQLite) graphScores(ctx context.Context, candidates []memCandidate) (map[ids.MemoryId]float64, error) {
	scores := make(map[ids.MemoryId]float64, len(candidates))
	if len(candidates) < 2 {
		for _, c := range candidates {
			scores[c.note.ID] = 0
		}
		return scores, nil
	}

	idSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		idSet[c.note.ID.String()] = true
	}

	var maxScore float64
	for _, c := range candidates {
		rows, err := s.db.QueryContext(ctx, `
			SELECT target, strength FROM memory_links WHERE source = ?
			UNION ALL
			SELECT source, strength FROM memory_links WHERE target = ?`,
			c.note.ID.String(), c.note.ID.String())
		if err != nil {
			return nil, wrapStorageErr("search: graph scoring", err)
		}
		var total float64
		for rows.Next() {
			var other string
			var strength float64
			if err := rows.Scan(&other, &strength); err != nil {
				rows.Close()
				return nil, wrapStorageErr("search: graph scoring scan", err)
			}
			if idSet[other] {
				total += strength
			}
		}
		rows.Close()
		scores[c.note.ID] = total
		if total > maxScore {
			maxScore = total
		}
	}
	if maxScore > 0 {
		for id, v := range scores {
			scores[id] = v / maxScore
		}
	}
	return scores, nil
}

func matchesFilters(note models.MemoryNote, q models.SearchQuery) bool {
	if note.Archived && !q.IncludeArchived {
		return false
	}
	if q.Namespace != nil && !note.Namespace.Visible(*q.Namespace) {
		return false
	}
	if len(q.MemoryTypes) > 0 {
		found := false
		for _, t := range q.MemoryTypes {
			if note.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.MinImportance != nil && note.Importance < *q.MinImportance {
		return false
	}
	if q.MaxAgeDays != nil {
		age := time.Since(note.CreatedAt)
		if age > time.Duration(*q.MaxAgeDays)*24*time.Hour {
			return false
		}
	}
	if len(q.Tags) > 0 {
		noteTags := make(map[string]bool, len(note.Tags))
		for _, t := range note.Tags {
			noteTags[t] = true
		}
		matched := false
		for _, t := range q.Tags {
			if noteTags[t] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func sortResultsByRelevance(results []models.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Relevance > results[j-1].Relevance; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func idStrings(ws []ids.WorkItemId) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireOneRow(res stdsql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorageErr("rows_affected", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

func ftsEscape(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	// Quote each token so FTS5 treats punctuation literally instead of as
	// query-syntax operators.
	fields := strings.Fields(q)
	for i, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		fields[i] = `"` + f + `"`
	}
	return strings.Join(fields, " ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (models.MemoryNote, error) {
	note, _, err := scanMemoryRow(row, false)
	return note, err
}

func scanMemoryWithRank(row scanner) (models.MemoryNote, float64, error) {
	return scanMemoryRow(row, true)
}

func scanMemoryRow(row scanner, withRank bool) (models.MemoryNote, float64, error) {
	var note models.MemoryNote
	var id, namespace, typ, tags, createdAt, updatedAt, lastAccessed string
	var archived int
	var embedding []byte
	var rank float64

	dest := []any{&id, &namespace, &typ, &note.Title, &note.Content, &tags, &note.Importance,
		&embedding, &note.AccessCount, &createdAt, &updatedAt, &lastAccessed, &archived, &note.ArchiveReason}
	if withRank {
		dest = append(dest, &rank)
	}
	if err := row.Scan(dest...); err != nil {
		return models.MemoryNote{}, 0, err
	}

	var err error
	if note.ID, err = ids.ParseMemoryId(id); err != nil {
		return models.MemoryNote{}, 0, err
	}
	if note.Namespace, err = ids.ParseNamespace(namespace); err != nil {
		return models.MemoryNote{}, 0, err
	}
	note.Type = models.MemoryType(typ)
	if err := json.Unmarshal([]byte(tags), &note.Tags); err != nil {
		return models.MemoryNote{}, 0, err
	}
	note.Embedding = decodeEmbedding(embedding)
	note.Archived = archived != 0
	if note.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.MemoryNote{}, 0, err
	}
	if note.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.MemoryNote{}, 0, err
	}
	if note.LastAccessed, err = time.Parse(time.RFC3339Nano, lastAccessed); err != nil {
		return models.MemoryNote{}, 0, err
	}
	return note, rank, nil
}

func scanWorkItem(row scanner) (models.WorkItem, error) {
	var wi models.WorkItem
	var id, phase, state, specJSON, depsJSON, namespace, createdAt, updatedAt string
	var assignedAgent, parent, completedAt stdsql.NullString

	if err := row.Scan(&id, &phase, &state, &specJSON, &wi.Priority, &depsJSON,
		&assignedAgent, &parent, &namespace, &wi.ReviewAttempt, &createdAt, &updatedAt, &completedAt); err != nil {
		return models.WorkItem{}, err
	}

	var err error
	if wi.ID, err = ids.ParseWorkItemId(id); err != nil {
		return models.WorkItem{}, err
	}
	wi.Phase = models.Phase(phase)
	wi.State = models.State(state)
	if err := json.Unmarshal([]byte(specJSON), &wi.Spec); err != nil {
		return models.WorkItem{}, err
	}
	var depStrs []string
	if err := json.Unmarshal([]byte(depsJSON), &depStrs); err != nil {
		return models.WorkItem{}, err
	}
	for _, d := range depStrs {
		wid, err := ids.ParseWorkItemId(d)
		if err != nil {
			return models.WorkItem{}, err
		}
		wi.Dependencies = append(wi.Dependencies, wid)
	}
	if assignedAgent.Valid {
		aid, err := ids.ParseAgentId(assignedAgent.String)
		if err != nil {
			return models.WorkItem{}, err
		}
		wi.AssignedAgent = &aid
	}
	if parent.Valid {
		pid, err := ids.ParseWorkItemId(parent.String)
		if err != nil {
			return models.WorkItem{}, err
		}
		wi.Parent = &pid
	}
	if wi.Namespace, err = ids.ParseNamespace(namespace); err != nil {
		return models.WorkItem{}, err
	}
	if wi.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.WorkItem{}, err
	}
	if wi.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.WorkItem{}, err
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return models.WorkItem{}, err
		}
		wi.CompletedAt = &t
	}
	return wi, nil
}

var _ Storage = (*SQLite)(nil)


