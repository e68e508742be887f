package storage

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"videonotes/config"
	"videonotes/core"
)

// VectorStore indexes finished video notes so past summaries stay
// searchable. Indexing is best-effort: the pipeline treats every failure
// here as a warning, never as a pipeline error.
type VectorStore interface {
	Upsert(videoID string, segments []*core.Segment) int
	Search(videoID string, query string, topK int) []core.Hit
}

// NewVectorStore picks a backend from the STORE environment variable
// (memory, pgvector, milvus), falling back to the in-memory store when a
// remote backend cannot be reached or the API config is missing.
func NewVectorStore() VectorStore {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: failed to load config (%v), using memory store", err)
		return newMemoryVectorStore()
	}

	switch kind {
	case "pgvector":
		if !cfg.HasValidAPI() {
			log.Printf("Warning: API configuration required for pgvector store, falling back to memory store")
			return newMemoryVectorStore()
		}
		s, err := newPgVectorStore(cfg)
		if err != nil {
			log.Printf("Warning: failed to initialize pgvector store (%v), falling back to memory store", err)
			return newMemoryVectorStore()
		}
		return s
	case "milvus":
		if !cfg.HasValidAPI() {
			log.Printf("Warning: API configuration required for milvus store, falling back to memory store")
			return newMemoryVectorStore()
		}
		s, err := newMilvusVectorStore()
		if err != nil {
			log.Printf("Warning: failed to initialize milvus store (%v), falling back to memory store", err)
			return newMemoryVectorStore()
		}
		return s
	default:
		return newMemoryVectorStore()
	}
}

// segmentEmbedText is what gets embedded per segment: the spoken text plus
// whatever the annotation stages saw on the attached frames.
func segmentEmbedText(seg *core.Segment) string {
	var b strings.Builder
	b.WriteString(seg.Text)
	for _, f := range seg.Frames {
		if f.Text != "" {
			b.WriteString(" ")
			b.WriteString(f.Text)
		}
		if f.Description != "" {
			b.WriteString(" ")
			b.WriteString(f.Description)
		}
	}
	return strings.ToLower(b.String())
}

// ---------------- Memory implementation (default and fallback) ----------------

type MemoryVectorStore struct {
	mu   sync.RWMutex
	docs map[string][]memoryDoc // videoID -> docs
}

type memoryDoc struct {
	start, end float64
	text       string
	embed      map[string]float64
}

func newMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{docs: map[string][]memoryDoc{}}
}

func (s *MemoryVectorStore) Upsert(videoID string, segments []*core.Segment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]memoryDoc, 0, len(segments))
	for _, seg := range segments {
		docs = append(docs, memoryDoc{
			start: seg.Start,
			end:   seg.End,
			text:  seg.Text,
			embed: embedTokens(segmentEmbedText(seg)),
		})
	}
	s.docs[videoID] = docs
	return len(docs)
}

func (s *MemoryVectorStore) Search(videoID string, query string, topK int) []core.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[videoID]
	qv := embedTokens(strings.ToLower(query))
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = len(scores)
		if topK > 5 {
			topK = 5
		}
	}
	hits := make([]core.Hit, 0, topK)
	for _, sc := range scores[:topK] {
		d := docs[sc.i]
		hits = append(hits, core.Hit{Score: sc.score, Start: d.start, End: d.end, Text: d.text})
	}
	return hits
}

var nonWord = regexp.MustCompile(`[^a-zA-Z0-9\p{Han}\p{L}]+`)

func embedTokens(text string) map[string]float64 {
	parts := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), " "))
	m := map[string]float64{}
	for _, t := range parts {
		m[t] += 1
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

// ---------------- OpenAI embeddings (shared by remote backends) ----------------

func openaiClient() *openai.Client {
	cfg, err := config.LoadConfig()
	if err != nil {
		return openai.NewClient(os.Getenv("OPENAI_API_KEY"))
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

func embedRemote(cli *openai.Client, text string) ([]float32, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	resp, err := cli.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// ---------------- PgVector implementation ----------------

type PgVectorStore struct {
	conn *pgx.Conn
	oa   *openai.Client
}

func newPgVectorStore(cfg *config.Config) (*PgVectorStore, error) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PgVectorStore{conn: conn, oa: openaiClient()}
	if err := s.ensureTable(); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ensureTable() error {
	ctx := context.Background()
	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	query := `
		CREATE TABLE IF NOT EXISTS video_segments (
			id SERIAL PRIMARY KEY,
			video_id VARCHAR(255) NOT NULL,
			segment_id VARCHAR(255) NOT NULL,
			start_time FLOAT NOT NULL,
			end_time FLOAT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(1536),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(video_id, segment_id)
		);
	`
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create video_segments table: %w", err)
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_video_segments_video_id ON video_segments(video_id);",
		"CREATE INDEX IF NOT EXISTS idx_video_segments_embedding ON video_segments USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);",
	}
	for _, q := range indexes {
		if _, err := s.conn.Exec(ctx, q); err != nil {
			log.Printf("Warning: failed to create index: %v", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(videoID string, segments []*core.Segment) int {
	ctx := context.Background()
	count := 0
	for _, seg := range segments {
		embedding, err := embedRemote(s.oa, segmentEmbedText(seg))
		if err != nil {
			continue
		}
		vec := pgvector.NewVector(embedding)
		_, err = s.conn.Exec(ctx, `
			INSERT INTO video_segments (video_id, segment_id, start_time, end_time, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (video_id, segment_id)
			DO UPDATE SET
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, videoID, fmt.Sprintf("%s_%.2f", videoID, seg.Start), seg.Start, seg.End, seg.Text, vec)
		if err != nil {
			continue
		}
		count++
	}
	return count
}

func (s *PgVectorStore) Search(videoID string, query string, topK int) []core.Hit {
	if topK <= 0 {
		topK = 5
	}
	embedding, err := embedRemote(s.oa, strings.ToLower(query))
	if err != nil {
		return nil
	}
	vec := pgvector.NewVector(embedding)
	ctx := context.Background()
	rows, err := s.conn.Query(ctx, `
		SELECT start_time, end_time, text,
		       1 - (embedding <=> $1) AS similarity
		FROM video_segments
		WHERE video_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, videoID, topK)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var h core.Hit
		if err := rows.Scan(&h.Start, &h.End, &h.Text, &h.Score); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	return hits
}

// ---------------- Milvus implementation ----------------

type MilvusVectorStore struct {
	mc   client.Client
	coll string
	dim  int
	oa   *openai.Client
}

func newMilvusVectorStore() (*MilvusVectorStore, error) {
	addr := config.GetEnvOrDefault("MILVUS_ADDR", "localhost:19530")
	coll := config.GetEnvOrDefault("MILVUS_COLLECTION", "video_segments")

	mc, err := client.NewClient(context.Background(), client.Config{
		Address:  addr,
		Username: os.Getenv("MILVUS_USERNAME"),
		Password: os.Getenv("MILVUS_PASSWORD"),
		APIKey:   os.Getenv("MILVUS_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	s := &MilvusVectorStore{mc: mc, coll: coll, dim: 1536, oa: openaiClient()}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusVectorStore) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Upsert(videoID string, segments []*core.Segment) int {
	if len(segments) == 0 {
		return 0
	}
	videoIDs := make([]string, 0, len(segments))
	starts := make([]float64, 0, len(segments))
	ends := make([]float64, 0, len(segments))
	texts := make([]string, 0, len(segments))
	vectors := make([][]float32, 0, len(segments))

	for _, seg := range segments {
		v, err := embedRemote(s.oa, segmentEmbedText(seg))
		if err != nil {
			continue
		}
		videoIDs = append(videoIDs, videoID)
		starts = append(starts, seg.Start)
		ends = append(ends, seg.End)
		texts = append(texts, seg.Text)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	_, err := s.mc.Insert(context.Background(), s.coll, "",
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0
	}
	return len(vectors)
}

func (s *MilvusVectorStore) Search(videoID string, query string, topK int) []core.Hit {
	v, err := embedRemote(s.oa, strings.ToLower(query))
	if err != nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("video_id == \"%s\"", strings.ReplaceAll(videoID, "\"", "\\\""))
	res, err := s.mc.Search(context.Background(), s.coll, []string{}, filter,
		[]string{"start", "end", "text"},
		[]entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil
	}
	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var h core.Hit
			if c, ok := cols["start"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.Start = data[i]
				}
			}
			if c, ok := cols["end"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.End = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.Text = data[i]
				}
			}
			h.Score = float64(r.Scores[i])
			hits = append(hits, h)
		}
	}
	return hits
}
