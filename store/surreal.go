package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// SurrealStore stores records in a SurrealDB table. The record id is the
// SurrealDB record key, so ids are unique per table.
type SurrealStore struct {
	db    *surrealdb.DB
	table string
}

// OpenSurrealStore connects to the endpoint URL and defines the namespace,
// database and table if they do not exist. The database parameter is either
// "namespace/database" or a single name used for both. A non-empty key is
// an access token.
func OpenSurrealStore(ctx context.Context, p Params) (*SurrealStore, error) {
	ns, dbName := p.Database, p.Database
	if before, after, ok := strings.Cut(p.Database, "/"); ok {
		ns, dbName = before, after
	}
	for _, name := range []string{ns, dbName, p.Container} {
		if strings.ContainsAny(name, "`") || name == "" {
			return nil, fmt.Errorf("invalid surreal identifier %q", name)
		}
	}

	db, err := surrealdb.FromEndpointURLString(ctx, p.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("surreal connect: %w", err)
	}
	fail := func(err error) (*SurrealStore, error) {
		_ = db.Close(context.Background())
		return nil, err
	}
	if p.Key != "" {
		if err := db.Authenticate(ctx, p.Key); err != nil {
			return fail(fmt.Errorf("surreal authenticate: %w", err))
		}
	}

	if _, err := surrealdb.Query[any](ctx, db, "DEFINE NAMESPACE IF NOT EXISTS "+quoteIdent(ns), nil); err != nil {
		return fail(fmt.Errorf("define namespace %s: %w", ns, err))
	}
	if err := db.Use(ctx, ns, dbName); err != nil {
		return fail(fmt.Errorf("use %s/%s: %w", ns, dbName, err))
	}
	if _, err := surrealdb.Query[any](ctx, db, "DEFINE DATABASE IF NOT EXISTS "+quoteIdent(dbName), nil); err != nil {
		return fail(fmt.Errorf("define database %s: %w", dbName, err))
	}
	if _, err := surrealdb.Query[any](ctx, db, "DEFINE TABLE IF NOT EXISTS "+quoteIdent(p.Container)+" SCHEMALESS", nil); err != nil {
		return fail(fmt.Errorf("define table %s: %w", p.Container, err))
	}
	return &SurrealStore{db: db, table: p.Container}, nil
}

func quoteIdent(name string) string { return "`" + name + "`" }

func (s *SurrealStore) Create(ctx context.Context, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return ErrMissingID
	}
	content := toSurreal(rec).(map[string]any)
	delete(content, IDField)
	_, err := surrealdb.Create[struct{}](ctx, s.db, models.NewRecordID(s.table, id), content)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return err
}

func (s *SurrealStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := "SELECT * FROM type::table($tb)"
	vars := map[string]any{"tb": s.table}
	if limit > 0 {
		query += " LIMIT $limit"
		vars["limit"] = limit
	}
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db, query, vars)
	if err != nil {
		return nil, err
	}
	result := []Record{}
	if res == nil || len(*res) == 0 {
		return result, nil
	}
	for _, doc := range (*res)[0].Result {
		result = append(result, fromSurreal(doc))
	}
	return result, nil
}

// toSurreal copies v, turning json.Number into int64 or float64. CBOR would
// otherwise encode json.Number as a text string.
func toSurreal(v any) any {
	switch v := v.(type) {
	case Record:
		return toSurreal(map[string]any(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = toSurreal(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = toSurreal(e)
		}
		return out
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}

// fromSurreal replaces the record id with its plain key.
func fromSurreal(doc map[string]any) Record {
	switch rid := doc[IDField].(type) {
	case models.RecordID:
		doc[IDField] = fmt.Sprint(rid.ID)
	case *models.RecordID:
		if rid != nil {
			doc[IDField] = fmt.Sprint(rid.ID)
		}
	}
	return Record(doc)
}

func (s *SurrealStore) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}
