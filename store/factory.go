package store

import (
	"context"
	"fmt"
	"strings"
)

// Params are the connection parameters handed to a backend.
type Params struct {
	Backend    string
	Endpoint   string
	Key        string
	Database   string
	Container  string
	Throughput int32
}

func (p Params) validate() error {
	var missing []string
	if p.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if p.Database == "" {
		missing = append(missing, "database")
	}
	if p.Container == "" {
		missing = append(missing, "container")
	}
	if len(missing) > 0 {
		return fmt.Errorf("store %s not configured", strings.Join(missing, ", "))
	}
	return nil
}

// Open connects to the backend named in p and provisions its database and
// collection if they are absent.
//
// Supported backends:
//
//	"cosmos"  - Azure Cosmos DB (default)
//	"mongo"   - MongoDB
//	"surreal" - SurrealDB
//	"sqlite"  - SQLite database at <endpoint>/<database>.db
//	"memory"  - In-memory (ephemeral, for development and testing)
func Open(ctx context.Context, p Params) (Store, error) {
	if p.Throughput <= 0 {
		p.Throughput = DefaultThroughput
	}
	if p.Backend == "memory" {
		return NewMemoryStore(), nil
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	switch p.Backend {
	case "cosmos", "":
		return OpenCosmosStore(ctx, p)
	case "mongo":
		return OpenMongoStore(ctx, p)
	case "surreal":
		return OpenSurrealStore(ctx, p)
	case "sqlite":
		return OpenSqliteStore(ctx, p)
	default:
		return nil, fmt.Errorf("%w: %q (supported: cosmos, mongo, surreal, sqlite, memory)", ErrUnknown, p.Backend)
	}
}
