package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// CosmosStore stores records in an Azure Cosmos DB container partitioned on /id.
type CosmosStore struct {
	container *azcosmos.ContainerClient
}

// OpenCosmosStore creates the database and container if they do not exist.
// SDK retries are disabled: the connection is attempted exactly once.
func OpenCosmosStore(ctx context.Context, p Params) (*CosmosStore, error) {
	cred, err := azcosmos.NewKeyCredential(p.Key)
	if err != nil {
		return nil, fmt.Errorf("cosmos credential: %w", err)
	}
	opts := &azcosmos.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	client, err := azcosmos.NewClientWithKey(p.Endpoint, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}

	_, err = client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: p.Database}, nil)
	if err != nil && !isConflict(err) {
		return nil, fmt.Errorf("create database %s: %w", p.Database, err)
	}
	database, err := client.NewDatabase(p.Database)
	if err != nil {
		return nil, err
	}

	throughput := azcosmos.NewManualThroughputProperties(p.Throughput)
	props := azcosmos.ContainerProperties{
		ID: p.Container,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{PartitionKeyPath},
		},
	}
	_, err = database.CreateContainer(ctx, props, &azcosmos.CreateContainerOptions{ThroughputProperties: &throughput})
	if err != nil && !isConflict(err) {
		return nil, fmt.Errorf("create container %s: %w", p.Container, err)
	}
	container, err := database.NewContainer(p.Container)
	if err != nil {
		return nil, err
	}
	return &CosmosStore{container: container}, nil
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict
}

func (s *CosmosStore) Create(ctx context.Context, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return ErrMissingID
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.container.CreateItem(ctx, azcosmos.NewPartitionKeyString(id), b, nil)
	if isConflict(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return err
}

const listQuery = "SELECT * FROM c"

func listQueryOptions(limit int) *azcosmos.QueryOptions {
	crossPartition := true
	opts := &azcosmos.QueryOptions{EnableCrossPartitionQuery: &crossPartition}
	if limit > 0 {
		opts.PageSizeHint = int32(limit)
	}
	return opts
}

// List runs a cross-partition query through the gateway and stops after
// limit items. Records live in one partition each, so the query must fan out.
func (s *CosmosStore) List(ctx context.Context, limit int) ([]Record, error) {
	pager := s.container.NewQueryItemsPager(listQuery, azcosmos.NewPartitionKey(), listQueryOptions(limit))

	result := []Record{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			doc, err := DecodeRecord(item)
			if err != nil {
				return nil, fmt.Errorf("decode item: %w", err)
			}
			result = append(result, doc)
			if limit > 0 && len(result) >= limit {
				return result, nil
			}
		}
	}
	return result, nil
}

func (s *CosmosStore) Close(context.Context) error { return nil }
