package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoBackend 写入 MongoDB 集合的审计后端
type MongoBackend struct {
	coll        *mongo.Collection
	closeClient func(context.Context) error
}

// NewMongoBackend 创建 Mongo 后端，ownClient 为 true 时 Close 会断开客户端
func NewMongoBackend(client *mongo.Client, database, collection string, ownClient bool) (*MongoBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("mongo client cannot be nil")
	}
	if database == "" {
		database = "visionmcp"
	}
	if collection == "" {
		collection = "audit_logs"
	}
	b := &MongoBackend{coll: client.Database(database).Collection(collection)}
	if ownClient {
		b.closeClient = client.Disconnect
	}
	return b, nil
}

// Name 后端名称
func (b *MongoBackend) Name() string { return "mongo" }

// Write 插入一条文档
func (b *MongoBackend) Write(ctx context.Context, entry Entry) error {
	doc := bson.M{
		"_id":         entry.ID,
		"timestamp":   entry.Timestamp.UTC(),
		"tool":        entry.Tool,
		"success":     entry.Success,
		"input_hash":  entry.InputHash,
		"request_id":  entry.RequestID,
		"identifier":  entry.Identifier,
		"duration_ms": entry.DurationMS,
	}
	if entry.Error != "" {
		doc["error"] = entry.Error
	}
	if _, err := b.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// Close 断开客户端（若由本后端持有）
func (b *MongoBackend) Close() error {
	if b.closeClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultCloseTimeout)
	defer cancel()
	return b.closeClient(ctx)
}
