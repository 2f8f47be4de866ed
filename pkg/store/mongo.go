package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Mongo bundles the three collections behind the store interfaces.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to MongoDB and pings it.
func OpenMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Mongo{client: client, db: client.Database(dbName)}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique prompt-hash index and the secondary
// lookup indexes.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection("llm_cache").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "prompt_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create llm_cache index: %w", err)
	}
	secondary := []struct {
		coll string
		key  string
	}{
		{"submissions", "submission_id"},
		{"submissions", "created_at"},
		{"task_queue", "submission_id"},
	}
	for _, idx := range secondary {
		_, err := m.db.Collection(idx.coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: idx.key, Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create %s.%s index: %w", idx.coll, idx.key, err)
		}
	}
	return nil
}

func (m *Mongo) Submissions() *MongoSubmissions {
	return &MongoSubmissions{coll: m.db.Collection("submissions")}
}

func (m *Mongo) Queue() *MongoQueue {
	return &MongoQueue{coll: m.db.Collection("task_queue")}
}

func (m *Mongo) Cache() *MongoCache {
	return &MongoCache{coll: m.db.Collection("llm_cache")}
}

// MongoSubmissions implements SubmissionStore on the submissions
// collection.
type MongoSubmissions struct {
	coll *mongo.Collection
}

var _ SubmissionStore = (*MongoSubmissions)(nil)

func (s *MongoSubmissions) Create(ctx context.Context, htmlContent, textContent, sourceURL string, taskNames []string) (*Submission, error) {
	now := time.Now().UTC()
	tasks := make(map[string]TaskState, len(taskNames))
	for _, name := range taskNames {
		tasks[name] = TaskState{Status: StatusPending}
	}
	sub := &Submission{
		ID:          uuid.NewString(),
		HTMLContent: htmlContent,
		TextContent: textContent,
		SourceURL:   sourceURL,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tasks:       tasks,
		Results:     Results{},
	}
	if _, err := s.coll.InsertOne(ctx, sub); err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

func (s *MongoSubmissions) GetByID(ctx context.Context, submissionID string) (*Submission, error) {
	var sub Submission
	err := s.coll.FindOne(ctx, bson.M{"submission_id": submissionID}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &sub, nil
}

func (s *MongoSubmissions) List(ctx context.Context, filter SubmissionFilter) ([]*Submission, error) {
	query := bson.M{}
	if filter.SubmissionID != "" {
		query["submission_id"] = filter.SubmissionID
	}
	limit := clampLimit(filter.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}})
	// overall status is derived, so the status filter runs after decoding
	// and the limit cannot be pushed into the query
	if filter.Status == "" {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*Submission
	for len(out) < limit && cursor.Next(ctx) {
		var sub Submission
		if err := cursor.Decode(&sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		if filter.Status != "" && sub.OverallStatus() != filter.Status {
			continue
		}
		out = append(out, &sub)
	}
	return out, cursor.Err()
}

func (s *MongoSubmissions) Delete(ctx context.Context, submissionID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"submission_id": submissionID})
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoSubmissions) UpdateTaskStatus(ctx context.Context, submissionID, taskName, status, errMsg string) error {
	now := time.Now().UTC()
	set := bson.M{
		"tasks." + taskName + ".status": status,
		"updated_at":                    now,
	}
	switch status {
	case StatusProcessing:
		set["tasks."+taskName+".started_at"] = now
	case StatusCompleted, StatusFailed:
		set["tasks."+taskName+".completed_at"] = now
	}
	if errMsg != "" {
		set["tasks."+taskName+".error"] = errMsg
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"submission_id": submissionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoSubmissions) UpdateResults(ctx context.Context, submissionID string, patch ResultsPatch) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	for field, value := range patch.fields() {
		set["results."+field] = value
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"submission_id": submissionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update results: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoSubmissions) ClearResults(ctx context.Context, submissionID string, taskNames, resultFields []string) error {
	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	unset := bson.M{}
	for _, name := range taskNames {
		set["tasks."+name+".status"] = StatusPending
		set["tasks."+name+".started_at"] = nil
		set["tasks."+name+".completed_at"] = nil
		set["tasks."+name+".error"] = nil
	}
	for _, field := range resultFields {
		unset["results."+field] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"submission_id": submissionID}, update)
	if err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoQueue implements QueueStore on the task_queue collection.
type MongoQueue struct {
	coll *mongo.Collection
}

var _ QueueStore = (*MongoQueue)(nil)

func (q *MongoQueue) Enqueue(ctx context.Context, submissionID, taskType string, priority int) (*QueueEntry, error) {
	entry := &QueueEntry{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		TaskType:     taskType,
		Priority:     priority,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := q.coll.InsertOne(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return entry, nil
}

func (q *MongoQueue) Claim(ctx context.Context, workerID string, excludeIDs []string) (*QueueEntry, error) {
	filter := bson.M{"status": StatusPending}
	if len(excludeIDs) > 0 {
		filter["_id"] = bson.M{"$nin": excludeIDs}
	}
	update := bson.M{"$set": bson.M{
		"status":     StatusProcessing,
		"started_at": time.Now().UTC(),
		"worker_id":  workerID,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var entry QueueEntry
	err := q.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return &entry, nil
}

func (q *MongoQueue) Release(ctx context.Context, entryID string) error {
	_, err := q.coll.UpdateOne(ctx, bson.M{"_id": entryID}, bson.M{"$set": bson.M{
		"status":     StatusPending,
		"started_at": nil,
		"worker_id":  nil,
	}})
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

func (q *MongoQueue) Complete(ctx context.Context, entryID string) error {
	_, err := q.coll.UpdateOne(ctx, bson.M{"_id": entryID}, bson.M{"$set": bson.M{
		"status":       StatusCompleted,
		"completed_at": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

func (q *MongoQueue) Fail(ctx context.Context, entryID, errMsg string) error {
	_, err := q.coll.UpdateOne(ctx, bson.M{"_id": entryID}, bson.M{
		"$set": bson.M{
			"status":       StatusFailed,
			"completed_at": time.Now().UTC(),
			"error":        errMsg,
		},
		"$inc": bson.M{"retry_count": 1},
	})
	if err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	return nil
}

func (q *MongoQueue) Get(ctx context.Context, entryID string) (*QueueEntry, error) {
	var entry QueueEntry
	err := q.coll.FindOne(ctx, bson.M{"_id": entryID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return &entry, nil
}

func (q *MongoQueue) List(ctx context.Context, filter QueueFilter) ([]*QueueEntry, error) {
	query := bson.M{}
	if filter.SubmissionID != "" {
		query["submission_id"] = filter.SubmissionID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(filter.Limit)))
	cursor, err := q.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*QueueEntry
	for cursor.Next(ctx) {
		var entry QueueEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode queue entry: %w", err)
		}
		out = append(out, &entry)
	}
	return out, cursor.Err()
}

func (q *MongoQueue) Delete(ctx context.Context, entryID string) error {
	res, err := q.coll.DeleteOne(ctx, bson.M{"_id": entryID})
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *MongoQueue) DeleteInFlight(ctx context.Context, submissionID string, taskTypes []string) error {
	query := bson.M{
		"submission_id": submissionID,
		"status":        bson.M{"$in": []string{StatusPending, StatusProcessing}},
	}
	if len(taskTypes) > 0 {
		query["task_type"] = bson.M{"$in": taskTypes}
	}
	if _, err := q.coll.DeleteMany(ctx, query); err != nil {
		return fmt.Errorf("delete in-flight entries: %w", err)
	}
	return nil
}

func (q *MongoQueue) DeleteBySubmission(ctx context.Context, submissionID string) error {
	if _, err := q.coll.DeleteMany(ctx, bson.M{"submission_id": submissionID}); err != nil {
		return fmt.Errorf("delete submission entries: %w", err)
	}
	return nil
}

// MongoCache implements CacheStore on the llm_cache collection. The unique
// prompt_hash index serializes concurrent inserts.
type MongoCache struct {
	coll *mongo.Collection
}

var _ CacheStore = (*MongoCache)(nil)

func (c *MongoCache) Get(ctx context.Context, promptHash string) (string, bool, error) {
	var entry CacheEntry
	err := c.coll.FindOne(ctx, bson.M{"prompt_hash": promptHash}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return entry.Response, true, nil
}

func (c *MongoCache) Put(ctx context.Context, promptHash, prompt, response string) error {
	entry := CacheEntry{
		PromptHash: promptHash,
		Prompt:     prompt,
		Response:   response,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := c.coll.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent miss won the insert race
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
