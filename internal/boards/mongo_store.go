package boards

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	boardsCollection   = "boards"
	commentsCollection = "comments"
)

var errMissingMongoDatabase = errors.New("mongo database handle is required")

// MongoStore implements Store on MongoDB. Boards keep their share list inline;
// comments live in their own collection indexed by board and creation time.
type MongoStore struct {
	boards   *mongo.Collection
	comments *mongo.Collection
	logger   *zap.Logger
}

// NewMongoStore binds the store to a database and ensures its indexes.
func NewMongoStore(ctx context.Context, database *mongo.Database, logger *zap.Logger) (*MongoStore, error) {
	if database == nil {
		return nil, persistenceError("boards.mongo.new", "missing_database", errMissingMongoDatabase)
	}
	if logger == nil {
		logger = noOpLogger
	}
	store := &MongoStore{
		boards:   database.Collection(boardsCollection),
		comments: database.Collection(commentsCollection),
		logger:   logger,
	}
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "boardId", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
	if _, err := store.comments.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, persistenceError("boards.mongo.new", "index_failed", err)
	}
	if _, err := store.boards.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "ownerEmail", Value: 1}}}); err != nil {
		return nil, persistenceError("boards.mongo.new", "index_failed", err)
	}
	return store, nil
}

// CreateBoard inserts a new board document.
func (s *MongoStore) CreateBoard(ctx context.Context, board Board) (Board, error) {
	if board.ElementsJSON == "" {
		board.ElementsJSON = "[]"
	}
	if board.SharedWith == nil {
		board.SharedWith = []string{}
	}
	if _, err := s.boards.InsertOne(ctx, board); err != nil {
		s.logError(opCreateBoard, "insert_failed", err, zap.String("board_id", board.ID))
		return Board{}, persistenceError(opCreateBoard, "insert_failed", err)
	}
	return board, nil
}

// GetBoard loads the board document including its share list.
func (s *MongoStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.boards.FindOne(ctx, bson.M{"_id": boardID}).Decode(&board)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Board{}, notFoundError(opGetBoard, boardID)
	}
	if err != nil {
		s.logError(opGetBoard, "query_failed", err, zap.String("board_id", boardID))
		return Board{}, persistenceError(opGetBoard, "query_failed", err)
	}
	if board.SharedWith == nil {
		board.SharedWith = []string{}
	}
	return board, nil
}

// LoadElements returns the stored element list of a board.
func (s *MongoStore) LoadElements(ctx context.Context, boardID string) ([]Element, error) {
	var projected struct {
		ElementsJSON string `bson:"elementsJson"`
	}
	opts := options.FindOne().SetProjection(bson.M{"elementsJson": 1})
	err := s.boards.FindOne(ctx, bson.M{"_id": boardID}, opts).Decode(&projected)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFoundError(opLoadElements, boardID)
	}
	if err != nil {
		s.logError(opLoadElements, "query_failed", err, zap.String("board_id", boardID))
		return nil, persistenceError(opLoadElements, "query_failed", err)
	}
	elements, err := DecodeElements(projected.ElementsJSON)
	if err != nil {
		s.logError(opLoadElements, "decode_failed", err, zap.String("board_id", boardID))
		return nil, persistenceError(opLoadElements, "decode_failed", err)
	}
	return elements, nil
}

// SaveElements overwrites the stored element list of an existing board.
func (s *MongoStore) SaveElements(ctx context.Context, boardID string, elements []Element, updatedAt time.Time) error {
	encoded, err := EncodeElements(elements)
	if err != nil {
		return persistenceError(opSaveElements, "encode_failed", err)
	}
	set := bson.M{"elementsJson": encoded, "updatedAt": updatedAt.UTC()}
	res, err := s.boards.UpdateOne(ctx, bson.M{"_id": boardID}, bson.M{"$set": set})
	if err != nil {
		s.logError(opSaveElements, "update_failed", err, zap.String("board_id", boardID))
		return persistenceError(opSaveElements, "update_failed", err)
	}
	if res.MatchedCount == 0 {
		return notFoundError(opSaveElements, boardID)
	}
	return nil
}

// AddShare grants the email access to the board. Repeated grants are no-ops.
func (s *MongoStore) AddShare(ctx context.Context, boardID string, email string, sharedAt time.Time) error {
	update := bson.M{
		"$addToSet": bson.M{"sharedWith": email},
		"$set":      bson.M{"updatedAt": sharedAt.UTC()},
	}
	res, err := s.boards.UpdateOne(ctx, bson.M{"_id": boardID}, update)
	if err != nil {
		s.logError(opAddShare, "update_failed", err, zap.String("board_id", boardID))
		return persistenceError(opAddShare, "update_failed", err)
	}
	if res.MatchedCount == 0 {
		return notFoundError(opAddShare, boardID)
	}
	return nil
}

// AppendComment inserts the comment and returns the stored record.
func (s *MongoStore) AppendComment(ctx context.Context, comment Comment) (Comment, error) {
	comment.CreatedAt = comment.CreatedAt.UTC()
	if _, err := s.comments.InsertOne(ctx, comment); err != nil {
		s.logError(opAppendComment, "insert_failed", err,
			zap.String("board_id", comment.BoardID),
			zap.String("comment_id", comment.ID))
		return Comment{}, persistenceError(opAppendComment, "insert_failed", err)
	}
	return comment, nil
}

// ListComments returns the comments of a board ordered by creation time ascending.
func (s *MongoStore) ListComments(ctx context.Context, boardID string) ([]Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.comments.Find(ctx, bson.M{"boardId": boardID}, opts)
	if err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("board_id", boardID))
		return nil, persistenceError(opListComments, "query_failed", err)
	}
	defer cur.Close(ctx)

	comments := []Comment{}
	for cur.Next(ctx) {
		var comment Comment
		if err := cur.Decode(&comment); err != nil {
			return nil, persistenceError(opListComments, "decode_failed", err)
		}
		comments = append(comments, comment)
	}
	if err := cur.Err(); err != nil {
		return nil, persistenceError(opListComments, "cursor_failed", err)
	}
	return comments, nil
}

// ListBoards returns the boards the email owns or has been shared, newest first.
func (s *MongoStore) ListBoards(ctx context.Context, email string) ([]Board, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"ownerEmail": email},
		bson.M{"sharedWith": email},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.boards.Find(ctx, filter, opts)
	if err != nil {
		s.logError(opListBoards, "query_failed", err)
		return nil, persistenceError(opListBoards, "query_failed", err)
	}
	defer cur.Close(ctx)

	found := []Board{}
	for cur.Next(ctx) {
		var board Board
		if err := cur.Decode(&board); err != nil {
			return nil, persistenceError(opListBoards, "decode_failed", err)
		}
		if board.SharedWith == nil {
			board.SharedWith = []string{}
		}
		found = append(found, board)
	}
	if err := cur.Err(); err != nil {
		return nil, persistenceError(opListBoards, "cursor_failed", err)
	}
	return found, nil
}

// RenameBoard changes the board name.
func (s *MongoStore) RenameBoard(ctx context.Context, boardID string, name string, updatedAt time.Time) error {
	set := bson.M{"name": name, "updatedAt": updatedAt.UTC()}
	res, err := s.boards.UpdateOne(ctx, bson.M{"_id": boardID}, bson.M{"$set": set})
	if err != nil {
		s.logError(opRenameBoard, "update_failed", err, zap.String("board_id", boardID))
		return persistenceError(opRenameBoard, "update_failed", err)
	}
	if res.MatchedCount == 0 {
		return notFoundError(opRenameBoard, boardID)
	}
	return nil
}

// RemoveShare revokes the email's access. Revoking an absent share is a no-op.
func (s *MongoStore) RemoveShare(ctx context.Context, boardID string, email string, updatedAt time.Time) error {
	update := bson.M{
		"$pull": bson.M{"sharedWith": email},
		"$set":  bson.M{"updatedAt": updatedAt.UTC()},
	}
	res, err := s.boards.UpdateOne(ctx, bson.M{"_id": boardID}, update)
	if err != nil {
		s.logError(opRemoveShare, "update_failed", err, zap.String("board_id", boardID))
		return persistenceError(opRemoveShare, "update_failed", err)
	}
	if res.MatchedCount == 0 {
		return notFoundError(opRemoveShare, boardID)
	}
	return nil
}

// DeleteBoard removes the board document and its comments.
func (s *MongoStore) DeleteBoard(ctx context.Context, boardID string) error {
	res, err := s.boards.DeleteOne(ctx, bson.M{"_id": boardID})
	if err != nil {
		s.logError(opDeleteBoard, "delete_failed", err, zap.String("board_id", boardID))
		return persistenceError(opDeleteBoard, "delete_failed", err)
	}
	if res.DeletedCount == 0 {
		return notFoundError(opDeleteBoard, boardID)
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"boardId": boardID}); err != nil {
		s.logError(opDeleteBoard, "comment_delete_failed", err, zap.String("board_id", boardID))
		return persistenceError(opDeleteBoard, "comment_delete_failed", err)
	}
	return nil
}

func (s *MongoStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("board store error", attrs...)
}
