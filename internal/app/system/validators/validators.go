// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/gather/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("groups", groupsSchema())
	ensure("questions", questionsSchema())
	ensure("responses", responsesSchema())
	ensure("push_subscriptions", subscriptionsSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"username", "username_ci", "email", "password_hash", "created_at"},
			"properties": bson.M{
				"username":      nonBlank,
				"username_ci":   nonBlank,
				"email":         nonBlank,
				"password_hash": nonBlank,
				"created_at":    bson.M{"bsonType": "date"},
			},
		},
	}
}

func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "invite_code", "created_by", "members", "is_active"},
			"properties": bson.M{
				"name":        bson.M{"bsonType": "string", "minLength": 1, "maxLength": 50, "pattern": ".*\\S.*"},
				"description": bson.M{"bsonType": "string", "maxLength": 200},
				"invite_code": bson.M{"bsonType": "string", "pattern": "^[0-9A-Z]{8}$"},
				"created_by":  bson.M{"bsonType": "objectId"},
				"members":     bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
				"is_active":   bson.M{"bsonType": "bool"},
				"created_at":  bson.M{"bsonType": "date"},
				"updated_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func questionsSchema() bson.M {
	categories := bson.A{}
	for _, c := range models.QuestionCategories {
		categories = append(categories, c)
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"text", "category", "date", "is_active"},
			"properties": bson.M{
				"text":       bson.M{"bsonType": "string", "minLength": 1, "maxLength": 500, "pattern": ".*\\S.*"},
				"category":   bson.M{"bsonType": "string", "enum": categories},
				"date":       bson.M{"bsonType": "date"},
				"is_active":  bson.M{"bsonType": "bool"},
				"created_by": bson.M{"bsonType": "string"},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func responsesSchema() bson.M {
	like := bson.M{
		"bsonType": "object",
		"required": bson.A{"user_id", "created_at"},
		"properties": bson.M{
			"user_id":    bson.M{"bsonType": "objectId"},
			"created_at": bson.M{"bsonType": "date"},
		},
	}
	reply := bson.M{
		"bsonType": "object",
		"required": bson.A{"_id", "user_id", "text", "created_at"},
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "objectId"},
			"user_id":    bson.M{"bsonType": "objectId"},
			"text":       bson.M{"bsonType": "string", "minLength": 1, "maxLength": 500},
			"created_at": bson.M{"bsonType": "date"},
		},
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "user_id", "question_id", "created_at"},
			"properties": bson.M{
				"group_id":    bson.M{"bsonType": "objectId"},
				"user_id":     bson.M{"bsonType": "objectId"},
				"question_id": bson.M{"bsonType": "objectId"},
				"text":        bson.M{"bsonType": "string", "maxLength": 1000},
				"photo_url":   bson.M{"bsonType": "string"},
				"likes":       bson.M{"bsonType": "array", "items": like},
				"replies":     bson.M{"bsonType": "array", "items": reply},
				"created_at":  bson.M{"bsonType": "date"},
				"updated_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func subscriptionsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "endpoint", "keys", "is_active"},
			"properties": bson.M{
				"user_id":  bson.M{"bsonType": "objectId"},
				"endpoint": nonBlank,
				"keys": bson.M{
					"bsonType": "object",
					"required": bson.A{"p256dh", "auth"},
					"properties": bson.M{
						"p256dh": nonBlank,
						"auth":   nonBlank,
					},
				},
				"is_active": bson.M{"bsonType": "bool"},
			},
		},
	}
}
