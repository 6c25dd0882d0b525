package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Now is the timestamp stored documents use; Mongo keeps millisecond UTC
func Now() time.Time {
	return time.Now().UTC()
}

// VersionFilter matches a document by id only while it still carries the expected version
func VersionFilter(id string, version int64) bson.M {
	return bson.M{"_id": id, "version": version}
}

// IncrementCounter bumps a numeric field and stamps updatedAt
func IncrementCounter(field string, by int64) bson.M {
	return bson.M{
		"$inc": bson.M{field: by},
		"$set": bson.M{"updatedAt": Now()},
	}
}

func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

func SortDescending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}}
}

// Window applies offset and limit; a zero limit returns everything after offset
func Window(opts *options.FindOptions, offset, limit int) *options.FindOptions {
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}
